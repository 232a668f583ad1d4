package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/hpungsan/lichen/internal/retention"
)

// Config holds application configuration.
// config.json may contain comments and trailing commas (JSONC).
type Config struct {
	// DefaultPolicy is the retention policy for sessions created without one.
	// One of "buffer", "window", "token_budget", "summary".
	DefaultPolicy string `json:"default_policy,omitempty"`

	// WindowK is the number of turns a window policy renders.
	WindowK int `json:"window_k,omitempty"`

	// MaxTokenLimit bounds token_budget and summary policies.
	MaxTokenLimit int `json:"max_token_limit,omitempty"`

	// SummaryModel is the Anthropic model used by summary policies.
	SummaryModel string `json:"summary_model,omitempty"`

	// SummaryMaxTokens caps the length of each generated summary.
	SummaryMaxTokens int `json:"summary_max_tokens,omitempty"`

	// AllowedPaths is an allowlist of directories for export/import/snapshot.
	// Paths outside ~/.lichen/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for file operations.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is the slog level name: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultPolicy:    string(retention.KindBuffer),
		WindowK:          retention.DefaultK,
		MaxTokenLimit:    retention.DefaultTokenLimit,
		SummaryModel:     "claude-sonnet-4-5",
		SummaryMaxTokens: 1024,
		LogLevel:         "info",
	}
}

// Validate checks values a config file could get wrong.
func (c *Config) Validate() error {
	if _, err := retention.ParseKind(c.DefaultPolicy); err != nil {
		return fmt.Errorf("default_policy: %w", err)
	}
	if c.WindowK < 0 {
		return fmt.Errorf("window_k must be positive, got %d", c.WindowK)
	}
	if c.MaxTokenLimit < 0 {
		return fmt.Errorf("max_token_limit must be positive, got %d", c.MaxTokenLimit)
	}
	if c.SummaryMaxTokens < 0 {
		return fmt.Errorf("summary_max_tokens must be positive, got %d", c.SummaryMaxTokens)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lichen.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.lichen) and repo (.lichen) directories.
// Repo config is found by walking upward from startDir to find the nearest .lichen/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .lichen/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".lichen", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw returns a zero-valued config (not defaults) if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		DefaultPolicy:    pickString(overlay.DefaultPolicy, base.DefaultPolicy),
		WindowK:          pickInt(overlay.WindowK, base.WindowK),
		MaxTokenLimit:    pickInt(overlay.MaxTokenLimit, base.MaxTokenLimit),
		SummaryModel:     pickString(overlay.SummaryModel, base.SummaryModel),
		SummaryMaxTokens: pickInt(overlay.SummaryMaxTokens, base.SummaryMaxTokens),
		DBMaxOpenConns:   pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:   pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		LogLevel:         pickString(overlay.LogLevel, base.LogLevel),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
