package session

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// DefaultWorkspace is used when no workspace is given.
const DefaultWorkspace = "default"

// Normalize trims, lowercases and collapses internal whitespace so that
// "My Chat" and "  my   chat " address the same session.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeName returns nil for a nil or blank name.
func NormalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	norm := Normalize(*name)
	if norm == "" {
		return nil
	}
	return &norm
}

// WorkspaceOrDefault returns the trimmed workspace, or DefaultWorkspace when blank.
func WorkspaceOrDefault(ws string) string {
	if strings.TrimSpace(ws) == "" {
		return DefaultWorkspace
	}
	return ws
}
