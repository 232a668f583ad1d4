package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/ops"
)

// maxStdinBytes bounds text piped to record.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *ops.Runtime) *cli.App {
	app := &cli.App{
		Name:    "lichen",
		Usage:   "Persistent conversation memory",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(rt),
			recordCmd(rt),
			renderCmd(rt),
			clearCmd(rt),
			fetchCmd(rt),
			listCmd(rt),
			deleteCmd(rt),
			purgeCmd(rt),
			exportCmd(rt),
			importCmd(rt),
			snapshotCmd(rt),
			restoreCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	// key=value pairs may contain commas.
	app.DisableSliceFlagSeparator = true
	return app
}

// addressFlags are shared by every command that targets one session.
func addressFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace name"},
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Session name"},
	}, extra...)
}

// address reads a positional ID, else --workspace and --name.
func address(c *cli.Context) (id, workspace, name string) {
	if c.NArg() > 0 {
		return c.Args().First(), "", ""
	}
	return "", c.String("workspace"), c.String("name")
}

// createCmd creates the create command.
func createCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a memory session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace name"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Session name (optional)"},
			&cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "Retention policy: buffer|window|token_budget|summary (default from config)"},
			&cli.IntFlag{Name: "k", Usage: "window: exchanges to expose"},
			&cli.IntFlag{Name: "max-token-limit", Usage: "token_budget, summary: token limit"},
			&cli.StringFlag{Name: "human-prefix", Usage: "Prefix for human lines"},
			&cli.StringFlag{Name: "ai-prefix", Usage: "Prefix for AI lines"},
			&cli.StringFlag{Name: "memory-key", Usage: "Key the memory is exposed under"},
			&cli.StringFlag{Name: "input-key", Usage: "Input key of recorded turns"},
			&cli.StringFlag{Name: "output-key", Usage: "Output key of recorded turns"},
			&cli.BoolFlag{Name: "return-messages", Usage: "Expose memory as messages"},
		},
		Action: func(c *cli.Context) error {
			input := ops.CreateInput{
				Workspace:      c.String("workspace"),
				Policy:         c.String("policy"),
				K:              c.Int("k"),
				MaxTokenLimit:  c.Int("max-token-limit"),
				HumanPrefix:    c.String("human-prefix"),
				AIPrefix:       c.String("ai-prefix"),
				MemoryKey:      c.String("memory-key"),
				InputKey:       c.String("input-key"),
				OutputKey:      c.String("output-key"),
				ReturnMessages: c.Bool("return-messages"),
			}
			if c.IsSet("name") {
				name := c.String("name")
				input.Name = &name
			}

			output, err := ops.Create(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// recordCmd creates the record command.
func recordCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "record",
		Usage:     "Record one exchange (the output may be piped via stdin)",
		ArgsUsage: "[id]",
		Flags: addressFlags(
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Human text"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "AI text"},
			&cli.StringSliceFlag{Name: "inputs", Usage: "Prompt input as key=value (repeatable)"},
			&cli.StringSliceFlag{Name: "outputs", Usage: "Chain output as key=value (repeatable)"},
		),
		Action: func(c *cli.Context) error {
			input := ops.RecordInput{}
			input.ID, input.Workspace, input.Name = address(c)

			keyed := c.IsSet("inputs") || c.IsSet("outputs")
			if keyed && (c.IsSet("input") || c.IsSet("output")) {
				return outputError(errors.NewInvalidRequest("use either --inputs/--outputs or --input/--output, not both"))
			}

			if keyed {
				var err error
				if input.Inputs, err = parsePairs(c.StringSlice("inputs")); err != nil {
					return outputError(err)
				}
				if input.Outputs, err = parsePairs(c.StringSlice("outputs")); err != nil {
					return outputError(err)
				}
			} else {
				input.Input = c.String("input")
				input.Output = c.String("output")
				if !c.IsSet("output") && stdinHasData() {
					text, err := readStdin(maxStdinBytes)
					if err != nil {
						return outputError(err)
					}
					input.Output = text
				}
			}

			output, err := ops.Record(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// renderCmd creates the render command.
func renderCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render the memory a session exposes",
		ArgsUsage: "[id]",
		Flags: addressFlags(
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.RenderText, Usage: "Output format: text|messages|html"},
			&cli.BoolFlag{Name: "raw", Usage: "Print text or html without the JSON wrapper"},
		),
		Action: func(c *cli.Context) error {
			input := ops.RenderInput{Format: c.String("format")}
			input.ID, input.Workspace, input.Name = address(c)

			output, err := ops.Render(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("raw") && output.Format != ops.RenderMessages {
				text := output.Text
				if output.Format == ops.RenderHTML {
					text = output.HTML
				}
				_, err := fmt.Fprintln(os.Stdout, text)
				return err
			}
			return outputJSON(output)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "clear",
		Usage:     "Empty a session's transcript and summary",
		ArgsUsage: "[id]",
		Flags:     addressFlags(),
		Action: func(c *cli.Context) error {
			input := ops.ClearInput{}
			input.ID, input.Workspace, input.Name = address(c)

			output, err := ops.Clear(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a session by ID or name",
		ArgsUsage: "[id]",
		Flags: addressFlags(
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted sessions"},
			&cli.BoolFlag{Name: "no-state", Usage: "Exclude the state envelope from output"},
		),
		Action: func(c *cli.Context) error {
			input := ops.FetchInput{IncludeDeleted: c.Bool("include-deleted")}
			input.ID, input.Workspace, input.Name = address(c)

			if c.Bool("no-state") {
				includeState := false
				input.IncludeState = &includeState
			}

			output, err := ops.Fetch(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List sessions in a workspace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace name"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted sessions"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, rt, ops.ListInput{
				Workspace:      c.String("workspace"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a session",
		ArgsUsage: "[id]",
		Flags:     addressFlags(),
		Action: func(c *cli.Context) error {
			input := ops.DeleteInput{}
			input.ID, input.Workspace, input.Name = address(c)

			output, err := ops.Delete(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Filter by workspace"},
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}

			if workspace := c.String("workspace"); workspace != "" {
				input.Workspace = &workspace
			}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export sessions to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.lichen/exports/<workspace>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Filter by workspace"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted sessions"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ExportInput{
				Path:           c.String("path"),
				IncludeDeleted: c.Bool("include-deleted"),
			}

			if workspace := c.String("workspace"); workspace != "" {
				input.Workspace = &workspace
			}

			output, err := ops.Export(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import sessions from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, rt, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// snapshotCmd creates the snapshot command.
func snapshotCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Usage:     "Write one session's state envelope to a file",
		ArgsUsage: "[id]",
		Flags: addressFlags(
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Snapshot path (.json, .cbor, .yaml)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json|cbor|yaml (default: from the extension)"},
		),
		Action: func(c *cli.Context) error {
			input := ops.SnapshotInput{
				Path:   c.String("path"),
				Format: c.String("format"),
			}
			input.ID, input.Workspace, input.Name = address(c)

			output, err := ops.Snapshot(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "Restore a snapshot into a new session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Snapshot path"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json|cbor|yaml (default: from the extension)"},
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace of the new session"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name of the new session (optional)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RestoreInput{
				Path:      c.String("path"),
				Format:    c.String("format"),
				Workspace: c.String("workspace"),
			}
			if c.IsSet("name") {
				name := c.String("name")
				input.Name = &name
			}

			output, err := ops.Restore(c.Context, rt, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if lErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", lErr.Code, lErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}

// parsePairs turns key=value arguments into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("expected key=value, got %q", p))
		}
		out[k] = v
	}
	return out, nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
