package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Shared address parameters. A session is addressed by id, or by name
// within a workspace.
func addressOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("id", mcp.Description("Session ID. Mutually exclusive with name.")),
		mcp.WithString("workspace", mcp.Description(`Workspace of a named session (default "default").`)),
		mcp.WithString("name", mcp.Description("Session name, unique per workspace (case-insensitive).")),
	}
}

func tool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

var createToolDef = tool("memory_create",
	"Create a conversation memory session with a retention policy.",
	mcp.WithString("workspace", mcp.Description(`Workspace (default "default").`)),
	mcp.WithString("name", mcp.Description("Optional session name, unique per workspace.")),
	mcp.WithString("policy",
		mcp.Description("Retention policy (default from config)."),
		mcp.Enum("buffer", "window", "token_budget", "summary"),
	),
	mcp.WithNumber("k", mcp.Description("window: number of exchanges exposed.")),
	mcp.WithNumber("max_token_limit", mcp.Description("token_budget, summary: token limit.")),
	mcp.WithString("human_prefix", mcp.Description(`Prefix for human lines (default "Human").`)),
	mcp.WithString("ai_prefix", mcp.Description(`Prefix for AI lines (default "AI").`)),
	mcp.WithString("memory_key", mcp.Description(`Key the memory is exposed under (default "history").`)),
	mcp.WithString("input_key", mcp.Description("Input key of recorded turns; inferred when omitted.")),
	mcp.WithString("output_key", mcp.Description("Output key of recorded turns; inferred when omitted.")),
	mcp.WithBoolean("return_messages", mcp.Description("Expose memory as messages instead of text.")),
)

var recordToolDef = tool("memory_record",
	"Record one exchange. Pass inputs/outputs maps, or the input/output shorthand.",
	append(addressOptions(),
		mcp.WithObject("inputs", mcp.Description("Prompt inputs keyed by variable name.")),
		mcp.WithObject("outputs", mcp.Description("Chain outputs keyed by name.")),
		mcp.WithString("input", mcp.Description("Human text of the exchange.")),
		mcp.WithString("output", mcp.Description("AI text of the exchange.")),
	)...,
)

var renderToolDef = tool("memory_render",
	"Render the memory a session currently exposes.",
	append(addressOptions(),
		mcp.WithString("format",
			mcp.Description(`Output format (default "text").`),
			mcp.Enum("text", "messages", "html"),
		),
	)...,
)

var clearToolDef = tool("memory_clear",
	"Empty a session's transcript and summary, keeping its settings.",
	addressOptions()...,
)

var fetchToolDef = tool("memory_fetch",
	"Fetch a session's metadata and serialized state.",
	append(addressOptions(),
		mcp.WithBoolean("include_deleted", mcp.Description("Also match soft-deleted sessions.")),
		mcp.WithBoolean("include_state", mcp.Description("Include the state envelope (default true).")),
	)...,
)

var listToolDef = tool("memory_list",
	"List sessions in a workspace, most recently updated first.",
	mcp.WithString("workspace", mcp.Description(`Workspace (default "default").`)),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100).")),
	mcp.WithNumber("offset", mcp.Description("Items to skip.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted sessions.")),
)

var deleteToolDef = tool("memory_delete",
	"Soft-delete a session.",
	addressOptions()...,
)

var purgeToolDef = tool("memory_purge",
	"Permanently remove soft-deleted sessions.",
	mcp.WithString("workspace", mcp.Description("Only purge this workspace.")),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge sessions deleted more than N days ago.")),
)

var exportToolDef = tool("memory_export",
	"Export sessions to a JSONL file.",
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default ~/.lichen/exports/<workspace>-<timestamp>.jsonl).")),
	mcp.WithString("workspace", mcp.Description("Only export this workspace.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted sessions.")),
)

var importToolDef = tool("memory_import",
	"Import sessions from a JSONL export.",
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl path.")),
	mcp.WithString("mode",
		mcp.Description(`Collision handling (default "error").`),
		mcp.Enum("error", "replace", "rename"),
	),
)
