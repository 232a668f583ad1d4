package ops

import (
	"context"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/session"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Workspace      string // defaults to "default"
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []session.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List retrieves session summaries for a workspace with pagination.
func List(ctx context.Context, rt *Runtime, input ListInput) (*ListOutput, error) {
	workspace := session.Normalize(session.WorkspaceOrDefault(input.Workspace))

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	summaries, total, err := db.ListByWorkspace(ctx, rt.DB, workspace, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []session.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}
