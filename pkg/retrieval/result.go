package retrieval

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/monitor"
	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
	"github.com/Sternrassler/instantly-mcp/pkg/strategy"
)

// Request is one caller-facing retrieval.
type Request struct {
	Operation pagination.Operation

	// Cursor resumes a previous retrieval; empty starts at the first page.
	Cursor pagination.Cursor

	// Limit is the desired page size. Zero uses the strategy's batch size.
	Limit int

	// Filters pass through to the upstream unmodified.
	Filters map[string]any

	// ClientHint overrides the detected client for this request only.
	ClientHint string

	// SizeHint overrides the remembered collection size.
	SizeHint int

	// Strategy pins a predefined strategy by name.
	Strategy string

	// Custom supplies a complete strategy. It wins over Strategy.
	Custom *strategy.Profile

	// Collect walks up to the strategy's page ceiling instead of returning
	// a single page.
	Collect bool
}

// Pagination describes where the caller stands in the collection.
type Pagination struct {
	ReturnedCount int    `json:"returned_count"`
	HasMore       bool   `json:"has_more"`
	NextCursor    string `json:"next_starting_after,omitempty"`
	Limit         int    `json:"limit"`
	PagesFetched  int    `json:"pages_fetched"`
	Note          string `json:"note,omitempty"`
}

// Result is what a retrieval returns: items, the continuation point and
// the context the decision was made in.
type Result struct {
	Operation  pagination.Operation
	Items      []json.RawMessage
	Pagination Pagination
	Partial    bool
	Warnings   []string
	Summary    monitor.Summary
	Strategy   strategy.Profile
	Client     clientprofile.Profile
}

func note(p Pagination, stopped monitor.AbortReason, failed bool) string {
	if !p.HasMore {
		return fmt.Sprintf("Retrieved all remaining items (%d).", p.ReturnedCount)
	}
	prefix := fmt.Sprintf("Retrieved %d items.", p.ReturnedCount)
	switch {
	case failed:
		prefix = fmt.Sprintf("Retrieved %d items before an upstream error.", p.ReturnedCount)
	case stopped != monitor.ReasonNone:
		prefix = fmt.Sprintf("Retrieved %d items before stopping early (%s).", p.ReturnedCount, stopped)
	}
	return fmt.Sprintf("%s More results are available: call again with starting_after=%q to continue.", prefix, p.NextCursor)
}
