package pagination

import (
	"context"
	"encoding/json"
	"net/http"
)

// MaxBatchSize is the largest page the upstream will serve.
const MaxBatchSize = 100

// Operation names a paginated upstream collection.
type Operation string

const (
	OpAccounts  Operation = "accounts"
	OpCampaigns Operation = "campaigns"
	OpLeads     Operation = "leads"
	OpEmails    Operation = "emails"
)

// Operations lists every supported collection.
func Operations() []Operation {
	return []Operation{OpAccounts, OpCampaigns, OpLeads, OpEmails}
}

// Valid reports whether o is a supported collection.
func (o Operation) Valid() bool {
	switch o {
	case OpAccounts, OpCampaigns, OpLeads, OpEmails:
		return true
	default:
		return false
	}
}

// Cursor is an opaque continuation token. It is compared, never parsed.
type Cursor string

// Present reports whether the cursor points at a further page.
func (c Cursor) Present() bool {
	return c != ""
}

// PageRequest asks for one page of a collection.
type PageRequest struct {
	// BatchSize is the desired page size, clamped to [1, MaxBatchSize].
	BatchSize int

	// Cursor is empty for the first page.
	Cursor Cursor

	// Filters are collection-specific parameters passed through unmodified.
	Filters map[string]any
}

// PageResponse is one normalized page.
type PageResponse struct {
	Items      []json.RawMessage
	NextCursor Cursor
}

// HasMore reports whether another page should exist.
func (p PageResponse) HasMore() bool {
	return p.NextCursor.Present()
}

// RawPage is an upstream response before normalization.
type RawPage struct {
	Body   []byte
	Header http.Header
}

// Fetcher performs the authenticated upstream call for one page.
type Fetcher interface {
	FetchPage(ctx context.Context, op Operation, req PageRequest) (*RawPage, error)
}

// HeaderCarrier is implemented by fetch errors that still carry the
// response headers (for example a 429 with rate limit headers).
type HeaderCarrier interface {
	ResponseHeader() http.Header
}

// ClampBatchSize bounds n into [1, MaxBatchSize].
func ClampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}
