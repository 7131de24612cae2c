package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
	"github.com/Sternrassler/instantly-mcp/pkg/retrieval"
)

// Retriever serves paginated collection reads.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Getter reads a single upstream resource.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// QuotaSource exposes the shared rate limit view.
type QuotaSource interface {
	State() *ratelimit.RateLimitState
	TimeUntilReset() time.Duration
}

// ProfileSource exposes the detected client profile.
type ProfileSource interface {
	Current() clientprofile.Profile
	Detected() bool
}
