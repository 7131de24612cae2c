// Package strategy picks the tuning parameters of one paginated retrieval.
//
// A strategy is a plain value: how many pages to walk, how large each page
// is, how long a single request may take and how many retries the caller may
// spend. It is computed fresh for every retrieval from the calling runtime's
// profile, the expected collection size and recent performance. Whenever
// any of those signals indicates strain the more conservative tier wins.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Names of the predefined tiers, most to least conservative.
const (
	Conservative = "conservative"
	Balanced     = "balanced"
	Complete     = "complete"
	Enterprise   = "enterprise"

	// Custom names a caller-supplied profile without a name.
	Custom = "custom"
)

// Bounds for pinned and custom profiles.
const (
	MinBatchSize      = 1
	MaxBatchSize      = 500
	MinPages          = 1
	MaxPages          = 200
	MinRequestTimeout = time.Second
	MaxRequestTimeout = 600 * time.Second
	MinRetryAttempts  = 0
	MaxRetryAttempts  = 10
)

var (
	// ErrUnknownStrategy is returned when a pinned name matches no tier.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrOutOfBounds is returned when a pinned or custom profile violates
	// the parameter bounds.
	ErrOutOfBounds = errors.New("strategy parameter out of bounds")
)

// Profile is the concrete tuning of one retrieval.
type Profile struct {
	Name           string        `json:"name"`
	MaxPages       int           `json:"max_pages"`
	BatchSize      int           `json:"batch_size"`
	RequestTimeout time.Duration `json:"request_timeout"`

	// RetryAttempts is advisory for the caller's own retry loop. The
	// retrieval engine never retries a page itself.
	RetryAttempts int `json:"retry_attempts"`
}

// Validate checks p against the parameter bounds.
func (p Profile) Validate() error {
	switch {
	case p.BatchSize < MinBatchSize || p.BatchSize > MaxBatchSize:
		return fmt.Errorf("%w: batch size %d not in [%d, %d]", ErrOutOfBounds, p.BatchSize, MinBatchSize, MaxBatchSize)
	case p.MaxPages < MinPages || p.MaxPages > MaxPages:
		return fmt.Errorf("%w: max pages %d not in [%d, %d]", ErrOutOfBounds, p.MaxPages, MinPages, MaxPages)
	case p.RequestTimeout < MinRequestTimeout || p.RequestTimeout > MaxRequestTimeout:
		return fmt.Errorf("%w: request timeout %s not in [%s, %s]", ErrOutOfBounds, p.RequestTimeout, MinRequestTimeout, MaxRequestTimeout)
	case p.RetryAttempts < MinRetryAttempts || p.RetryAttempts > MaxRetryAttempts:
		return fmt.Errorf("%w: retry attempts %d not in [%d, %d]", ErrOutOfBounds, p.RetryAttempts, MinRetryAttempts, MaxRetryAttempts)
	}
	return nil
}

var tiers = map[string]Profile{
	Conservative: {Name: Conservative, MaxPages: 3, BatchSize: 50, RequestTimeout: 15 * time.Second, RetryAttempts: 1},
	Balanced:     {Name: Balanced, MaxPages: 5, BatchSize: 100, RequestTimeout: 30 * time.Second, RetryAttempts: 2},
	Complete:     {Name: Complete, MaxPages: 10, BatchSize: 100, RequestTimeout: 45 * time.Second, RetryAttempts: 3},
	Enterprise:   {Name: Enterprise, MaxPages: 20, BatchSize: 100, RequestTimeout: 60 * time.Second, RetryAttempts: 3},
}

// Tier returns a predefined profile by name (case-insensitive).
func Tier(name string) (Profile, error) {
	p, ok := tiers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return p, nil
}

// Tiers returns the predefined profiles, most conservative first.
func Tiers() []Profile {
	out := make([]Profile, 0, len(tiers))
	for _, p := range tiers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MaxPages < out[j].MaxPages
	})
	return out
}
