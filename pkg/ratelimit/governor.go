package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "instantly_ratelimit_remaining",
		Help: "Requests remaining in the current Instantly rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "instantly_ratelimit_blocks_total",
		Help: "Total number of fetches refused because the rate limit was exhausted",
	})
)

// Governor holds the most recent rate limit state and gates fetches on it.
//
// Updates are last-write-wins: whichever response is recorded last defines the
// state. A stale snapshot can only make the governor refuse earlier, never
// later, so no ordering between concurrent updates is enforced.
type Governor struct {
	state  atomic.Pointer[RateLimitState]
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// NewGovernor creates a governor with no recorded state. Until the first
// update, fetches are allowed.
func NewGovernor(logger zerolog.Logger, opts ...Option) *Governor {
	g := &Governor{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state, or nil if nothing was recorded yet.
func (g *Governor) State() *RateLimitState {
	return g.state.Load()
}

// UpdateFromResponseMetadata records the quota advertised by a response.
func (g *Governor) UpdateFromResponseMetadata(limit, remaining int, resetAt time.Time) {
	state := &RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    resetAt,
		LastUpdate: g.now(),
	}
	g.state.Store(state)

	rateLimitRemaining.Set(float64(remaining))

	switch {
	case state.IsExhausted():
		g.logger.Warn().
			Int("limit", limit).
			Time("reset_at", resetAt).
			Msg("Instantly rate limit exhausted - fetches will be refused until reset")
	case state.IsLow():
		g.logger.Warn().
			Int("remaining", remaining).
			Int("limit", limit).
			Msg("Instantly rate limit low")
	default:
		g.logger.Debug().
			Int("remaining", remaining).
			Int("limit", limit).
			Time("reset_at", resetAt).
			Msg("Rate limit state updated")
	}
}

// UpdateFromHeaders parses the rate limit headers of a response and records
// them. Responses without a remaining header leave the state untouched.
func (g *Governor) UpdateFromHeaders(headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetValue, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	g.UpdateFromResponseMetadata(limit, remaining, resetTime(g.now(), resetValue))
	return nil
}

// IsExhausted reports whether the last recorded state has no requests left.
func (g *Governor) IsExhausted() bool {
	state := g.state.Load()
	return state != nil && state.IsExhausted()
}

// TimeUntilReset returns the time until the recorded window resets, or 0 when
// no state is recorded.
func (g *Governor) TimeUntilReset() time.Duration {
	state := g.state.Load()
	if state == nil {
		return 0
	}
	return state.TimeUntilReset(g.now())
}

// Check returns an *ExhaustedError when the quota is used up. Callers must
// invoke it before issuing a fetch and skip the fetch on error.
//
// An exhausted state whose reset time has passed no longer blocks: the next
// response carries the new window and replaces it.
func (g *Governor) Check() error {
	state := g.state.Load()
	if state == nil || !state.IsExhausted() {
		return nil
	}

	wait := state.TimeUntilReset(g.now())
	if wait == 0 {
		g.logger.Debug().
			Time("reset_at", state.ResetAt).
			Msg("Rate limit window passed - allowing fetch")
		return nil
	}

	rateLimitBlocksTotal.Inc()
	g.logger.Warn().
		Dur("retry_after", wait).
		Msg("Fetch refused - rate limit exhausted")

	return &ExhaustedError{
		Limit:      state.Limit,
		ResetAt:    state.ResetAt,
		RetryAfter: wait,
	}
}
