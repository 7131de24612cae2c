// Package ratelimit implements the client-side rate limit governor for the
// Instantly API. It tracks the X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset headers of the most recent upstream response and refuses
// to start new fetches once the quota is exhausted.
package ratelimit

import (
	"time"
)

// Response headers carrying the upstream quota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for logging rate limit pressure.
const (
	// RemainingThresholdLow marks the quota as under pressure. Requests are still
	// allowed; the governor only logs a warning.
	RemainingThresholdLow = 10

	// epochCutoff separates a reset header expressed as seconds-until-reset from
	// one expressed as a unix timestamp.
	epochCutoff = 1_000_000_000
)

// RateLimitState is the upstream quota as advertised by the newest response.
// A state is never mutated after it is published; updates replace it.
type RateLimitState struct {
	// Limit is the request quota for the current window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsExhausted reports whether the quota is used up.
func (s *RateLimitState) IsExhausted() bool {
	return s.Remaining == 0
}

// IsLow reports whether the quota is close to exhaustion.
func (s *RateLimitState) IsLow() bool {
	return s.Remaining > 0 && s.Remaining < RemainingThresholdLow
}

// IsStale returns true if the state is older than maxAge relative to now.
func (s *RateLimitState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// TimeUntilReset returns the duration from now until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset(now time.Time) time.Duration {
	duration := s.ResetAt.Sub(now)
	if duration < 0 {
		return 0
	}
	return duration
}

// resetTime interprets a reset header value. Values above epochCutoff are unix
// timestamps, smaller values are seconds from now.
func resetTime(now time.Time, value int64) time.Time {
	if value >= epochCutoff {
		return time.Unix(value, 0)
	}
	return now.Add(time.Duration(value) * time.Second)
}
