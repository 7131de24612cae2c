package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is the sentinel wrapped by every ExhaustedError.
var ErrExhausted = errors.New("rate limit exhausted")

// ExhaustedError reports a fetch that was refused before reaching the network.
type ExhaustedError struct {
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exhausted (limit %d): retry in %dms", e.Limit, e.RetryAfter.Milliseconds())
}

// Unwrap allows errors.Is(err, ErrExhausted).
func (e *ExhaustedError) Unwrap() error {
	return ErrExhausted
}
