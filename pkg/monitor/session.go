// Package monitor accumulates timing, volume and error statistics for one
// logical retrieval and decides when it should stop early.
//
// A Session lives for exactly one retrieval. Stopping is advisory: ShouldAbort
// returns a Decision that the retrieval loop checks between fetches, keeping
// what it already gathered. Finalize turns the statistics into a Summary with
// warnings and non-binding recommendations.
package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Thresholds bound a retrieval. Zero values disable the respective check.
type Thresholds struct {
	MaxDuration    time.Duration
	MaxCalls       int
	MaxMemoryBytes uint64
}

// DecisionKind tags a Decision.
type DecisionKind int

const (
	// Continue means another fetch may be issued.
	Continue DecisionKind = iota
	// StopWithPartial means the loop should end and return what it has.
	StopWithPartial
)

// AbortReason names the threshold that stopped a retrieval.
type AbortReason string

const (
	ReasonNone       AbortReason = ""
	ReasonTimeBudget AbortReason = "time_budget"
	ReasonCallLimit  AbortReason = "call_limit"
	ReasonMemory     AbortReason = "memory_limit"
)

// Decision is the result of ShouldAbort.
type Decision struct {
	Kind   DecisionKind
	Reason AbortReason
	Detail string
}

// Abort reports whether the decision is StopWithPartial.
func (d Decision) Abort() bool {
	return d.Kind == StopWithPartial
}

func stop(reason AbortReason, format string, args ...any) Decision {
	return Decision{Kind: StopWithPartial, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// MemorySampler returns the current memory footprint in bytes. ok is false
// when no sample could be taken.
type MemorySampler func() (bytes uint64, ok bool)

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithMemorySampler enables memory snapshots.
func WithMemorySampler(sampler MemorySampler) Option {
	return func(s *Session) {
		s.sampler = sampler
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session tracks one retrieval. It is not safe for concurrent use; each
// retrieval owns its session.
type Session struct {
	id         string
	operation  string
	thresholds Thresholds
	now        func() time.Time
	sampler    MemorySampler
	logger     zerolog.Logger

	start        time.Time
	fetchStarted time.Time
	lastRecord   time.Time

	calls         int
	items         int
	batches       int
	minBatch      int
	maxBatch      int
	rateLimitHits int
	errors        int
	totalLatency  time.Duration
	maxLatency    time.Duration

	memoryBytes   uint64
	memorySampled bool

	stopped   Decision
	finalized *Summary
}

// NewSession starts a session for the named operation.
func NewSession(operation string, thresholds Thresholds, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		operation:  operation,
		thresholds: thresholds,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	s.lastRecord = s.start
	s.logger = s.logger.With().Str("session_id", s.id).Str("operation", operation).Logger()
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Thresholds returns the thresholds the session checks.
func (s *Session) Thresholds() Thresholds {
	return s.thresholds
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// Calls returns the number of recorded fetches.
func (s *Session) Calls() int {
	return s.calls
}

// StartFetch marks the beginning of a fetch for latency measurement.
func (s *Session) StartFetch() {
	s.fetchStarted = s.now()
}

// RecordFetch records the outcome of one fetch. Batch statistics only cover
// fetches that returned a page.
func (s *Session) RecordFetch(itemsReturned int, rateLimited, errored bool) {
	now := s.now()
	began := s.lastRecord
	if !s.fetchStarted.IsZero() {
		began = s.fetchStarted
	}
	latency := now.Sub(began)
	s.fetchStarted = time.Time{}
	s.lastRecord = now

	s.calls++
	s.totalLatency += latency
	if latency > s.maxLatency {
		s.maxLatency = latency
	}

	if rateLimited {
		s.rateLimitHits++
	}
	if errored {
		s.errors++
	}
	if !rateLimited && !errored {
		s.items += itemsReturned
		if s.batches == 0 || itemsReturned < s.minBatch {
			s.minBatch = itemsReturned
		}
		if itemsReturned > s.maxBatch {
			s.maxBatch = itemsReturned
		}
		s.batches++
	}

	s.sampleMemory()

	s.logger.Debug().
		Int("call", s.calls).
		Int("items", itemsReturned).
		Bool("rate_limited", rateLimited).
		Bool("errored", errored).
		Dur("latency", latency).
		Msg("Fetch recorded")
}

// ShouldAbort checks the thresholds. It must be called before every fetch.
func (s *Session) ShouldAbort() Decision {
	elapsed := s.Elapsed()

	var d Decision
	switch {
	case s.thresholds.MaxDuration > 0 && elapsed > s.thresholds.MaxDuration:
		d = stop(ReasonTimeBudget, "elapsed %s exceeds time budget %s", elapsed.Round(time.Millisecond), s.thresholds.MaxDuration)
	case s.thresholds.MaxCalls > 0 && s.calls >= s.thresholds.MaxCalls:
		d = stop(ReasonCallLimit, "%d calls reached the limit of %d", s.calls, s.thresholds.MaxCalls)
	case s.thresholds.MaxMemoryBytes > 0 && s.sampleMemory() && s.memoryBytes > s.thresholds.MaxMemoryBytes:
		d = stop(ReasonMemory, "memory %d bytes exceeds limit %d bytes", s.memoryBytes, s.thresholds.MaxMemoryBytes)
	default:
		return Decision{Kind: Continue}
	}

	if !s.stopped.Abort() {
		s.stopped = d
		abortsTotal.WithLabelValues(s.operation, string(d.Reason)).Inc()
		s.logger.Warn().
			Str("reason", string(d.Reason)).
			Str("detail", d.Detail).
			Int("calls", s.calls).
			Int("items", s.items).
			Msg("Retrieval stopping early")
	}
	return d
}

func (s *Session) sampleMemory() bool {
	if s.sampler == nil {
		return false
	}
	bytes, ok := s.sampler()
	if !ok {
		return false
	}
	s.memoryBytes = bytes
	s.memorySampled = true
	return true
}
