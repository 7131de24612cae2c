package monitor

import (
	"fmt"
	"time"
)

// Recommendation tuning.
const (
	smallBatchItems     = 20
	smallBatchMinCalls  = 3
	highErrorRate       = 0.25
	budgetPressureRatio = 0.8
	memoryPressureRatio = 0.8
)

// Summary is the finalized view of a session.
type Summary struct {
	SessionID       string
	Operation       string
	Calls           int
	Items           int
	AvgItemsPerCall float64
	MinBatch        int
	MaxBatch        int
	RateLimitHits   int
	Errors          int
	Elapsed         time.Duration
	AvgLatency      time.Duration
	MaxLatency      time.Duration
	MemoryBytes     uint64
	Stopped         AbortReason
	Warnings        []string
	Recommendations []string
}

// ErrorRate is the share of calls that failed.
func (s Summary) ErrorRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Calls)
}

// Finalize computes the summary. Repeated calls return the first result.
func (s *Session) Finalize() Summary {
	if s.finalized != nil {
		return *s.finalized
	}

	sum := Summary{
		SessionID:     s.id,
		Operation:     s.operation,
		Calls:         s.calls,
		Items:         s.items,
		MinBatch:      s.minBatch,
		MaxBatch:      s.maxBatch,
		RateLimitHits: s.rateLimitHits,
		Errors:        s.errors,
		Elapsed:       s.Elapsed(),
		MaxLatency:    s.maxLatency,
		MemoryBytes:   s.memoryBytes,
		Stopped:       s.stopped.Reason,
	}
	if s.calls > 0 {
		sum.AvgItemsPerCall = float64(s.items) / float64(s.calls)
		sum.AvgLatency = s.totalLatency / time.Duration(s.calls)
	}

	sum.Warnings = s.warnings(sum)
	sum.Recommendations = s.recommendations(sum)
	s.finalized = &sum

	observe(sum)

	event := s.logger.Info()
	if len(sum.Warnings) > 0 {
		event = s.logger.Warn().Strs("warnings", sum.Warnings)
	}
	event.
		Int("calls", sum.Calls).
		Int("items", sum.Items).
		Int("errors", sum.Errors).
		Int("rate_limit_hits", sum.RateLimitHits).
		Dur("elapsed", sum.Elapsed).
		Str("stopped", string(sum.Stopped)).
		Msg("Retrieval finished")

	return sum
}

func (s *Session) warnings(sum Summary) []string {
	var out []string
	if s.stopped.Abort() {
		out = append(out, fmt.Sprintf("stopped early (%s): %s; partial results returned", s.stopped.Reason, s.stopped.Detail))
	}
	if sum.Errors > 0 {
		out = append(out, fmt.Sprintf("%d of %d fetches failed", sum.Errors, sum.Calls))
	}
	if sum.RateLimitHits > 0 {
		out = append(out, fmt.Sprintf("%d fetches were rate limited", sum.RateLimitHits))
	}
	return out
}

func (s *Session) recommendations(sum Summary) []string {
	var out []string
	if sum.Calls >= smallBatchMinCalls && sum.AvgItemsPerCall < smallBatchItems && sum.MaxBatch < smallBatchItems {
		out = append(out, fmt.Sprintf("batch size too small for call volume: %.1f items per call over %d calls; request larger pages", sum.AvgItemsPerCall, sum.Calls))
	}
	if sum.RateLimitHits > 0 {
		out = append(out, "rate limiting observed: add an inter-call delay or fetch fewer pages per invocation")
	}
	if sum.Calls > 0 && sum.ErrorRate() >= highErrorRate {
		out = append(out, fmt.Sprintf("high error rate (%.0f%%): retry later or narrow the filters", sum.ErrorRate()*100))
	}
	if budget := s.thresholds.MaxDuration; budget > 0 && sum.Stopped != ReasonTimeBudget &&
		sum.Elapsed > time.Duration(float64(budget)*budgetPressureRatio) {
		out = append(out, "retrieval used most of the time budget: narrow the filters or lower the page count")
	}
	if limit := s.thresholds.MaxMemoryBytes; limit > 0 && s.memorySampled && sum.Stopped != ReasonMemory &&
		float64(sum.MemoryBytes) > float64(limit)*memoryPressureRatio {
		out = append(out, "memory usage close to limit: request smaller pages")
	}
	return out
}
