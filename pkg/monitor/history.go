package monitor

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of summaries kept per operation.
const DefaultHistorySize = 20

// Stats aggregates recent summaries of one operation.
type Stats struct {
	Samples       int
	Calls         int
	AvgLatency    time.Duration
	ErrorRate     float64
	RateLimitHits int
	Aborts        int
}

// History keeps the most recent summaries per operation. Unlike sessions it
// is shared between concurrent retrievals.
type History struct {
	mu      sync.Mutex
	size    int
	entries map[string][]Summary
}

// NewHistory creates a history keeping size summaries per operation.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:    size,
		entries: make(map[string][]Summary),
	}
}

// Record appends a summary, evicting the oldest one beyond capacity.
func (h *History) Record(sum Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[sum.Operation], sum)
	if len(list) > h.size {
		list = list[len(list)-h.size:]
	}
	h.entries[sum.Operation] = list
}

// Stats aggregates the recorded summaries of an operation. Latency and error
// rate are weighted by call count.
func (h *History) Stats(operation string) Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		st           Stats
		totalLatency time.Duration
		errors       int
	)
	for _, sum := range h.entries[operation] {
		st.Samples++
		st.Calls += sum.Calls
		st.RateLimitHits += sum.RateLimitHits
		totalLatency += sum.AvgLatency * time.Duration(sum.Calls)
		errors += sum.Errors
		if sum.Stopped != ReasonNone {
			st.Aborts++
		}
	}
	if st.Calls > 0 {
		st.AvgLatency = totalLatency / time.Duration(st.Calls)
		st.ErrorRate = float64(errors) / float64(st.Calls)
	}
	return st
}
