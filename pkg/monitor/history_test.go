package monitor

import (
	"sync"
	"testing"
	"time"
)

func TestHistory_Stats(t *testing.T) {
	h := NewHistory(10)

	if st := h.Stats("leads"); st.Samples != 0 || st.AvgLatency != 0 || st.ErrorRate != 0 {
		t.Errorf("empty history Stats() = %+v, want zero", st)
	}

	h.Record(Summary{Operation: "leads", Calls: 2, Errors: 0, AvgLatency: 100 * time.Millisecond})
	h.Record(Summary{Operation: "leads", Calls: 2, Errors: 2, AvgLatency: 300 * time.Millisecond, RateLimitHits: 1, Stopped: ReasonTimeBudget})
	h.Record(Summary{Operation: "accounts", Calls: 1, AvgLatency: 5 * time.Second})

	st := h.Stats("leads")
	if st.Samples != 2 || st.Calls != 4 {
		t.Errorf("Samples = %d, Calls = %d, want 2 and 4", st.Samples, st.Calls)
	}
	if st.AvgLatency != 200*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 200ms", st.AvgLatency)
	}
	if st.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", st.ErrorRate)
	}
	if st.RateLimitHits != 1 || st.Aborts != 1 {
		t.Errorf("RateLimitHits = %d, Aborts = %d, want 1 and 1", st.RateLimitHits, st.Aborts)
	}
}

func TestHistory_Evicts(t *testing.T) {
	h := NewHistory(2)

	h.Record(Summary{Operation: "emails", Calls: 1, Errors: 1})
	h.Record(Summary{Operation: "emails", Calls: 1})
	h.Record(Summary{Operation: "emails", Calls: 1})

	st := h.Stats("emails")
	if st.Samples != 2 {
		t.Errorf("Samples = %d, want 2", st.Samples)
	}
	if st.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0 after the failing summary was evicted", st.ErrorRate)
	}
}

func TestHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < DefaultHistorySize+5; i++ {
		h.Record(Summary{Operation: "campaigns", Calls: 1})
	}
	if got := h.Stats("campaigns").Samples; got != DefaultHistorySize {
		t.Errorf("Samples = %d, want %d", got, DefaultHistorySize)
	}
}

func TestHistory_Concurrent(t *testing.T) {
	h := NewHistory(50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Record(Summary{Operation: "leads", Calls: 1})
			_ = h.Stats("leads")
		}()
	}
	wg.Wait()

	if got := h.Stats("leads").Samples; got != 20 {
		t.Errorf("Samples = %d, want 20", got)
	}
}

func TestProcessMemory(t *testing.T) {
	sampler := ProcessMemory()
	if sampler == nil {
		t.Skip("process inspection not available")
	}
	bytes, ok := sampler()
	if !ok {
		t.Skip("memory info not available")
	}
	if bytes == 0 {
		t.Error("RSS of a running process should be non-zero")
	}
}
