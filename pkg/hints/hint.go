package hints

import "time"

// DefaultTTL is how long an observation stays valid.
const DefaultTTL = time.Hour

// Hint is the remembered size of one collection.
type Hint struct {
	// Items is the number of items observed. It is a lower bound unless
	// Exact is set.
	Items int `json:"items"`

	// Exact reports that a walk from the first page reached the end.
	Exact bool `json:"exact"`

	// ObservedAt is when the hint was last updated.
	ObservedAt time.Time `json:"observed_at"`

	// Expires is when the hint must be re-measured.
	Expires time.Time `json:"expires"`
}

// IsExpired reports whether the hint is past its expiry at now.
func (h *Hint) IsExpired(now time.Time) bool {
	return !now.Before(h.Expires)
}

// TTL returns the time until expiry, or 0 when already expired.
func (h *Hint) TTL(now time.Time) time.Duration {
	ttl := h.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// SizeHint returns the item count to feed the strategy selector, or 0 for
// a nil hint.
func (h *Hint) SizeHint() int {
	if h == nil {
		return 0
	}
	return h.Items
}

// Observation is what a single retrieval saw.
type Observation struct {
	// Items is the number of items returned by the retrieval.
	Items int

	// FromStart is set when the retrieval began at the first page.
	FromStart bool

	// Exhausted is set when the last fetched page carried no cursor.
	Exhausted bool
}

// Merge folds an observation into the previous hint (which may be nil).
//
// A complete walk from the first page replaces the hint with an exact
// count. Anything else only raises the lower bound: when more pages exist
// the collection holds at least one more item than was seen. An exact count
// survives until an observation contradicts it, and keeps its original
// expiry so it is still re-measured on schedule.
func Merge(prev *Hint, obs Observation, now time.Time, ttl time.Duration) Hint {
	if obs.FromStart && obs.Exhausted {
		return Hint{Items: obs.Items, Exact: true, ObservedAt: now, Expires: now.Add(ttl)}
	}

	seen := 0
	if obs.FromStart {
		seen = obs.Items
		if !obs.Exhausted {
			seen++
		}
	}

	if prev != nil && !prev.IsExpired(now) {
		if prev.Exact && seen <= prev.Items {
			return Hint{Items: prev.Items, Exact: true, ObservedAt: now, Expires: prev.Expires}
		}
		if !prev.Exact && prev.Items > seen {
			seen = prev.Items
		}
	}
	return Hint{Items: seen, ObservedAt: now, Expires: now.Add(ttl)}
}
