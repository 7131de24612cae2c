// Package hints remembers how large upstream collections turned out to be.
//
// The strategy selector sizes a retrieval by the expected number of items,
// but the upstream never reports totals. Every retrieval therefore records
// what it observed (items seen from the first page, and whether it reached
// the end) and the next retrieval of the same collection reads it back as
// its size hint.
//
// Two stores are provided: an in-process MemoryStore and a RedisStore that
// shares hints between replicas. Both expire hints after a TTL so a
// shrinking or growing workspace is re-measured.
//
// # Basic Usage
//
//	store := hints.NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := hints.Key{Workspace: hints.Fingerprint(apiKey), Operation: "leads"}
//	hint, err := store.Get(ctx, key)
//	if errors.Is(err, hints.ErrMiss) {
//		// nothing known yet
//	}
//
//	next := hints.Merge(hint, hints.Observation{Items: 250, FromStart: true, Exhausted: true}, time.Now(), hints.DefaultTTL)
//	_ = store.Set(ctx, key, &next)
//
// # Metrics
//
//   - instantly_hints_hits_total{store} - Hint lookups that found a live hint
//   - instantly_hints_misses_total{store} - Lookups without a live hint
//   - instantly_hints_errors_total{operation} - Store failures
package hints
