// Package retrieval drives adaptive, cursor-paginated reads of Instantly
// collections.
//
// An Engine combines the other packages into one caller-facing operation:
//
//  1. The calling runtime's profile comes from the clientprofile detector.
//  2. The strategy selector sizes the retrieval from that profile, the
//     remembered collection size and recent performance.
//  3. Pages are fetched strictly one after another through the pagination
//     protocol. Before each fetch the monitor session may stop the loop and
//     the rate limit governor may refuse the fetch.
//  4. The finalized session feeds the performance history and the size
//     hints used by the next retrieval.
//
// A retrieval that stops early after fetching at least one page is not an
// error: it returns the items gathered so far with the cursor to resume from.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/hints"
	"github.com/Sternrassler/instantly-mcp/pkg/monitor"
	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
	"github.com/Sternrassler/instantly-mcp/pkg/strategy"
)

// ErrInvalidRequest is returned for requests the engine cannot serve.
var ErrInvalidRequest = errors.New("invalid retrieval request")

// ErrStopped is returned when the monitor stops a retrieval before its first
// fetch, leaving nothing to return.
var ErrStopped = errors.New("retrieval stopped before the first fetch")

// Deps are the collaborators of an Engine. Only Fetcher is required; the
// shared state (Governor, Detector, History) should be created once per
// process and passed to every engine that talks to the same workspace.
type Deps struct {
	Fetcher  pagination.Fetcher
	Governor *ratelimit.Governor
	Detector *clientprofile.Detector
	Selector *strategy.Selector
	History  *monitor.History
	Hints    hints.Store
}

// Config holds engine configuration.
type Config struct {
	// Workspace scopes size hints, see hints.Fingerprint.
	Workspace string

	// MemoryLimitBytes stops a retrieval when the sampled memory exceeds
	// it. Zero disables the check.
	MemoryLimitBytes uint64

	// HintTTL is how long a size observation stays valid.
	HintTTL time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		HintTTL: hints.DefaultTTL,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source of sessions, the governor fallback
// and hint bookkeeping (for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMemorySampler enables the memory threshold.
func WithMemorySampler(sampler monitor.MemorySampler) Option {
	return func(e *Engine) {
		e.sampler = sampler
	}
}

// Engine serves retrievals. It is safe for concurrent use; each retrieval
// owns its own session and strategy.
type Engine struct {
	protocol *pagination.Protocol
	governor *ratelimit.Governor
	detector *clientprofile.Detector
	selector *strategy.Selector
	history  *monitor.History
	hints    hints.Store
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
	sampler  monitor.MemorySampler
}

// New creates an engine. Missing optional collaborators get defaults:
// a fresh governor, a detector over the default table, a selector with
// default thresholds and an in-memory hint store.
func New(deps Deps, cfg Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidRequest)
	}

	e := &Engine{
		governor: deps.Governor,
		detector: deps.Detector,
		selector: deps.Selector,
		history:  deps.History,
		hints:    deps.Hints,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.governor == nil {
		e.governor = ratelimit.NewGovernor(logger, ratelimit.WithClock(e.now))
	}
	if e.detector == nil {
		e.detector = clientprofile.NewDetector(clientprofile.DefaultTable(), logger)
	}
	if e.selector == nil {
		e.selector = strategy.NewSelector(strategy.DefaultHistoryThresholds(), logger)
	}
	if e.history == nil {
		e.history = monitor.NewHistory(monitor.DefaultHistorySize)
	}
	if e.hints == nil {
		e.hints = hints.NewMemoryStore()
	}
	if e.config.HintTTL <= 0 {
		e.config.HintTTL = hints.DefaultTTL
	}

	e.protocol = pagination.NewProtocol(deps.Fetcher, pagination.Config{
		OnHeaders: e.observeHeaders,
	}, logger)

	return e, nil
}

// Governor returns the rate limit governor the engine consults.
func (e *Engine) Governor() *ratelimit.Governor {
	return e.governor
}

// Detector returns the client profile detector the engine consults.
func (e *Engine) Detector() *clientprofile.Detector {
	return e.detector
}

// GetPage fetches exactly one page.
func (e *Engine) GetPage(ctx context.Context, req Request) (*Result, error) {
	req.Collect = false
	return e.Retrieve(ctx, req)
}

// Collect walks up to the strategy's page ceiling within one call.
func (e *Engine) Collect(ctx context.Context, req Request) (*Result, error) {
	req.Collect = true
	return e.Retrieve(ctx, req)
}

// Retrieve runs one retrieval. It fails when the rate limit is exhausted or
// the monitor stops the retrieval before the first fetch, or when the first
// fetch fails. Anything that ends
// the loop after a page was fetched yields a partial result instead.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if !req.Operation.Valid() {
		return nil, fmt.Errorf("%w: unsupported operation %q", ErrInvalidRequest, req.Operation)
	}

	client := e.clientFor(req)
	hintKey := hints.Key{Workspace: e.config.Workspace, Operation: string(req.Operation), Filters: req.Filters}
	prevHint := e.lookupHint(ctx, hintKey)

	sizeHint, lowerBound := req.SizeHint, false
	if sizeHint <= 0 && prevHint != nil {
		sizeHint, lowerBound = prevHint.Items, !prevHint.Exact
	}

	prof, err := e.selector.Select(strategy.Input{
		Operation:      req.Operation,
		Client:         client,
		SizeHint:       sizeHint,
		SizeLowerBound: lowerBound,
		History:        e.history.Stats(string(req.Operation)),
		Pinned:         req.Strategy,
		Custom:         req.Custom,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	budget := client.UsableBudget()
	if budget <= 0 {
		budget = prof.RequestTimeout
	}
	maxPages := 1
	if req.Collect {
		maxPages = prof.MaxPages
	}
	batch := prof.BatchSize
	if req.Limit > 0 {
		batch = req.Limit
	}
	batch = pagination.ClampBatchSize(batch)

	sessionOpts := []monitor.Option{monitor.WithClock(e.now), monitor.WithLogger(e.logger)}
	if e.sampler != nil {
		sessionOpts = append(sessionOpts, monitor.WithMemorySampler(e.sampler))
	}
	session := monitor.NewSession(string(req.Operation), monitor.Thresholds{
		MaxDuration:    budget,
		MaxCalls:       maxPages,
		MaxMemoryBytes: e.config.MemoryLimitBytes,
	}, sessionOpts...)

	log := e.logger.With().
		Str("session_id", session.ID()).
		Str("operation", string(req.Operation)).
		Str("strategy", prof.Name).
		Str("client_profile", client.Name).
		Logger()

	pacer := rate.NewLimiter(rate.Inf, 1)
	if client.InterRequestDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(client.InterRequestDelay), 1)
	}

	var (
		items    []json.RawMessage
		cursor   = req.Cursor
		pages    int
		stopErr  error
		fetchErr error
		hasMore  = true
	)

	for pages < maxPages {
		if d := session.ShouldAbort(); d.Abort() {
			if pages == 0 {
				e.history.Record(session.Finalize())
				retrievalsTotal.WithLabelValues(string(req.Operation), outcomeStopped).Inc()
				log.Warn().Str("reason", string(d.Reason)).Msg("Retrieval stopped before the first fetch")
				return nil, fmt.Errorf("%w: %s: %s", ErrStopped, d.Reason, d.Detail)
			}
			break
		}

		if err := e.governor.Check(); err != nil {
			if pages == 0 {
				session.Finalize()
				retrievalsTotal.WithLabelValues(string(req.Operation), outcomeRefused).Inc()
				return nil, err
			}
			stopErr = err
			break
		}

		if err := pacer.Wait(ctx); err != nil {
			if pages == 0 {
				session.Finalize()
				retrievalsTotal.WithLabelValues(string(req.Operation), outcomeFailed).Inc()
				return nil, fmt.Errorf("wait before %s fetch: %w", req.Operation, err)
			}
			stopErr = err
			break
		}

		timeout := prof.RequestTimeout
		if remaining := budget - session.Elapsed(); remaining > 0 && remaining < timeout {
			timeout = remaining
		}

		session.StartFetch()
		page, err := e.protocol.FetchPage(ctx, req.Operation, pagination.PageRequest{
			BatchSize: batch,
			Cursor:    cursor,
			Filters:   req.Filters,
		}, timeout)
		if err != nil {
			rateLimited := isRateLimited(err)
			session.RecordFetch(0, rateLimited, !rateLimited)
			if pages == 0 {
				sum := session.Finalize()
				e.history.Record(sum)
				retrievalsTotal.WithLabelValues(string(req.Operation), outcomeFailed).Inc()
				log.Error().Err(err).Msg("First page fetch failed")
				return nil, fmt.Errorf("fetch %s page: %w", req.Operation, err)
			}
			fetchErr = err
			break
		}

		session.RecordFetch(len(page.Items), false, false)
		pages++
		items = append(items, page.Items...)
		cursor = page.NextCursor
		hasMore = page.HasMore()

		log.Debug().
			Int("page", pages).
			Int("items", len(page.Items)).
			Bool("cursor_present", hasMore).
			Msg("Page fetched")

		if !hasMore {
			break
		}
	}

	sum := session.Finalize()
	e.history.Record(sum)

	result := &Result{
		Operation: req.Operation,
		Items:     items,
		Summary:   sum,
		Strategy:  prof,
		Client:    client,
		Warnings:  append([]string(nil), sum.Warnings...),
	}
	if result.Items == nil {
		result.Items = []json.RawMessage{}
	}
	result.Pagination = Pagination{
		ReturnedCount: len(items),
		HasMore:       hasMore,
		Limit:         batch,
		PagesFetched:  pages,
	}
	if hasMore && cursor.Present() {
		result.Pagination.NextCursor = string(cursor)
	} else {
		result.Pagination.HasMore = false
	}
	hasMore = result.Pagination.HasMore

	if fetchErr != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fetch of page %d failed, partial results returned: %v", pages+1, fetchErr))
	}
	if stopErr != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("stopped before page %d: %v", pages+1, stopErr))
	}
	result.Partial = hasMore && (sum.Stopped != monitor.ReasonNone || fetchErr != nil || stopErr != nil)
	result.Pagination.Note = note(result.Pagination, sum.Stopped, fetchErr != nil)

	outcome := outcomeComplete
	if result.Partial {
		outcome = outcomePartial
		log.Warn().
			Int("items", len(items)).
			Int("pages", pages).
			Strs("warnings", result.Warnings).
			Msg("Returning partial results")
	}
	retrievalsTotal.WithLabelValues(string(req.Operation), outcome).Inc()
	retrievalPages.WithLabelValues(string(req.Operation)).Observe(float64(pages))

	// A caller-supplied size overrides the remembered one for this request
	// only and is not written back.
	if !req.Cursor.Present() && req.SizeHint <= 0 {
		e.storeHint(ctx, hintKey, prevHint, hints.Observation{
			Items:     len(items),
			FromStart: true,
			Exhausted: !hasMore,
		})
	}

	return result, nil
}

func (e *Engine) clientFor(req Request) clientprofile.Profile {
	if req.ClientHint != "" {
		return e.detector.Table().Detect(req.ClientHint, "")
	}
	return e.detector.Current()
}

func (e *Engine) lookupHint(ctx context.Context, key hints.Key) *hints.Hint {
	hint, err := e.hints.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, hints.ErrMiss) {
			e.logger.Warn().Err(err).Str("key", key.String()).Msg("Size hint lookup failed")
		}
		return nil
	}
	return hint
}

func (e *Engine) storeHint(ctx context.Context, key hints.Key, prev *hints.Hint, obs hints.Observation) {
	next := hints.Merge(prev, obs, e.now(), e.config.HintTTL)
	if err := e.hints.Set(ctx, key, &next); err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to store size hint")
	}
}

func (e *Engine) observeHeaders(h http.Header) {
	if err := e.governor.UpdateFromHeaders(h); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}
}

// rateLimitedError is implemented by upstream errors that signal a 429.
type rateLimitedError interface {
	RateLimited() bool
}

func isRateLimited(err error) bool {
	var rl rateLimitedError
	return errors.As(err, &rl) && rl.RateLimited()
}
