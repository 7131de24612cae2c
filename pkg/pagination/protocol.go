package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pagesNormalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "instantly_pages_normalized_total",
	Help: "Pages normalized by operation and recognized payload shape",
}, []string{"operation", "shape"})

// Config holds protocol configuration.
type Config struct {
	// Timeout bounds a single page fetch. Zero leaves the caller's context
	// deadline as the only bound.
	Timeout time.Duration

	// OnHeaders receives the response headers of every fetch, including
	// failed fetches whose error implements HeaderCarrier.
	OnHeaders func(http.Header)
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
	}
}

// Protocol fetches and normalizes single pages.
type Protocol struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewProtocol creates a protocol over the given fetcher.
func NewProtocol(fetcher Fetcher, config Config, logger zerolog.Logger) *Protocol {
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	return &Protocol{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// FetchPage fetches one page. timeout overrides Config.Timeout when positive.
func (p *Protocol) FetchPage(ctx context.Context, op Operation, req PageRequest, timeout time.Duration) (PageResponse, error) {
	if !op.Valid() {
		return PageResponse{}, fmt.Errorf("unsupported operation %q", op)
	}

	req.BatchSize = ClampBatchSize(req.BatchSize)

	if timeout <= 0 {
		timeout = p.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.logger.Debug().
		Str("operation", string(op)).
		Int("batch_size", req.BatchSize).
		Bool("cursor_present", req.Cursor.Present()).
		Msg("Fetching page")

	raw, err := p.fetcher.FetchPage(ctx, op, req)
	if err != nil {
		var carrier HeaderCarrier
		if errors.As(err, &carrier) {
			p.observe(carrier.ResponseHeader())
		}
		return PageResponse{}, err
	}
	if raw == nil {
		pagesNormalizedTotal.WithLabelValues(string(op), string(ShapeUnknown)).Inc()
		return PageResponse{}, nil
	}

	p.observe(raw.Header)

	page, shape := normalize(raw.Body)
	pagesNormalizedTotal.WithLabelValues(string(op), string(shape)).Inc()
	if shape == ShapeUnknown {
		p.logger.Warn().
			Str("operation", string(op)).
			Int("body_bytes", len(raw.Body)).
			Msg("Unrecognized page shape - returning empty page")
	}

	return page, nil
}

func (p *Protocol) observe(h http.Header) {
	if p.config.OnHeaders != nil && h != nil {
		p.config.OnHeaders(h)
	}
}
