// Package client is the authenticated REST client for the Instantly v2 API.
//
// FetchPage serves the retrieval engine: one attempt per page, no retries,
// because the engine's time budget has no room for hidden backoff. Get
// serves single-resource lookups and retries transient failures with
// exponential backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_requests_total",
		Help: "Total Instantly requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "instantly_request_duration_seconds",
		Help:    "Instantly request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_errors_total",
		Help: "Total Instantly errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public Instantly API.
	DefaultBaseURL = "https://api.instantly.ai"

	// Pagination parameter names of the v2 API.
	paramLimit         = "limit"
	paramStartingAfter = "starting_after"

	// maxBodyBytes bounds a single response body.
	maxBodyBytes = 16 << 20
)

type endpoint struct {
	Method string
	Path   string
}

var endpoints = map[pagination.Operation]endpoint{
	pagination.OpAccounts:  {Method: http.MethodGet, Path: "/api/v2/accounts"},
	pagination.OpCampaigns: {Method: http.MethodGet, Path: "/api/v2/campaigns"},
	pagination.OpLeads:     {Method: http.MethodPost, Path: "/api/v2/leads/list"},
	pagination.OpEmails:    {Method: http.MethodGet, Path: "/api/v2/emails"},
}

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as a bearer token (REQUIRED).
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// UserAgent identifies this adapter upstream.
	UserAgent string

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration

	// Retry settings for Get.
	MaxRetries     int
	InitialBackoff time.Duration

	// Governor, if set, gates Get and records its rate limit headers.
	// FetchPage leaves both to the retrieval engine.
	Governor *ratelimit.Governor
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		BaseURL:        DefaultBaseURL,
		UserAgent:      "instantly-mcp/1.0",
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
	}
}

// Client talks to the Instantly v2 API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new Instantly client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		config:     cfg,
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// FetchPage implements pagination.Fetcher. GET collections receive limit,
// cursor and filters as query parameters; the leads listing receives them
// as a JSON body. Pagination parameters win over filters of the same name.
func (c *Client) FetchPage(ctx context.Context, op pagination.Operation, req pagination.PageRequest) (*pagination.RawPage, error) {
	ep, ok := endpoints[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, op)
	}

	var (
		httpReq *http.Request
		err     error
	)
	switch ep.Method {
	case http.MethodPost:
		body := make(map[string]any, len(req.Filters)+2)
		for k, v := range req.Filters {
			body[k] = v
		}
		body[paramLimit] = req.BatchSize
		if req.Cursor.Present() {
			body[paramStartingAfter] = string(req.Cursor)
		} else {
			delete(body, paramStartingAfter)
		}
		httpReq, err = c.newJSONRequest(ctx, ep.Method, ep.Path, body)
	default:
		query := encodeFilters(req.Filters)
		query.Set(paramLimit, strconv.Itoa(req.BatchSize))
		if req.Cursor.Present() {
			query.Set(paramStartingAfter, string(req.Cursor))
		} else {
			query.Del(paramStartingAfter)
		}
		httpReq, err = c.newRequest(ctx, ep.Method, ep.Path, query, nil)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("method", ep.Method).
		Str("endpoint", ep.Path).
		Msg("Executing Instantly request")

	body, header, err := c.do(httpReq, ep.Path)
	if err != nil {
		return nil, err
	}
	return &pagination.RawPage{Body: body, Header: header}, nil
}

// Get fetches a single resource, retrying transient failures.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if gov := c.config.Governor; gov != nil {
		if err := gov.Check(); err != nil {
			requestsTotal.WithLabelValues(path, "rate_limited").Inc()
			return nil, err
		}
	}

	var body []byte
	retryCfg := DefaultRetryConfig()
	retryCfg.MaxAttempts = c.config.MaxRetries
	retryCfg.InitialBackoff = c.config.InitialBackoff

	err := retryWithBackoff(ctx, retryCfg, c.logger, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		var header http.Header
		body, header, err = c.do(req, path)
		if gov := c.config.Governor; gov != nil {
			if h := headerOf(header, err); h != nil {
				if herr := gov.UpdateFromHeaders(h); herr != nil {
					c.logger.Warn().Err(herr).Msg("Failed to update rate limit from headers")
				}
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func headerOf(header http.Header, err error) http.Header {
	if header != nil {
		return header
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Header
	}
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, nil
}

// do executes one request. Non-2xx responses become *APIError carrying the
// response headers.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, http.Header, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Header:     resp.Header,
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classify(resp.StatusCode, nil)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Instantly request error")
		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    errorMessage(resp.Status, body),
			Header:     resp.Header,
		}
	}

	return body, resp.Header, nil
}

// errorMessage prefers the upstream's own message over the status line.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return status
}

// encodeFilters renders filters as query parameters. Lists become repeated
// parameters; objects are sent as JSON.
func encodeFilters(filters map[string]any) url.Values {
	query := url.Values{}
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := filters[name].(type) {
		case nil:
		case string:
			query.Set(name, v)
		case []string:
			for _, s := range v {
				query.Add(name, s)
			}
		case []any:
			for _, item := range v {
				query.Add(name, scalar(item))
			}
		default:
			query.Set(name, scalar(v))
		}
	}
	return query
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool, int, int64, json.Number:
		return fmt.Sprint(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
