// Package testutil provides a mock Instantly v2 API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// Collection paths of the v2 API.
const (
	PathAccounts  = "/api/v2/accounts"
	PathCampaigns = "/api/v2/campaigns"
	PathLeads     = "/api/v2/leads/list"
	PathEmails    = "/api/v2/emails"
)

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// PageCall records one paginated request.
type PageCall struct {
	Method string
	Path   string
	Limit  int
	Cursor string
	Params map[string]any
}

// MockInstantly is a configurable mock Instantly server. Collections are
// served with cursor pagination: the cursor is the id of the last item on
// the page, as the real API does.
type MockInstantly struct {
	server *httptest.Server

	mu          sync.Mutex
	collections map[string][]map[string]any
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)
	failures    map[int]MockResponse

	// Rate limit window advertised in response headers.
	limit     int
	remaining int
	resetIn   int

	requestCount      int
	calls             []PageCall
	lastRequestHeader http.Header
}

// NewMockInstantly starts a mock server with a generous rate limit.
func NewMockInstantly() *MockInstantly {
	m := &MockInstantly{
		collections: make(map[string][]map[string]any),
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		failures:    make(map[int]MockResponse),
		limit:       600,
		remaining:   600,
		resetIn:     60,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockInstantly) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockInstantly) Close() {
	m.server.Close()
}

// SetCollection serves n generated items under path. Items carry an id
// built from prefix and their position.
func (m *MockInstantly) SetCollection(path, prefix string, n int) {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"id":   fmt.Sprintf("%s-%04d", prefix, i+1),
			"name": fmt.Sprintf("%s %d", prefix, i+1),
		}
	}
	m.mu.Lock()
	m.collections[path] = items
	m.mu.Unlock()
}

// SetRateLimit sets the advertised window. Remaining decreases with every
// request and never goes below zero.
func (m *MockInstantly) SetRateLimit(limit, remaining, resetIn int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
	m.remaining = remaining
	m.resetIn = resetIn
}

// FailRequest makes the n-th request (1-based, counted across paths)
// return resp instead of a page.
func (m *MockInstantly) FailRequest(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[n] = resp
}

// SetHandler sets a custom handler for a specific path.
func (m *MockInstantly) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockInstantly) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockInstantly) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Calls returns the paginated requests in order.
func (m *MockInstantly) Calls() []PageCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PageCall(nil), m.calls...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockInstantly) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

func (m *MockInstantly) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	n := m.requestCount
	m.lastRequestHeader = r.Header.Clone()
	if m.remaining > 0 {
		m.remaining--
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(m.remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(m.resetIn))
	failure, failing := m.failures[n]
	handler, custom := m.handlers[r.URL.Path]
	items, isCollection := m.collections[r.URL.Path]
	m.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		writeResponse(w, MockResponse{StatusCode: http.StatusUnauthorized, Body: `{"message":"missing api key"}`})
		return
	}

	switch {
	case failing:
		writeResponse(w, failure)
	case custom:
		handler(w, r)
	case isCollection:
		m.servePage(w, r, items)
	default:
		writeResponse(w, MockResponse{StatusCode: http.StatusNotFound, Body: `{"message":"not found"}`})
	}
}

func (m *MockInstantly) servePage(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	call := PageCall{Method: r.Method, Path: r.URL.Path, Limit: 10, Params: map[string]any{}}

	if r.Method == http.MethodPost {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &call.Params)
		if v, ok := call.Params["limit"].(float64); ok {
			call.Limit = int(v)
		}
		if v, ok := call.Params["starting_after"].(string); ok {
			call.Cursor = v
		}
	} else {
		q := r.URL.Query()
		for k := range q {
			call.Params[k] = q.Get(k)
		}
		if v, err := strconv.Atoi(q.Get("limit")); err == nil {
			call.Limit = v
		}
		call.Cursor = q.Get("starting_after")
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	start := 0
	if call.Cursor != "" {
		start = len(items)
		for i, item := range items {
			if item["id"] == call.Cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + call.Limit
	if end > len(items) {
		end = len(items)
	}

	page := map[string]any{"items": items[start:end]}
	if end < len(items) && end > start {
		page["next_starting_after"] = items[end-1]["id"]
	}

	body, _ := json.Marshal(page)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 429 with an exhausted window.
func NewRateLimitResponse(resetIn int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.Itoa(resetIn),
			"Content-Type":          "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
