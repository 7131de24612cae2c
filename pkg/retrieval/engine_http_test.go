package retrieval

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/instantly-mcp/internal/testutil"
	"github.com/Sternrassler/instantly-mcp/pkg/client"
	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
)

func newHTTPEngine(t *testing.T, mock *testutil.MockInstantly) *Engine {
	t.Helper()
	cfg := client.DefaultConfig("test-key")
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	e, err := New(Deps{
		Fetcher:  c,
		Detector: clientprofile.NewDetector(unpacedTable(), zerolog.Nop()),
	}, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestEngineHTTP_LeadsPagination(t *testing.T) {
	mock := testutil.NewMockInstantly()
	defer mock.Close()
	mock.SetCollection(testutil.PathLeads, "lead", 250)

	e := newHTTPEngine(t, mock)

	var (
		cursor pagination.Cursor
		counts []int
	)
	for {
		res, err := e.GetPage(context.Background(), Request{
			Operation: pagination.OpLeads,
			Cursor:    cursor,
			Limit:     100,
			Filters:   map[string]any{"campaign": "c-1"},
		})
		if err != nil {
			t.Fatalf("GetPage() error = %v", err)
		}
		counts = append(counts, len(res.Items))
		if !res.Pagination.HasMore {
			break
		}
		cursor = pagination.Cursor(res.Pagination.NextCursor)
	}

	if len(counts) != 3 || counts[0] != 100 || counts[1] != 100 || counts[2] != 50 {
		t.Errorf("page sizes = %v, want [100 100 50]", counts)
	}

	calls := mock.Calls()
	if len(calls) != 3 {
		t.Fatalf("upstream calls = %d, want 3", len(calls))
	}
	if calls[0].Method != http.MethodPost || calls[0].Cursor != "" {
		t.Errorf("first call = %+v, want POST without cursor", calls[0])
	}
	if calls[1].Cursor != "lead-0100" || calls[2].Cursor != "lead-0200" {
		t.Errorf("cursors = %q, %q; want lead-0100, lead-0200", calls[1].Cursor, calls[2].Cursor)
	}
	if calls[2].Params["campaign"] != "c-1" {
		t.Errorf("filters not passed through: %v", calls[2].Params)
	}

	state := e.Governor().State()
	if state == nil || state.Limit != 600 || state.Remaining != 597 {
		t.Errorf("governor state = %+v, want limit 600 remaining 597", state)
	}
}

func TestEngineHTTP_RateLimitMidCollect(t *testing.T) {
	mock := testutil.NewMockInstantly()
	defer mock.Close()
	mock.SetCollection(testutil.PathEmails, "email", 500)
	mock.FailRequest(2, testutil.NewRateLimitResponse(45))

	e := newHTTPEngine(t, mock)
	e.Detector().UpdateClientInfo("claude-code", "")

	res, err := e.Collect(context.Background(), Request{Operation: pagination.OpEmails, Limit: 100})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 100 || !res.Partial || res.Pagination.NextCursor != "email-0100" {
		t.Errorf("result = %d items, partial %v, cursor %q; want 100, true, email-0100",
			len(res.Items), res.Partial, res.Pagination.NextCursor)
	}
	if res.Summary.RateLimitHits != 1 {
		t.Errorf("RateLimitHits = %d, want 1", res.Summary.RateLimitHits)
	}

	// The 429 headers reached the governor, so the next call never leaves
	// the process.
	before := mock.RequestCount()
	_, err = e.GetPage(context.Background(), Request{Operation: pagination.OpEmails, Cursor: pagination.Cursor(res.Pagination.NextCursor)})
	var exhausted *ratelimit.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("GetPage() error = %v, want *ExhaustedError", err)
	}
	if exhausted.RetryAfter <= 40*time.Second || exhausted.RetryAfter > 45*time.Second {
		t.Errorf("RetryAfter = %v, want about 45s", exhausted.RetryAfter)
	}
	if mock.RequestCount() != before {
		t.Error("refused retrieval must not reach the upstream")
	}
}

func TestEngineHTTP_UnauthorizedPropagates(t *testing.T) {
	mock := testutil.NewMockInstantly()
	defer mock.Close()
	mock.SetResponse(testutil.PathAccounts, testutil.MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message":"invalid api key"}`,
	})

	e := newHTTPEngine(t, mock)

	_, err := e.GetPage(context.Background(), Request{Operation: pagination.OpAccounts})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("GetPage() error = %v, want 401 APIError", err)
	}
	if apiErr.Message != "invalid api key" {
		t.Errorf("Message = %q, want upstream message", apiErr.Message)
	}
}
