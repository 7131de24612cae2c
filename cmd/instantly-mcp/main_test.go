package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Sternrassler/instantly-mcp/internal/config"
	mcpserver "github.com/Sternrassler/instantly-mcp/internal/mcp"
	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/hints"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
	"github.com/Sternrassler/instantly-mcp/pkg/retrieval"
)

type nopRetriever struct{}

func (nopRetriever) Retrieve(_ context.Context, req retrieval.Request) (*retrieval.Result, error) {
	return &retrieval.Result{Operation: req.Operation}, nil
}

func testMux(ready func(context.Context) error) *http.ServeMux {
	srv := mcpserver.New(mcpserver.DefaultConfig(mcpserver.Services{
		Retriever: nopRetriever{},
		Governor:  ratelimit.NewGovernor(zerolog.Nop()),
		Detector:  clientprofile.NewDetector(clientprofile.DefaultTable(), zerolog.Nop()),
	}, zerolog.Nop()))
	return newMux(srv.Handler, ready)
}

func ok(context.Context) error { return nil }

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		readyHandler(ok)(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_store_down", func(t *testing.T) {
		down := func(context.Context) error { return errors.New("connection refused") }
		w := httptest.NewRecorder()
		readyHandler(down)(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	testMux(ok).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	// The remaining gauge is registered at init and always exported.
	if !strings.Contains(body, "instantly_ratelimit_remaining") {
		t.Error("Expected metrics output to contain instantly_ratelimit_remaining")
	}
}

func TestMCPEndpoint(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"mcp-inspector","version":"0.1"}}}`
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := httptest.NewRecorder()

	testMux(ok).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), mcpserver.ServerName) {
		t.Errorf("initialize response should announce %s, got %s", mcpserver.ServerName, w.Body.String())
	}
}

func TestProfilesCommand(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := "default: moderate\nprofiles:\n  - name: batch\n    total_budget_ms: 300000\n    safety_buffer_ms: 10000\n    max_pages: 50\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profiles file: %v", err)
	}

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"profiles", "--profiles-file", path})
	config.Init(root)

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"default: moderate", "name: batch", "name: strict", "max_pages: 50"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestProfilesCommand_InvalidFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte("default: missing\n"), 0o600); err != nil {
		t.Fatalf("write profiles file: %v", err)
	}

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"profiles", "--profiles-file", path})
	config.Init(root)

	if err := root.Execute(); err == nil {
		t.Error("Execute() should fail for an invalid profile table")
	}
}

func TestOpenHintStore_Memory(t *testing.T) {
	store, ready, closeFn, err := openHintStore(context.Background(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("openHintStore() error = %v", err)
	}
	defer closeFn()

	if _, ok := store.(*hints.MemoryStore); !ok {
		t.Errorf("store = %T, want *hints.MemoryStore", store)
	}
	if err := ready(context.Background()); err != nil {
		t.Errorf("memory store should always be ready: %v", err)
	}
}

func TestOpenHintStore_InvalidURL(t *testing.T) {
	if _, _, _, err := openHintStore(context.Background(), "mysql://nope", zerolog.Nop()); err == nil {
		t.Error("openHintStore() should reject a non-redis URL")
	}
}
