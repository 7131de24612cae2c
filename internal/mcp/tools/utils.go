package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sternrassler/instantly-mcp/pkg/client"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
	"github.com/Sternrassler/instantly-mcp/pkg/retrieval"
)

func parseIntArgument(args map[string]any, name string) (int, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, false, fmt.Errorf("%s must be a non-negative integer", name)
		}
		return int(v), true, nil
	case int:
		if v < 0 {
			return 0, false, fmt.Errorf("%s must be a non-negative integer", name)
		}
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number", name)
	}
}

func parseStringArgument(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

func parseBoolArgument(args map[string]any, name string) (bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

func parseObjectArgument(args map[string]any, name string) (map[string]any, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", name)
	}
	return obj, nil
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// errorResult turns an upstream or validation failure into a tool error the
// calling model can act on.
func errorResult(err error) *mcp.CallToolResult {
	var exhausted *ratelimit.ExhaustedError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &exhausted):
		return mcp.NewToolResultError(fmt.Sprintf(
			"Instantly rate limit exhausted: retry in %s (window resets at %s).",
			exhausted.RetryAfter.Round(time.Second), exhausted.ResetAt.UTC().Format(time.RFC3339)))
	case errors.Is(err, retrieval.ErrInvalidRequest):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, retrieval.ErrStopped):
		return mcp.NewToolResultError("Nothing retrieved, the server is under pressure: " + err.Error() + ". Retry later.")
	case errors.As(err, &apiErr):
		return mcp.NewToolResultError(fmt.Sprintf("Instantly returned %d: %s", apiErr.StatusCode, apiErr.Message))
	default:
		return mcp.NewToolResultError("request failed: " + err.Error())
	}
}
