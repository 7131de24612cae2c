package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
	"github.com/Sternrassler/instantly-mcp/pkg/retrieval"
	"github.com/Sternrassler/instantly-mcp/pkg/strategy"
)

// ListHandler serves one paginated collection.
type ListHandler struct {
	Operation pagination.Operation
	Service   Retriever
}

type ListResponse struct {
	Operation       string               `json:"operation"`
	Items           []json.RawMessage    `json:"items"`
	Pagination      retrieval.Pagination `json:"pagination"`
	Partial         bool                 `json:"partial,omitempty"`
	Warnings        []string             `json:"warnings,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
	Strategy        StrategyView         `json:"strategy"`
	ClientProfile   string               `json:"client_profile"`
	Performance     PerformanceView      `json:"performance"`
}

type StrategyView struct {
	Name                  string  `json:"name"`
	MaxPages              int     `json:"max_pages"`
	BatchSize             int     `json:"batch_size"`
	RequestTimeoutSeconds float64 `json:"request_timeout_seconds"`
}

type PerformanceView struct {
	SessionID      string  `json:"session_id"`
	Calls          int     `json:"calls"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	AvgLatencyMS   int64   `json:"avg_latency_ms"`
	RateLimitHits  int     `json:"rate_limit_hits,omitempty"`
	Errors         int     `json:"errors,omitempty"`
	StoppedBy      string  `json:"stopped_by,omitempty"`
}

func (h *ListHandler) ToolAdapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	request, err := parseListRequest(h.Operation, req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.Service.Retrieve(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(mustMarshal(newListResponse(result)))), nil
}

func parseListRequest(op pagination.Operation, args map[string]any) (retrieval.Request, error) {
	req := retrieval.Request{Operation: op}

	limit, _, err := parseIntArgument(args, "limit")
	if err != nil {
		return req, err
	}
	if limit > pagination.MaxBatchSize {
		return req, fmt.Errorf("limit must be at most %d", pagination.MaxBatchSize)
	}
	req.Limit = limit

	cursor, err := parseStringArgument(args, "starting_after")
	if err != nil {
		return req, err
	}
	req.Cursor = pagination.Cursor(cursor)

	if req.Filters, err = parseObjectArgument(args, "filters"); err != nil {
		return req, err
	}
	if req.Strategy, err = parseStringArgument(args, "strategy"); err != nil {
		return req, err
	}
	if req.ClientHint, err = parseStringArgument(args, "client"); err != nil {
		return req, err
	}
	if req.Collect, err = parseBoolArgument(args, "collect"); err != nil {
		return req, err
	}
	if req.SizeHint, _, err = parseIntArgument(args, "size_hint"); err != nil {
		return req, err
	}

	custom, err := parseObjectArgument(args, "custom_strategy")
	if err != nil || custom == nil {
		return req, err
	}
	req.Custom, err = parseCustomStrategy(custom)
	return req, err
}

func parseCustomStrategy(args map[string]any) (*strategy.Profile, error) {
	p := &strategy.Profile{}
	var err error
	if p.Name, err = parseStringArgument(args, "name"); err != nil {
		return nil, err
	}
	if p.MaxPages, _, err = parseIntArgument(args, "max_pages"); err != nil {
		return nil, err
	}
	if p.BatchSize, _, err = parseIntArgument(args, "batch_size"); err != nil {
		return nil, err
	}
	seconds, _, err := parseIntArgument(args, "request_timeout_seconds")
	if err != nil {
		return nil, err
	}
	p.RequestTimeout = time.Duration(seconds) * time.Second
	if p.RetryAttempts, _, err = parseIntArgument(args, "retry_attempts"); err != nil {
		return nil, err
	}
	return p, nil
}

func newListResponse(res *retrieval.Result) ListResponse {
	items := res.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	sum := res.Summary
	return ListResponse{
		Operation:       string(res.Operation),
		Items:           items,
		Pagination:      res.Pagination,
		Partial:         res.Partial,
		Warnings:        res.Warnings,
		Recommendations: sum.Recommendations,
		Strategy: StrategyView{
			Name:                  res.Strategy.Name,
			MaxPages:              res.Strategy.MaxPages,
			BatchSize:             res.Strategy.BatchSize,
			RequestTimeoutSeconds: res.Strategy.RequestTimeout.Seconds(),
		},
		ClientProfile: res.Client.Name,
		Performance: PerformanceView{
			SessionID:      sum.SessionID,
			Calls:          sum.Calls,
			ElapsedSeconds: sum.Elapsed.Seconds(),
			AvgLatencyMS:   sum.AvgLatency.Milliseconds(),
			RateLimitHits:  sum.RateLimitHits,
			Errors:         sum.Errors,
			StoppedBy:      string(sum.Stopped),
		},
	}
}
