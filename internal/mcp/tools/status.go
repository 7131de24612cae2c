package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusHandler reports the last known quota and the active client profile.
type StatusHandler struct {
	Quota    QuotaSource
	Profiles ProfileSource
}

type StatusResponse struct {
	Known          bool       `json:"known"`
	Limit          int        `json:"limit"`
	Remaining      int        `json:"remaining"`
	Exhausted      bool       `json:"exhausted"`
	ResetAt        *time.Time `json:"reset_at,omitempty"`
	ResetInSeconds float64    `json:"reset_in_seconds,omitempty"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
	ClientProfile  string     `json:"client_profile"`
	ClientDetected bool       `json:"client_detected"`
	BudgetSeconds  float64    `json:"usable_budget_seconds"`
	MaxPages       int        `json:"max_pages"`
}

func (h *StatusHandler) ToolAdapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profile := h.Profiles.Current()
	resp := StatusResponse{
		ClientProfile:  profile.Name,
		ClientDetected: h.Profiles.Detected(),
		BudgetSeconds:  profile.UsableBudget().Seconds(),
		MaxPages:       profile.MaxPages,
	}

	if state := h.Quota.State(); state != nil {
		resetAt, updated := state.ResetAt, state.LastUpdate
		resp.Known = true
		resp.Limit = state.Limit
		resp.Remaining = state.Remaining
		resp.Exhausted = state.IsExhausted()
		resp.ResetAt = &resetAt
		resp.LastUpdate = &updated
		resp.ResetInSeconds = h.Quota.TimeUntilReset().Seconds()
	}

	return mcp.NewToolResultText(string(mustMarshal(resp))), nil
}
