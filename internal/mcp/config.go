package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/instantly-mcp/internal/mcp/tools"
	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
)

type Config struct {
	ToolAdapters map[string]ToolAdapter
	Options      []server.StreamableHTTPOption

	// Detector receives client signals from initialize and HTTP requests.
	Detector *clientprofile.Detector

	// DetectClient enables detection from the initialize clientInfo. It is
	// off when the operator configured the client explicitly.
	DetectClient bool

	Logger zerolog.Logger
}

// Services are the collaborators the tools call into.
type Services struct {
	Retriever tools.Retriever
	Getter    tools.Getter
	Governor  *ratelimit.Governor
	Detector  *clientprofile.Detector
}

// DefaultConfig registers every tool against svc.
func DefaultConfig(svc Services, logger zerolog.Logger) Config {
	adapters := map[string]ToolAdapter{
		"list_accounts":  &tools.ListHandler{Operation: pagination.OpAccounts, Service: svc.Retriever},
		"list_campaigns": &tools.ListHandler{Operation: pagination.OpCampaigns, Service: svc.Retriever},
		"list_leads":     &tools.ListHandler{Operation: pagination.OpLeads, Service: svc.Retriever},
		"list_emails":    &tools.ListHandler{Operation: pagination.OpEmails, Service: svc.Retriever},
		"get_rate_limit_status": &tools.StatusHandler{
			Quota:    svc.Governor,
			Profiles: svc.Detector,
		},
	}
	if svc.Getter != nil {
		adapters["get_campaign"] = &tools.GetHandler{Resource: "campaigns", IDArg: "campaign_id", Service: svc.Getter}
		adapters["get_account"] = &tools.GetHandler{Resource: "accounts", IDArg: "email", Service: svc.Getter}
	}

	return Config{
		ToolAdapters: adapters,
		Options: []server.StreamableHTTPOption{
			server.WithEndpointPath("/mcp"),
		},
		Detector:     svc.Detector,
		DetectClient: true,
		Logger:       logger,
	}
}
