// Package mcp exposes the retrieval engine as MCP tools over stdio or
// streamable HTTP.
package mcp

import (
	"context"
	"log"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/strategy"
)

// ServerName and ServerVersion are announced during initialize.
const (
	ServerName    = "instantly-mcp"
	ServerVersion = "0.1.0"
)

type ToolAdapter interface {
	ToolAdapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

type Server struct {
	MCP     *server.MCPServer
	HTTP    *server.StreamableHTTPServer
	Handler http.Handler

	detector *clientprofile.Detector
	logger   zerolog.Logger
}

type userAgentKey struct{}

// UserAgentFromContext returns the HTTP User-Agent of the request that
// carried the current message, if any.
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

func New(cfg Config) *Server {
	s := &Server{
		detector: cfg.Detector,
		logger:   cfg.Logger,
	}

	hooks := &server.Hooks{}
	if cfg.Detector != nil && cfg.DetectClient {
		hooks.AddAfterInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest, result *mcp.InitializeResult) {
			info := message.Params.ClientInfo
			s.detector.UpdateClientInfo(info.Name, UserAgentFromContext(ctx))
		})
	}

	s.MCP = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)

	definitions := toolDefinitions()
	for name, adapter := range cfg.ToolAdapters {
		tool, ok := definitions[name]
		if !ok {
			s.logger.Warn().Str("tool", name).Msg("Skipping adapter without tool definition")
			continue
		}
		s.MCP.AddTool(tool, adapter.ToolAdapter)
	}

	opts := append([]server.StreamableHTTPOption{
		server.WithHTTPContextFunc(s.httpContext),
	}, cfg.Options...)
	s.HTTP = server.NewStreamableHTTPServer(s.MCP, opts...)
	s.Handler = s.HTTP

	return s
}

// httpContext records the caller's User-Agent and uses it as a detection
// signal until the client declares itself.
func (s *Server) httpContext(ctx context.Context, r *http.Request) context.Context {
	ua := r.UserAgent()
	if ua == "" {
		return ctx
	}
	if s.detector != nil {
		s.detector.ObserveAgent(ua)
	}
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// ServeStdio serves MCP over stdin/stdout until the input closes or the
// process receives a termination signal.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCP,
		server.WithErrorLogger(log.New(s.logger, "", 0)),
	)
}

func toolDefinitions() map[string]mcp.Tool {
	defs := map[string]mcp.Tool{
		"get_rate_limit_status": mcp.NewTool("get_rate_limit_status",
			mcp.WithDescription("Report the last known Instantly API quota (limit, remaining, reset time) and the client profile that bounds each retrieval."),
		),
		"get_campaign": mcp.NewTool("get_campaign",
			mcp.WithDescription("Fetch a single Instantly campaign by ID."),
			mcp.WithString("campaign_id",
				mcp.Required(),
				mcp.Description("Campaign UUID"),
			),
		),
		"get_account": mcp.NewTool("get_account",
			mcp.WithDescription("Fetch a single sending account by its email address."),
			mcp.WithString("email",
				mcp.Required(),
				mcp.Description("Email address of the sending account"),
			),
		),
	}

	lists := []struct {
		name, noun, filters string
	}{
		{"list_accounts", "sending accounts", "e.g. {\"search\": \"@acme.com\", \"status\": 1}"},
		{"list_campaigns", "campaigns", "e.g. {\"search\": \"Q3\", \"status\": 1}"},
		{"list_leads", "leads", "e.g. {\"campaign\": \"<campaign id>\", \"search\": \"jane\"}"},
		{"list_emails", "emails", "e.g. {\"campaign_id\": \"<campaign id>\", \"email_type\": \"received\"}"},
	}
	for _, l := range lists {
		defs[l.name] = listTool(l.name, l.noun, l.filters)
	}
	return defs
}

func listTool(name, noun, filterExample string) mcp.Tool {
	tierNames := make([]string, 0, 4)
	for _, p := range strategy.Tiers() {
		tierNames = append(tierNames, p.Name)
	}

	return mcp.NewTool(name,
		mcp.WithDescription("List Instantly "+noun+" with cursor pagination. Returns one page by default; "+
			"set collect=true to walk several pages within the client's time budget. When pagination.has_more is true, "+
			"call again with starting_after set to pagination.next_starting_after."),
		mcp.WithNumber("limit",
			mcp.Description("Page size (1-100). Defaults to the selected strategy's batch size."),
		),
		mcp.WithString("starting_after",
			mcp.Description("Cursor from a previous response's pagination.next_starting_after"),
		),
		mcp.WithObject("filters",
			mcp.Description("Upstream filters passed through unchanged, "+filterExample),
		),
		mcp.WithString("strategy",
			mcp.Description("Pin a retrieval strategy instead of choosing one automatically"),
			mcp.Enum(tierNames...),
		),
		mcp.WithObject("custom_strategy",
			mcp.Description("Explicit strategy; wins over strategy"),
			mcp.Properties(map[string]any{
				"name":                    map[string]any{"type": "string"},
				"max_pages":               map[string]any{"type": "integer", "minimum": strategy.MinPages, "maximum": strategy.MaxPages},
				"batch_size":              map[string]any{"type": "integer", "minimum": strategy.MinBatchSize, "maximum": strategy.MaxBatchSize},
				"request_timeout_seconds": map[string]any{"type": "integer", "minimum": 1, "maximum": 600},
				"retry_attempts":          map[string]any{"type": "integer", "minimum": strategy.MinRetryAttempts, "maximum": strategy.MaxRetryAttempts},
			}),
		),
		mcp.WithBoolean("collect",
			mcp.Description("Walk multiple pages up to the strategy's page ceiling (default: false)"),
		),
		mcp.WithString("client",
			mcp.Description("Optional: name of the calling client, overrides detection for this call"),
		),
		mcp.WithNumber("size_hint",
			mcp.Description("Optional: approximate collection size, steers strategy selection"),
		),
	)
}
