package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/Sternrassler/instantly-mcp/internal/config"
	mcpserver "github.com/Sternrassler/instantly-mcp/internal/mcp"
	"github.com/Sternrassler/instantly-mcp/pkg/client"
	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/hints"
	"github.com/Sternrassler/instantly-mcp/pkg/logging"
	"github.com/Sternrassler/instantly-mcp/pkg/metrics"
	"github.com/Sternrassler/instantly-mcp/pkg/monitor"
	"github.com/Sternrassler/instantly-mcp/pkg/ratelimit"
	"github.com/Sternrassler/instantly-mcp/pkg/retrieval"
	"github.com/Sternrassler/instantly-mcp/pkg/strategy"
)

func main() {
	root := newRootCmd()
	config.Init(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "instantly-mcp: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "instantly-mcp",
		Short:         "MCP server for the Instantly API with adaptive pagination",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("api-key", "", "Instantly API key (env INSTANTLY_API_KEY)")
	flags.String("base-url", "", "Instantly API base URL")
	flags.String("redis-url", "", "Redis URL for size hints; in-memory when empty")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "Human-readable log output")
	flags.String("transport", "", "MCP transport (stdio or http)")
	flags.String("host", "", "HTTP host")
	flags.Int("port", 0, "HTTP port")
	flags.String("profiles-file", "", "YAML file overriding the client profile table")
	flags.String("client-name", "", "Fix the client profile instead of detecting it")
	flags.Int("memory-limit-mb", 0, "Stop retrievals above this resident memory (0 disables)")
	flags.Int("history-size", 0, "Retrieval summaries kept per operation")

	root.AddCommand(newServeCmd(), newProfilesCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdio or streamable HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings)
		},
	}
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Print the effective client profile table as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(config.ProfilesFile())
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(table.FileConfig())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func loadTable(path string) (clientprofile.Table, error) {
	if path == "" {
		return clientprofile.DefaultTable(), nil
	}
	return clientprofile.LoadFile(path)
}

func serve(ctx context.Context, s config.Settings) error {
	logger := logging.Setup(logging.Config{Level: s.LogLevel, Pretty: s.LogPretty, Output: os.Stderr})

	table, err := loadTable(s.ProfilesFile)
	if err != nil {
		return err
	}
	detector := clientprofile.NewDetector(table, logging.NewLogger("clientprofile"))
	if s.ClientName != "" {
		detector.UpdateClientInfo(s.ClientName, "")
	}
	governor := ratelimit.NewGovernor(logging.NewLogger("ratelimit"))

	clientCfg := client.DefaultConfig(s.APIKey)
	clientCfg.BaseURL = s.BaseURL
	clientCfg.UserAgent = mcpserver.ServerName + "/" + mcpserver.ServerVersion
	clientCfg.Governor = governor
	instantly, err := client.New(clientCfg, logging.NewLogger("client"))
	if err != nil {
		return err
	}

	store, ready, closeStore, err := openHintStore(ctx, s.RedisURL, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var opts []retrieval.Option
	if s.MemoryLimitBytes > 0 {
		opts = append(opts, retrieval.WithMemorySampler(monitor.ProcessMemory()))
	}
	engine, err := retrieval.New(retrieval.Deps{
		Fetcher:  instantly,
		Governor: governor,
		Detector: detector,
		Selector: strategy.NewSelector(strategy.DefaultHistoryThresholds(), logging.NewLogger("strategy")),
		History:  monitor.NewHistory(s.HistorySize),
		Hints:    store,
	}, retrieval.Config{
		Workspace:        hints.Fingerprint(s.APIKey),
		MemoryLimitBytes: s.MemoryLimitBytes,
		HintTTL:          hints.DefaultTTL,
	}, logging.NewLogger("retrieval"), opts...)
	if err != nil {
		return err
	}

	mcpCfg := mcpserver.DefaultConfig(mcpserver.Services{
		Retriever: engine,
		Getter:    instantly,
		Governor:  governor,
		Detector:  detector,
	}, logging.NewLogger("mcp"))
	mcpCfg.DetectClient = s.ClientName == ""
	srv := mcpserver.New(mcpCfg)

	logger.Info().
		Str("transport", s.Transport).
		Str("base_url", s.BaseURL).
		Bool("redis_hints", s.RedisURL != "").
		Str("client_profile", detector.Current().Name).
		Msg("Starting Instantly MCP server")

	if s.Transport == config.TransportStdio {
		return srv.ServeStdio()
	}
	return serveHTTP(ctx, s.Addr(), newMux(srv.Handler, ready), logger)
}

// openHintStore connects to Redis when configured and falls back to the
// in-process store otherwise. ready reports store health for /ready.
func openHintStore(ctx context.Context, redisURL string, logger zerolog.Logger) (hints.Store, func(context.Context) error, func(), error) {
	noop := func(context.Context) error { return nil }
	if redisURL == "" {
		return hints.NewMemoryStore(), noop, func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")

	ready := func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	return hints.NewRedisStore(redisClient), ready, closeFn, nil
}

func newMux(mcpHandler http.Handler, ready func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(ready))
	return mux
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("MCP HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info().Msg("Shutting down MCP HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ready func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ready(ctx); err != nil {
			http.Error(w, "hint store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
