package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/config"
	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/middleware"
	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/ofbiz"
	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/tools"
	"github.com/ashishvijaywargiya/ofbiz-mcp/mcp"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "ofbiz-mcp [config-path]",
	Short: "An MCP server for Apache OFBiz",
	Long: `ofbiz-mcp exposes Apache OFBiz REST operations as Model Context Protocol tools.

The config-path argument names a config.json / config.yaml file, or a directory
containing one. Every key can be overridden by an environment variable of the
same name (for example BACKEND_API_BASE). When config-path is omitted the
configuration is read from the environment alone.

By default the server listens for JSON-RPC over HTTP on /mcp, with a
server-sent event stream on the same path. Use --stdio to serve a single
client over stdin and stdout instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		var path string
		if len(args) > 0 {
			path = args[0]
		}
		cfg, err := config.LoadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.MaxConcurrency = concurrency
		}
		warnUnsupported(cfg, logger)

		server, err := newServer(cfg, logger)
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)

		if stdio {
			g.Go(func() error {
				logger.Info("serving stdio", "backend", cfg.BackendAPIBase)
				return mcp.NewStdioTransport(server, os.Stdin, os.Stdout, logger).Run(ctx)
			})
			return g.Wait()
		}

		httpServer := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           newHTTPHandler(cfg, server, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		}

		g.Go(func() error {
			logger.Info("listening", "addr", httpServer.Addr, "tls", cfg.TLSEnabled(), "backend", cfg.BackendAPIBase)

			var err error
			if cfg.TLSEnabled() {
				err = httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			} else {
				err = httpServer.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})

		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// newServer wires the backend client, the tools and the dispatcher.
func newServer(cfg *config.Config, logger *slog.Logger) (*mcp.Server, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.HTTPClient.Timeout = timeout
	retryClient.HTTPClient.Transport = ofbiz.NewHeaderTransport(retryClient.HTTPClient.Transport, cfg.BackendUserAgent)
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = logger

	client, err := ofbiz.NewClient(cfg.BackendAPIBase, cfg.BackendAccessToken, retryClient.StandardClient(), logger)
	if err != nil {
		return nil, fmt.Errorf("error creating backend client: %w", err)
	}

	registry := mcp.NewRegistry()
	for _, tool := range tools.All(client, tools.Options{
		Concurrency:  cfg.MaxConcurrency,
		MaxBatchSize: cfg.MaxBatchSize,
		Logger:       logger,
	}) {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("error registering tool: %w", err)
		}
	}

	server, err := mcp.NewServer(
		mcp.WithRegistry(registry),
		mcp.WithLogger(logger),
		mcp.WithServerInfo("ofbiz-mcp", version),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating server: %w", err)
	}
	return server, nil
}

// warnUnsupported logs settings that are accepted but have no effect.
func warnUnsupported(cfg *config.Config, logger *slog.Logger) {
	if cfg.TLSKeyPassphrase != "" {
		logger.Warn("TLS_KEY_PASSPHRASE is not supported; TLS_KEY_PATH must name an unencrypted private key",
			"tls_key_path", cfg.TLSKeyPath)
	}
}

// newHTTPHandler places CORS and rate limiting in front of the MCP
// endpoint. CORS runs first so preflight requests are not rate limited.
func newHTTPHandler(cfg *config.Config, server *mcp.Server, logger *slog.Logger) http.Handler {
	endpoint := mcp.NewHTTPHandler(server, mcp.WithHTTPLogger(logger))
	limiter := middleware.NewRateLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow())

	mux := http.NewServeMux()
	mux.Handle(endpoint.Path(), limiter.Middleware(endpoint))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return middleware.CORS(cfg.AllowedOrigins(), mux)
}

var (
	verbose     bool
	stdio       bool
	retries     int
	timeout     time.Duration
	concurrency int

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")
	rootCmd.Flags().BoolVar(&stdio, "stdio", false, "Serve JSON-RPC over stdin/stdout instead of HTTP")
	rootCmd.Flags().IntVar(&retries, "retries", 0, "Maximum number of retries for failed backend requests")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Backend request timeout")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", config.DefaultMaxConcurrency, "Maximum concurrent backend calls per batch tool (overrides MAX_CONCURRENCY)")

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
