package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailrelay/internal/config"
	"github.com/teemow/gmailrelay/internal/instrumentation"
	"github.com/teemow/gmailrelay/internal/server"
)

// serveFlags holds the serve command's flag values. Only flags the user
// set override the loaded configuration.
type serveFlags struct {
	httpAddr       string
	origin         string
	rateLimit      float64
	rateBurst      int
	trustProxy     bool
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay backend",
		Long: `Run the relay backend. It serves:
  GET|POST /api/auth/generate-url   consent URL for a client ID
  POST     /api/auth/oauth-callback exchange an authorization code for tokens
  POST     /api/send-email          send an HTML message as the user
  GET      /callback                landing page for Google's redirect
  GET      /healthz, /readyz        health checks

The redirect URI to register with Google is <origin>/callback.

Configuration is read from defaults, then the config file, then
GMAILRELAY_* environment variables, then flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := global.logger()

			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server.HTTPAddr, err)
			}
			return runServe(ctx, cfg, ln, flags.trustProxy, logger)
		},
	}

	flags.register(cmd)

	return cmd
}

// register defines the serve flags on cmd.
func (f *serveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address (default \":3000\"). Can also use GMAILRELAY_HTTP_ADDR env var.")
	cmd.Flags().StringVar(&f.origin, "origin", "", "Public origin of the site (default \"http://localhost:3000\"). Can also use GMAILRELAY_ORIGIN env var.")
	cmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "Requests per second per client IP on /api routes, 0 disables (default 10). Can also use GMAILRELAY_RATE_LIMIT env var.")
	cmd.Flags().IntVar(&f.rateBurst, "rate-burst", 0, "Burst per client IP (default 20). Can also use GMAILRELAY_RATE_BURST env var.")
	cmd.Flags().BoolVar(&f.trustProxy, "trust-proxy", false, "Take the client IP from X-Forwarded-For / X-Real-IP. Only enable behind a trusted reverse proxy.")
	cmd.Flags().BoolVar(&f.metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated port. Can also use GMAILRELAY_METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Metrics server address (default \":9090\"). Can also use GMAILRELAY_METRICS_ADDR env var.")
}

// apply copies explicitly set flags onto cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("http-addr") {
		cfg.Server.HTTPAddr = f.httpAddr
	}
	if changed("origin") {
		cfg.Server.Origin = f.origin
	}
	if changed("rate-limit") {
		cfg.RateLimit.RPS = f.rateLimit
		cfg.RateLimit.Enabled = f.rateLimit > 0
	}
	if changed("rate-burst") {
		cfg.RateLimit.Burst = f.rateBurst
	}
	if changed("metrics-enabled") {
		cfg.Metrics.Enabled = f.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
}

// runServe serves the backend on ln until ctx is canceled, then shuts down
// gracefully.
func runServe(ctx context.Context, cfg *config.Config, ln net.Listener, trustProxy bool, logger *slog.Logger) error {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", "error", err)
		}
	}()

	var audit *instrumentation.AuditLogger
	if provider.Enabled() {
		audit = instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)
	}

	srv := server.New(server.Config{
		RateLimit: server.RateLimitConfig{
			Enabled:    cfg.RateLimit.Enabled,
			RPS:        cfg.RateLimit.RPS,
			Burst:      cfg.RateLimit.Burst,
			TrustProxy: trustProxy,
		},
		Metrics: provider.Metrics(),
		Audit:   audit,
		Logger:  logger,
	})

	metricsErr := make(chan error, 1)
	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.ServesPrometheus() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
		}()
	} else if cfg.Metrics.Enabled {
		logger.Info("metrics server disabled: instrumentation does not export to prometheus")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Serve(ln)
	}()

	logger.Info("gmailrelay backend started",
		"addr", ln.Addr().String(),
		"origin", cfg.Server.Origin,
		"redirect_uri", cfg.RedirectURI(),
		"rate_limit", cfg.RateLimit.Enabled,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server stopped with error: %w", err)
		}
	case err := <-metricsErr:
		runErr = fmt.Errorf("metrics server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	// Covers a cancel that arrives before Serve has registered the server.
	_ = ln.Close()
	return runErr
}
