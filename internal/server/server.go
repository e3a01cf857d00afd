package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailrelay/internal/gmail"
	"github.com/teemow/gmailrelay/internal/google"
	"github.com/teemow/gmailrelay/internal/instrumentation"
)

// API routes.
const (
	RouteGenerateURL   = "/api/auth/generate-url"
	RouteOAuthCallback = "/api/auth/oauth-callback"
	RouteSendEmail     = "/api/send-email"
	RouteCallbackPage  = "/callback"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// TokenExchanger trades an authorization code for a token pair.
type TokenExchanger interface {
	Exchange(ctx context.Context, req google.ExchangeRequest) (*google.TokenPair, error)
}

// MessageSender sends one message as the user.
type MessageSender interface {
	Send(ctx context.Context, req gmail.SendRequest) (*gmailapi.Message, error)
}

// Config holds the server's dependencies.
type Config struct {
	Exchanger TokenExchanger
	Sender    MessageSender

	// RateLimit applies to the /api routes. A zero value disables it.
	RateLimit RateLimitConfig

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Server is the relay backend.
type Server struct {
	exchanger   TokenExchanger
	sender      MessageSender
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
	health      *HealthChecker
	rateLimiter *RateLimiter
	router      chi.Router

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a Server. Exchanger and Sender default to the production
// Google implementations.
func New(cfg Config) *Server {
	s := &Server{
		exchanger: cfg.Exchanger,
		sender:    cfg.Sender,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		health:    NewHealthChecker(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.exchanger == nil {
		s.exchanger = google.NewExchanger(
			google.WithMetrics(s.metrics),
			google.WithAuditLogger(cfg.Audit),
			google.WithLogger(s.logger),
		)
	}
	if s.sender == nil {
		s.sender = gmail.NewSender(
			gmail.WithMetrics(s.metrics),
			gmail.WithAuditLogger(cfg.Audit),
			gmail.WithLogger(s.logger),
		)
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit)
	}
	s.router = s.setupRouter()
	// Readiness flips once Serve has a listener.
	s.health.SetReady(false)
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	s.apiRoute(r, RouteGenerateURL, "GET,POST,OPTIONS", s.handleGenerateURL)
	s.apiRoute(r, RouteOAuthCallback, "POST,OPTIONS", s.handleOAuthCallback)
	s.apiRoute(r, RouteSendEmail, "POST,OPTIONS", s.handleSendEmail)

	r.Get(RouteCallbackPage, s.handleCallbackPage)
	s.health.Register(r)

	return r
}

// apiRoute mounts an API handler behind CORS and then the rate limiter.
// Preflight requests are answered by cors and never reach the limiter.
func (s *Server) apiRoute(r chi.Router, pattern, methods string, h http.HandlerFunc) {
	mws := chi.Middlewares{cors(methods)}
	if s.rateLimiter != nil {
		mws = append(mws, s.rateLimiter.Middleware)
	}
	r.With(mws...).HandleFunc(pattern, h)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the server's health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Start listens on addr and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.health.SetReady(true)
	s.logger.Info("starting relay server", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown marks the server as not ready, stops accepting connections and
// waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()

	var errs []error
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		s.logger.Info("shutting down relay server")
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	return errors.Join(errs...)
}
