// package server contains the router, middleware & handlers for the user-data HTTP API
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, request IDs, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own a fixed set of paths.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// metricsHandler exposes a Prometheus gatherer on /metrics.
type metricsHandler struct {
	http.Handler
}

func (metricsHandler) Routes() []string { return []string{"/metrics"} }

// Options configures [New].
type Options struct {
	Config   *shared.Config
	Storage  models.Storage
	Logger   *log.Logger
	Registry *prometheus.Registry // Serves /metrics and receives HTTP metrics; nil disables both
}

// Server is the HTTP API server.
type Server struct {
	router *BasicRouter
	addr   string
	logger *log.Logger
	srv    *http.Server
}

// New builds the router with every endpoint and middleware wired.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: server config", shared.ErrMissingConfig)
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("%w: storage", shared.ErrMissingConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "server")

	auth, err := NewAuthenticator(opts.Config.Auth, logger)
	if err != nil {
		return nil, err
	}

	var metrics *HTTPMetrics
	if opts.Registry != nil {
		if metrics, err = NewHTTPMetrics(opts.Registry); err != nil {
			return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
		}
	}

	router := NewBasicRouter()
	router.Use(Recover(), RequestID(), Logging(logger))

	router.Handler(healthHandler{store: opts.Storage})
	if opts.Registry != nil {
		router.Handler(metricsHandler{promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})})
	}

	limiter := NewRateLimiter(opts.Config.Server.LoginRate, opts.Config.Server.LoginBurst)
	NewAPI(opts.Storage, auth, logger).Register(router, limiter, metrics)

	return &Server{
		router: router,
		addr:   opts.Config.Server.Addr(),
		logger: logger,
	}, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
