// Package httpserver wires the handlers, middleware chain and readiness gate
// into a single http.Server and manages its lifecycle.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/config"
	"git.home.luguber.info/inful/ordserve/internal/history"
	"git.home.luguber.info/inful/ordserve/internal/metrics"
	"git.home.luguber.info/inful/ordserve/internal/server/handlers"
	smw "git.home.luguber.info/inful/ordserve/internal/server/middleware"
	"git.home.luguber.info/inful/ordserve/internal/status"
)

// Options carries the dependencies of the HTTP surface.
type Options struct {
	Host string
	Port int

	Service     handlers.DocumentService
	Waiter      smw.ReadyWaiter // nil in local mode
	GateTimeout time.Duration

	Scheduler     handlers.UpdateScheduler // nil in local mode
	WebhookSecret string
	Branch        string

	Status  *status.Provider
	Hub     *status.Hub
	History *history.Store

	Metrics        metrics.Recorder
	MetricsHandler http.Handler // nil disables /metrics
	Version        string
}

// Server is the single HTTP endpoint of the process.
type Server struct {
	opts   Options
	server *http.Server
}

func New(opts Options) *Server {
	if opts.GateTimeout <= 0 {
		opts.GateTimeout = 5 * time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}

	s := &Server{opts: opts}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildHandler() http.Handler {
	ordHandlers := &handlers.ORDHandlers{Service: s.opts.Service}
	apiHandlers := &handlers.APIHandlers{
		Status:  s.opts.Status,
		History: s.opts.History,
		Version: s.opts.Version,
	}
	pageHandlers := &handlers.StatusPageHandlers{Status: s.opts.Status}

	mux := http.NewServeMux()
	mux.HandleFunc(config.WellKnownPath, ordHandlers.HandleConfiguration)
	mux.HandleFunc(config.DocumentsPath, ordHandlers.HandleDocument)
	mux.HandleFunc(config.ORDPathPrefix, ordHandlers.HandleFile)

	if s.opts.Scheduler != nil {
		webhookHandlers := &handlers.WebhookHandlers{
			Secret:    s.opts.WebhookSecret,
			Branch:    s.opts.Branch,
			Scheduler: s.opts.Scheduler,
			Metrics:   s.opts.Metrics,
		}
		mux.HandleFunc(config.WebhookPath, webhookHandlers.HandleGitHubWebhook)
	}

	mux.HandleFunc("/api/v1/status", apiHandlers.HandleStatus)
	mux.HandleFunc("/api/v1/updates", apiHandlers.HandleUpdates)
	mux.HandleFunc("/healthz", apiHandlers.HandleHealth)
	mux.HandleFunc("/status", pageHandlers.HandleStatusPage)

	if s.opts.Hub != nil {
		wsHandlers := &handlers.WSHandlers{Status: s.opts.Status, Hub: s.opts.Hub}
		mux.Handle("/api/v1/ws", wsHandlers.Handler())
	}
	if s.opts.MetricsHandler != nil {
		mux.Handle("/metrics", s.opts.MetricsHandler)
	}

	gate := smw.ReadinessGate(s.opts.Waiter, s.opts.GateTimeout, s.opts.Metrics)
	chain := smw.Chain(slog.Default())
	return chain(gate(mux))
}

// Handler exposes the fully-wired handler for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start binds the port and begins serving. Binding happens synchronously so
// an occupied port fails fast.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.server.Addr, err)
	}

	go func() {
		if serr := s.server.Serve(ln); serr != nil && serr != http.ErrServerClosed {
			slog.Error("HTTP server error", slog.String("error", serr.Error()))
		}
	}()

	slog.Info("HTTP server started", slog.String("addr", s.server.Addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
