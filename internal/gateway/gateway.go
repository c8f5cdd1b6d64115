// Package gateway serves the relay's HTTP surface: the Telegram webhook,
// a health probe and the Prometheus endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/internal/telegram"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Gateway is the HTTP front of the relay. Every handler answers on its own
// request goroutine; the only shared state is read-only configuration.
type Gateway struct {
	config    Config
	receiver  *telegram.WebhookReceiver
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	startedAt time.Time

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// Options carries the collaborators of a Gateway. Metrics and Tracer are
// optional.
type Options struct {
	Receiver *telegram.WebhookReceiver
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// New creates a Gateway. It does not listen until Start.
func New(cfg Config, opts Options) *Gateway {
	cfg.defaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Gateway{
		config:    cfg,
		receiver:  opts.Receiver,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
		startedAt: time.Now(),
	}
}

// Handler returns the router serving all gateway routes.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.server != nil {
		return errors.New("gateway: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Addr, err)
	}

	g.server = &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}
	g.addr = ln.Addr()

	server := g.server
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "webhook_path", g.config.WebhookPath)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop shuts the server down, waiting for in-flight requests up to the
// configured shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return server.Shutdown(shutdownCtx)
}
