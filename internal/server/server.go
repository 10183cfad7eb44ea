// Package server exposes the engine over HTTP: triggering scrape runs,
// streaming their progress as Server-Sent Events or WebSocket frames, and
// read-only inspection of runs, history and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/petrijr/scrapeflow/internal/engine"
	"github.com/petrijr/scrapeflow/internal/scraper"
	"github.com/petrijr/scrapeflow/pkg/api"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the scrapeflow API!"

// Options configures a Server.
type Options struct {
	// Addr is the listen address used by ListenAndServe.
	Addr string

	// Workflow is the workflow POST /scrape starts. Defaults to
	// scraper.ScraperWorkflow.
	Workflow string

	// TriggerRate limits POST /scrape to this many runs per second.
	// Zero or negative disables limiting.
	TriggerRate float64

	// TriggerBurst is the limiter burst. Defaults to 1 when limiting.
	TriggerBurst int

	// Metrics, if set, is served at GET /metrics.
	Metrics *api.BasicMetrics

	// AllowedOrigins lists CORS origins. "*" allows every origin.
	AllowedOrigins []string

	Logger *slog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	engine   *engine.Engine
	metrics  *api.BasicMetrics
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	origins  map[string]bool
	workflow string
	logger   *slog.Logger
	handler  http.Handler
	addr     string
}

// New builds a Server over eng.
func New(eng *engine.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   eng,
		metrics:  opts.Metrics,
		logger:   logger.With(slog.String("component", "server")),
		addr:     opts.Addr,
		workflow: opts.Workflow,
		origins:  make(map[string]bool, len(opts.AllowedOrigins)),
	}
	if s.workflow == "" {
		s.workflow = scraper.ScraperWorkflow
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	for _, o := range opts.AllowedOrigins {
		s.origins[o] = true
	}
	if opts.TriggerRate > 0 {
		burst := opts.TriggerBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.TriggerRate), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /scrape", s.handleScrape)
	mux.HandleFunc("GET /message/{id}", s.handleSSE)
	mux.HandleFunc("GET /message/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /message/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.handler = s.recoverer(s.cors(mux))
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Open streams are interrupted; runs keep executing.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.addr
	if addr == "" {
		addr = ":8000"
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
