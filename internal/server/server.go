// Package server exposes the factory over HTTP.
//
// Routes:
//
//	POST /v1/collections  create_collection
//	POST /v1/mint         mint_proxy
//	GET  /v1/interface    interface description (Candid text, or JSON with ?format=json)
//	GET  /healthz         liveness
//	GET  /metrics         Prometheus metrics
//
// The caller identity comes from the X-Caller-Principal header, which a
// gateway in front of the server is expected to set after authenticating
// the caller.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/proxy"
)

// Header names.
const (
	HeaderCaller    = "X-Caller-Principal"
	HeaderRequestID = "X-Request-Id"
)

// maxRequestIDLen bounds a client-supplied X-Request-Id.
const maxRequestIDLen = 64

// maxBodyBytes bounds request bodies. Collection images travel inline.
const maxBodyBytes = 4 << 20

// Server routes HTTP requests to the orchestrator and the proxy.
type Server struct {
	orch    *factory.Orchestrator
	proxy   *proxy.Proxy
	ids     flow.IDGenerator
	logger  *slog.Logger
	metrics *Metrics
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithIDGenerator sets the request id source for requests that arrive
// without an X-Request-Id header. Default: UUIDv7.
func WithIDGenerator(gen flow.IDGenerator) Option {
	return func(s *Server) {
		s.ids = gen
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server.
func New(orch *factory.Orchestrator, px *proxy.Proxy, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		proxy:   px,
		ids:     flow.UUIDv7Generator{},
		logger:  slog.Default(),
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/collections", s.handleCreateCollection)
		r.Post("/mint", s.handleMint)
		r.Get("/interface", s.handleInterface)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down,
// giving in-flight requests a few seconds to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// requestID attaches a request id to the context, reusing the caller's
// X-Request-Id when it is well formed, and echoes it in the response.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !validRequestID(id) {
			id = s.ids.Generate()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := flow.WithRequestID(r.Context(), id)
		ctx = flow.WithLogger(ctx, s.logger.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts 1 to maxRequestIDLen characters from
// [A-Za-z0-9._:-], which covers UUIDs and common tracing ids.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == ':', c == '-':
		default:
			return false
		}
	}
	return true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		flow.Logger(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
