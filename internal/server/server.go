// Package server exposes the identifier service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/user/sctid/internal/observability"
	"github.com/user/sctid/internal/service"
)

const (
	// DefaultMaxQuantity caps the quantity of a single generate request.
	DefaultMaxQuantity = 10000

	maxBodyBytes = 4 << 20
)

// Config holds Server settings.
type Config struct {
	Bind        string
	MaxQuantity int

	// AdminSecret signs and verifies HS256 admin tokens.
	AdminSecret string
	OIDC        OIDCConfig
}

// DefaultConfig returns the default Server settings.
func DefaultConfig() Config {
	return Config{Bind: ":8080", MaxQuantity: DefaultMaxQuantity}
}

type Option func(*Server)

// WithMetrics records request metrics into m and serves them on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock overrides the clock used to validate admin tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is the HTTP server for the identifier service.
type Server struct {
	svc        *service.Service
	cfg        Config
	httpServer *http.Server
	router     chi.Router
	metrics    *observability.Metrics
	auth       *adminAuth
	now        func() time.Time
}

// New creates a new Server. When cfg.OIDC names an issuer its discovery
// document is fetched with ctx.
func New(ctx context.Context, svc *service.Service, cfg Config, opts ...Option) (*Server, error) {
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = DefaultMaxQuantity
	}
	srv := &Server{svc: svc, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(srv)
	}

	auth, err := newAdminAuth(ctx, cfg, func() time.Time { return srv.now() })
	if err != nil {
		return nil, fmt.Errorf("init admin auth: %w", err)
	}
	srv.auth = auth
	if !auth.enabled() {
		slog.Warn("admin endpoints are unauthenticated; set an admin secret or OIDC issuer")
	}

	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:              cfg.Bind,
		Handler:           h2c.NewHandler(srv.router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.structuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ids/generate", s.handleGenerate)
		r.Post("/ids/register", s.handleRegister)
		r.Post("/ids/publish", s.handlePublish)
		r.Post("/ids/deprecate", s.handleDeprecate)
		r.Post("/ids/lookup", s.handleLookup)
		r.Get("/ids/{id}", s.handleGetID)

		r.Get("/reservations", s.handleListReservations)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/reservations", s.handleCreateReservation)
			r.Delete("/reservations/{name}", s.handleDeleteReservation)
		})
	})

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// Start begins listening for HTTP/1.1 and cleartext HTTP/2 requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// statusForCode maps service error codes onto HTTP statuses.
func statusForCode(code service.ErrorCode) int {
	switch code {
	case service.ErrorCodeInvalidIdentifier,
		service.ErrorCodeInvalidNamespace,
		service.ErrorCodeInvalidCategory,
		service.ErrorCodeInvalidReservation:
		return http.StatusBadRequest
	case service.ErrorCodeNotFound, service.ErrorCodeReservationNotFound:
		return http.StatusNotFound
	case service.ErrorCodeStatusConflict, service.ErrorCodeAllocationExhausted:
		return http.StatusConflict
	case service.ErrorCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	code := service.CodeOf(err)
	status := statusForCode(code)
	if code == "" {
		slog.Error("request failed", "error", err)
		writeError(w, status, err.Error(), "INTERNAL_ERROR")
		return
	}
	writeError(w, status, err.Error(), string(code))
}

// Middleware

func (s *Server) structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		done := s.metrics.BeginRequest()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		done(r.Method, route, strconv.Itoa(status), dur)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", dur.Milliseconds(),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
