package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Actionboard/internal/analytics"
	"Actionboard/internal/config"
	"Actionboard/internal/metrics"
	"Actionboard/internal/middleware"
	"Actionboard/internal/poller"
	"Actionboard/internal/store"
	v1 "Actionboard/pkg/api/v1"
)

const shutdownTimeout = 10 * time.Second

// Source starts a new, independent snapshot sequence for every call.
// *poller.Poller satisfies it.
type Source interface {
	Stream(ctx context.Context) <-chan poller.Result
}

type Server struct {
	config     *config.Config
	source     Source
	handler    *v1.Handler
	tracker    *analytics.Tracker
	store      *store.Store
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	ready      atomic.Bool
}

// New creates a new API server. gatherer backs the metrics endpoint; nil
// falls back to the default registry.
func New(
	cfg *config.Config,
	version string,
	source Source,
	tracker *analytics.Tracker,
	st *store.Store,
	met *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	s := &Server{
		config:   cfg,
		source:   source,
		handler:  v1.NewHandler(version, tracker, st),
		tracker:  tracker,
		store:    st,
		metrics:  met,
		gatherer: gatherer,
		logger:   logger.With("component", "api-server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler builds the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and readiness endpoints
	mux.HandleFunc(s.config.Observability.HealthCheckPath, s.handler.HandleHealth)
	mux.HandleFunc(s.config.Observability.ReadinessPath, s.handleReadiness)

	// Metrics endpoint
	if s.config.Observability.EnableMetrics {
		if s.gatherer != nil {
			mux.Handle(s.config.Observability.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		} else {
			mux.Handle(s.config.Observability.MetricsPath, promhttp.Handler())
		}
	}

	// Snapshot streams
	mux.HandleFunc("/ws", s.authMiddleware(s.handleWebSocket))
	mux.HandleFunc("/api/v1/stream", s.authMiddleware(s.handleStream))

	// API v1 endpoints
	mux.HandleFunc("/api/v1/status", s.authMiddleware(s.handler.HandleStatus))
	mux.HandleFunc("/api/v1/events", s.authMiddleware(s.handler.HandleEvents))
	mux.HandleFunc("GET /api/v1/streams", s.authMiddleware(s.handler.HandleStreams))
	mux.HandleFunc("GET /api/v1/streams/{id}", s.authMiddleware(s.handler.HandleStreamByID))

	return middleware.WithLogger(s.logger)(mux)
}

// Start listens on the configured address and serves until ctx is done.
// Open streams are tied to ctx and end with it.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Address, strconv.Itoa(s.config.Server.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	// Streaming handlers clear the write deadline for their own responses
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("starting API server", "address", ln.Addr().String())
	s.ready.Store(true)

	go func() {
		<-ctx.Done()
		s.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		v1.WriteError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "{\"status\":\"ready\",\"time\":%q}\n", time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Server.EnableAuth {
			next(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		// Browsers cannot set headers on websocket upgrades
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.config.Server.APIKey {
			v1.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	allowed := s.config.Server.AllowedOrigins
	if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
		return true
	}

	// Same-origin only
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(host, r.Host)
}
