// Package server provides CREP's minimal HTTP surface: liveness and status
// endpoints only. Timeline query/predict endpoints are a deployment's own
// concern layered on top of the cache manager and prediction package; this
// server exists so the process is independently health-checkable.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mycosoft-labs/crep/internal/cache/manager"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Config configures the HTTP server.
type Config struct {
	Port    int
	Log     zerolog.Logger
	Cache   *manager.Manager
	DevMode bool
}

// Server is CREP's health/status HTTP surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cache  *manager.Manager
}

// New builds a Server; call Start to begin serving.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cache:  cfg.Cache,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/statusz", s.handleStatusz)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatusz(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.GetStats(r.Context())
	cpuPercent, memPercent := s.systemStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"cache":       stats,
		"cpu_percent": cpuPercent,
		"mem_percent": memPercent,
	})
}

// systemStats reports host CPU/memory utilization, using a short sampling
// window so the handler stays fast under a dashboard's polling interval.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to get cpu percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to get memory statistics")
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Start begins serving; blocks until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
