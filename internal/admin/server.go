package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/wudi/respcache/internal/cache"
	"github.com/wudi/respcache/internal/logging"
	"github.com/wudi/respcache/internal/metrics"
)

// Server is the operational HTTP surface: stats, invalidation, purge and
// prometheus scraping. It only wraps the Manager's public contract.
type Server struct {
	mgr *cache.Manager
	srv *http.Server
}

// NewServer creates the admin server on addr.
func NewServer(addr string, mgr *cache.Manager, mx *metrics.Metrics) *Server {
	s := &Server{mgr: mgr}

	router := httprouter.New()
	router.GET("/healthz", s.handleHealth)
	router.Handler(http.MethodGet, "/metrics", mx.Handler())
	router.GET("/namespaces", s.handleNamespaces)
	router.GET("/namespaces/:ns/stats", s.handleStats)
	router.GET("/namespaces/:ns/oldest", s.handleOldest)
	router.DELETE("/namespaces/:ns", s.handleClear)
	// Trigger identifiers are opaque and often contain slashes (they are
	// usually endpoint paths), so they travel as a query parameter.
	router.POST("/invalidate", s.handleInvalidate)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logging.Info("admin server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNamespaces(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string][]string{"namespaces": s.mgr.Namespaces()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	stats, ok := s.mgr.Stats(r.Context(), ps.ByName("ns"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown namespace"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleOldest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	keys := s.mgr.Oldest(r.Context(), ps.ByName("ns"), limit)
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.mgr.Clear(r.Context(), ps.ByName("ns"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	trigger := r.URL.Query().Get("trigger")
	if trigger == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing trigger"})
		return
	}
	s.mgr.Invalidate(r.Context(), trigger)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
