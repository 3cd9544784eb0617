// Package api exposes the read-mostly monitoring surface over HTTP.
// The simulator is headless; this is how an operator inspects it.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perpsim/engine"
	"perpsim/journal"
)

// TradeSource serves the trade history endpoints.
type TradeSource interface {
	RecentTrades(limit int) ([]journal.TradeRecord, error)
}

type Server struct {
	engine *engine.Engine
	trades TradeSource
	reg    *prometheus.Registry
	http   *http.Server
}

func NewServer(addr string, eng *engine.Engine, trades TradeSource, reg *prometheus.Registry) *Server {
	s := &Server{engine: eng, trades: trades, reg: reg}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/status", s.handleStatus)
	r.Get("/positions", s.handlePositions)
	r.Get("/equity", s.handleEquity)
	r.Get("/trades", s.handleTrades)
	r.Post("/circuit-breaker/reset", s.handleBreakerReset)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.Ledger.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(positions),
		"positions": positions,
	})
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Supervisor.EquitySummary())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}

	trades, err := s.trades.RecentTrades(limit)
	if err != nil {
		log.Printf("api: recent trades: %v", err)
		writeError(w, http.StatusInternalServerError, "trade history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(trades),
		"trades": trades,
	})
}

// handleBreakerReset clears a full stop. The pause and daily stop
// expire on their own and cannot be cleared here.
func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Breaker.ResetFullStop()
	log.Printf("api: circuit breaker full stop reset")
	writeJSON(w, http.StatusOK, s.engine.Breaker.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
