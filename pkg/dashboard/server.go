// Package dashboard exposes the live-query HTTP surface for a running
// pipeline: current statistics, the most recent records, and recent log
// entries. Reads are safe while the pipeline is writing.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sietchlabs/scraper-go/pkg/logging"
	"github.com/sietchlabs/scraper-go/pkg/stats"
	"github.com/sietchlabs/scraper-go/pkg/types"
	"github.com/sirupsen/logrus"
)

// Defaults for the dashboard surface.
const (
	// DefaultAddr is the default listen address
	DefaultAddr = ":8000"
	// DefaultMaxRecent bounds the recent-record ring
	DefaultMaxRecent = 100
	// defaultUIDLimit is the /api/uids page size when none is given
	defaultUIDLimit = 10
	// defaultLogLimit is the /api/logs page size when none is given
	defaultLogLimit = 100
)

// StatsFunc supplies the latest statistics snapshot.
type StatsFunc func() stats.Snapshot

// Server serves the dashboard API. Start binds the listener; a bind
// failure is fatal to the run and is returned to the caller.
type Server struct {
	addr      string
	logger    *logrus.Logger
	statsFn   StatsFunc
	logs      *logging.RingHook
	server    *http.Server
	listener  net.Listener
	maxRecent int

	mu     sync.RWMutex
	recent []*types.Record
}

// NewServer creates a dashboard server. logs may be nil, in which case
// /api/logs serves an empty list.
func NewServer(addr string, statsFn StatsFunc, logs *logging.RingHook, logger *logrus.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:      addr,
		logger:    logger,
		statsFn:   statsFn,
		logs:      logs,
		maxRecent: DefaultMaxRecent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.withCORS(s.handleStats))
	mux.HandleFunc("/api/uids", s.withCORS(s.handleUIDs))
	mux.HandleFunc("/api/logs", s.withCORS(s.handleLogs))

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// AddRecord pushes a record onto the recent ring, newest first.
func (s *Server) AddRecord(rec *types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]*types.Record{rec}, s.recent...)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[:s.maxRecent]
	}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dashboard: listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Dashboard server error")
		}
	}()

	s.logger.WithField("address", listener.Addr().String()).Info("Dashboard server started")
	return nil
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("Dashboard shutdown error")
	}
	s.logger.Info("Dashboard server stopped")
}

// Handler returns the server's HTTP handler. Intended for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.statsFn())
}

func (s *Server) handleUIDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := queryInt(r, "limit", defaultUIDLimit)

	s.mu.RLock()
	if limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]*types.Record, limit)
	copy(out, s.recent[:limit])
	s.mu.RUnlock()

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := queryInt(r, "limit", defaultLogLimit)
	level := r.URL.Query().Get("level")

	entries := []logging.Entry{}
	if s.logs != nil {
		entries = s.logs.Recent(limit, level)
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("Failed to encode dashboard response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
