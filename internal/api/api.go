// Package api provides the keep-alive and status HTTP server for the
// check-in bot.
//
// It exposes read-only endpoints: a health probe, the current pending visits,
// and the audit ledger. It never mutates workflow state.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nxtoffice/checkinbot/internal/models"
	"github.com/nxtoffice/checkinbot/internal/pending"
	"github.com/nxtoffice/checkinbot/internal/store"
)

// Timeouts for the status listener.
const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves the status endpoints.
type Server struct {
	pending *pending.Store
	ledger  store.Store
	httpSrv *http.Server
}

// NewServer creates a status server over the given pending store and ledger.
func NewServer(addr string, pend *pending.Store, ledger store.Store) *Server {
	s := &Server{pending: pend, ledger: ledger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/pending", s.pendingHandler)
	mux.HandleFunc("/receipts", s.receiptsHandler)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("Status API listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Status API server failed", "error", err)
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Status: "ok"})
}

func (s *Server) pendingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Status: "ok", Result: s.pending.Visits()})
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	receipts, err := s.ledger.Receipts()
	if err != nil {
		slog.Error("Status API ledger read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Status: "ok", Result: receipts})
}

func writeJSON(w http.ResponseWriter, status int, body models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Status API response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.APIResponse{Status: "error", Message: message})
}
