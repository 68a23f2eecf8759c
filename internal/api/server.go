/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package api exposes the question pipeline over HTTP
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nlsql-agent/internal/display"
	"nlsql-agent/internal/logging"
	"nlsql-agent/internal/pipeline"
	"nlsql-agent/internal/schema"
)

// ServerName and ServerVersion identify the agent in health responses
const (
	ServerName    = "nlsql-agent"
	ServerVersion = "1.0.0"
)

// Asker processes one question end to end
type Asker interface {
	Ask(ctx context.Context, req pipeline.Request) *pipeline.Answer
}

// SchemaRefresher re-introspects the target database on demand
type SchemaRefresher interface {
	Refresh(ctx context.Context) (*schema.Descriptor, error)
}

// Server serves the query API for one target database
type Server struct {
	asker     Asker
	refresher SchemaRefresher
	addr      string
}

// NewServer creates an API server
func NewServer(addr string, asker Asker, refresher SchemaRefresher) *Server {
	return &Server{
		asker:     asker,
		refresher: refresher,
		addr:      addr,
	}
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/schema/refresh", s.handleSchemaRefresh)
	mux.HandleFunc("/healthz", s.handleHealthCheck)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http server listening", "address", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

// queryRequest is the body of POST /api/query
type queryRequest struct {
	Question string `json:"question"`
	// PriorErrorHint carries the previous failure when the client
	// explicitly resubmits the same question
	PriorErrorHint string `json:"prior_error_hint,omitempty"`
}

// handleQuery runs one question through the pipeline
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	answer := s.asker.Ask(r.Context(), pipeline.Request{
		Question:       req.Question,
		PriorErrorHint: req.PriorErrorHint,
	})

	// format=tsv renders successful results as plain rows for piping into
	// other tools; failures still come back as JSON payloads
	if r.URL.Query().Get("format") == "tsv" && answer.Payload.Succeeded() {
		w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, display.FormatTSV(answer.Payload.Columns, answer.Payload.Rows)); err != nil {
			logging.Warn("failed to write tsv response", "error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, answer.Payload)
}

// handleSchemaRefresh re-introspects the database schema
func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d, err := s.refresher.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("schema refresh failed: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"table_count": len(d.Tables),
		"loaded_at":   d.LoadedAt,
	})
}

// handleHealthCheck provides a simple health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"status":"ok","server":"%s","version":"%s"}`, ServerName, ServerVersion); err != nil {
		logging.Warn("failed to write health check response", "error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn("failed to encode response", "error", err.Error())
	}
}
