// Package server provides the admin HTTP surface used to drive the
// orchestrator: health checks, catalog/team refresh, round ticks, manual
// scans, and one-off exploit runs.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Orchestrator is the subset of internal/orchestrator.Orchestrator the
// admin surface drives.
type Orchestrator interface {
	Connect(ctx context.Context) error
	Scan(ctx context.Context) error
	Refresh(ctx context.Context) error
	GameTick(ctx context.Context, roundID int)
	StartExploit(ctx context.Context, exploitID string)
}

// Server is the admin HTTP server.
type Server struct {
	orchestrator Orchestrator
}

// New creates a Server bound to the given orchestrator.
func New(orchestrator Orchestrator) *Server {
	return &Server{orchestrator: orchestrator}
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health_check", s.handleHealthCheck)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /tick", s.handleTick(ctx))
	mux.HandleFunc("POST /scan", s.handleScan(ctx))
	mux.HandleFunc("GET /exec", s.handleExec(ctx))

	srv := &http.Server{
		Addr:              addr,
		Handler:           compressMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	slog.Info("server: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]string{"status": "ok"}, nil)
}

// handleRefresh runs synchronously: it is small, frequent, and callers
// expect to see errors immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Refresh(r.Context()); err != nil {
		writeError(w, internalError("failed to refresh teams and problems", err))
		return
	}
	writeJSONResponse(w, map[string]string{"status": "ok"}, nil)
}

// handleTick dispatches a round tick on a background goroutine bound to
// the server's long-lived context, since scheduling every exploit against
// every team can take longer than a client wants to wait.
func (s *Server) handleTick(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roundID, err := strconv.Atoi(r.URL.Query().Get("round_id"))
		if err != nil {
			writeError(w, badRequest("round_id must be an integer"))
			return
		}
		go s.orchestrator.GameTick(ctx, roundID)
		writeAccepted(w)
	}
}

// handleScan dispatches a repo scan in the background; a scan can involve
// fetching, checking out, and building images.
func (s *Server) handleScan(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := s.orchestrator.Scan(ctx); err != nil {
				slog.Error("server: scan failed", "err", err)
			}
		}()
		writeAccepted(w)
	}
}

// handleExec dispatches a single exploit run in the background.
func (s *Server) handleExec(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exploitID := r.URL.Query().Get("exploit_id")
		if exploitID == "" {
			writeError(w, badRequest("exploit_id is required"))
			return
		}
		go s.orchestrator.StartExploit(ctx, exploitID)
		writeAccepted(w)
	}
}
