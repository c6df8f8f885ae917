// Package api exposes session start and status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kylegalloway/applyflow/internal/logging"
	"github.com/kylegalloway/applyflow/internal/orchestrator"
	"github.com/kylegalloway/applyflow/internal/session"
	"github.com/kylegalloway/applyflow/internal/stages"
)

const maxBodyBytes = 1 << 20

// Sessions is what the server needs from the session manager.
type Sessions interface {
	Start(creds stages.Credentials) (string, error)
	Status(id string) (session.Snapshot, error)
	List() []session.Snapshot
}

type Server struct {
	sessions Sessions
	log      *logging.Logger
	mux      *http.ServeMux
}

func New(sessions Sessions, log *logging.Logger) *Server {
	s := &Server{
		sessions: sessions,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /start-automation", s.handleStart)
	s.mux.HandleFunc("GET /automation-status/{sessionId}", s.handleStatus)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx is done, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Server running at http://localhost%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type startRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type startResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Sessions map[session.Status]int `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := map[session.Status]int{}
	for _, snap := range s.sessions.List() {
		counts[snap.Status]++
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: counts})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
		return
	}

	id, err := s.sessions.Start(stages.Credentials{Email: req.Email, Password: req.Password})
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Email and password are required"})
		return
	case err != nil:
		s.log.Errorf(err, "Error starting automation")
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to start automation"})
		return
	}

	writeJSON(w, http.StatusOK, startResponse{Message: "Automation started", SessionID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Status(r.PathValue("sessionId"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: "Automation session not found"})
			return
		}
		s.log.Errorf(err, "Error reading session status")
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to read session status"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
