// Package server exposes detection sessions over HTTP.
//
// Routes:
//
//   - GET /v1/stream: websocket ingest. Binary messages carry audio, text
//     messages carry control commands, detection events are sent back as
//     JSON text messages.
//   - GET /v1/sessions: running sessions.
//   - DELETE /v1/sessions/{id}: stop a session. Always 204.
//   - GET /v1/profiles/{profile}/datasets: stored training sets of a profile.
//   - /healthz, /readyz and /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/earsense/internal/detect"
	"github.com/MrWong99/earsense/internal/health"
	"github.com/MrWong99/earsense/internal/observe"
	"github.com/MrWong99/earsense/internal/session"
	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

// ErrBusy is wrapped by [Sessions.Open] errors when no session slot is free.
var ErrBusy = errors.New("server: no session slot available")

// OpenRequest describes a session to open.
type OpenRequest struct {
	Profile    string
	Detector   detect.Kind
	Device     audio.Device
	DeviceName string
}

// Stream is an open session.
type Stream interface {
	ID() string
	Events() <-chan detect.Event
	Stop()
	Wait(ctx context.Context) error
}

// Sessions starts and tracks detection sessions.
type Sessions interface {
	Open(ctx context.Context, req OpenRequest) (Stream, error)
	Stop(id string) bool
	List() []session.Info
}

// Datasets lists the training sets stored for a profile.
type Datasets interface {
	Datasets(ctx context.Context, profile string) ([]string, error)
}

// Config holds the dependencies of a [Server].
type Config struct {
	Sessions Sessions
	Datasets Datasets

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// SampleRate is the default rate of raw PCM streams. Zero means 16000.
	SampleRate int

	// OriginPatterns are the hosts allowed to open websockets from a
	// browser. Empty allows same-origin requests only.
	OriginPatterns []string
}

// Server is the HTTP surface of EarSense.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New builds the route table.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.Mono16k.SampleRate
	}
	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleStopSession)
	mux.HandleFunc("GET /v1/profiles/{profile}/datasets", s.handleDatasets)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

// ─── REST ────────────────────────────────────────────────────────────────────

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.cfg.Sessions.List()})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.cfg.Sessions.Stop(id) {
		slog.Info("session stopped by request", "session_id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	profile := r.PathValue("profile")
	if err := trainstore.ValidateName(profile); err != nil {
		writeError(w, http.StatusBadRequest, "profile: "+err.Error())
		return
	}
	names, err := s.cfg.Datasets.Datasets(r.Context(), profile)
	if err != nil {
		observe.Logger(r.Context()).Error("list datasets", "profile", profile, "error", err)
		writeError(w, http.StatusInternalServerError, "list datasets failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile, "datasets": names})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
