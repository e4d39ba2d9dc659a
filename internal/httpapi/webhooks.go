// Package httpapi implements the inbound control plane (spec.md §6): the
// HTTP surface carriers and vendor webhooks call into, separate from the
// carrier WebSocket itself. It replies "ok" to every recognized webhook
// and otherwise stays out of the Turn Orchestrator's way — call-lifecycle
// side effects (logging, persistence, flagging the Call-State Store) are
// registered as callbacks rather than built into the handlers.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/observability"
)

// WebhookHandlers are invoked as each named carrier/vendor event arrives.
// Any may be nil, in which case the event is acknowledged and dropped.
type WebhookHandlers struct {
	OnCallInitiated      func(callID string, payload json.RawMessage)
	OnCallAnswered       func(callID string, payload json.RawMessage)
	OnMachineDetectionEnded func(callID string, payload json.RawMessage)
	OnPlaybackStarted    func(callID, playbackID string, payload json.RawMessage)
	OnPlaybackEnded      func(callID, playbackID string, payload json.RawMessage)
	OnHangup             func(callID string, payload json.RawMessage)
	OnRecordingSaved     func(callID string, payload json.RawMessage)
}

// Server is the control-plane HTTP server: webhooks, health, and metrics.
type Server struct {
	handlers WebhookHandlers
	checks   observability.DependencyChecks
	log      zerolog.Logger
}

// New builds a control-plane server. Handlers may be a zero-value
// WebhookHandlers if the caller only needs health/metrics endpoints.
func New(handlers WebhookHandlers, checks observability.DependencyChecks, log zerolog.Logger) *Server {
	return &Server{handlers: handlers, checks: checks, log: log}
}

// Router builds the chi router for the control plane.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", observability.HealthCheckHandler())
	r.Get("/readyz", observability.ReadinessHandler(s.checks))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/webhooks/call.initiated", s.handleCallInitiated)
	r.Post("/webhooks/call.answered", s.handleCallAnswered)
	r.Post("/webhooks/call.machine.detection.ended", s.handleMachineDetectionEnded)
	r.Post("/webhooks/call.playback.started", s.handlePlaybackStarted)
	r.Post("/webhooks/call.playback.ended", s.handlePlaybackEnded)
	r.Post("/webhooks/call.hangup", s.handleHangup)
	r.Post("/webhooks/call.recording.saved", s.handleRecordingSaved)

	return r
}

type webhookEnvelope struct {
	CallID     string          `json:"call_id"`
	PlaybackID string          `json:"playback_id"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (webhookEnvelope, bool) {
	var env webhookEnvelope
	if r.Body == nil {
		respondError(w, http.StatusBadRequest, "empty_body")
		return env, false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.log.Warn().Err(err).Msg("failed to decode webhook body")
		respondError(w, http.StatusBadRequest, "invalid_json")
		return env, false
	}
	if env.CallID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_id")
		return env, false
	}
	return env, true
}

func (s *Server) handleCallInitiated(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnCallInitiated != nil {
		s.handlers.OnCallInitiated(env.CallID, env.Payload)
	}
	respondOK(w)
}

func (s *Server) handleCallAnswered(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnCallAnswered != nil {
		s.handlers.OnCallAnswered(env.CallID, env.Payload)
	}
	respondOK(w)
}

func (s *Server) handleMachineDetectionEnded(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnMachineDetectionEnded != nil {
		s.handlers.OnMachineDetectionEnded(env.CallID, env.Payload)
	}
	respondOK(w)
}

func (s *Server) handlePlaybackStarted(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnPlaybackStarted != nil {
		s.handlers.OnPlaybackStarted(env.CallID, env.PlaybackID, env.Payload)
	}
	respondOK(w)
}

func (s *Server) handlePlaybackEnded(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnPlaybackEnded != nil {
		s.handlers.OnPlaybackEnded(env.CallID, env.PlaybackID, env.Payload)
	}
	respondOK(w)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnHangup != nil {
		s.handlers.OnHangup(env.CallID, env.Payload)
	}
	respondOK(w)
}

func (s *Server) handleRecordingSaved(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decode(w, r)
	if !ok {
		return
	}
	if s.handlers.OnRecordingSaved != nil {
		s.handlers.OnRecordingSaved(env.CallID, env.Payload)
	}
	respondOK(w)
}

func respondOK(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{"status": "error", "code": code})
}
