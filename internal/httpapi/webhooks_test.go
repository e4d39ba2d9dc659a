package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/observability"
)

func TestWebhooks_CallInitiatedInvokesHandlerAndReturnsOK(t *testing.T) {
	var gotCallID string
	handlers := WebhookHandlers{
		OnCallInitiated: func(callID string, _ json.RawMessage) { gotCallID = callID },
	}
	srv := New(handlers, observability.DependencyChecks{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(webhookEnvelope{CallID: "call-123"})
	res, err := http.Post(ts.URL+"/webhooks/call.initiated", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post error: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if gotCallID != "call-123" {
		t.Errorf("expected handler to receive call-123, got %q", gotCallID)
	}

	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("expected status ok, got %v", payload)
	}
}

func TestWebhooks_MissingCallIDRejected(t *testing.T) {
	srv := New(WebhookHandlers{}, observability.DependencyChecks{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{})
	res, err := http.Post(ts.URL+"/webhooks/call.hangup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post error: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
}

func TestWebhooks_PlaybackEndedCarriesPlaybackID(t *testing.T) {
	var gotPlaybackID string
	handlers := WebhookHandlers{
		OnPlaybackEnded: func(_ string, playbackID string, _ json.RawMessage) { gotPlaybackID = playbackID },
	}
	srv := New(handlers, observability.DependencyChecks{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(webhookEnvelope{CallID: "call-1", PlaybackID: "playback-9"})
	res, err := http.Post(ts.URL+"/webhooks/call.playback.ended", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post error: %v", err)
	}
	defer res.Body.Close()

	if gotPlaybackID != "playback-9" {
		t.Errorf("expected playback id playback-9, got %q", gotPlaybackID)
	}
}

func TestWebhooks_HealthzReportsHealthy(t *testing.T) {
	srv := New(WebhookHandlers{}, observability.DependencyChecks{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
}
