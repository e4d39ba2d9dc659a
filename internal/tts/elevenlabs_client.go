package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
)

// ElevenLabsSession implements Session as a persistent WebSocket connection
// to ElevenLabs' multi-stream-input endpoint, requesting mu-law @ 8kHz
// output directly so no resampling is needed before the carrier frames it.
type ElevenLabsSession struct {
	cfg   *config.Config
	agent calltypes.AgentConfig
	log   zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	contextID string

	audioOut chan AudioChunk
	floor    FloorTracker

	ctx    context.Context
	cancel context.CancelFunc

	circuitBreaker *resilience.CircuitBreaker
}

// NewElevenLabsSession builds and connects an ElevenLabs streaming session
// for one call.
func NewElevenLabsSession(cfg *config.Config, agent calltypes.AgentConfig, log zerolog.Logger) (*ElevenLabsSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &ElevenLabsSession{
		cfg:      cfg,
		agent:    agent,
		log:      log.With().Str("vendor", "elevenlabs").Logger(),
		audioOut: make(chan AudioChunk, 100),
		ctx:      ctx,
		cancel:   cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			"elevenlabs",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
	if err := e.connect(); err != nil {
		cancel()
		return nil, err
	}
	go startKeepAlive(ctx, e.sendKeepAlive)
	return e, nil
}

func (e *ElevenLabsSession) connect() error {
	voice := e.cfg.ElevenLabsVoice
	if e.agent.VoiceID != "" {
		voice = e.agent.VoiceID
	}
	wsURL := fmt.Sprintf(
		"wss://api.elevenlabs.io/v1/text-to-speech/%s/multi-stream-input?model_id=%s&output_format=ulaw_8000&auto_mode=true",
		voice, e.cfg.ElevenLabsModel,
	)

	header := http.Header{}
	header.Set("xi-api-key", e.cfg.ElevenLabsAPIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(e.ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("elevenlabs: failed to dial: %w", err)
	}

	e.connMu.Lock()
	e.conn = conn
	e.contextID = uuid.New().String()
	e.connMu.Unlock()

	if err := conn.WriteJSON(map[string]any{
		"text":       " ",
		"context_id": e.contextID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}); err != nil {
		return fmt.Errorf("elevenlabs: failed to send initial config: %w", err)
	}

	e.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("elevenlabs", int(e.circuitBreaker.GetState()))

	go e.readLoop(conn)

	e.log.Info().Msg("elevenlabs session connected")
	return nil
}

func (e *ElevenLabsSession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.log.Warn().Err(err).Msg("elevenlabs transport error")
			e.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("elevenlabs", int(e.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("elevenlabs")

			select {
			case <-e.ctx.Done():
			default:
				go e.attemptReconnect()
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if isFinal, _ := msg["isFinal"].(bool); isFinal {
			continue
		}

		audioB64, _ := msg["audio"].(string)
		if audioB64 == "" {
			continue
		}
		chunk, err := base64.StdEncoding.DecodeString(audioB64)
		if err != nil {
			continue
		}
		select {
		case e.audioOut <- AudioChunk{Data: chunk}:
		default:
			e.log.Warn().Msg("audio output channel full, dropping chunk")
		}
	}
}

// StreamSentence sends one sentence to ElevenLabs and extends floor
// ownership by the sentence's estimated spoken duration.
func (e *ElevenLabsSession) StreamSentence(sentence calltypes.Sentence) error {
	if sentence.Text == "" {
		return nil
	}

	err := e.circuitBreaker.Call(func() error {
		e.connMu.Lock()
		defer e.connMu.Unlock()
		return e.conn.WriteJSON(map[string]any{
			"text":                   sentence.Text,
			"context_id":             e.contextID,
			"try_trigger_generation": true,
		})
	})

	observability.UpdateCircuitBreakerState("elevenlabs", int(e.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("elevenlabs")
		return err
	}

	e.floor.Extend(sentence.Text)
	return nil
}

// ClearAudio drops any audio already buffered locally for the carrier.
func (e *ElevenLabsSession) ClearAudio() error {
	for {
		select {
		case <-e.audioOut:
		default:
			return nil
		}
	}
}

// CancelPendingSentences closes the active ElevenLabs context and opens a
// fresh one for subsequent sentences.
func (e *ElevenLabsSession) CancelPendingSentences() error {
	e.connMu.Lock()
	oldContext := e.contextID
	e.contextID = uuid.New().String()
	conn := e.conn
	e.connMu.Unlock()

	e.floor.Clear()

	if conn == nil {
		return nil
	}
	return conn.WriteJSON(map[string]any{
		"context_id":    oldContext,
		"close_context": true,
	})
}

// IsHoldingFloor reports whether the agent is still expected to be speaking.
func (e *ElevenLabsSession) IsHoldingFloor() bool {
	return e.floor.IsHolding()
}

// AudioChunks returns the ordered stream of synthesized mu-law audio.
func (e *ElevenLabsSession) AudioChunks() <-chan AudioChunk {
	return e.audioOut
}

func (e *ElevenLabsSession) sendKeepAlive() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.WriteJSON(map[string]any{
		"text":       "",
		"context_id": e.contextID,
	})
}

func (e *ElevenLabsSession) attemptReconnect() {
	select {
	case <-e.ctx.Done():
		return
	default:
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: e.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(e.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Second,
	}
	if err := resilience.Reconnect(e.ctx, e.connect, reconnectConfig); err != nil {
		e.log.Error().Err(err).Msg("elevenlabs reconnect exhausted")
	} else {
		e.log.Info().Msg("elevenlabs session reconnected")
	}
}

// Close ends the session and releases the underlying connection.
func (e *ElevenLabsSession) Close() error {
	e.cancel()
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn != nil {
		e.conn.Close()
	}
	return nil
}
