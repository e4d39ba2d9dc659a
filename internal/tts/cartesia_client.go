package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
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

const cartesiaVersion = "2025-04-16"

// CartesiaSession implements Session as a persistent WebSocket connection
// to Cartesia's streaming TTS endpoint, outputting mu-law @ 8kHz directly
// so no resampling is needed before the carrier frames it.
type CartesiaSession struct {
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

// NewCartesiaSession builds and connects a Cartesia streaming session for
// one call.
func NewCartesiaSession(cfg *config.Config, agent calltypes.AgentConfig, log zerolog.Logger) (*CartesiaSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &CartesiaSession{
		cfg:      cfg,
		agent:    agent,
		log:      log.With().Str("vendor", "cartesia").Logger(),
		audioOut: make(chan AudioChunk, 100),
		ctx:      ctx,
		cancel:   cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			"cartesia",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
	if err := c.connect(); err != nil {
		cancel()
		return nil, err
	}
	go startKeepAlive(ctx, c.sendKeepAlive)
	return c, nil
}

func (c *CartesiaSession) connect() error {
	wsURL := fmt.Sprintf("wss://api.cartesia.ai/tts/websocket?api_key=%s&cartesia_version=%s",
		c.cfg.CartesiaAPIKey, cartesiaVersion)

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("cartesia: failed to dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.contextID = uuid.New().String()
	c.connMu.Unlock()

	c.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("cartesia", int(c.circuitBreaker.GetState()))

	go c.readLoop(conn)

	c.log.Info().Msg("cartesia session connected")
	return nil
}

func (c *CartesiaSession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn().Err(err).Msg("cartesia transport error")
			c.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("cartesia", int(c.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("cartesia")

			select {
			case <-c.ctx.Done():
			default:
				go c.attemptReconnect()
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg["type"] {
		case "chunk":
			audioB64, _ := msg["data"].(string)
			if audioB64 == "" {
				continue
			}
			chunk, err := base64.StdEncoding.DecodeString(audioB64)
			if err != nil {
				continue
			}
			select {
			case c.audioOut <- AudioChunk{Data: chunk}:
			default:
				c.log.Warn().Msg("audio output channel full, dropping chunk")
			}
		case "error":
			c.log.Warn().Interface("cartesia_error", msg["error"]).Msg("cartesia synthesis error")
		}
	}
}

// StreamSentence sends one sentence to Cartesia and extends floor ownership
// by the sentence's estimated spoken duration.
func (c *CartesiaSession) StreamSentence(sentence calltypes.Sentence) error {
	if sentence.Text == "" {
		return nil
	}

	err := c.circuitBreaker.Call(func() error {
		c.connMu.Lock()
		defer c.connMu.Unlock()
		return c.conn.WriteJSON(c.buildMessage(sentence.Text, true))
	})

	observability.UpdateCircuitBreakerState("cartesia", int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("cartesia")
		return err
	}

	c.floor.Extend(sentence.Text)
	return nil
}

func (c *CartesiaSession) buildMessage(text string, continueTranscript bool) map[string]any {
	return map[string]any{
		"transcript": text,
		"continue":   continueTranscript,
		"context_id": c.contextID,
		"model_id":   c.cfg.CartesiaModelID,
		"voice": map[string]any{
			"mode": "id",
			"id":   c.cfg.CartesiaVoiceID,
		},
		"output_format": map[string]any{
			"container":   "raw",
			"encoding":    "pcm_mulaw",
			"sample_rate": calltypes.SampleRateHz,
		},
	}
}

// ClearAudio drops any audio already buffered locally for the carrier.
func (c *CartesiaSession) ClearAudio() error {
	for {
		select {
		case <-c.audioOut:
		default:
			return nil
		}
	}
}

// CancelPendingSentences cancels the active Cartesia context and starts a
// fresh one for subsequent sentences.
func (c *CartesiaSession) CancelPendingSentences() error {
	c.connMu.Lock()
	oldContext := c.contextID
	c.contextID = uuid.New().String()
	conn := c.conn
	c.connMu.Unlock()

	c.floor.Clear()

	if conn == nil {
		return nil
	}
	return conn.WriteJSON(map[string]any{
		"context_id": oldContext,
		"cancel":     true,
	})
}

// IsHoldingFloor reports whether the agent is still expected to be speaking.
func (c *CartesiaSession) IsHoldingFloor() bool {
	return c.floor.IsHolding()
}

// AudioChunks returns the ordered stream of synthesized mu-law audio.
func (c *CartesiaSession) AudioChunks() <-chan AudioChunk {
	return c.audioOut
}

func (c *CartesiaSession) sendKeepAlive() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(map[string]any{
		"context_id": c.contextID,
		"transcript": "",
		"continue":   true,
	})
}

func (c *CartesiaSession) attemptReconnect() {
	select {
	case <-c.ctx.Done():
		return
	default:
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: c.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(c.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Second,
	}
	if err := resilience.Reconnect(c.ctx, c.connect, reconnectConfig); err != nil {
		c.log.Error().Err(err).Msg("cartesia reconnect exhausted")
	} else {
		c.log.Info().Msg("cartesia session reconnected")
	}
}

// Close ends the session and releases the underlying connection.
func (c *CartesiaSession) Close() error {
	c.cancel()
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
