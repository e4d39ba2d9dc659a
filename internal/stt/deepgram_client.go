package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
)

// messageCallbackHandler implements Deepgram's LiveMessageCallback
// interface, embedding the default handler for methods we don't override.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramSession implements Session using Deepgram's streaming API.
type DeepgramSession struct {
	cfg    *config.Config
	agent  calltypes.AgentConfig
	log    zerolog.Logger
	client *listenClient.WSCallback

	partial  chan TranscriptEvent
	final    chan TranscriptEvent
	endpoint chan EndpointSignal

	mu       sync.RWMutex
	isActive bool
	ctx      context.Context
	cancel   context.CancelFunc

	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramSession builds and connects a Deepgram streaming session for
// one call.
func NewDeepgramSession(cfg *config.Config, agent calltypes.AgentConfig, log zerolog.Logger) (*DeepgramSession, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &DeepgramSession{
		cfg:      cfg,
		agent:    agent,
		log:      log.With().Str("vendor", "deepgram").Logger(),
		partial:  make(chan TranscriptEvent, 100),
		final:    make(chan TranscriptEvent, 100),
		endpoint: make(chan EndpointSignal, 10),
		ctx:      ctx,
		cancel:   cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}

	if err := d.connect(); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

// connect opens (or reopens) the Deepgram streaming session.
func (d *DeepgramSession) connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram session is already active")
	}

	model := d.cfg.DeepgramModel
	language := d.cfg.DeepgramLanguage

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          model,
		Language:       language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "mulaw",
		Channels:       1,
		SampleRate:     calltypes.SampleRateHz,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.log.Warn().Interface("deepgram_error", errorResponse).Msg("deepgram transport error")

			d.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("deepgram")

			select {
			case <-d.ctx.Done():
				return nil
			default:
				d.mu.Lock()
				d.isActive = false
				d.mu.Unlock()
				go d.attemptReconnect()
			}
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(d.ctx, d.cfg.DeepgramAPIKey, nil, tOptions, callback)
	if err != nil {
		return fmt.Errorf("failed to create deepgram client: %w", err)
	}

	d.client = client
	d.isActive = true

	d.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))

	d.log.Info().Str("model", model).Str("language", language).Msg("deepgram session connected")
	return nil
}

func (d *DeepgramSession) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Metadata":
		d.log.Debug().Interface("metadata", msg.Metadata).Msg("deepgram metadata")

	case "UtteranceEnd":
		select {
		case d.endpoint <- EndpointSignal{ReceivedAt: time.Now()}:
		default:
			d.log.Warn().Msg("endpoint signal channel full, dropping")
		}

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		isFinal := msg.IsFinal
		if isFinal && IsGarbledEcho(alt.Transcript) {
			d.log.Debug().Str("text", alt.Transcript).Msg("dropped garbled transcript")
			return
		}

		event := TranscriptEvent{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			ReceivedAt: time.Now(),
		}

		target := d.partial
		if isFinal {
			target = d.final
		}
		select {
		case target <- event:
		default:
			d.log.Warn().Bool("final", isFinal).Msg("transcript channel full, dropping")
		}
	}
}

// SendAudio sends one mu-law carrier frame to Deepgram.
func (d *DeepgramSession) SendAudio(frame []byte) error {
	err := d.circuitBreaker.Call(func() error {
		d.mu.RLock()
		active := d.isActive
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("deepgram session is not active")
		}

		if _, err := client.Write(frame); err != nil {
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

// attemptReconnect retries up to config.ReconnectMaxAttempts times (spec.md
// §4.3 caps this at 3). Tokens received during the gap are lost.
func (d *DeepgramSession) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.mu.RLock()
	active := d.isActive
	d.mu.RUnlock()
	if active {
		return
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Second,
	}

	err := resilience.Reconnect(d.ctx, d.connect, reconnectConfig)
	if err != nil {
		d.log.Error().Err(err).Msg("deepgram reconnect exhausted")
	} else {
		d.log.Info().Msg("deepgram session reconnected")
	}
}

func (d *DeepgramSession) PartialTranscripts() <-chan TranscriptEvent { return d.partial }
func (d *DeepgramSession) FinalTranscripts() <-chan TranscriptEvent   { return d.final }
func (d *DeepgramSession) EndpointSignals() <-chan EndpointSignal     { return d.endpoint }

// Stop ends the session without releasing resources.
func (d *DeepgramSession) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil
	}
	d.client.Finish()
	d.isActive = false
	d.log.Info().Msg("deepgram session stopped")
	return nil
}

// Close releases all resources.
func (d *DeepgramSession) Close() error {
	d.cancel()
	if err := d.Stop(); err != nil {
		return err
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(d.partial)
		close(d.final)
		close(d.endpoint)
	}()
	return nil
}
