package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
)

const assemblyAIRealtimeURL = "wss://api.assemblyai.com/v2/realtime/ws"

type assemblyAIMessage struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error"`
}

type assemblyAIAudioFrame struct {
	AudioData string `json:"audio_data"`
}

// AssemblyAISession implements Session against AssemblyAI's realtime
// WebSocket endpoint.
type AssemblyAISession struct {
	cfg   *config.Config
	agent calltypes.AgentConfig
	log   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	partial  chan TranscriptEvent
	final    chan TranscriptEvent
	endpoint chan EndpointSignal

	mu       sync.RWMutex
	isActive bool
	ctx      context.Context
	cancel   context.CancelFunc

	circuitBreaker *resilience.CircuitBreaker
}

// NewAssemblyAISession builds and connects an AssemblyAI realtime session
// for one call.
func NewAssemblyAISession(cfg *config.Config, agent calltypes.AgentConfig, log zerolog.Logger) (*AssemblyAISession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &AssemblyAISession{
		cfg:      cfg,
		agent:    agent,
		log:      log.With().Str("vendor", "assemblyai").Logger(),
		partial:  make(chan TranscriptEvent, 100),
		final:    make(chan TranscriptEvent, 100),
		endpoint: make(chan EndpointSignal, 10),
		ctx:      ctx,
		cancel:   cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			"assemblyai",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
	if err := a.connect(); err != nil {
		cancel()
		return nil, err
	}
	return a, nil
}

func (a *AssemblyAISession) connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.isActive {
		return fmt.Errorf("assemblyai session is already active")
	}

	u, err := url.Parse(assemblyAIRealtimeURL)
	if err != nil {
		return fmt.Errorf("invalid assemblyai realtime url: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", fmt.Sprintf("%d", calltypes.SampleRateHz))
	q.Set("encoding", "pcm_mulaw")
	u.RawQuery = q.Encode()

	header := map[string][]string{"Authorization": {a.cfg.AssemblyAIAPIKey}}

	conn, _, err := websocket.DefaultDialer.DialContext(a.ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to dial assemblyai realtime endpoint: %w", err)
	}

	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()
	a.isActive = true

	a.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("assemblyai", int(a.circuitBreaker.GetState()))

	go a.readLoop(conn)

	a.log.Info().Msg("assemblyai realtime session connected")
	return nil
}

func (a *AssemblyAISession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.log.Warn().Err(err).Msg("assemblyai transport error")
			a.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("assemblyai", int(a.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("assemblyai")

			a.mu.Lock()
			a.isActive = false
			a.mu.Unlock()

			select {
			case <-a.ctx.Done():
			default:
				go a.attemptReconnect()
			}
			return
		}

		var msg assemblyAIMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.MessageType {
		case "PartialTranscript":
			if msg.Text == "" {
				continue
			}
			select {
			case a.partial <- TranscriptEvent{Text: msg.Text, Confidence: msg.Confidence, ReceivedAt: time.Now()}:
			default:
				a.log.Warn().Msg("partial transcript channel full, dropping")
			}

		case "FinalTranscript":
			// AssemblyAI emits an end-of-utterance FinalTranscript even
			// when there was no new text; treat that as the endpoint
			// signal regardless.
			select {
			case a.endpoint <- EndpointSignal{ReceivedAt: time.Now()}:
			default:
			}
			if msg.Text == "" || IsGarbledEcho(msg.Text) {
				continue
			}
			select {
			case a.final <- TranscriptEvent{Text: msg.Text, Confidence: msg.Confidence, ReceivedAt: time.Now()}:
			default:
				a.log.Warn().Msg("final transcript channel full, dropping")
			}

		case "SessionTerminated":
			return
		}
	}
}

// SendAudio sends one mu-law carrier frame to AssemblyAI.
func (a *AssemblyAISession) SendAudio(frame []byte) error {
	err := a.circuitBreaker.Call(func() error {
		a.mu.RLock()
		active := a.isActive
		a.mu.RUnlock()
		if !active {
			return fmt.Errorf("assemblyai session is not active")
		}

		payload, err := json.Marshal(assemblyAIAudioFrame{AudioData: base64.StdEncoding.EncodeToString(frame)})
		if err != nil {
			return err
		}

		a.connMu.Lock()
		defer a.connMu.Unlock()
		if err := a.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			go a.attemptReconnect()
			return fmt.Errorf("failed to send audio to assemblyai: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("assemblyai", int(a.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("assemblyai")
	}
	return err
}

func (a *AssemblyAISession) attemptReconnect() {
	select {
	case <-a.ctx.Done():
		return
	default:
	}
	a.mu.RLock()
	active := a.isActive
	a.mu.RUnlock()
	if active {
		return
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: a.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(a.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Second,
	}
	if err := resilience.Reconnect(a.ctx, a.connect, reconnectConfig); err != nil {
		a.log.Error().Err(err).Msg("assemblyai reconnect exhausted")
	} else {
		a.log.Info().Msg("assemblyai session reconnected")
	}
}

func (a *AssemblyAISession) PartialTranscripts() <-chan TranscriptEvent { return a.partial }
func (a *AssemblyAISession) FinalTranscripts() <-chan TranscriptEvent   { return a.final }
func (a *AssemblyAISession) EndpointSignals() <-chan EndpointSignal     { return a.endpoint }

// Stop ends the session without releasing resources.
func (a *AssemblyAISession) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isActive {
		return nil
	}
	a.connMu.Lock()
	_ = a.conn.WriteMessage(websocket.TextMessage, []byte(`{"terminate_session": true}`))
	a.connMu.Unlock()
	a.isActive = false
	a.log.Info().Msg("assemblyai session stopped")
	return nil
}

// Close releases all resources.
func (a *AssemblyAISession) Close() error {
	a.cancel()
	if err := a.Stop(); err != nil {
		return err
	}
	a.connMu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.connMu.Unlock()
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(a.partial)
		close(a.final)
		close(a.endpoint)
	}()
	return nil
}
