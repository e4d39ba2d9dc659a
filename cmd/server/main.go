package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/callstate"
	"github.com/lexiqai/voice-orchestrator/internal/callstore"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/httpapi"
	"github.com/lexiqai/voice-orchestrator/internal/latency"
	"github.com/lexiqai/voice-orchestrator/internal/llm"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/orchestrator"
	"github.com/lexiqai/voice-orchestrator/internal/stt"
	"github.com/lexiqai/voice-orchestrator/internal/telephony"
	"github.com/lexiqai/voice-orchestrator/internal/tts"
)

// gateway wires one process's shared dependencies: the stores every call's
// Turn Orchestrator reads and writes, and the vendor credentials each call's
// STT/LLM/TTS sessions are built from.
type gateway struct {
	cfg   *config.Config
	log   zerolog.Logger
	state *callstate.Store
	redis *callstate.RedisStore
	pg    *callstore.PostgresStore
	rest  *telephony.RESTClient

	mu    sync.Mutex
	calls map[string]*orchestrator.Orchestrator
}

// registerOrchestrator makes a live call's Orchestrator reachable from
// webhook handlers, which run on the HTTP server's own goroutines rather
// than the call's own goroutines.
func (gw *gateway) registerOrchestrator(callID string, orch *orchestrator.Orchestrator) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.calls[callID] = orch
}

func (gw *gateway) unregisterOrchestrator(callID string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	delete(gw.calls, callID)
}

func (gw *gateway) orchestratorFor(callID string) (*orchestrator.Orchestrator, bool) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	o, ok := gw.calls[callID]
	return o, ok
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	log := observability.GetLogger()
	log.Info().Str("port", cfg.Port).Msg("voice orchestrator starting")

	gw := &gateway{
		cfg:   cfg,
		log:   log,
		state: callstate.New(),
		calls: make(map[string]*orchestrator.Orchestrator),
	}

	redisClient := callstate.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	gw.redis = callstate.NewRedisStore(redisClient)

	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := callstore.NewPostgresStore(ctx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		gw.pg = pg
		defer pg.Close()
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		gw.rest = telephony.NewRESTClient(cfg)
	}

	router := chi.NewRouter()
	router.Get("/streams/carrier", gw.handleCarrierStream)

	checks := observability.DependencyChecks{
		Redis: func(ctx context.Context) (bool, error) {
			return true, redisClient.Ping(ctx).Err()
		},
	}
	if gw.pg != nil {
		checks.Postgres = func(ctx context.Context) (bool, error) {
			return true, gw.pg.Ping(ctx)
		}
	}
	controlPlane := httpapi.New(gw.webhookHandlers(), checks, log)
	router.Mount("/", controlPlane.Router())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("exited")
}

// handleCarrierStream upgrades one inbound carrier WebSocket and drives its
// call end to end: build the per-call vendor sessions, run the Turn
// Orchestrator, and persist the outcome.
func (gw *gateway) handleCarrierStream(w http.ResponseWriter, r *http.Request) {
	carrierLog := gw.log.With().Str("remote_addr", r.RemoteAddr).Logger()
	carrier, err := telephony.Upgrade(w, r, carrierLog)
	if err != nil {
		gw.log.Error().Err(err).Msg("failed to upgrade carrier websocket")
		return
	}

	start, ok := <-carrier.Inbound()
	if !ok || start.Kind != telephony.EventStart {
		carrier.Close()
		return
	}

	callID := start.CallSID
	if callID == "" {
		callID = observability.NewCorrelationID()
	}
	log := observability.WithCorrelationID(callID)

	agent := gw.cfg.DefaultAgentConfig(
		"default",
		"You are a helpful phone assistant. Keep replies brief and conversational.",
		"Hi, thanks for calling. How can I help you today?",
		"Sorry, are you still there?",
		"I'm sorry, I'm having trouble responding right now. Let me have someone call you back.",
	)

	sttSession, err := gw.newSTTSession(agent, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start stt session")
		carrier.Close()
		return
	}
	defer sttSession.Close()

	ttsSession, err := gw.newTTSSession(agent, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start tts session")
		carrier.Close()
		return
	}
	defer ttsSession.Close()

	llmSession := gw.newLLMSession(agent, log)

	call := &calltypes.Call{
		CallID:    callID,
		Agent:     agent,
		Direction: calltypes.DirectionInbound,
		From:      start.CustomParameters["from"],
		To:        start.CustomParameters["to"],
		CreatedAt:  time.Now(),
		StartedAt:  time.Now(),
		AnsweredAt: time.Now(),
	}

	metrics := observability.NewCallMetrics(callID)
	gw.state.Create(callID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if gw.redis != nil {
		if err := gw.redis.SetField(ctx, callID, "session_ready", true); err != nil {
			log.Warn().Err(err).Msg("failed to flag session ready in redis")
		}
	}
	if gw.pg != nil {
		if err := gw.pg.CreateCall(ctx, call); err != nil {
			log.Warn().Err(err).Msg("failed to persist call header")
		}
	}

	orch := orchestrator.New(call, orchestrator.Deps{
		Carrier: carrier,
		STT:     sttSession,
		LLM:     llmSession,
		TTS:     ttsSession,
		REST:    gw.rest,
		Metrics: metrics,
		Log:     log,
	})

	gw.registerOrchestrator(callID, orch)
	defer gw.unregisterOrchestrator(callID)

	reason := orch.Run(ctx)
	log.Info().Str("reason", reason).Msg("call handling finished")

	gw.state.Delete(callID)
	if gw.redis != nil {
		if err := gw.redis.Delete(context.Background(), callID); err != nil {
			log.Warn().Err(err).Msg("failed to clear redis call state")
		}
	}
	if gw.pg != nil {
		bgCtx := context.Background()
		if err := gw.pg.EndCall(bgCtx, callID, reason, call.AnsweredAt, call.EndedAt); err != nil {
			log.Warn().Err(err).Msg("failed to persist call end")
		}
		checkpoints := toLatencyCheckpoints(orch.Latencies())
		if err := gw.pg.AppendTranscript(bgCtx, callID, orch.Transcript(), checkpoints); err != nil {
			log.Warn().Err(err).Msg("failed to persist transcript")
		}
	}
}

func toLatencyCheckpoints(checkpoints []latency.Checkpoint) []callstore.LatencyCheckpoint {
	out := make([]callstore.LatencyCheckpoint, len(checkpoints))
	for i, c := range checkpoints {
		out[i] = callstore.LatencyCheckpoint{
			TurnSeq:           c.TurnSeq,
			STTLatency:        c.STTLatency(),
			LLMLatency:        c.LLMLatency(),
			TTSLatency:        c.TTSLatency(),
			TimeToFirstSpeech: c.TimeToFirstSpeech(),
		}
	}
	return out
}

func (gw *gateway) newSTTSession(agent calltypes.AgentConfig, log zerolog.Logger) (stt.Session, error) {
	switch agent.STTProvider {
	case calltypes.STTAssemblyAI:
		return stt.NewAssemblyAISession(gw.cfg, agent, log)
	default:
		return stt.NewDeepgramSession(gw.cfg, agent, log)
	}
}

func (gw *gateway) newTTSSession(agent calltypes.AgentConfig, log zerolog.Logger) (tts.Session, error) {
	switch agent.TTSProvider {
	case calltypes.TTSElevenLabs:
		return tts.NewElevenLabsSession(gw.cfg, agent, log)
	default:
		return tts.NewCartesiaSession(gw.cfg, agent, log)
	}
}

func (gw *gateway) newLLMSession(agent calltypes.AgentConfig, log zerolog.Logger) llm.Session {
	switch agent.LLMProvider {
	case calltypes.LLMGroq:
		return llm.NewGroqSession(gw.cfg, log)
	case calltypes.LLMGrok:
		return llm.NewGrokSession(gw.cfg, log)
	case calltypes.LLMAnthropic:
		return llm.NewAnthropicSession(gw.cfg, log)
	case calltypes.LLMGemini:
		session, err := llm.NewGeminiSession(context.Background(), gw.cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to start gemini session, falling back to openai")
			return llm.NewOpenAISession(gw.cfg, log)
		}
		return session
	default:
		return llm.NewOpenAISession(gw.cfg, log)
	}
}

// webhookHandlers wires carrier/vendor webhook events into the call-state
// stores. These run out-of-band from the live carrier WebSocket connection,
// possibly on a different process, which is why they go through the
// cross-process Redis tier rather than the in-memory Store directly.
func (gw *gateway) webhookHandlers() httpapi.WebhookHandlers {
	ctx := context.Background()
	return httpapi.WebhookHandlers{
		OnCallAnswered: func(callID string, _ json.RawMessage) {
			if gw.redis != nil {
				_ = gw.redis.SetField(ctx, callID, "ai_has_responded", false)
			}
		},
		OnMachineDetectionEnded: func(callID string, payload json.RawMessage) {
			var amd struct {
				Result string `json:"result"`
			}
			if err := json.Unmarshal(payload, &amd); err != nil || amd.Result != "machine" {
				return
			}
			if gw.redis != nil {
				_ = gw.redis.SetField(ctx, callID, "voicemail_detected", true)
			}
			if orch, ok := gw.orchestratorFor(callID); ok {
				orch.MarkVoicemailDetectedAMD()
			}
		},
		OnPlaybackStarted: func(callID, playbackID string, _ json.RawMessage) {
			if gw.redis != nil {
				_ = gw.redis.AddPlaybackID(ctx, callID, playbackID)
			}
		},
		OnPlaybackEnded: func(callID, playbackID string, _ json.RawMessage) {
			if gw.redis != nil {
				_ = gw.redis.RemovePlaybackID(ctx, callID, playbackID)
				_ = gw.redis.PublishAudioDone(ctx, callID)
			}
			if orch, ok := gw.orchestratorFor(callID); ok {
				orch.ConfirmPlaybackEnded(playbackID)
			}
		},
		OnHangup: func(callID string, _ json.RawMessage) {
			if gw.redis != nil {
				_ = gw.redis.Delete(ctx, callID)
			}
		},
	}
}
