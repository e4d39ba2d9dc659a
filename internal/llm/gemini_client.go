package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
)

// GeminiSession implements Session against the Google Gemini API.
type GeminiSession struct {
	client         *genai.Client
	model          string
	log            zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewGeminiSession builds a session for one call's LLM turns.
func NewGeminiSession(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*GeminiSession, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiSession{
		client: client,
		model:  cfg.GeminiModel,
		log:    log.With().Str("vendor", "gemini").Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"gemini",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}, nil
}

// Generate streams a GenerateContent completion and feeds completed
// sentences to sink.
func (g *GeminiSession) Generate(ctx context.Context, systemPrompt string, history []calltypes.TranscriptEntry, userTurn string, sink StreamSink) error {
	contents := buildGeminiContents(history, userTurn)
	genConfig := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
			Role:  "user",
		}
	}

	err := g.circuitBreaker.Call(func() error {
		return g.stream(ctx, contents, genConfig, sink)
	})

	observability.UpdateCircuitBreakerState("gemini", int(g.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("gemini")
	}
	return err
}

func (g *GeminiSession) stream(ctx context.Context, contents []*genai.Content, genConfig *genai.GenerateContentConfig, sink StreamSink) error {
	acc := NewSentenceAccumulator(sink)
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, genConfig) {
		if err != nil {
			if ctx.Err() != nil {
				acc.Finish()
				return ctx.Err()
			}
			return fmt.Errorf("gemini: stream failed: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				acc.PushToken(part.Text)
			}
		}
	}
	acc.Finish()
	return nil
}

func buildGeminiContents(history []calltypes.TranscriptEntry, userTurn string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, h := range history {
		role := "user"
		if h.Role == calltypes.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: h.Text}},
			Role:  role,
		})
	}
	contents = append(contents, &genai.Content{
		Parts: []*genai.Part{{Text: userTurn}},
		Role:  "user",
	})
	return contents
}
