package llm

import (
	"context"
	"fmt"
	"time"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicSession implements Session against Anthropic's Messages API.
type AnthropicSession struct {
	client         anthropicSDK.Client
	model          string
	log            zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewAnthropicSession builds a session for one call's LLM turns.
func NewAnthropicSession(cfg *config.Config, log zerolog.Logger) *AnthropicSession {
	opts := []anthropicOption.RequestOption{
		anthropicOption.WithAPIKey(cfg.AnthropicAPIKey),
	}
	return &AnthropicSession{
		client: anthropicSDK.NewClient(opts...),
		model:  cfg.AnthropicModel,
		log:    log.With().Str("vendor", "anthropic").Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"anthropic",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Generate streams a Messages completion and feeds completed sentences to sink.
func (a *AnthropicSession) Generate(ctx context.Context, systemPrompt string, history []calltypes.TranscriptEntry, userTurn string, sink StreamSink) error {
	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(a.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  buildAnthropicMessages(history, userTurn),
	}
	if systemPrompt != "" {
		params.System = []anthropicSDK.TextBlockParam{{Text: systemPrompt}}
	}

	err := a.circuitBreaker.Call(func() error {
		return a.stream(ctx, params, sink)
	})

	observability.UpdateCircuitBreakerState("anthropic", int(a.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("anthropic")
	}
	return err
}

func (a *AnthropicSession) stream(ctx context.Context, params anthropicSDK.MessageNewParams, sink StreamSink) error {
	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	acc := NewSentenceAccumulator(sink)
	for stream.Next() {
		event := stream.Current()
		if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
			acc.PushToken(event.Delta.Text)
		}
	}
	acc.Finish()

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("anthropic: stream failed: %w", err)
	}
	return nil
}

func buildAnthropicMessages(history []calltypes.TranscriptEntry, userTurn string) []anthropicSDK.MessageParam {
	msgs := make([]anthropicSDK.MessageParam, 0, len(history)+1)
	for _, h := range history {
		if h.Role == calltypes.RoleAssistant {
			msgs = append(msgs, anthropicSDK.NewAssistantMessage(anthropicSDK.NewTextBlock(h.Text)))
		} else {
			msgs = append(msgs, anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(h.Text)))
		}
	}
	msgs = append(msgs, anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(userTurn)))
	return msgs
}
