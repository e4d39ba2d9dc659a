package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	openaiClient "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
	"github.com/lexiqai/voice-orchestrator/internal/config"
	"github.com/lexiqai/voice-orchestrator/internal/observability"
	"github.com/lexiqai/voice-orchestrator/internal/resilience"
	"github.com/rs/zerolog"
)

// OpenAISession implements Session against the OpenAI chat-completions API.
// Because Groq and xAI Grok both expose an OpenAI-compatible wire format,
// this same type backs all three vendors by pointing BaseURL at each
// provider's endpoint (spec.md DOMAIN STACK).
type OpenAISession struct {
	client         *openaiClient.Client
	model          string
	vendor         string
	log            zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewOpenAISession builds a session for OpenAI itself.
func NewOpenAISession(cfg *config.Config, log zerolog.Logger) *OpenAISession {
	return newOpenAISession("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg, log)
}

// NewGroqSession builds a session backed by Groq's OpenAI-compatible endpoint.
func NewGroqSession(cfg *config.Config, log zerolog.Logger) *OpenAISession {
	return newOpenAISession("groq", cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, cfg, log)
}

// NewGrokSession builds a session backed by xAI Grok's OpenAI-compatible endpoint.
func NewGrokSession(cfg *config.Config, log zerolog.Logger) *OpenAISession {
	return newOpenAISession("grok", cfg.GrokAPIKey, cfg.GrokBaseURL, cfg.GrokModel, cfg, log)
}

func newOpenAISession(vendor, apiKey, baseURL, model string, cfg *config.Config, log zerolog.Logger) *OpenAISession {
	clientConfig := openaiClient.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAISession{
		client: openaiClient.NewClientWithConfig(clientConfig),
		model:  model,
		vendor: vendor,
		log:    log.With().Str("vendor", vendor).Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			vendor,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Generate streams a chat completion and feeds completed sentences to sink.
func (o *OpenAISession) Generate(ctx context.Context, systemPrompt string, history []calltypes.TranscriptEntry, userTurn string, sink StreamSink) error {
	req := openaiClient.ChatCompletionRequest{
		Model:    o.model,
		Messages: buildOpenAIMessages(systemPrompt, history, userTurn),
		Stream:   true,
	}

	err := o.circuitBreaker.Call(func() error {
		return o.stream(ctx, req, sink)
	})

	observability.UpdateCircuitBreakerState(o.vendor, int(o.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(o.vendor)
	}
	return err
}

func (o *OpenAISession) stream(ctx context.Context, req openaiClient.ChatCompletionRequest, sink StreamSink) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: failed to open completion stream: %w", o.vendor, err)
	}
	defer stream.Close()

	acc := NewSentenceAccumulator(sink)
	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				acc.Finish()
				return nil
			}
			if ctx.Err() != nil {
				acc.Finish()
				return ctx.Err()
			}
			return fmt.Errorf("%s: stream recv failed: %w", o.vendor, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		acc.PushToken(resp.Choices[0].Delta.Content)
	}
}

func buildOpenAIMessages(systemPrompt string, history []calltypes.TranscriptEntry, userTurn string) []openaiClient.ChatCompletionMessage {
	msgs := make([]openaiClient.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openaiClient.ChatCompletionMessage{
			Role:    openaiClient.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, h := range history {
		role := openaiClient.ChatMessageRoleUser
		if h.Role == calltypes.RoleAssistant {
			role = openaiClient.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openaiClient.ChatCompletionMessage{Role: role, Content: h.Text})
	}
	msgs = append(msgs, openaiClient.ChatCompletionMessage{
		Role:    openaiClient.ChatMessageRoleUser,
		Content: userTurn,
	})
	return msgs
}
