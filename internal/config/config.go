// Package config loads process-wide configuration for the voice
// orchestrator from the environment. Most values here are fallbacks: a
// live call is actually governed by the AgentConfig snapshot attached to
// it, but the env vars give sane defaults for local development and act
// as the source AgentConfig is seeded from in the absence of a richer
// agent-registry lookup (out of scope for this service; see Non-goals).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// Config holds all configuration for the voice orchestrator service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// PublicBaseURL is the service's public base URL; the carrier connects
	// to wss://<this-host>/streams/carrier. Optional, and no component
	// reads it.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	// Provider selection (spec.md §6). A concrete AgentConfig overrides
	// these per call.
	STTProvider string `envconfig:"STT_PROVIDER" default:"deepgram"` // deepgram, assemblyai, soniox
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"openai"`   // openai, groq, grok, anthropic, gemini
	TTSProvider string `envconfig:"TTS_PROVIDER" default:"cartesia"` // cartesia, elevenlabs, hume

	// Deepgram STT
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// AssemblyAI STT
	AssemblyAIAPIKey string `envconfig:"ASSEMBLYAI_API_KEY"`

	// OpenAI-compatible chat-completions LLM (also backs groq/grok via
	// base URL override, since they share the OpenAI wire format).
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	GroqAPIKey  string `envconfig:"GROQ_API_KEY"`
	GroqBaseURL string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	GroqModel   string `envconfig:"GROQ_MODEL" default:"llama-3.1-70b-versatile"`

	GrokAPIKey  string `envconfig:"GROK_API_KEY"`
	GrokBaseURL string `envconfig:"GROK_BASE_URL" default:"https://api.x.ai/v1"`
	GrokModel   string `envconfig:"GROK_MODEL" default:"grok-2-latest"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-sonnet-20241022"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	// Cartesia TTS
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`

	// ElevenLabs TTS
	ElevenLabsAPIKey string `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsVoice  string `envconfig:"ELEVENLABS_VOICE_ID" default:""`
	ElevenLabsModel  string `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_turbo_v2_5"`

	// Twilio REST actions (DTMF gatekeeper bypass, forced hangup)
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`

	// Call-State Store (spec.md §4.7) — cross-process tier
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Persisted call log / transcript (spec.md §6)
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Audio processing
	AudioBufferSize int `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"` // in bytes; no component reads it

	// Turn Orchestrator timing (spec.md §4.6), process-wide defaults; an
	// AgentConfig overrides these per call.
	EndpointingMS          int   `envconfig:"ENDPOINTING_MS" default:"800"`
	CoalescingWindowMS     int   `envconfig:"COALESCING_WINDOW_MS" default:"700"`
	WordCountThreshold     int   `envconfig:"BARGE_IN_WORD_COUNT_THRESHOLD" default:"3"`
	InterruptionCooldownMS int   `envconfig:"INTERRUPTION_COOLDOWN_MS" default:"1500"`
	SilenceCheckInMS       []int `envconfig:"SILENCE_CHECK_IN_MS" default:"15000,30000,45000"`
	MaxCheckIns            int   `envconfig:"MAX_CHECK_INS" default:"3"`
	MaxCallSeconds         int   `envconfig:"MAX_CALL_SECONDS" default:"1800"`

	// Voicemail / AMD
	VoicemailDetectionEnabled bool   `envconfig:"VOICEMAIL_DETECTION_ENABLED" default:"true"`
	UseTelnyxAMD              bool   `envconfig:"USE_CARRIER_AMD" default:"true"`
	AMDMode                   string `envconfig:"AMD_MODE" default:"premium"`
	AMDWaitBeforeGreetingMS   int    `envconfig:"AMD_WAIT_BEFORE_GREETING_MS" default:"1200"`

	// Start-node policy
	WhoSpeaksFirst   string `envconfig:"WHO_SPEAKS_FIRST" default:"ai"`
	SilenceTimeoutMS int    `envconfig:"SILENCE_TIMEOUT_MS" default:"8000"`

	// Resilience
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"`
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"` // spec.md §4.3: up to 3 reconnects
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from the environment, loading a .env file
// first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (containerized deployments).
func LoadFromEnv() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks that the credentials the selected providers need are
// actually present. Credentials for non-selected providers are not
// required, since an operator may only have signed up with one vendor
// per concern.
func (c *Config) validate() error {
	switch c.STTProvider {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
	case "assemblyai":
		if c.AssemblyAIAPIKey == "" {
			return fmt.Errorf("ASSEMBLYAI_API_KEY is required when STT_PROVIDER=assemblyai")
		}
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "groq":
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required when LLM_PROVIDER=groq")
		}
	case "grok":
		if c.GrokAPIKey == "" {
			return fmt.Errorf("GROK_API_KEY is required when LLM_PROVIDER=grok")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	}

	switch c.TTSProvider {
	case "cartesia":
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required when TTS_PROVIDER=cartesia")
		}
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
		}
	}

	return nil
}

// DefaultAgentConfig seeds an AgentConfig from the process-wide env
// defaults, used until a richer agent-registry lookup exists (see
// Non-goals). agentID and the prompt fields come from the caller since
// they're naturally per-deployment rather than env-wide.
func (c *Config) DefaultAgentConfig(agentID, systemPrompt, firstGreeting, checkInPrompt, fallbackApologyText string) calltypes.AgentConfig {
	return calltypes.AgentConfig{
		AgentID: agentID,

		SystemPrompt:        systemPrompt,
		FirstGreeting:       firstGreeting,
		CheckInPrompt:       checkInPrompt,
		FallbackApologyText: fallbackApologyText,

		STTProvider: calltypes.STTProviderName(c.STTProvider),
		LLMProvider: calltypes.LLMProviderName(c.LLMProvider),
		LLMModel:    llmModelFor(c),
		TTSProvider: calltypes.TTSProviderName(c.TTSProvider),
		VoiceID:     ttsVoiceFor(c),
		TTSModel:    ttsModelFor(c),

		EndpointingMS:      c.EndpointingMS,
		CoalescingWindowMS: c.CoalescingWindowMS,

		SilenceCheckInMS: c.SilenceCheckInMS,
		MaxCheckIns:      c.MaxCheckIns,
		MaxCallSeconds:   c.MaxCallSeconds,

		VoicemailDetectionEnabled: c.VoicemailDetectionEnabled,
		UseTelnyxAMD:              c.UseTelnyxAMD,
		AMDMode:                   calltypes.AMDMode(c.AMDMode),
		AMDWaitBeforeGreetingMS:   c.AMDWaitBeforeGreetingMS,

		WhoSpeaksFirst:   calltypes.WhoSpeaksFirst(c.WhoSpeaksFirst),
		SilenceTimeoutMS: c.SilenceTimeoutMS,

		WordCountThreshold:     c.WordCountThreshold,
		InterruptionCooldownMS: c.InterruptionCooldownMS,
	}
}

func llmModelFor(c *Config) string {
	switch c.LLMProvider {
	case "groq":
		return c.GroqModel
	case "grok":
		return c.GrokModel
	case "anthropic":
		return c.AnthropicModel
	case "gemini":
		return c.GeminiModel
	default:
		return c.OpenAIModel
	}
}

func ttsVoiceFor(c *Config) string {
	if c.TTSProvider == "elevenlabs" {
		return c.ElevenLabsVoice
	}
	return c.CartesiaVoiceID
}

func ttsModelFor(c *Config) string {
	if c.TTSProvider == "elevenlabs" {
		return c.ElevenLabsModel
	}
	return c.CartesiaModelID
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
