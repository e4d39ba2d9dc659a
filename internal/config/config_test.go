package config

import (
	"os"
	"testing"
)

func setDefaultProviderEnv(t *testing.T) {
	t.Helper()
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("OPENAI_API_KEY", "test-openai-key")
	os.Setenv("CARTESIA_API_KEY", "test-cartesia-key")
	t.Cleanup(func() {
		os.Unsetenv("DEEPGRAM_API_KEY")
		os.Unsetenv("OPENAI_API_KEY")
		os.Unsetenv("CARTESIA_API_KEY")
	})
}

func TestLoad(t *testing.T) {
	setDefaultProviderEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.CartesiaAPIKey != "test-cartesia-key" {
		t.Errorf("Expected CartesiaAPIKey 'test-cartesia-key', got '%s'", cfg.CartesiaAPIKey)
	}
}

func TestLoad_MissingRequiredForSelectedProvider(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("CARTESIA_API_KEY")
	os.Unsetenv("STT_PROVIDER")
	os.Unsetenv("LLM_PROVIDER")
	os.Unsetenv("TTS_PROVIDER")

	_, err := Load()
	if err == nil {
		t.Error("expected error when the default providers' credentials are missing")
	}
}

func TestLoad_NonSelectedProviderCredentialsNotRequired(t *testing.T) {
	os.Setenv("STT_PROVIDER", "assemblyai")
	os.Setenv("ASSEMBLYAI_API_KEY", "test-key")
	os.Setenv("LLM_PROVIDER", "anthropic")
	os.Setenv("ANTHROPIC_API_KEY", "test-key")
	os.Setenv("TTS_PROVIDER", "elevenlabs")
	os.Setenv("ELEVENLABS_API_KEY", "test-key")
	defer func() {
		os.Unsetenv("STT_PROVIDER")
		os.Unsetenv("ASSEMBLYAI_API_KEY")
		os.Unsetenv("LLM_PROVIDER")
		os.Unsetenv("ANTHROPIC_API_KEY")
		os.Unsetenv("TTS_PROVIDER")
		os.Unsetenv("ELEVENLABS_API_KEY")
	}()

	// DEEPGRAM_API_KEY, OPENAI_API_KEY, CARTESIA_API_KEY intentionally unset.
	if _, err := Load(); err != nil {
		t.Fatalf("Load() failed with a non-default provider selection: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setDefaultProviderEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.DeepgramLanguage != "en" {
		t.Errorf("Expected default DeepgramLanguage 'en', got '%s'", cfg.DeepgramLanguage)
	}
	if cfg.CartesiaVoiceID != "sonic-english" {
		t.Errorf("Expected default CartesiaVoiceID 'sonic-english', got '%s'", cfg.CartesiaVoiceID)
	}
	if cfg.CartesiaModelID != "sonic" {
		t.Errorf("Expected default CartesiaModelID 'sonic', got '%s'", cfg.CartesiaModelID)
	}
	if cfg.AudioBufferSize != 8192 {
		t.Errorf("Expected default AudioBufferSize 8192, got %d", cfg.AudioBufferSize)
	}
	if cfg.STTProvider != "deepgram" {
		t.Errorf("Expected default STTProvider 'deepgram', got '%s'", cfg.STTProvider)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("Expected default LLMProvider 'openai', got '%s'", cfg.LLMProvider)
	}
	if cfg.TTSProvider != "cartesia" {
		t.Errorf("Expected default TTSProvider 'cartesia', got '%s'", cfg.TTSProvider)
	}
}

func TestLoad_TurnOrchestratorDefaults(t *testing.T) {
	setDefaultProviderEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.EndpointingMS != 800 {
		t.Errorf("Expected default EndpointingMS 800, got %d", cfg.EndpointingMS)
	}
	if cfg.CoalescingWindowMS != 700 {
		t.Errorf("Expected default CoalescingWindowMS 700, got %d", cfg.CoalescingWindowMS)
	}
	if cfg.WordCountThreshold != 3 {
		t.Errorf("Expected default WordCountThreshold 3, got %d", cfg.WordCountThreshold)
	}
	if len(cfg.SilenceCheckInMS) != 3 {
		t.Fatalf("expected 3 silence check-in thresholds, got %d", len(cfg.SilenceCheckInMS))
	}
	if cfg.SilenceCheckInMS[0] != 15000 || cfg.SilenceCheckInMS[2] != 45000 {
		t.Errorf("unexpected SilenceCheckInMS defaults: %v", cfg.SilenceCheckInMS)
	}
	if cfg.MaxCheckIns != 3 {
		t.Errorf("Expected default MaxCheckIns 3, got %d", cfg.MaxCheckIns)
	}
	if cfg.WhoSpeaksFirst != "ai" {
		t.Errorf("Expected default WhoSpeaksFirst 'ai', got '%s'", cfg.WhoSpeaksFirst)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setDefaultProviderEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	if v := GetEnv("TEST_KEY", "default"); v != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", v)
	}
	if v := GetEnv("NON_EXISTENT_KEY", "default"); v != "default" {
		t.Errorf("Expected 'default', got '%s'", v)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setDefaultProviderEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryInitialBackoff != 100 {
		t.Errorf("Expected default RetryInitialBackoff 100, got %d", cfg.RetryInitialBackoff)
	}
	if cfg.ReconnectMaxAttempts != 3 {
		t.Errorf("Expected default ReconnectMaxAttempts 3, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setDefaultProviderEnv(t)
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
