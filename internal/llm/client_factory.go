package llm

import (
	"fmt"
	"os"
	"time"
)

// Provider identifies a model backend family.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderMoonshot  Provider = "moonshot"
)

// envKeys maps providers to their API key environment variables, in
// detection priority order.
var envKeys = []struct {
	envVar   string
	provider Provider
}{
	{"ANTHROPIC_API_KEY", ProviderAnthropic},
	{"OPENAI_API_KEY", ProviderOpenAI},
	{"GEMINI_API_KEY", ProviderGemini},
	{"DEEPSEEK_API_KEY", ProviderDeepSeek},
	{"MOONSHOT_API_KEY", ProviderMoonshot},
}

// APIKeyFromEnv returns the configured key for a provider, empty when unset.
func APIKeyFromEnv(provider Provider) string {
	for _, p := range envKeys {
		if p.provider == provider {
			return os.Getenv(p.envVar)
		}
	}
	return ""
}

// DetectProvider finds the first provider with an API key in the
// environment. Priority: ANTHROPIC > OPENAI > GEMINI > DEEPSEEK > MOONSHOT.
func DetectProvider() (Provider, string, error) {
	for _, p := range envKeys {
		if key := os.Getenv(p.envVar); key != "" {
			return p.provider, key, nil
		}
	}
	return "", "", fmt.Errorf("no API key found; set one of: ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, DEEPSEEK_API_KEY, MOONSHOT_API_KEY")
}

// NewClient constructs a client for the given provider. Model, maxTokens
// and timeout are optional; zero values use provider defaults.
func NewClient(provider Provider, apiKey, model string, maxTokens int, timeout time.Duration) (LLMClient, error) {
	switch provider {
	case ProviderAnthropic:
		cfg := DefaultAnthropicConfig(apiKey)
		if model != "" {
			cfg.Model = model
		}
		if maxTokens > 0 {
			cfg.MaxTokens = maxTokens
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		return NewAnthropicClientWithConfig(cfg), nil

	case ProviderOpenAI:
		cfg := DefaultOpenAIConfig(apiKey)
		if model != "" {
			cfg.Model = model
		}
		if maxTokens > 0 {
			cfg.MaxTokens = maxTokens
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		return NewOpenAICompatibleClientWithConfig(cfg), nil

	case ProviderDeepSeek:
		cfg := DefaultOpenAIConfig(apiKey)
		cfg.BaseURL = "https://api.deepseek.com/v1"
		cfg.Model = "deepseek-chat"
		if model != "" {
			cfg.Model = model
		}
		if maxTokens > 0 {
			cfg.MaxTokens = maxTokens
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		return NewOpenAICompatibleClientWithConfig(cfg), nil

	case ProviderMoonshot:
		cfg := DefaultOpenAIConfig(apiKey)
		cfg.BaseURL = "https://api.moonshot.cn/v1"
		cfg.Model = "moonshot-v1-32k"
		if model != "" {
			cfg.Model = model
		}
		if maxTokens > 0 {
			cfg.MaxTokens = maxTokens
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		return NewOpenAICompatibleClientWithConfig(cfg), nil

	case ProviderGemini:
		cfg := DefaultGeminiConfig(apiKey)
		if model != "" {
			cfg.Model = model
		}
		if maxTokens > 0 {
			cfg.MaxOutputTokens = maxTokens
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		return NewGeminiClientWithConfig(cfg), nil
	}

	return nil, fmt.Errorf("unknown provider %q", provider)
}
