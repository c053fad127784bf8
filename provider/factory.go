package provider

import (
	"fmt"
	"os"

	"crewtui/config"
	"crewtui/model"
)

// NewProvider creates a provider from configuration. This is the single
// construction point for all backends.
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// Unknown IDs pass through as-is so NewProvider can report them.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}

// apiKeyEnvVar maps a provider type to the environment variable carrying its
// API key. Keys live in the environment only, never in config files.
func apiKeyEnvVar(t ProviderType) string {
	switch t {
	case ProviderTypeAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderTypeOpenAI:
		return "OPENAI_API_KEY"
	case ProviderTypeOpenRouter:
		return "OPENROUTER_API_KEY"
	}
	return ""
}

// NewPrimary builds the configured primary provider, reading its API key from
// the environment.
func NewPrimary(appCfg *config.Config) (model.Provider, error) {
	t := MapProviderIDToType(appCfg.PrimaryProvider)

	cfg := Config{Type: t}
	switch t {
	case ProviderTypeAnthropic:
		cfg.BaseURL = appCfg.Anthropic.BaseURL
		cfg.Model = appCfg.Anthropic.Model
	case ProviderTypeOpenAI:
		cfg.BaseURL = appCfg.OpenAI.BaseURL
		cfg.Model = appCfg.OpenAI.Model
	case ProviderTypeOpenRouter:
		cfg.BaseURL = appCfg.OpenRouter.BaseURL
		cfg.Model = appCfg.OpenRouter.Model
	case ProviderTypeOllama:
		cfg.BaseURL = appCfg.Ollama.Host
		cfg.Model = appCfg.Ollama.ChatModel
	}

	if envVar := apiKeyEnvVar(t); envVar != "" {
		cfg.APIKey = os.Getenv(envVar)
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s is not set (required for provider %q)", envVar, appCfg.PrimaryProvider)
		}
	}

	return NewProvider(cfg)
}

// NewSecondary builds the local Ollama provider used as the fallback target.
// The concrete type is returned so callers can reach Ollama-only surface like
// ListModels.
func NewSecondary(appCfg *config.Config) (*OllamaProvider, error) {
	return NewOllamaProvider(appCfg.Ollama.Host, appCfg.Ollama.ChatModel)
}
