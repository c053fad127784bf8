// Package provider implements model.Provider for the supported LLM backends.
//
// Four backends are supported: Anthropic, OpenAI, OpenRouter (OpenAI-compatible)
// and local Ollama. The crew engine only sees model.Provider; all conversions
// between the provider-agnostic types and each SDK's types happen at this
// package's boundary (see conversions.go and the per-backend files).
//
// The fallback layer (fallback.go) composes two providers into one resilient
// invoker: a configured primary and Ollama as the local secondary.
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string // default model; ChatRequest.Model overrides per call
	APIKey  string // unused for Ollama
}
