package ai

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "ollama", "rules" or "auto"

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// NewCategorizerService creates a CategorizerService based on the config
// This is the factory function - switch AI provider by changing config.Provider
func NewCategorizerService(cfg Config) (CategorizerService, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	case ProviderRules:
		return NewRuleService(), nil
	default:
		return NewFallbackService(NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)), nil
	}
}
