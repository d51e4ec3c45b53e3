package ai

import "context"

// MessageSnapshot is the slice of a mail item the categorizer looks at.
type MessageSnapshot struct {
	Subject string
	From    string
	Snippet string
	Labels  []string
}

// CategorizerService assigns a mail item to one of the candidate categories.
// Implement this interface to add new AI providers (Ollama, OpenAI, etc.)
type CategorizerService interface {
	// Categorize picks one name from categories for the message. The first
	// candidate is the default and must be returned when no better match
	// exists.
	Categorize(ctx context.Context, msg MessageSnapshot, categories []string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderRules  ProviderType = "rules"
	ProviderAuto   ProviderType = "auto"
)
