package ai

import (
	"context"
	"log"
	"net"
	"strings"
)

// FallbackService routes categorization to Ollama first and falls back to
// deterministic rules when the local model is unreachable or misbehaving.
type FallbackService struct {
	ollama *OllamaService
	rules  *RuleService
}

// NewFallbackService creates a new fallback service
func NewFallbackService(ollama *OllamaService) *FallbackService {
	return &FallbackService{
		ollama: ollama,
		rules:  NewRuleService(),
	}
}

func (s *FallbackService) Categorize(ctx context.Context, msg MessageSnapshot, categories []string) (string, error) {
	category, err := s.ollama.Categorize(ctx, msg, categories)
	if err == nil {
		return category, nil
	}
	if !isConnectionError(err) {
		log.Printf("[AI] Ollama categorization failed: %v, using rules", err)
	}
	return s.rules.Categorize(ctx, msg, categories)
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
