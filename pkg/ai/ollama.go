package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaService implements CategorizerService using Ollama local LLM
type OllamaService struct {
	getBaseURL func() string // Dynamic getter for BaseURL
	getModel   func() string // Dynamic getter for Model
	client     *http.Client
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaService{
		getBaseURL: func() string { return baseURL },
		getModel:   func() string { return model },
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// NewOllamaServiceWithGetters creates a new Ollama service with dynamic getters
func NewOllamaServiceWithGetters(getBaseURL, getModel func() string) *OllamaService {
	return &OllamaService{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Categorize implements CategorizerService
func (o *OllamaService) Categorize(ctx context.Context, msg MessageSnapshot, categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}
	if len(categories) == 1 {
		return categories[0], nil
	}

	url := o.getBaseURL() + "/api/generate"

	prompt := fmt.Sprintf(`You sort mail into folders. Pick exactly one folder name from this list:
%s

Reply with the folder name only, nothing else. If unsure, reply %q.

Subject: %s
From: %s
Preview: %s

Folder:`, strings.Join(categories, ", "), categories[0], msg.Subject, msg.From, msg.Snippet)

	payload := map[string]interface{}{
		"model":  o.getModel(),
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.1,
			"num_predict": 20,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(parsed.Response))
	for _, c := range categories {
		if strings.EqualFold(answer, c) {
			return c, nil
		}
	}
	// Model answered off-list, fall back to the default.
	return categories[0], nil
}
