package ai

import (
	"context"
	"strings"
)

// RuleService is a deterministic categorizer. It leans on the provider's own
// classification labels when present and otherwise matches category names
// against the subject and sender. It never fails, which makes it the safety
// net behind the LLM-backed providers.
type RuleService struct{}

func NewRuleService() *RuleService {
	return &RuleService{}
}

// labelHints maps provider classification labels to category names a user is
// likely to have configured.
var labelHints = map[string]string{
	"CATEGORY_PROMOTIONS": "promotions",
	"CATEGORY_SOCIAL":     "social",
	"CATEGORY_UPDATES":    "updates",
	"CATEGORY_FORUMS":     "forums",
}

func (s *RuleService) Categorize(_ context.Context, msg MessageSnapshot, categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}

	allowed := make(map[string]string, len(categories))
	for _, c := range categories {
		allowed[strings.ToLower(c)] = c
	}

	for _, label := range msg.Labels {
		if hint, ok := labelHints[label]; ok {
			if name, ok := allowed[hint]; ok {
				return name, nil
			}
		}
	}

	haystack := strings.ToLower(msg.Subject + " " + msg.From + " " + msg.Snippet)
	for _, c := range categories[1:] {
		if strings.Contains(haystack, strings.ToLower(c)) {
			return c, nil
		}
	}
	return categories[0], nil
}
