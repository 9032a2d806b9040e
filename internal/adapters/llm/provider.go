// Package llm adapts language-model providers to the analysis pipeline.
package llm

import (
	"context"

	"github.com/okian/talentlens/internal/domain/prompt"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Provider sends a compiled prompt to a model and returns the raw reply text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}
