package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	pkgerrors "github.com/pkg/errors"

	"github.com/okian/talentlens/internal/domain/prompt"
)

// AnthropicProvider calls the Anthropic Messages API through the official SDK.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a provider for the Anthropic API. SDK retries
// are disabled; the Invoker owns the retry policy.
func NewAnthropicProvider(cfg Config, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Complete sends the prompt pair and joins the text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, pr prompt.Prompt) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: pr.System}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(pr.User))},
		Temperature: anthropic.Float(p.temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: ProviderAnthropic, StatusCode: apiErr.StatusCode, Err: pkgerrors.Wrap(err, "messages request")}
		}
		return "", &ProviderError{Provider: ProviderAnthropic, Err: pkgerrors.Wrap(err, "messages request")}
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", &ProviderError{Provider: ProviderAnthropic, StatusCode: http.StatusOK, Err: ErrEmptyReply}
	}
	return b.String(), nil
}
