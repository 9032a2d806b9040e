package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/internal/domain/prompt"
	"github.com/okian/talentlens/pkg/logger"
	"github.com/okian/talentlens/pkg/metrics"
)

// Default invocation settings.
const (
	DefaultMaxTokens      = 1024
	DefaultTemperature    = 0.2
	DefaultTimeout        = 30 * time.Second
	DefaultRetryBaseDelay = 500 * time.Millisecond
	retryJitter           = 0.3
)

// Config is resolved once when the Invoker is built.
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	BaseURL        string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Generator produces fallback payloads without a model.
type Generator interface {
	Generate(subject model.Subject, params model.Parameters, source model.Source) model.Payload
}

// Outcome is the result of one invocation. Exactly one of Reply or Fallback
// is meaningful: Fallback is set when the model was not or could not be used.
type Outcome struct {
	Reply    string
	Fallback *model.Payload
	Provider string
	Model    string
	Attempts int
	Err      error
}

// Option applies a configuration option to the Invoker.
type Option func(*Invoker)

// WithProvider replaces the provider built from Config.
func WithProvider(p Provider) Option {
	return func(i *Invoker) {
		if p != nil {
			i.provider = p
		}
	}
}

// WithHTTPClient sets the HTTP client used by providers built from Config.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Invoker) {
		if c != nil {
			i.httpClient = c
		}
	}
}

// WithLogger sets the invoker logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.log = l
		}
	}
}

// Invoker calls the configured provider and degrades to the generator when no
// credential is set or the call fails. It never returns an error to callers.
type Invoker struct {
	cfg        Config
	provider   Provider
	generator  Generator
	httpClient *http.Client
	log        logger.Logger
}

// NewInvoker resolves cfg into a provider. An unknown provider name with a
// credential present is a configuration error.
func NewInvoker(cfg Config, gen Generator, opts ...Option) (*Invoker, error) {
	if gen == nil {
		return nil, errors.New("llm: generator is required")
	}
	cfg = withDefaults(cfg)
	i := &Invoker{cfg: cfg, generator: gen, log: logger.Nop()}
	for _, opt := range opts {
		opt(i)
	}
	if i.provider != nil || strings.TrimSpace(cfg.APIKey) == "" {
		return i, nil
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		i.provider = NewOpenAIProvider(cfg, i.httpClient)
	case ProviderAnthropic:
		i.provider = NewAnthropicProvider(cfg, i.httpClient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return i, nil
}

func withDefaults(cfg Config) Config {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return cfg
}

// Live reports whether a provider is configured.
func (i *Invoker) Live() bool { return i.provider != nil }

// ProviderName returns the configured provider, or "mock".
func (i *Invoker) ProviderName() string {
	if i.provider == nil {
		return string(model.SourceMock)
	}
	return i.provider.Name()
}

// ModelName returns the configured model id when a provider is live.
func (i *Invoker) ModelName() string {
	if i.provider == nil {
		return ""
	}
	return i.cfg.Model
}

// Invoke sends p to the provider. Without a provider it returns a mock
// payload; on failure it returns an error-fallback payload and records why.
func (i *Invoker) Invoke(ctx context.Context, subject model.Subject, params model.Parameters, p prompt.Prompt) Outcome {
	out := Outcome{Provider: i.ProviderName(), Model: i.ModelName()}
	if i.provider == nil {
		fb := i.generator.Generate(subject, params, model.SourceMock)
		out.Fallback = &fb
		return out
	}

	name := i.provider.Name()
	op := func() (string, error) {
		out.Attempts++
		if out.Attempts > 1 {
			metrics.RecordModelRetry(name)
		}
		callCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()

		start := time.Now()
		reply, err := i.provider.Complete(callCtx, p)
		if err == nil && strings.TrimSpace(reply) == "" {
			err = &ProviderError{Provider: name, Err: ErrEmptyReply}
		}
		if err != nil {
			metrics.RecordModelInvocation(name, "error", time.Since(start))
			metrics.RecordModelError(name, reason(err))
			i.log.Warn(ctx, "model call failed",
				logger.String("provider", name),
				logger.Int("attempt", out.Attempts),
				logger.String("reason", reason(err)),
				logger.Error(err),
			)
			if ctx.Err() != nil || !isRetryable(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		metrics.RecordModelInvocation(name, "ok", time.Since(start))
		return reply, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.cfg.RetryBaseDelay
	b.RandomizationFactor = retryJitter

	reply, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(i.cfg.MaxRetries+1)),
	)
	if err != nil {
		out.Err = err
		fb := i.generator.Generate(subject, params, model.SourceErrorFallback)
		out.Fallback = &fb
		i.log.Warn(ctx, "model unavailable, using fallback analysis",
			logger.String("provider", name),
			logger.String("subject", subject.ID()),
			logger.Int("attempts", out.Attempts),
		)
		return out
	}
	out.Reply = reply
	return out
}
