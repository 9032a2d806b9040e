package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for model invocation errors.
var (
	ErrEmptyReply      = errors.New("model reply has no text content")
	ErrUnknownProvider = errors.New("unknown model provider")
	ErrMalformedReply  = errors.New("malformed provider response")
)

// ProviderError is a failed call to a model provider. StatusCode is zero when
// no HTTP response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// isRetryable reports whether another attempt may succeed: rate limits, 5xx
// and transport failures. Cancellation and other 4xx are final.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyReply) || errors.Is(err, ErrMalformedReply) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.StatusCode != 0 {
		return perr.StatusCode == http.StatusTooManyRequests || perr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// reason buckets err for the model error metric.
func reason(err error) string {
	var perr *ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyReply):
		return "empty_reply"
	case errors.Is(err, ErrMalformedReply):
		return "malformed_reply"
	case errors.As(err, &perr) && (perr.StatusCode == http.StatusUnauthorized || perr.StatusCode == http.StatusForbidden):
		return "auth"
	case errors.As(err, &perr) && perr.StatusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case errors.As(err, &perr) && perr.StatusCode >= http.StatusInternalServerError:
		return "server_error"
	case errors.As(err, &perr) && perr.StatusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "transport"
	}
}
