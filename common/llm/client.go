package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Client performs a single structured completion. The reply is returned raw so
// callers can decide how strictly to parse it.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// IsRetryable reports whether a Chat error is worth retrying: rate limits,
// provider 5xx and transport failures are; 4xx and cancellation are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return retryableStatus(ctx, oaiErr.StatusCode, "openai")
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return retryableStatus(ctx, antErr.StatusCode, "anthropic")
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

func retryableStatus(ctx context.Context, status int, provider string) bool {
	switch {
	case status == 429:
		slog.WarnContext(ctx, "llm rate limited, will retry",
			"provider", provider,
			"status_code", status)
		return true
	case status >= 500:
		slog.WarnContext(ctx, "llm server error, will retry",
			"provider", provider,
			"status_code", status)
		return true
	default:
		slog.ErrorContext(ctx, "llm client error, not retryable",
			"provider", provider,
			"status_code", status)
		return false
	}
}
