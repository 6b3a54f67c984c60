// Package backend implements the story generation clients that turn a prompt
// into narrated text using a remote language model.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Client generates story text for a single prompt. Implementations make
// exactly one attempt per call and report every failure as a *GenerationError.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Kind classifies a generation failure.
type Kind string

// Failure kinds.
const (
	KindTransport       Kind = "transport"
	KindBadStatus       Kind = "bad_status"
	KindMalformedBody   Kind = "malformed_body"
	KindUnexpectedShape Kind = "unexpected_shape"
)

// GenerationError is the error returned by every Client on failure.
type GenerationError struct {
	Kind    Kind
	Message string
	// Status is the HTTP status code when one was received.
	Status int
	Err    error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Summary is the short, user-facing form of the error. It never includes the
// wrapped cause.
func (e *GenerationError) Summary() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Provider names accepted by NewClient.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Config holds the per-deployment generation parameters.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float32
	Timeout     time.Duration
}

// NewClient returns the Client for cfg.Provider.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case ProviderOpenRouter, "":
		return NewOpenRouterClient(cfg, nil, logger)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
