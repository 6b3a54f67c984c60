package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for the gemini
// provider.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient generates story text with Google's Gemini API.
type GeminiClient struct {
	models  *genai.Models
	model   string
	cfg     *genai.GenerateContentConfig
	timeout time.Duration
	log     *slog.Logger
}

// NewGeminiClient creates a Gemini client for cfg. BaseURL, when set,
// overrides the API endpoint.
func NewGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	gi, err := genai.NewClient(ctx, geminiClientConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	contentCfg := &genai.GenerateContentConfig{
		Temperature: cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		contentCfg.MaxOutputTokens = int32(cfg.MaxTokens) //nolint:gosec // bounded by config validation
	}

	log := logger.With("component", "gemini_client")
	log.Info("Gemini client initialized successfully", "model", cfg.Model)

	return &GeminiClient{
		models:  gi.Models,
		model:   cfg.Model,
		cfg:     contentCfg,
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

// geminiClientConfig builds the genai configuration. An empty BaseURL keeps
// the SDK's own endpoint.
func geminiClientConfig(cfg Config) *genai.ClientConfig {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	return clientCfg
}

// Generate sends prompt as a single user turn and returns the trimmed text of
// the response.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	c.log.DebugContext(ctx, "Sending prompt", "model", c.model, "prompt", prompt)

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), c.cfg)
	if err != nil {
		genErr := classifyGeminiError(err)
		c.log.ErrorContext(ctx, "Gemini generation failed", "kind", genErr.Kind, "error", err)
		return "", genErr
	}

	text, genErr := geminiText(resp)
	if genErr != nil {
		c.log.ErrorContext(ctx, "Gemini returned an unusable response", "kind", genErr.Kind, "error", genErr)
		return "", genErr
	}
	return text, nil
}

func classifyGeminiError(err error) *GenerationError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return geminiAPIError(apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return geminiAPIError(apiErrPtr.Code, apiErrPtr.Message, err)
	}
	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &GenerationError{Kind: KindTransport, Message: msg, Err: err}
}

func geminiAPIError(code int, message string, err error) *GenerationError {
	if message == "" {
		message = "unknown error"
	}
	return &GenerationError{Kind: KindBadStatus, Message: message, Status: code, Err: err}
}

func geminiText(resp *genai.GenerateContentResponse) (string, *GenerationError) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &GenerationError{Kind: KindUnexpectedShape, Message: "no candidates returned"}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := "empty completion"
		if fr := resp.Candidates[0].FinishReason; fr != "" {
			reason = fmt.Sprintf("empty completion (finish reason %s)", fr)
		}
		return "", &GenerationError{Kind: KindUnexpectedShape, Message: reason}
	}
	return text, nil
}
