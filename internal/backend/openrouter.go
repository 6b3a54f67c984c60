package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const maxResponseSize = 1 << 20

// Provider defaults for OpenRouter.
const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "deepseek/deepseek-chat-v3-0324:free"
)

// OpenRouterClient talks to an OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	sdkConfig openai.ClientConfig
	doer      openai.HTTPDoer
	model     string
	maxTokens int
	temp      float32
	timeout   time.Duration
	log       *slog.Logger
}

// NewOpenRouterClient creates a client for cfg. A nil httpClient uses a new
// http.Client without its own timeout; calls are bounded by cfg.Timeout.
func NewOpenRouterClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend API key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	sdkConfig.BaseURL = strings.TrimRight(baseURL, "/")

	// The SDK omits a zero temperature, so an explicit 0 is sent as the
	// smallest positive value.
	var temp float32
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
		if temp == 0 {
			temp = math.SmallestNonzeroFloat32
		}
	}

	log := logger.With("component", "openrouter_client")
	log.Info("OpenRouter client initialized", "model", model, "base_url", sdkConfig.BaseURL)

	return &OpenRouterClient{
		sdkConfig: sdkConfig,
		doer:      httpClient,
		model:     model,
		maxTokens: cfg.MaxTokens,
		temp:      temp,
		timeout:   cfg.Timeout,
		log:       log,
	}, nil
}

// Generate sends prompt as a single user message and returns the trimmed
// content of the first choice.
func (c *OpenRouterClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	c.log.DebugContext(ctx, "Sending prompt", "model", c.model, "prompt", prompt)

	rec := &recordingDoer{next: c.doer}
	sdkConfig := c.sdkConfig
	sdkConfig.HTTPClient = rec
	client := openai.NewClientWithConfig(sdkConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temp,
	})

	c.log.DebugContext(ctx, "Received response", "status", rec.status, "body", string(rec.body))

	text, genErr := classifyCompletion(resp, err, rec.status, rec.body)
	if genErr != nil {
		c.log.ErrorContext(ctx, "Backend request failed",
			"kind", genErr.Kind, "status", genErr.Status, "error", genErr)
		return "", genErr
	}
	return text, nil
}

// recordingDoer keeps the raw response of a single call. The SDK drops an
// error object sent with a 2xx status, and error bodies whose "error" is a
// bare string; both are read back from the recorded body.
type recordingDoer struct {
	next   openai.HTTPDoer
	status int
	body   []byte
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
	}
	d.status = resp.StatusCode
	d.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// classifyCompletion turns the SDK result into either the generated text or a
// classified error. It is the only place that inspects response shape.
func classifyCompletion(resp openai.ChatCompletionResponse, err error, status int, body []byte) (string, *GenerationError) {
	if err != nil {
		return "", classifySDKError(err, status, body)
	}

	if resp.Choices == nil {
		return "", &GenerationError{Kind: KindBadStatus, Message: bodyErrorMessage(body), Status: status}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Kind: KindUnexpectedShape, Message: "no choices returned", Status: status}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &GenerationError{Kind: KindUnexpectedShape, Message: "empty completion", Status: status}
	}
	return text, nil
}

func classifySDKError(err error, status int, body []byte) *GenerationError {
	var (
		apiErr    *openai.APIError
		reqErr    *openai.RequestError
		urlErr    *url.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if msg == "" {
			msg = bodyErrorMessage(body)
		}
		return &GenerationError{Kind: KindBadStatus, Message: msg, Status: apiErr.HTTPStatusCode, Err: err}
	case errors.As(err, &reqErr):
		return &GenerationError{Kind: KindBadStatus, Message: bodyErrorMessage(body), Status: reqErr.HTTPStatusCode, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &GenerationError{Kind: KindTransport, Message: "request timed out", Status: status, Err: err}
	case errors.As(err, &urlErr):
		return &GenerationError{Kind: KindTransport, Message: "request failed", Err: err}
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &GenerationError{Kind: KindMalformedBody, Message: "failed to parse response", Status: status, Err: err}
	case errors.As(err, &typeErr):
		return &GenerationError{Kind: KindUnexpectedShape, Message: "response does not match the chat completion format", Status: status, Err: err}
	default:
		return &GenerationError{Kind: KindTransport, Message: "request failed", Status: status, Err: err}
	}
}

// bodyErrorMessage returns the backend-reported message of body, or
// "unknown error".
func bodyErrorMessage(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if msg := errorMessage(env.Error); msg != "" {
			return msg
		}
	}
	return "unknown error"
}

// errorMessage extracts the message from an error field that is either
// {"message": "..."} or a bare string.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return ""
}
