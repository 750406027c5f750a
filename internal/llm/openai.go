package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// JSONModel serves calls that expect JSON; TextModel serves the rest.
	JSONModel string
	TextModel string
	Timeout   time.Duration

	// Transport retries for 429 and 5xx responses.
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultOpenAIConfig returns defaults for the public OpenAI API.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		JSONModel:   "gpt-4.1",
		TextModel:   "gpt-4.1",
		Timeout:     60 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  500 * time.Millisecond,
	}
}

// OpenAIClient implements Client over the chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	jsonModel  string
	textModel  string
	timeout    time.Duration
	httpClient *http.Client
	retrier    retry.Retry[string]
}

// NewOpenAIClient creates a client with default settings.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a client with custom config.
func NewOpenAIClientWithConfig(config OpenAIConfig) *OpenAIClient {
	def := DefaultOpenAIConfig(config.APIKey)
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.JSONModel == "" {
		config.JSONModel = def.JSONModel
	}
	if config.TextModel == "" {
		config.TextModel = config.JSONModel
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}

	return &OpenAIClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		jsonModel:  config.JSONModel,
		textModel:  config.TextModel,
		timeout:    config.Timeout,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier: retry.New[string](retry.Config{
			MaxAttempts:   config.MaxAttempts,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			// 4xx other than 429 will not succeed on a second try.
			NonRetryableErrors: []error{ErrRejected, ErrNoAPIKey},
		}),
	}
}

// Provider implements Client.
func (c *OpenAIClient) Provider() string { return "openai" }

// ModelFor returns the model name used for req.
func (c *OpenAIClient) ModelFor(req Request) string {
	if req.WantsJSON() {
		return c.jsonModel
	}
	return c.textModel
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	// Auto-apply timeout if the caller set no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body := openAIRequest{
		Model:       c.ModelFor(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if strings.TrimSpace(req.System) != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.Prompt})

	switch {
	case req.Schema != nil:
		body.ResponseFormat = &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   req.Schema.Name,
				Strict: req.Schema.Strict,
				Schema: req.Schema.Map(),
			},
		}
	case req.JSON:
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	return c.retrier.Do(ctx, func(ctx context.Context) (string, error) {
		out, err := c.post(ctx, body)
		// Some compatible servers reject json_schema; degrade to json_object once.
		if err != nil && isResponseFormatRejection(err) && body.ResponseFormat != nil && body.ResponseFormat.Type == "json_schema" {
			body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
			return c.post(ctx, body)
		}
		return out, err
	})
}

type statusError struct {
	code int
	body string
	kind error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.code, e.body)
}

func (e *statusError) Unwrap() error { return e.kind }

func isResponseFormatRejection(err error) bool {
	se, ok := err.(*statusError)
	if !ok || se.code != http.StatusBadRequest {
		return false
	}
	return strings.Contains(se.body, "response_format") || strings.Contains(se.body, "json_schema")
}

func (c *OpenAIClient) post(ctx context.Context, body openAIRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrRejected, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrRejected, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &statusError{code: resp.StatusCode, body: truncate(string(raw), 512), kind: ErrRateLimited}
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(string(raw), 512))
	case resp.StatusCode != http.StatusOK:
		return "", &statusError{code: resp.StatusCode, body: truncate(string(raw), 512), kind: ErrRejected}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrRejected, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: API error: %s", ErrRejected, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
