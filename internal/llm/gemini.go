package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey    string
	JSONModel string
	TextModel string
	Timeout   time.Duration
}

// DefaultGeminiConfig returns defaults for the Gemini API.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:    apiKey,
		JSONModel: "gemini-2.5-flash",
		TextModel: "gemini-2.5-flash",
		Timeout:   60 * time.Second,
	}
}

// generator is the slice of the genai SDK the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Client with the Google Gen AI SDK.
type GeminiClient struct {
	models    generator
	jsonModel string
	textModel string
	timeout   time.Duration
}

// NewGeminiClient creates a client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiClient(client.Models, config), nil
}

func newGeminiClient(models generator, config GeminiConfig) *GeminiClient {
	def := DefaultGeminiConfig(config.APIKey)
	if config.JSONModel == "" {
		config.JSONModel = def.JSONModel
	}
	if config.TextModel == "" {
		config.TextModel = config.JSONModel
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &GeminiClient{
		models:    models,
		jsonModel: config.JSONModel,
		textModel: config.TextModel,
		timeout:   config.Timeout,
	}
}

// Provider implements Client.
func (c *GeminiClient) Provider() string { return "gemini" }

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.textModel
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.WantsJSON() {
		model = c.jsonModel
		cfg.ResponseMIMEType = "application/json"
	}
	if req.Schema != nil {
		cfg.ResponseJsonSchema = req.Schema.Map()
	}

	resp, err := c.models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
