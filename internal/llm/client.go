// Package llm provides the model clients the pipeline invokes: an
// OpenAI-compatible chat completions client, a Gemini client, an offline
// client that always fails, and a tracing wrapper.
package llm

import (
	"context"
	"errors"

	"unhabit/internal/schema"
)

// Request is a single model call.
type Request struct {
	// Stage names the pipeline stage issuing the call, for logs and traces.
	Stage string

	System string
	Prompt string

	// JSON asks the provider for a JSON object response.
	JSON bool
	// Schema, when set, is sent as the provider's structured output format.
	// It implies JSON.
	Schema *schema.Schema

	Temperature float64
	MaxTokens   int
}

// WantsJSON reports whether the call expects a JSON object.
func (r Request) WantsJSON() bool {
	return r.JSON || r.Schema != nil
}

// Client is a generative model. Implementations must honour ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Provider names the backend, e.g. "openai".
	Provider() string
}

var (
	ErrNoAPIKey      = errors.New("API key not configured")
	ErrRejected      = errors.New("request rejected by provider")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrEmptyResponse = errors.New("no completion returned")
	ErrOffline       = errors.New("model provider is offline")
)
