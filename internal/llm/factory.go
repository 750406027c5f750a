package llm

import (
	"context"
	"fmt"
	"strings"

	"unhabit/internal/config"
)

// NewClientFromConfig builds the provider client named by cfg.LLM.Provider.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
		}
		return NewOpenAIClientWithConfig(OpenAIConfig{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			BaseURL:     cfg.LLM.BaseURL,
			JSONModel:   cfg.LLM.JSONModel,
			TextModel:   cfg.LLM.TextModel,
			Timeout:     cfg.GetLLMTimeout(),
			MaxAttempts: cfg.Resilience.TransportRetries,
			RetryDelay:  cfg.GetRetryDelay(),
		}), nil
	case "gemini":
		gc := DefaultGeminiConfig(cfg.LLM.GeminiAPIKey)
		gc.Timeout = cfg.GetLLMTimeout()
		// Model names in the file default to OpenAI's; only honour Gemini ones.
		if isGeminiModel(cfg.LLM.JSONModel) {
			gc.JSONModel = cfg.LLM.JSONModel
		}
		if isGeminiModel(cfg.LLM.TextModel) {
			gc.TextModel = cfg.LLM.TextModel
		}
		client, err := NewGeminiClient(ctx, gc)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return client, nil
	case "offline":
		return OfflineClient{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s (valid: %v)", cfg.LLM.Provider, config.ValidProviders)
	}
}

func isGeminiModel(name string) bool {
	return strings.HasPrefix(name, "gemini")
}
