package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Trace captures one model interaction.
type Trace struct {
	SessionID string `json:"session_id,omitempty"`
	Stage     string `json:"stage"`
	Provider  string `json:"provider"`

	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Response     string  `json:"response"`
	Temperature  float64 `json:"temperature"`
	JSON         bool    `json:"json"`

	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TraceStore persists traces.
type TraceStore interface {
	StoreTrace(t *Trace) error
}

// JSONLTraceStore appends traces as JSON lines to a writer.
type JSONLTraceStore struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLTraceStore creates a store writing to w.
func NewJSONLTraceStore(w io.Writer) *JSONLTraceStore {
	return &JSONLTraceStore{w: w}
}

// StoreTrace implements TraceStore.
func (s *JSONLTraceStore) StoreTrace(t *Trace) error {
	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(line, '\n'))
	return err
}

// TracingClient wraps a Client, recording a span, a log line and an
// optional stored trace for every call.
type TracingClient struct {
	underlying Client
	store      TraceStore
	logger     *zap.Logger
	tracer     trace.Tracer

	mu        sync.RWMutex
	sessionID string
}

// TracingOption configures a TracingClient.
type TracingOption func(*TracingClient)

// WithTraceStore stores every interaction in store.
func WithTraceStore(store TraceStore) TracingOption {
	return func(c *TracingClient) { c.store = store }
}

// WithTracingLogger sets the logger.
func WithTracingLogger(logger *zap.Logger) TracingOption {
	return func(c *TracingClient) { c.logger = logger }
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) TracingOption {
	return func(c *TracingClient) { c.tracer = tracer }
}

// NewTracingClient wraps underlying.
func NewTracingClient(underlying Client, opts ...TracingOption) *TracingClient {
	c := &TracingClient{
		underlying: underlying,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("unhabit/llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSessionID attributes subsequent traces to a session.
func (c *TracingClient) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Provider implements Client.
func (c *TracingClient) Provider() string { return c.underlying.Provider() }

// Complete implements Client.
func (c *TracingClient) Complete(ctx context.Context, req Request) (string, error) {
	c.mu.RLock()
	sessionID := c.sessionID
	c.mu.RUnlock()

	ctx, span := c.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.provider", c.underlying.Provider()),
		attribute.String("llm.stage", req.Stage),
		attribute.Bool("llm.json", req.WantsJSON()),
		attribute.Float64("llm.temperature", req.Temperature),
		attribute.Int("llm.prompt_len", len(req.Prompt)),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.underlying.Complete(ctx, req)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Int("llm.response_len", len(resp)))
	fields := []zap.Field{
		zap.String("provider", c.underlying.Provider()),
		zap.String("stage", req.Stage),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Duration("latency", elapsed),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("model call failed", append(fields, zap.Error(err))...)
	} else {
		c.logger.Debug("model call completed", append(fields, zap.Int("response_len", len(resp)))...)
	}

	if c.store != nil {
		t := &Trace{
			SessionID:    sessionID,
			Stage:        req.Stage,
			Provider:     c.underlying.Provider(),
			SystemPrompt: req.System,
			UserPrompt:   req.Prompt,
			Response:     resp,
			Temperature:  req.Temperature,
			JSON:         req.WantsJSON(),
			DurationMs:   elapsed.Milliseconds(),
			Success:      err == nil,
			Timestamp:    start,
		}
		if err != nil {
			t.ErrorMessage = err.Error()
		}
		if storeErr := c.store.StoreTrace(t); storeErr != nil {
			c.logger.Warn("failed to store trace", zap.Error(storeErr))
		}
	}

	return resp, err
}
