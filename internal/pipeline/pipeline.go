// Package pipeline implements the coaching generation stages. Each stage
// reads the session state, asks the model for its artifact, repairs or
// replaces whatever the model got wrong, and returns the updated state with
// an Outcome describing where the result came from. Stages never fail.
package pipeline

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"unhabit/internal/config"
	"unhabit/internal/invoker"
	"unhabit/internal/llm"
	"unhabit/internal/prompt"
)

// Stage names, used in logs, traces and model requests.
const (
	StageCanonicalize = string(prompt.Canonicalize)
	StageSafety       = string(prompt.Safety)
	StageQuizForm     = string(prompt.QuizForm)
	StageQuizSummary  = string(prompt.QuizSummary)
	StagePlan21       = string(prompt.Plan21)
	StageCoach        = string(prompt.Coach)
)

// Source tags where a stage result came from.
type Source string

const (
	Generated    Source = "generated"
	FallbackUsed Source = "fallback"
)

// Outcome is a stage result with its provenance.
type Outcome[T any] struct {
	Value  T
	Source Source
	// Reason explains a fallback or a blocked gate. Empty when generated.
	Reason string
	// Repaired lists fields of a generated result that were replaced.
	Repaired []string
}

// Fallback reports whether the deterministic generator produced the value.
func (o Outcome[T]) Fallback() bool { return o.Source == FallbackUsed }

func generated[T any](v T, repaired ...string) Outcome[T] {
	return Outcome[T]{Value: v, Source: Generated, Repaired: repaired}
}

func fellBack[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Value: v, Source: FallbackUsed, Reason: reason}
}

// Pipeline runs the stages against one model client.
type Pipeline struct {
	compiler  *prompt.Compiler
	invoker   *invoker.Invoker
	stages    config.StagesConfig
	logger    *zap.Logger
	fallbacks metric.Int64Counter

	invokerOpts   []invoker.Option
	meterProvider metric.MeterProvider
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStages sets per-stage temperatures and token limits.
func WithStages(stages config.StagesConfig) Option {
	return func(p *Pipeline) { p.stages = stages }
}

// WithLogger sets the logger for the pipeline and its invoker.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInvokerOptions passes options through to the model invoker.
func WithInvokerOptions(opts ...invoker.Option) Option {
	return func(p *Pipeline) { p.invokerOpts = append(p.invokerOpts, opts...) }
}

// WithMeterProvider sets the provider for the fallback counter. The global
// provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Pipeline) { p.meterProvider = mp }
}

// WithCompiler replaces the embedded prompt templates.
func WithCompiler(c *prompt.Compiler) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.compiler = c
		}
	}
}

// New creates a Pipeline that invokes client.
func New(client llm.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: config.DefaultConfig().Pipeline.Stages,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.compiler == nil {
		p.compiler = prompt.MustCompiler()
	}
	invOpts := append([]invoker.Option{invoker.WithLogger(p.logger)}, p.invokerOpts...)
	p.invoker = invoker.New(client, invOpts...)

	mp := p.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter("unhabit/pipeline").Int64Counter("unhabit.stage.fallbacks",
		metric.WithDescription("Stage results produced by the deterministic fallback"))
	if err != nil {
		p.logger.Warn("fallback counter unavailable", zap.Error(err))
	}
	p.fallbacks = counter
	return p
}

// FromConfig creates a Pipeline with stage, retry, timeout and breaker
// settings taken from cfg.
func FromConfig(client llm.Client, cfg *config.Config, logger *zap.Logger, opts ...Option) *Pipeline {
	base := []Option{
		WithLogger(logger),
		WithStages(cfg.Pipeline.Stages),
		WithInvokerOptions(
			invoker.WithTimeout(cfg.GetLLMTimeout()),
			invoker.WithRetryPolicy(invoker.RetryPolicy{
				MaxAttempts:    cfg.Pipeline.Retry.MaxAttempts,
				EscalationStep: cfg.Pipeline.Retry.EscalationStep,
			}),
			invoker.WithBreaker(invoker.BreakerConfig{
				Threshold: cfg.Resilience.BreakerThreshold,
				Timeout:   cfg.GetBreakerTimeout(),
			}),
		),
	}
	return New(client, append(base, opts...)...)
}

// Invoker exposes the underlying model invoker.
func (p *Pipeline) Invoker() *invoker.Invoker { return p.invoker }

func (p *Pipeline) call(id prompt.ID, stage config.StageConfig, fields prompt.Fields) (invoker.Call, error) {
	rendered, err := p.compiler.Render(id, fields)
	if err != nil {
		return invoker.Call{}, err
	}
	return invoker.Call{
		Stage:       string(id),
		Prompt:      rendered,
		Temperature: stage.Temperature,
		MaxTokens:   stage.MaxTokens,
	}, nil
}

// recordFallback logs and counts a fallback.
func (p *Pipeline) recordFallback(ctx context.Context, stage, reason string) {
	p.logger.Warn("stage fell back",
		zap.String("stage", stage),
		zap.String("reason", reason))
	if p.fallbacks != nil {
		p.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

func (p *Pipeline) recordRepair(stage string, repaired []string) {
	if len(repaired) == 0 {
		return
	}
	p.logger.Warn("stage output repaired",
		zap.String("stage", stage),
		zap.Strings("fields", repaired))
}

// marshal renders v as compact JSON, or "" when v is nil.
func marshal[T any](v *T) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func reason(err error) string {
	if err == nil {
		return "empty model output"
	}
	return err.Error()
}
