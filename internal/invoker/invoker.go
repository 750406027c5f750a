// Package invoker wraps model calls with output validation, a bounded
// escalating retry for raw-JSON calls, per-call timeouts and a circuit
// breaker that contains provider outages.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"go.uber.org/zap"

	"unhabit/internal/llm"
	"unhabit/internal/prompt"
	"unhabit/internal/schema"
)

// Call is one stage's model request before retry policy is applied.
type Call struct {
	Stage       string
	Prompt      prompt.Prompt
	Temperature float64
	MaxTokens   int
}

// RetryPolicy bounds the raw-JSON escalation loop. Each retry raises the
// strictness level by one and the temperature by EscalationStep.
type RetryPolicy struct {
	MaxAttempts    int
	EscalationStep float64
}

// DefaultRetryPolicy returns two attempts with a 0.2 temperature step.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, EscalationStep: 0.2}
}

// BreakerConfig configures the circuit breaker around the client.
type BreakerConfig struct {
	// Threshold is the number of consecutive invocation failures that opens
	// the circuit.
	Threshold int
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
}

// DefaultBreakerConfig returns a breaker that opens after five consecutive
// failures and probes again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Timeout: 30 * time.Second}
}

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 60 * time.Second

// Invoker issues model calls on behalf of pipeline stages.
type Invoker struct {
	client  llm.Client
	logger  *zap.Logger
	timeout time.Duration
	policy  RetryPolicy
	breaker circuitbreaker.CircuitBreaker[string]
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithRetryPolicy sets the raw-JSON retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(i *Invoker) {
		if p.MaxAttempts > 0 {
			i.policy = p
		}
	}
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(i *Invoker) {
		i.breaker = newBreaker(cfg)
	}
}

// New creates an Invoker over client.
func New(client llm.Client, opts ...Option) *Invoker {
	i := &Invoker{
		client:  client,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		policy:  DefaultRetryPolicy(),
		breaker: newBreaker(DefaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func newBreaker(cfg BreakerConfig) circuitbreaker.CircuitBreaker[string] {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	threshold := uint32(cfg.Threshold) // #nosec G115 -- bounds checked above
	return circuitbreaker.New[string](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}

// Policy returns the active retry policy.
func (i *Invoker) Policy() RetryPolicy { return i.policy }

// BreakerState reports the circuit breaker state, e.g. "closed".
func (i *Invoker) BreakerState() string {
	return i.breaker.State().String()
}

// complete performs one guarded model call. Only transport outcomes reach
// the breaker; output problems are classified by the caller.
func (i *Invoker) complete(ctx context.Context, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	out, err := i.breaker.Execute(callCtx, func(ctx context.Context) (string, error) {
		return i.client.Complete(ctx, req)
	})
	i.logger.Debug("model call",
		zap.String("stage", req.Stage),
		zap.Int("prompt_len", len(req.System)+len(req.Prompt)),
		zap.Float64("temperature", req.Temperature),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", failure(req.Stage, KindTimeout, fmt.Errorf("model call exceeded %s: %w", i.timeout, err))
	}
	return "", failure(req.Stage, KindInvocation, err)
}

func (i *Invoker) request(call Call, p prompt.Prompt, temperature float64) llm.Request {
	return llm.Request{
		Stage:       call.Stage,
		System:      p.System,
		Prompt:      p.User,
		Temperature: temperature,
		MaxTokens:   call.MaxTokens,
	}
}

// Structured makes a single schema-validated call and decodes the result
// into out. It never retries; any failure is a *GenerationFailure.
func (i *Invoker) Structured(ctx context.Context, call Call, s *schema.Schema, out any) error {
	req := i.request(call, call.Prompt, call.Temperature)
	req.Schema = s

	raw, err := i.complete(ctx, req)
	if err != nil {
		return err
	}
	candidate := ExtractJSON(raw)
	if candidate == "" {
		return failure(call.Stage, KindMalformed, fmt.Errorf("no JSON object in %d bytes of output", len(raw)))
	}
	if _, err := s.ValidateJSON([]byte(candidate)); err != nil {
		if errors.Is(err, schema.ErrInvalid) {
			return failure(call.Stage, KindValidation, err)
		}
		return failure(call.Stage, KindMalformed, err)
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return failure(call.Stage, KindMalformed, fmt.Errorf("failed to decode %s: %w", s.Name, err))
	}
	return nil
}

// JSONResult is the outcome of a raw-JSON call. Doc is empty, never nil,
// when every attempt failed.
type JSONResult struct {
	Doc      Document
	Attempts int
	// LastErr is the failure of the final attempt, nil on success.
	LastErr error
}

// OK reports whether a document was obtained.
func (r JSONResult) OK() bool { return r.LastErr == nil && len(r.Doc) > 0 }

// JSON asks for a JSON object and parses it as a generic document. On an
// unusable reply the call is repeated with a stricter prompt and a higher
// temperature, up to the policy's attempt count. hint, when set, is passed
// to the provider as a structured output format but not enforced.
func (i *Invoker) JSON(ctx context.Context, call Call, hint *schema.Schema) JSONResult {
	res := JSONResult{Doc: Document{}}
	for attempt := 0; attempt < i.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.LastErr = failure(call.Stage, KindInvocation, err)
			break
		}
		res.Attempts = attempt + 1

		temperature := call.Temperature + float64(attempt)*i.policy.EscalationStep
		req := i.request(call, call.Prompt.WithStrictness(attempt), temperature)
		req.JSON = true
		req.Schema = hint

		raw, err := i.complete(ctx, req)
		if err != nil {
			res.LastErr = err
			i.logger.Warn("raw JSON attempt failed",
				zap.String("stage", call.Stage), zap.Int("attempt", res.Attempts), zap.Error(err))
			continue
		}
		doc, ok := decodeObject(raw)
		if !ok {
			res.LastErr = failure(call.Stage, KindMalformed, fmt.Errorf("unparseable reply on attempt %d", res.Attempts))
			i.logger.Warn("raw JSON attempt unparseable",
				zap.String("stage", call.Stage), zap.Int("attempt", res.Attempts))
			continue
		}
		res.Doc = doc
		res.LastErr = nil
		return res
	}
	return res
}

// Text makes a single plain-text call. An empty reply is malformed.
func (i *Invoker) Text(ctx context.Context, call Call) (string, error) {
	raw, err := i.complete(ctx, i.request(call, call.Prompt, call.Temperature))
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", failure(call.Stage, KindMalformed, llm.ErrEmptyResponse)
	}
	return reply, nil
}
