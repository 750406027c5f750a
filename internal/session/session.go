// Package session drives one coaching session through the pipeline stages
// in their fixed order, pausing for the user's quiz answers and chat.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"unhabit/internal/pipeline"
	"unhabit/internal/types"
)

var (
	ErrInvalidPhase = errors.New("step not allowed in current phase")
	ErrEmptyHabit   = errors.New("habit description is empty")
	ErrEmptyMessage = errors.New("chat message is empty")
)

// StageResult records how one stage produced its output.
type StageResult struct {
	Stage    string
	Source   pipeline.Source
	Reason   string
	Repaired []string
}

// Step is the result of one driver call.
type Step struct {
	State  types.SessionState
	Stages []StageResult
}

// Fallbacks returns the stages that used the deterministic fallback.
func (s Step) Fallbacks() []StageResult {
	var out []StageResult
	for _, r := range s.Stages {
		if r.Source == pipeline.FallbackUsed {
			out = append(out, r)
		}
	}
	return out
}

func record[T any](stage string, o pipeline.Outcome[T]) StageResult {
	return StageResult{Stage: stage, Source: o.Source, Reason: o.Reason, Repaired: o.Repaired}
}

// Session owns the state of one coaching session.
type Session struct {
	mu        sync.Mutex
	pipeline  *pipeline.Pipeline
	logger    *zap.Logger
	rescreen  bool
	state     types.SessionState
	lifecycle *Lifecycle
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRescreen controls whether every chat message is screened by the
// safety stage before coaching. Enabled by default.
func WithRescreen(enabled bool) Option {
	return func(s *Session) { s.rescreen = enabled }
}

// New creates a session in PhaseCreated.
func New(p *pipeline.Pipeline, opts ...Option) (*Session, error) {
	s := &Session{
		pipeline: p,
		logger:   zap.NewNop(),
		rescreen: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) reset() error {
	lc, err := NewLifecycle(s.logger)
	if err != nil {
		return err
	}
	if s.lifecycle != nil {
		s.lifecycle.Stop()
	}
	s.lifecycle = lc
	s.state = types.SessionState{ID: uuid.NewString()}
	s.logger.Info("session created", zap.String("session_id", s.state.ID))
	return nil
}

// Reset discards all state and starts over with a new session ID.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset()
}

// Close stops the lifecycle interpreter. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != nil {
		s.lifecycle.Stop()
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

// State returns a copy of the current state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Phase returns the lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle.Phase()
}

// History returns the lifecycle transitions taken so far.
func (s *Session) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle.History()
}

// Start canonicalizes and screens the habit description, then builds the
// quiz. When screening blocks, the session stops in PhaseBlocked without a
// quiz.
func (s *Session) Start(ctx context.Context, habit string) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	habit = strings.TrimSpace(habit)
	if habit == "" {
		return Step{}, ErrEmptyHabit
	}
	if !s.lifecycle.Can(EventCanonicalize) {
		return Step{}, s.phaseError("start")
	}

	var step Step
	state := s.state
	state.HabitDescription = habit

	state, canon := s.pipeline.Canonicalize(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StageCanonicalize, canon))
	s.commit(state, EventCanonicalize)

	state, safety := s.pipeline.Safety(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StageSafety, safety))
	if state.Blocked() {
		s.logger.Warn("session blocked by safety screening",
			zap.String("session_id", state.ID),
			zap.String("risk", string(state.Safety.Risk)))
		s.commit(state, EventBlock)
		step.State = s.state.Clone()
		return step, nil
	}
	s.commit(state, EventAllow)

	state, quiz := s.pipeline.QuizForm(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StageQuizForm, quiz))
	s.commit(state, EventQuiz)

	step.State = s.state.Clone()
	return step, nil
}

// SubmitAnswers records the quiz answers, builds the habit profile and the
// 21-day plan, and produces the coach's opening message.
func (s *Session) SubmitAnswers(ctx context.Context, answers map[string]string) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.Can(EventProfile) {
		return Step{}, s.phaseError("submit answers")
	}
	encoded, err := types.EncodeQuizAnswers(s.state.QuizForm, answers)
	if err != nil {
		return Step{}, err
	}

	var step Step
	state := s.state.Apply(types.Update{UserQuizAnswers: &encoded})

	state, summary := s.pipeline.QuizSummary(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StageQuizSummary, summary))
	s.commit(state, EventProfile)

	state, plan := s.pipeline.Plan21(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StagePlan21, plan))
	s.commit(state, EventPlan)

	empty := ""
	state = state.Apply(types.Update{LastUserMessage: &empty})
	state, coach := s.pipeline.Coach(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StageCoach, coach))
	s.commit(state, EventCoach)

	step.State = s.state.Clone()
	return step, nil
}

// Chat answers one user message. The message is screened first unless
// rescreening is disabled; a blocked session always gets the fixed refusal.
func (s *Session) Chat(ctx context.Context, message string) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message = strings.TrimSpace(message)
	if message == "" {
		return Step{}, ErrEmptyMessage
	}
	phase := s.lifecycle.Phase()
	if phase != PhaseBlocked && !s.lifecycle.Can(EventCoach) {
		return Step{}, s.phaseError("chat")
	}

	var step Step
	state := s.state.Apply(types.Update{LastUserMessage: &message})

	if s.rescreen && phase != PhaseBlocked {
		var safety pipeline.Outcome[types.SafetyResult]
		state, safety = s.pipeline.Safety(ctx, state)
		step.Stages = append(step.Stages, record(pipeline.StageSafety, safety))
		if state.Blocked() {
			s.logger.Warn("chat message blocked by safety screening",
				zap.String("session_id", state.ID),
				zap.String("risk", string(state.Safety.Risk)))
		}
	}

	state, coach := s.pipeline.Coach(ctx, state)
	step.Stages = append(step.Stages, record(pipeline.StageCoach, coach))
	if phase == PhaseBlocked {
		s.state = state
	} else {
		s.commit(state, EventCoach)
	}

	step.State = s.state.Clone()
	return step, nil
}

// commit stores state and advances the lifecycle. Callers check the event
// is allowed before running the stage.
func (s *Session) commit(state types.SessionState, event statekit.EventType) {
	s.state = state
	if err := s.lifecycle.Fire(event); err != nil {
		s.logger.Error("lifecycle out of step", zap.Error(err))
	}
}

func (s *Session) phaseError(step string) error {
	return &PhaseError{Step: step, Phase: s.lifecycle.Phase()}
}

// PhaseError reports a driver call made out of order.
type PhaseError struct {
	Step  string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return "cannot " + e.Step + " in phase " + string(e.Phase)
}

// Is matches ErrInvalidPhase.
func (e *PhaseError) Is(target error) bool { return target == ErrInvalidPhase }
