package session

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
	"go.uber.org/zap"
)

// Phase is a session lifecycle state.
type Phase = statekit.StateID

const (
	PhaseCreated       Phase = "created"
	PhaseCanonicalized Phase = "canonicalized"
	PhaseScreened      Phase = "screened"
	PhaseBlocked       Phase = "blocked"
	PhaseQuizzed       Phase = "quizzed"
	PhaseProfiled      Phase = "profiled"
	PhasePlanned       Phase = "planned"
	PhaseCoaching      Phase = "coaching"
)

// Lifecycle events.
const (
	EventCanonicalize = "CANONICALIZE"
	EventAllow        = "ALLOW"
	EventBlock        = "BLOCK"
	EventQuiz         = "QUIZ"
	EventProfile      = "PROFILE"
	EventPlan         = "PLAN"
	EventCoach        = "COACH"
)

// transitions mirrors the statechart so invalid events are rejected before
// they reach the interpreter.
var transitions = map[Phase]map[statekit.EventType]Phase{
	PhaseCreated:       {EventCanonicalize: PhaseCanonicalized},
	PhaseCanonicalized: {EventAllow: PhaseScreened, EventBlock: PhaseBlocked},
	PhaseScreened:      {EventQuiz: PhaseQuizzed},
	PhaseQuizzed:       {EventProfile: PhaseProfiled},
	PhaseProfiled:      {EventPlan: PhasePlanned},
	PhasePlanned:       {EventCoach: PhaseCoaching},
	PhaseCoaching:      {EventCoach: PhaseCoaching},
}

// Transition is one recorded lifecycle step.
type Transition struct {
	From  Phase
	To    Phase
	Event statekit.EventType
}

// lifecycleContext is the statechart's extended state.
type lifecycleContext struct {
	logger  *zap.Logger
	history []Transition
}

func logEntry(ctx **lifecycleContext, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).logger == nil {
		return
	}
	if t, ok := event.Payload.(Transition); ok {
		(*ctx).logger.Debug("session phase", zap.String("phase", string(t.To)))
	}
}

func recordTransition(ctx **lifecycleContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if t, ok := event.Payload.(Transition); ok {
		(*ctx).history = append((*ctx).history, t)
	}
}

func newMachine() (*statekit.MachineConfig[*lifecycleContext], error) {
	return statekit.NewMachine[*lifecycleContext]("session").
		WithInitial(PhaseCreated).
		WithContext(&lifecycleContext{}).
		WithAction("logEntry", logEntry).
		WithAction("recordTransition", recordTransition).
		State(PhaseCreated).
			On(EventCanonicalize).Target(PhaseCanonicalized).Do("recordTransition").
			Done().
		State(PhaseCanonicalized).
			OnEntry("logEntry").
			On(EventAllow).Target(PhaseScreened).Do("recordTransition").
			On(EventBlock).Target(PhaseBlocked).Do("recordTransition").
			Done().
		State(PhaseScreened).
			OnEntry("logEntry").
			On(EventQuiz).Target(PhaseQuizzed).Do("recordTransition").
			Done().
		State(PhaseQuizzed).
			OnEntry("logEntry").
			On(EventProfile).Target(PhaseProfiled).Do("recordTransition").
			Done().
		State(PhaseProfiled).
			OnEntry("logEntry").
			On(EventPlan).Target(PhasePlanned).Do("recordTransition").
			Done().
		State(PhasePlanned).
			OnEntry("logEntry").
			On(EventCoach).Target(PhaseCoaching).Do("recordTransition").
			Done().
		State(PhaseCoaching).
			OnEntry("logEntry").
			On(EventCoach).Target(PhaseCoaching).Do("recordTransition").
			Done().
		State(PhaseBlocked).
			Final().
			OnEntry("logEntry").
			Done().
		Build()
}

// Lifecycle tracks which pipeline steps a session has completed.
type Lifecycle struct {
	interp *statekit.Interpreter[*lifecycleContext]
	ctx    *lifecycleContext
}

// NewLifecycle builds and starts a lifecycle in PhaseCreated.
func NewLifecycle(logger *zap.Logger) (*Lifecycle, error) {
	machine, err := newMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build session statechart: %w", err)
	}
	lc := &lifecycleContext{logger: logger}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **lifecycleContext) {
		*c = lc
	})
	interp.Start()
	return &Lifecycle{interp: interp, ctx: lc}, nil
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	return l.interp.State().Value
}

// Can reports whether event is accepted in the current phase.
func (l *Lifecycle) Can(event statekit.EventType) bool {
	_, ok := transitions[l.Phase()][event]
	return ok
}

// Fire applies event, or returns an error if the current phase does not
// accept it.
func (l *Lifecycle) Fire(event statekit.EventType) error {
	from := l.Phase()
	to, ok := transitions[from][event]
	if !ok {
		return fmt.Errorf("%w: %s in phase %s", ErrInvalidPhase, event, from)
	}
	l.interp.Send(statekit.Event{
		Type:    event,
		Payload: Transition{From: from, To: to, Event: event},
	})
	return nil
}

// Done reports whether the lifecycle reached a final phase.
func (l *Lifecycle) Done() bool {
	return l.interp.Done()
}

// History returns the transitions taken so far.
func (l *Lifecycle) History() []Transition {
	return append([]Transition(nil), l.ctx.history...)
}

// Stop halts the interpreter.
func (l *Lifecycle) Stop() {
	l.interp.Stop()
}
