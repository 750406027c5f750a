// Package types holds the session record threaded through the coaching
// pipeline and the artifacts each stage produces.
package types

import (
	"maps"
	"slices"
)

// SessionState is the mutable record for one coaching session. Each pipeline
// stage owns one field group; ChatHistory is append-only.
type SessionState struct {
	ID               string `json:"id"`
	HabitDescription string `json:"habit_description"`

	Safety *SafetyResult `json:"safety,omitempty"`

	CanonicalHabitName  string `json:"canonical_habit_name,omitempty"`
	HabitCategory       string `json:"habit_category,omitempty"`
	CanonicalConfidence string `json:"canonical_confidence,omitempty"`

	QuizForm        *QuizForm    `json:"quiz_form,omitempty"`
	UserQuizAnswers string       `json:"user_quiz_answers,omitempty"`
	QuizSummary     *QuizSummary `json:"quiz_summary,omitempty"`
	Plan21          *Plan21      `json:"plan21,omitempty"`

	ChatHistory []ChatTurn `json:"chat_history,omitempty"`

	// Last-turn scratch fields.
	LastUserMessage string `json:"last_user_message,omitempty"`
	CoachReply      string `json:"coach_reply,omitempty"`
}

// Update is a partial write produced by a stage. Nil fields are left untouched.
type Update struct {
	Safety              *SafetyResult
	CanonicalHabitName  *string
	HabitCategory       *string
	CanonicalConfidence *string
	QuizForm            *QuizForm
	UserQuizAnswers     *string
	QuizSummary         *QuizSummary
	Plan21              *Plan21
	LastUserMessage     *string
	CoachReply          *string

	// AppendTurns are added to the end of ChatHistory in order.
	AppendTurns []ChatTurn
}

// Apply returns a copy of s with u merged in. s itself is not modified.
func (s SessionState) Apply(u Update) SessionState {
	out := s.Clone()
	if u.Safety != nil {
		v := *u.Safety
		out.Safety = &v
	}
	if u.CanonicalHabitName != nil {
		out.CanonicalHabitName = *u.CanonicalHabitName
	}
	if u.HabitCategory != nil {
		out.HabitCategory = *u.HabitCategory
	}
	if u.CanonicalConfidence != nil {
		out.CanonicalConfidence = *u.CanonicalConfidence
	}
	if u.QuizForm != nil {
		out.QuizForm = cloneQuizForm(u.QuizForm)
	}
	if u.UserQuizAnswers != nil {
		out.UserQuizAnswers = *u.UserQuizAnswers
	}
	if u.QuizSummary != nil {
		v := *u.QuizSummary
		out.QuizSummary = &v
	}
	if u.Plan21 != nil {
		out.Plan21 = clonePlan(u.Plan21)
	}
	if u.LastUserMessage != nil {
		out.LastUserMessage = *u.LastUserMessage
	}
	if u.CoachReply != nil {
		out.CoachReply = *u.CoachReply
	}
	if len(u.AppendTurns) > 0 {
		out.ChatHistory = append(out.ChatHistory, u.AppendTurns...)
	}
	return out
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	out := s
	if s.Safety != nil {
		v := *s.Safety
		out.Safety = &v
	}
	out.QuizForm = cloneQuizForm(s.QuizForm)
	if s.QuizSummary != nil {
		v := *s.QuizSummary
		out.QuizSummary = &v
	}
	out.Plan21 = clonePlan(s.Plan21)
	out.ChatHistory = slices.Clone(s.ChatHistory)
	return out
}

// Blocked reports whether the last safety decision blocks coaching.
// A session that has not been screened is not blocked.
func (s SessionState) Blocked() bool {
	return s.Safety != nil && s.Safety.Blocked()
}

// HabitLabel is the best available name for the habit.
func (s SessionState) HabitLabel() string {
	if s.CanonicalHabitName != "" {
		return s.CanonicalHabitName
	}
	if s.QuizSummary != nil && s.QuizSummary.CanonicalHabitName != "" {
		return s.QuizSummary.CanonicalHabitName
	}
	return s.HabitDescription
}

func cloneQuizForm(f *QuizForm) *QuizForm {
	if f == nil {
		return nil
	}
	v := *f
	v.Questions = slices.Clone(f.Questions)
	return &v
}

func clonePlan(p *Plan21) *Plan21 {
	if p == nil {
		return nil
	}
	v := *p
	v.DayTasks = maps.Clone(p.DayTasks)
	return &v
}
