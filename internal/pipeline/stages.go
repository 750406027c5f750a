package pipeline

import (
	"context"
	"fmt"
	"strings"

	"unhabit/internal/fallback"
	"unhabit/internal/invoker"
	"unhabit/internal/prompt"
	"unhabit/internal/schema"
	"unhabit/internal/types"
)

// Canonical is the output of the Canonicalize stage.
type Canonical struct {
	Name       string
	Category   string
	Confidence string
}

// Canonicalize names and categorizes the raw habit description. Each field
// the model omits falls back on its own.
func (p *Pipeline) Canonicalize(ctx context.Context, s types.SessionState) (types.SessionState, Outcome[Canonical]) {
	name, category, confidence := fallback.Canonical(s.HabitDescription)
	out := fellBack(Canonical{Name: name, Category: category, Confidence: confidence}, "")

	call, err := p.call(prompt.Canonicalize, p.stages.Canonicalize, prompt.Fields{
		prompt.FieldHabitDescription: s.HabitDescription,
	})
	if err != nil {
		out.Reason = err.Error()
	} else {
		res := p.invoker.JSON(ctx, call, schema.Canonical)
		if res.OK() {
			var repaired []string
			pick := func(key string, def string) string {
				if v, ok := res.Doc.String(key); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
				repaired = append(repaired, key)
				return def
			}
			out = generated(Canonical{
				Name:       pick("canonical_habit_name", name),
				Category:   pick("habit_category", category),
				Confidence: pick("confidence", confidence),
			})
			out.Repaired = repaired
			if len(repaired) == 3 {
				out = fellBack(out.Value, "model output has no canonical fields")
			}
		} else {
			out.Reason = reason(res.LastErr)
		}
	}

	if out.Fallback() {
		p.recordFallback(ctx, StageCanonicalize, out.Reason)
	} else {
		p.recordRepair(StageCanonicalize, out.Repaired)
	}
	v := out.Value
	return s.Apply(types.Update{
		CanonicalHabitName:  &v.Name,
		HabitCategory:       &v.Category,
		CanonicalConfidence: &v.Confidence,
	}), out
}

// screenText is the text the safety classifier judges.
func screenText(s types.SessionState) string {
	if s.LastUserMessage != "" {
		return s.LastUserMessage
	}
	return s.HabitDescription
}

// Safety classifies the latest user text. Any failure fails closed: the
// session is blocked with a fixed refusal.
func (p *Pipeline) Safety(ctx context.Context, s types.SessionState) (types.SessionState, Outcome[types.SafetyResult]) {
	var out Outcome[types.SafetyResult]

	call, err := p.call(prompt.Safety, p.stages.Safety, prompt.Fields{
		prompt.FieldUserText: screenText(s),
	})
	if err == nil {
		var res types.SafetyResult
		err = p.invoker.Structured(ctx, call, schema.Safety, &res)
		if err == nil {
			out = generated(res)
			if res.Blocked() && strings.TrimSpace(res.Message) == "" {
				out.Value.Message = fallback.SafetyRefusal
				out.Repaired = []string{"message"}
			}
		}
	}
	if err != nil {
		out = fellBack(fallback.Safety(), err.Error())
		p.recordFallback(ctx, StageSafety, out.Reason)
	} else {
		p.recordRepair(StageSafety, out.Repaired)
	}

	v := out.Value
	return s.Apply(types.Update{Safety: &v}), out
}

// QuizForm generates the personalized quiz. A quiz outside the size bounds
// or with duplicate ids is replaced by the generic quiz.
func (p *Pipeline) QuizForm(ctx context.Context, s types.SessionState) (types.SessionState, Outcome[types.QuizForm]) {
	var out Outcome[types.QuizForm]

	call, err := p.call(prompt.QuizForm, p.stages.QuizForm, prompt.Fields{
		prompt.FieldHabitDescription: s.HabitDescription,
	})
	if err == nil {
		var form types.QuizForm
		if err = p.invoker.Structured(ctx, call, schema.QuizForm, &form); err == nil {
			form = tidyQuiz(form)
			if verr := form.Validate(); verr != nil {
				err = fmt.Errorf("%w: %w", invoker.ErrValidation, verr)
			} else {
				out = generated(form)
			}
		}
	}
	if err != nil {
		out = fellBack(fallback.QuizForm(s.HabitDescription), err.Error())
		p.recordFallback(ctx, StageQuizForm, out.Reason)
	}

	v := out.Value
	return s.Apply(types.Update{QuizForm: &v}), out
}

func tidyQuiz(f types.QuizForm) types.QuizForm {
	f.HabitNameGuess = strings.TrimSpace(f.HabitNameGuess)
	for i := range f.Questions {
		q := &f.Questions[i]
		q.ID = strings.TrimSpace(q.ID)
		q.Question = strings.TrimSpace(q.Question)
		q.HelperText = strings.TrimSpace(q.HelperText)
	}
	return f
}

// QuizSummary turns the quiz answers into the structured habit profile.
func (p *Pipeline) QuizSummary(ctx context.Context, s types.SessionState) (types.SessionState, Outcome[types.QuizSummary]) {
	var out Outcome[types.QuizSummary]

	call, err := p.call(prompt.QuizSummary, p.stages.QuizSummary, prompt.Fields{
		prompt.FieldHabitDescription: s.HabitDescription,
		prompt.FieldQuizFormJSON:     marshal(s.QuizForm),
		prompt.FieldUserQuizAnswers:  s.UserQuizAnswers,
	})
	if err == nil {
		var summary types.QuizSummary
		if err = p.invoker.Structured(ctx, call, schema.QuizSummary, &summary); err == nil {
			out = generated(summary)
		}
	}
	if err != nil {
		out = fellBack(fallback.QuizSummary(s.HabitDescription), err.Error())
		p.recordFallback(ctx, StageQuizSummary, out.Reason)
	}

	v := out.Value
	return s.Apply(types.Update{QuizSummary: &v}), out
}
