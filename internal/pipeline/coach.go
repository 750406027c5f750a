package pipeline

import (
	"context"
	"strings"

	"unhabit/internal/fallback"
	"unhabit/internal/prompt"
	"unhabit/internal/types"
)

// SafetyGate reports whether coaching must be refused for s. Nothing from
// the plan, profile or history may reach the model when it returns true.
// An unscreened session is not blocked.
func SafetyGate(s types.SessionState) bool {
	return s.Blocked()
}

// coachMessage is the user text answered by the Coach stage.
func coachMessage(s types.SessionState) string {
	if s.LastUserMessage != "" {
		return s.LastUserMessage
	}
	return s.HabitDescription
}

// Coach answers the user's latest message in the context of their profile
// and plan. When the safety gate is closed the model is not called and a
// fixed refusal is returned. The user turn, when non-empty, is always
// appended before the assistant turn.
func (p *Pipeline) Coach(ctx context.Context, s types.SessionState) (types.SessionState, Outcome[string]) {
	message := coachMessage(s)

	var out Outcome[string]
	if SafetyGate(s) {
		out = Outcome[string]{Value: fallback.BlockedReply, Source: FallbackUsed, Reason: "safety gate closed"}
		p.logger.Info("coach blocked by safety gate")
	} else {
		out = p.coachReply(ctx, s, message)
		if out.Fallback() {
			p.recordFallback(ctx, StageCoach, out.Reason)
		}
	}

	var turns []types.ChatTurn
	if strings.TrimSpace(message) != "" {
		turns = append(turns, types.ChatTurn{Role: types.RoleUser, Content: message})
	}
	turns = append(turns, types.ChatTurn{Role: types.RoleAssistant, Content: out.Value})

	reply := out.Value
	return s.Apply(types.Update{CoachReply: &reply, AppendTurns: turns}), out
}

func (p *Pipeline) coachReply(ctx context.Context, s types.SessionState, message string) Outcome[string] {
	call, err := p.call(prompt.Coach, p.stages.Coach, prompt.Fields{
		prompt.FieldQuizSummaryJSON: marshal(s.QuizSummary),
		prompt.FieldPlan21JSON:      marshal(s.Plan21),
		prompt.FieldHistoryText:     historyText(s.ChatHistory),
		prompt.FieldUserMessage:     message,
	})
	if err != nil {
		return fellBack(fallback.CoachEncouragement, err.Error())
	}
	reply, err := p.invoker.Text(ctx, call)
	if err != nil {
		return fellBack(fallback.CoachEncouragement, err.Error())
	}
	return generated(reply)
}

// historyText renders prior turns one per line as "role: content".
func historyText(turns []types.ChatTurn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}
