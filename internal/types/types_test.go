package types

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizWith(n int) QuizForm {
	f := QuizForm{HabitNameGuess: "smoking"}
	for i := 1; i <= n; i++ {
		f.Questions = append(f.Questions, QuizQuestion{
			ID:       fmt.Sprintf("q%d", i),
			Question: "question?",
		})
	}
	return f
}

func fullPlan() Plan21 {
	p := Plan21{PlanSummary: "plan", DayTasks: map[string]string{}}
	for _, k := range DayKeys() {
		p.DayTasks[k] = "do " + k
	}
	return p
}

func TestQuizFormValidate(t *testing.T) {
	t.Run("bounds", func(t *testing.T) {
		assert.ErrorIs(t, quizWith(7).Validate(), ErrQuizSize)
		assert.NoError(t, quizWith(8).Validate())
		assert.NoError(t, quizWith(10).Validate())
		assert.ErrorIs(t, quizWith(11).Validate(), ErrQuizSize)
	})

	t.Run("duplicate id", func(t *testing.T) {
		f := quizWith(9)
		f.Questions[3].ID = f.Questions[0].ID
		assert.ErrorIs(t, f.Validate(), ErrQuizDuplicateID)
	})

	t.Run("blank question", func(t *testing.T) {
		f := quizWith(9)
		f.Questions[2].Question = "  "
		assert.ErrorIs(t, f.Validate(), ErrQuizEmptyField)
	})
}

func TestPlan21Validate(t *testing.T) {
	require.NoError(t, fullPlan().Validate())

	p := fullPlan()
	delete(p.DayTasks, "day_21")
	assert.ErrorIs(t, p.Validate(), ErrPlanMissingDay)

	p = fullPlan()
	p.DayTasks["day_4"] = "   "
	assert.ErrorIs(t, p.Validate(), ErrPlanMissingDay)

	p = fullPlan()
	p.DayTasks["day_22"] = "bonus"
	assert.ErrorIs(t, p.Validate(), ErrPlanExtraKey)

	p = fullPlan()
	p.DayTasks["day_9"] = strings.Repeat("a", MaxTaskLength+1)
	assert.ErrorIs(t, p.Validate(), ErrPlanTaskLength)
}

func TestDayKeys(t *testing.T) {
	keys := DayKeys()
	require.Len(t, keys, PlanDays)
	assert.Equal(t, "day_1", keys[0])
	assert.Equal(t, "day_21", keys[20])
	assert.Equal(t, "do day_2", fullPlan().Tasks()[1])
}

func TestApplyDoesNotMutateReceiver(t *testing.T) {
	plan := fullPlan()
	s := SessionState{HabitDescription: "I smoke", Plan21: &plan}
	s.ChatHistory = []ChatTurn{{Role: RoleUser, Content: "hi"}}

	name := "smoking"
	next := s.Apply(Update{
		CanonicalHabitName: &name,
		AppendTurns:        []ChatTurn{{Role: RoleAssistant, Content: "hello"}},
	})

	assert.Empty(t, s.CanonicalHabitName)
	assert.Len(t, s.ChatHistory, 1)
	assert.Equal(t, "smoking", next.CanonicalHabitName)
	want := []ChatTurn{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}
	if diff := cmp.Diff(want, next.ChatHistory); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	next.Plan21.DayTasks["day_1"] = "changed"
	assert.Equal(t, "do day_1", s.Plan21.DayTasks["day_1"])
}

func TestBlocked(t *testing.T) {
	assert.False(t, SessionState{}.Blocked())
	s := SessionState{Safety: &SafetyResult{Action: ActionAllow}}
	assert.False(t, s.Blocked())
	s.Safety.Action = ActionBlockAndEscalate
	assert.True(t, s.Blocked())
}

func TestHabitLabel(t *testing.T) {
	s := SessionState{HabitDescription: "I vape at work"}
	assert.Equal(t, "I vape at work", s.HabitLabel())
	s.QuizSummary = &QuizSummary{CanonicalHabitName: "vaping"}
	assert.Equal(t, "vaping", s.HabitLabel())
	s.CanonicalHabitName = "nicotine vaping"
	assert.Equal(t, "nicotine vaping", s.HabitLabel())
}

func TestEncodeQuizAnswers(t *testing.T) {
	form := &QuizForm{Questions: []QuizQuestion{
		{ID: "q2", Question: "When?"},
		{ID: "q10", Question: "Why?"},
		{ID: "q1", Question: "Where?"},
	}}
	raw, err := EncodeQuizAnswers(form, map[string]string{"q2": " evenings ", "q1": "home", "q99": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, `{"answers":{"q2":"evenings","q10":"","q1":"home"}}`, raw)

	decoded, err := DecodeQuizAnswers(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q2": "evenings", "q10": "", "q1": "home"}, decoded)

	empty, err := EncodeQuizAnswers(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"answers":{}}`, empty)

	_, err = DecodeQuizAnswers("not json")
	assert.Error(t, err)
}
