package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unhabit/internal/schema"
	"unhabit/internal/types"
)

func TestSafetyFailsClosed(t *testing.T) {
	got := Safety()
	assert.True(t, got.Blocked())
	assert.Equal(t, types.RiskOther, got.Risk)
	assert.Equal(t, SafetyRefusal, got.Message)
}

func TestCanonical(t *testing.T) {
	name, category, confidence := Canonical("I smoke too much")
	assert.Equal(t, "I smoke too much", name)
	assert.Equal(t, "unknown", category)
	assert.Equal(t, "low", confidence)
}

func TestQuizForm(t *testing.T) {
	for _, habit := range []string{"vaping", "", strings.Repeat("doomscrolling ", 40)} {
		form := QuizForm(habit)
		require.NoError(t, form.Validate())
		assert.Len(t, form.Questions, 9)
		assert.Equal(t, "q1", form.Questions[0].ID)
		assert.Equal(t, "q9", form.Questions[8].ID)
	}

	form := QuizForm("vaping")
	assert.Equal(t, "In your own words, what does vaping look like for you?", form.Questions[0].Question)
	assert.Empty(t, form.Questions[1].HelperText)
	assert.Contains(t, QuizForm("  ").Questions[0].Question, "this habit")
}

func TestQuizSummary(t *testing.T) {
	got := QuizSummary("late night gaming")
	assert.Equal(t, "late night gaming", got.UserHabitRaw)
	assert.Equal(t, "late night gaming", got.CanonicalHabitName)
	assert.Equal(t, "other", got.HabitCategory)
	assert.Equal(t, "user_wants_change", got.MotivationReason)

	assert.Equal(t, "user habit", QuizSummary("").CanonicalHabitName)
	assert.NoError(t, schema.QuizSummary.Validate(toAny(t, got)))
}

func TestPlan21(t *testing.T) {
	summary := &types.QuizSummary{
		CanonicalHabitName: "vaping",
		MainTrigger:        "work stress",
		MotivationReason:   "my lungs",
	}
	plan := Plan21(summary)
	require.NoError(t, plan.Validate())
	assert.Contains(t, plan.PlanSummary, "reduce vaping")
	assert.Contains(t, plan.PlanSummary, "friction around work stress")
	assert.Contains(t, plan.PlanSummary, "based on my lungs")
	assert.Equal(t, "Write down when and why vaping usually happens. No pressure to change yet.", plan.DayTasks["day_1"])
	assert.Equal(t, "Move one step further from your usual work stress location before acting.", plan.DayTasks["day_3"])
	assert.NoError(t, schema.Plan21.Validate(toAny(t, plan)))
}

func TestPlan21_Defaults(t *testing.T) {
	plan := Plan21(nil)
	require.NoError(t, plan.Validate())
	assert.Contains(t, plan.PlanSummary, "reduce your habit")
	assert.Contains(t, plan.DayTasks["day_3"], "your usual triggers")

	plan = Plan21(&types.QuizSummary{UserHabitRaw: "biting nails"})
	assert.Contains(t, plan.DayTasks["day_1"], "biting nails")
}

func TestPlan21_LongLabelsStayValid(t *testing.T) {
	long := strings.Repeat("very long habit name ", 50)
	plan := Plan21(&types.QuizSummary{CanonicalHabitName: long, MainTrigger: long})
	require.NoError(t, plan.Validate())
	for _, task := range plan.Tasks() {
		assert.True(t, types.ValidTask(task), task)
	}
}

func TestPlanSummary(t *testing.T) {
	assert.Equal(t, "Personalized 21-day behavioural plan to reduce vaping.", PlanSummary("vaping"))
	assert.Equal(t, "Personalized 21-day behavioural plan to reduce your habit.", PlanSummary(" "))
}
