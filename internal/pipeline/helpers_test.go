package pipeline

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"unhabit/internal/invoker"
	"unhabit/internal/llm/llmtest"
	"unhabit/internal/types"
)

func newTestPipeline(t *testing.T, client *llmtest.Client, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{WithInvokerOptions(invoker.WithTimeout(2 * time.Second))}
	return New(client, append(base, opts...)...)
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func reply(v any) []llmtest.Reply {
	return []llmtest.Reply{{Text: mustJSON(v)}}
}

func safetyJSON(risk types.Risk, action types.Action, message string) map[string]any {
	return map[string]any{"risk": risk, "action": action, "message": message}
}

func quizJSON(n int) map[string]any {
	questions := make([]map[string]any, n)
	for i := range questions {
		questions[i] = map[string]any{
			"id":          fmt.Sprintf("q%d", i+1),
			"question":    fmt.Sprintf("Question %d about vaping?", i+1),
			"helper_text": nil,
		}
	}
	return map[string]any{"habit_name_guess": "vaping", "questions": questions}
}

func testSummary() types.QuizSummary {
	return types.QuizSummary{
		UserHabitRaw:       "I vape all day",
		CanonicalHabitName: "vaping",
		HabitCategory:      "nicotine_vaping",
		CategoryConfidence: "high",
		ProductType:        "disposable vape",
		SeverityLevel:      "moderate",
		MainTrigger:        "work stress",
		PeakTimes:          "mid-afternoon",
		CommonLocations:    "office balcony",
		EmotionalPatterns:  "anxious",
		FrequencyPattern:   "hourly",
		PreviousAttempts:   "tried patches once",
		MotivationReason:   "running again",
		RiskSituations:     "drinks with friends",
	}
}

// planJSON returns a plan document with days 1..populated filled in.
func planJSON(populated int) map[string]any {
	tasks := map[string]any{}
	for i := 1; i <= populated; i++ {
		tasks[types.DayKey(i)] = fmt.Sprintf("Model task for day %d.", i)
	}
	return map[string]any{"plan_summary": "A plan for vaping.", "day_tasks": tasks}
}

func allowedState() types.SessionState {
	summary := testSummary()
	return types.SessionState{
		HabitDescription: "I vape all day",
		Safety:           &types.SafetyResult{Risk: types.RiskNone, Action: types.ActionAllow},
		QuizSummary:      &summary,
	}
}
