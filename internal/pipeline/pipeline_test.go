package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"unhabit/internal/config"
	"unhabit/internal/fallback"
	"unhabit/internal/llm"
	"unhabit/internal/llm/llmtest"
	"unhabit/internal/prompt"
	"unhabit/internal/types"
)

// =============================================================================
// CANONICALIZE
// =============================================================================

func TestCanonicalize_Generated(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{
		StageCanonicalize: reply(map[string]any{
			"canonical_habit_name": "vaping", "habit_category": "nicotine_vaping", "confidence": "high",
		}),
	}}
	p := newTestPipeline(t, client)

	s, out := p.Canonicalize(context.Background(), types.SessionState{HabitDescription: "I vape all day"})
	assert.Equal(t, Generated, out.Source)
	assert.Empty(t, out.Repaired)
	assert.Equal(t, "vaping", s.CanonicalHabitName)
	assert.Equal(t, "nicotine_vaping", s.HabitCategory)
	assert.Equal(t, "high", s.CanonicalConfidence)

	calls := client.CallsFor(StageCanonicalize)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "I vape all day")
	assert.InDelta(t, 0.5, calls[0].Temperature, 1e-9)
	assert.Equal(t, 800, calls[0].MaxTokens)
}

func TestCanonicalize_FieldsFallBackIndividually(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{
		StageCanonicalize: reply(map[string]any{"canonical_habit_name": "vaping", "habit_category": "  "}),
	}}
	p := newTestPipeline(t, client)

	s, out := p.Canonicalize(context.Background(), types.SessionState{HabitDescription: "I vape all day"})
	assert.Equal(t, Generated, out.Source)
	assert.Equal(t, []string{"habit_category", "confidence"}, out.Repaired)
	assert.Equal(t, "vaping", s.CanonicalHabitName)
	assert.Equal(t, "unknown", s.HabitCategory)
	assert.Equal(t, "low", s.CanonicalConfidence)
}

func TestCanonicalize_RetriesThenFallsBack(t *testing.T) {
	client := &llmtest.Client{Default: llmtest.Reply{Text: "Sorry, I can't do JSON today."}}
	p := newTestPipeline(t, client)

	s, out := p.Canonicalize(context.Background(), types.SessionState{HabitDescription: "I smoke too much"})
	assert.True(t, out.Fallback())
	assert.Len(t, client.CallsFor(StageCanonicalize), 2)
	assert.Equal(t, "I smoke too much", s.CanonicalHabitName)
	assert.Equal(t, "unknown", s.HabitCategory)
	assert.Equal(t, "low", s.CanonicalConfidence)
}

// =============================================================================
// SAFETY
// =============================================================================

func TestSafety_Allow(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{
		StageSafety: reply(safetyJSON(types.RiskNone, types.ActionAllow, "")),
	}}
	p := newTestPipeline(t, client)

	s, out := p.Safety(context.Background(), types.SessionState{HabitDescription: "I vape all day"})
	assert.Equal(t, Generated, out.Source)
	require.NotNil(t, s.Safety)
	assert.False(t, s.Blocked())

	calls := client.CallsFor(StageSafety)
	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Schema)
	assert.InDelta(t, 0.1, calls[0].Temperature, 1e-9)
}

func TestSafety_ScreensLastUserMessageFirst(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{
		StageSafety: reply(safetyJSON(types.RiskNone, types.ActionAllow, "")),
	}}
	p := newTestPipeline(t, client)

	p.Safety(context.Background(), types.SessionState{HabitDescription: "vaping", LastUserMessage: "what about weekends?"})
	sent := client.CallsFor(StageSafety)[0].Prompt
	assert.Contains(t, sent, "what about weekends?")
	assert.NotContains(t, sent, "User: vaping")
}

func TestSafety_FailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
	}{
		{"unreachable", llmtest.Reply{Err: llm.ErrOffline}},
		{"malformed", llmtest.Reply{Text: "looks fine to me"}},
		{"invalid enum", llmtest.Reply{Text: mustJSON(safetyJSON("mild", types.ActionAllow, ""))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtest.Client{Default: tt.reply}
			p := newTestPipeline(t, client)

			s, out := p.Safety(context.Background(), types.SessionState{HabitDescription: "I smoke too much"})
			assert.True(t, out.Fallback())
			assert.NotEmpty(t, out.Reason)
			assert.True(t, s.Blocked())
			assert.Equal(t, fallback.Safety(), *s.Safety)
			assert.Len(t, client.CallsFor(StageSafety), 1)
		})
	}
}

func TestSafety_BlockWithoutMessageGetsRefusal(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{
		StageSafety: reply(safetyJSON(types.RiskSelfHarm, types.ActionBlockAndEscalate, " ")),
	}}
	p := newTestPipeline(t, client)

	s, out := p.Safety(context.Background(), types.SessionState{HabitDescription: "..."})
	assert.Equal(t, Generated, out.Source)
	assert.Equal(t, []string{"message"}, out.Repaired)
	assert.Equal(t, types.RiskSelfHarm, s.Safety.Risk)
	assert.Equal(t, fallback.SafetyRefusal, s.Safety.Message)
}

// =============================================================================
// QUIZ
// =============================================================================

func TestQuizForm_Generated(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{StageQuizForm: reply(quizJSON(10))}}
	p := newTestPipeline(t, client)

	s, out := p.QuizForm(context.Background(), types.SessionState{HabitDescription: "I vape all day"})
	assert.Equal(t, Generated, out.Source)
	require.NotNil(t, s.QuizForm)
	assert.Len(t, s.QuizForm.Questions, 10)
	assert.NoError(t, s.QuizForm.Validate())
}

func TestQuizForm_InvalidFallsBack(t *testing.T) {
	dup := quizJSON(8)
	dup["questions"].([]map[string]any)[3]["id"] = "q1"

	tests := []struct {
		name string
		doc  map[string]any
	}{
		{"too few", quizJSON(7)},
		{"too many", quizJSON(11)},
		{"duplicate ids", dup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtest.Client{Stages: map[string][]llmtest.Reply{StageQuizForm: reply(tt.doc)}}
			p := newTestPipeline(t, client)

			s, out := p.QuizForm(context.Background(), types.SessionState{HabitDescription: "vaping"})
			assert.True(t, out.Fallback())
			assert.Equal(t, fallback.QuizForm("vaping"), *s.QuizForm)
			assert.NoError(t, s.QuizForm.Validate())
		})
	}
}

func TestQuizSummary(t *testing.T) {
	form := fallback.QuizForm("vaping")
	answers, err := types.EncodeQuizAnswers(&form, map[string]string{"q1": "after meetings"})
	require.NoError(t, err)
	state := types.SessionState{HabitDescription: "vaping", QuizForm: &form, UserQuizAnswers: answers}

	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{StageQuizSummary: reply(testSummary())}}
	p := newTestPipeline(t, client)

	s, out := p.QuizSummary(context.Background(), state)
	assert.Equal(t, Generated, out.Source)
	if diff := cmp.Diff(testSummary(), *s.QuizSummary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	sent := client.CallsFor(StageQuizSummary)[0].Prompt
	assert.Contains(t, sent, "after meetings")
	assert.Contains(t, sent, `"id":"q9"`)

	failing := newTestPipeline(t, llmtest.Failing(llm.ErrOffline))
	s, out = failing.QuizSummary(context.Background(), state)
	assert.True(t, out.Fallback())
	assert.Equal(t, fallback.QuizSummary("vaping"), *s.QuizSummary)
}

// =============================================================================
// PLAN
// =============================================================================

func TestPlan21_WithoutProfileSkipsModel(t *testing.T) {
	client := &llmtest.Client{}
	p := newTestPipeline(t, client)

	s, out := p.Plan21(context.Background(), types.SessionState{HabitDescription: "vaping"})
	assert.True(t, out.Fallback())
	assert.Empty(t, client.Calls())
	assert.Equal(t, fallback.Plan21(nil), *s.Plan21)
}

func TestPlan21_PartialPlanIsRepaired(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{StagePlan21: reply(planJSON(10))}}
	p := newTestPipeline(t, client)
	state := allowedState()

	s, out := p.Plan21(context.Background(), state)
	assert.Equal(t, Generated, out.Source)
	require.NoError(t, s.Plan21.Validate())
	assert.Len(t, s.Plan21.DayTasks, types.PlanDays)
	assert.Len(t, out.Repaired, 11)

	base := fallback.Plan21(state.QuizSummary)
	for i := 1; i <= types.PlanDays; i++ {
		key := types.DayKey(i)
		if i <= 10 {
			assert.Equal(t, "Model task for day "+strings.TrimPrefix(key, "day_")+".", s.Plan21.DayTasks[key])
		} else {
			assert.Equal(t, base.DayTasks[key], s.Plan21.DayTasks[key])
		}
	}
	assert.Equal(t, "A plan for vaping.", s.Plan21.PlanSummary)

	sent := client.CallsFor(StagePlan21)[0]
	assert.Contains(t, sent.Prompt, `"canonical_habit_name":"vaping"`)
	assert.Contains(t, sent.Prompt, "Category: Nicotine")
	assert.Equal(t, 1600, sent.MaxTokens)
}

func TestPlan21_Sanitization(t *testing.T) {
	doc := planJSON(21)
	tasks := doc["day_tasks"].(map[string]any)
	tasks["day_2"] = 42
	tasks["day_3"] = "   "
	tasks["day_4"] = strings.Repeat("x", types.MaxTaskLength+1)
	tasks["day_5"] = "  Walk around the block.  "
	tasks["day_22"] = "Bonus day."
	delete(doc, "plan_summary")

	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{StagePlan21: reply(doc)}}
	p := newTestPipeline(t, client)

	s, out := p.Plan21(context.Background(), allowedState())
	assert.Equal(t, Generated, out.Source)
	assert.Equal(t, []string{"day_2", "day_3", "day_4", "plan_summary"}, out.Repaired)
	require.NoError(t, s.Plan21.Validate())
	assert.NotContains(t, s.Plan21.DayTasks, "day_22")
	assert.Equal(t, "Walk around the block.", s.Plan21.DayTasks["day_5"])
	assert.Equal(t, "Personalized 21-day behavioural plan to reduce vaping.", s.Plan21.PlanSummary)
}

func TestPlan21_WholeFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
	}{
		{"unreachable", llmtest.Reply{Err: llm.ErrOffline}},
		{"unparseable", llmtest.Reply{Text: "Day 1: breathe."}},
		{"empty document", llmtest.Reply{Text: "{}"}},
		{"day_tasks not an object", llmtest.Reply{Text: `{"plan_summary":"x","day_tasks":["a","b"]}`}},
		{"nothing usable", llmtest.Reply{Text: `{"day_tasks":{"day_1":""}}`}},
		{"summary without days", llmtest.Reply{Text: `{"plan_summary":"A model summary.","day_tasks":{}}`}},
		{"summary with blank days", llmtest.Reply{Text: `{"plan_summary":"A model summary.","day_tasks":{"day_1":" ","day_9":""}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtest.Client{Default: tt.reply}
			p := newTestPipeline(t, client)
			state := allowedState()

			s, out := p.Plan21(context.Background(), state)
			assert.True(t, out.Fallback())
			assert.NotEmpty(t, out.Reason)
			assert.Equal(t, fallback.Plan21(state.QuizSummary), *s.Plan21)
		})
	}
}

func TestPlan21_OneUsableDayIsRepaired(t *testing.T) {
	client := &llmtest.Client{Default: llmtest.Reply{
		Text: `{"plan_summary":"A model summary.","day_tasks":{"day_7":"Log every urge."}}`,
	}}
	p := newTestPipeline(t, client)

	s, out := p.Plan21(context.Background(), allowedState())
	assert.Equal(t, Generated, out.Source)
	assert.Len(t, out.Repaired, types.PlanDays-1)
	assert.Equal(t, "Log every urge.", s.Plan21.DayTasks["day_7"])
	assert.Equal(t, "A model summary.", s.Plan21.PlanSummary)
}

// =============================================================================
// COACH
// =============================================================================

func TestCoach_BlockedNeverCallsModel(t *testing.T) {
	client := &llmtest.Client{Default: llmtest.Reply{Text: "model reply"}}
	p := newTestPipeline(t, client)

	blocked := fallback.Safety()
	state := allowedState()
	state.Safety = &blocked
	state.LastUserMessage = "tell me which pills to take"

	s, out := p.Coach(context.Background(), state)
	assert.Empty(t, client.Calls())
	assert.Equal(t, fallback.BlockedReply, out.Value)
	assert.Equal(t, fallback.BlockedReply, s.CoachReply)

	want := []types.ChatTurn{
		{Role: types.RoleUser, Content: "tell me which pills to take"},
		{Role: types.RoleAssistant, Content: fallback.BlockedReply},
	}
	if diff := cmp.Diff(want, s.ChatHistory); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestCoach_BlockedWithoutMessage(t *testing.T) {
	blocked := fallback.Safety()
	p := newTestPipeline(t, &llmtest.Client{})

	s, _ := p.Coach(context.Background(), types.SessionState{Safety: &blocked})
	require.Len(t, s.ChatHistory, 1)
	assert.Equal(t, types.RoleAssistant, s.ChatHistory[0].Role)
}

func TestCoach_TwoTurns(t *testing.T) {
	client := &llmtest.Client{Stages: map[string][]llmtest.Reply{
		StageCoach: {{Text: "First reply."}, {Text: "Second reply."}},
	}}
	p := newTestPipeline(t, client)

	s := allowedState()
	s.LastUserMessage = "I slipped last night"
	s, _ = p.Coach(context.Background(), s)
	s.LastUserMessage = "what now?"
	s, out := p.Coach(context.Background(), s)
	assert.Equal(t, Generated, out.Source)
	assert.Equal(t, "Second reply.", s.CoachReply)

	want := []types.ChatTurn{
		{Role: types.RoleUser, Content: "I slipped last night"},
		{Role: types.RoleAssistant, Content: "First reply."},
		{Role: types.RoleUser, Content: "what now?"},
		{Role: types.RoleAssistant, Content: "Second reply."},
	}
	if diff := cmp.Diff(want, s.ChatHistory); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	second := client.CallsFor(StageCoach)[1]
	assert.Contains(t, second.Prompt, "user: I slipped last night\nassistant: First reply.")
	assert.Contains(t, second.Prompt, "what now?")
	assert.False(t, second.WantsJSON())
}

func TestCoach_MessageFallsBackToDescription(t *testing.T) {
	client := &llmtest.Client{Default: llmtest.Reply{Text: "Welcome."}}
	p := newTestPipeline(t, client)

	s, _ := p.Coach(context.Background(), allowedState())
	require.Len(t, s.ChatHistory, 2)
	assert.Equal(t, "I vape all day", s.ChatHistory[0].Content)

	s, _ = p.Coach(context.Background(), types.SessionState{})
	assert.Len(t, s.ChatHistory, 1)
}

func TestCoach_FailureEncourages(t *testing.T) {
	p := newTestPipeline(t, llmtest.Failing(llm.ErrRateLimited))

	s := allowedState()
	s.LastUserMessage = "help"
	s, out := p.Coach(context.Background(), s)
	assert.True(t, out.Fallback())
	assert.Equal(t, fallback.CoachEncouragement, s.CoachReply)
	assert.Len(t, s.ChatHistory, 2)
}

func TestSafetyGate(t *testing.T) {
	assert.False(t, SafetyGate(types.SessionState{}))
	assert.False(t, SafetyGate(allowedState()))
	blocked := fallback.Safety()
	assert.True(t, SafetyGate(types.SessionState{Safety: &blocked}))
}

// =============================================================================
// WHOLE PIPELINE
// =============================================================================

func TestModelUnreachable_EveryStageStillValid(t *testing.T) {
	p := newTestPipeline(t, llmtest.Failing(llm.ErrOffline))
	ctx := context.Background()

	s := types.SessionState{HabitDescription: "I smoke too much"}
	s, canon := p.Canonicalize(ctx, s)
	s, safety := p.Safety(ctx, s)
	s, quiz := p.QuizForm(ctx, s)
	s, summary := p.QuizSummary(ctx, s)
	s, plan := p.Plan21(ctx, s)
	s, coach := p.Coach(ctx, s)

	for _, fb := range []bool{canon.Fallback(), safety.Fallback(), quiz.Fallback(), summary.Fallback(), plan.Fallback(), coach.Fallback()} {
		assert.True(t, fb)
	}
	assert.Equal(t, "unknown", s.HabitCategory)
	assert.True(t, s.Blocked())
	assert.Equal(t, types.RiskOther, s.Safety.Risk)
	assert.NoError(t, s.QuizForm.Validate())
	assert.NoError(t, s.Plan21.Validate())
	assert.Equal(t, fallback.BlockedReply, s.CoachReply)
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Retry.MaxAttempts = 3
	cfg.Pipeline.Stages.Coach.MaxTokens = 123

	client := &llmtest.Client{Default: llmtest.Reply{Text: "nope"}}
	p := FromConfig(client, cfg, nil)

	assert.Equal(t, 3, p.Invoker().Policy().MaxAttempts)
	p.Canonicalize(context.Background(), types.SessionState{HabitDescription: "x"})
	assert.Len(t, client.Calls(), 3)

	p.Coach(context.Background(), allowedState())
	assert.Equal(t, 123, client.CallsFor(StageCoach)[0].MaxTokens)
}

func TestFallbacksAreLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	p := newTestPipeline(t, llmtest.Failing(llm.ErrOffline),
		WithLogger(zap.New(core)), WithMeterProvider(provider))
	p.Safety(context.Background(), types.SessionState{HabitDescription: "x"})
	p.Plan21(context.Background(), types.SessionState{})

	fallbackLogs := logs.FilterMessage("stage fell back").All()
	require.Len(t, fallbackLogs, 2)
	assert.Equal(t, StageSafety, fallbackLogs[0].ContextMap()["stage"])

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "unhabit.stage.fallbacks" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestStageNamesMatchTemplates(t *testing.T) {
	ids := prompt.MustCompiler().IDs()
	for _, stage := range []string{StageCanonicalize, StageSafety, StageQuizForm, StageQuizSummary, StagePlan21, StageCoach} {
		assert.Contains(t, ids, prompt.ID(stage))
	}
}
