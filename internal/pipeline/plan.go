package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"unhabit/internal/fallback"
	"unhabit/internal/guidance"
	"unhabit/internal/invoker"
	"unhabit/internal/prompt"
	"unhabit/internal/schema"
	"unhabit/internal/types"
)

// Plan21 designs the 21-day plan from the habit profile and category
// guidance. Missing or invalid days are filled from the deterministic plan;
// a reply of the wrong shape is replaced entirely. Without a profile the
// deterministic plan is returned without calling the model.
func (p *Pipeline) Plan21(ctx context.Context, s types.SessionState) (types.SessionState, Outcome[types.Plan21]) {
	out := p.plan21(ctx, s)
	if out.Fallback() {
		p.recordFallback(ctx, StagePlan21, out.Reason)
	} else {
		p.recordRepair(StagePlan21, out.Repaired)
	}
	v := out.Value
	return s.Apply(types.Update{Plan21: &v}), out
}

func (p *Pipeline) plan21(ctx context.Context, s types.SessionState) Outcome[types.Plan21] {
	if s.QuizSummary == nil {
		return fellBack(fallback.Plan21(nil), "no habit profile")
	}
	base := fallback.Plan21(s.QuizSummary)

	call, err := p.call(prompt.Plan21, p.stages.Plan21, prompt.Fields{
		prompt.FieldQuizSummaryJSON:  marshal(s.QuizSummary),
		prompt.FieldCategoryGuidance: guidance.Select(s.QuizSummary).Render(),
	})
	if err != nil {
		return fellBack(base, err.Error())
	}
	res := p.invoker.JSON(ctx, call, schema.Plan21)
	if !res.OK() {
		return fellBack(base, reason(res.LastErr))
	}

	plan, repaired, ok := sanitizePlan(res.Doc, base, s.QuizSummary.CanonicalHabitName)
	if !ok {
		return fellBack(base, "plan has the wrong shape")
	}
	if err := validatePlan(plan); err != nil {
		return fellBack(base, err.Error())
	}
	// plan_summary, when repaired, is always last.
	repairedDays := len(repaired)
	if repairedDays > 0 && repaired[repairedDays-1] == "plan_summary" {
		repairedDays--
	}
	if repairedDays == types.PlanDays {
		return fellBack(base, "plan has no usable days")
	}
	return generated(plan, repaired...)
}

// sanitizePlan rebuilds a plan from a model document. Each day that is
// missing, not a string, blank, or too long is taken from base; keys other
// than day_1..day_21 are dropped. It reports false when day_tasks is
// present but not an object.
func sanitizePlan(doc invoker.Document, base types.Plan21, canonical string) (types.Plan21, []string, bool) {
	var (
		tasks    invoker.Document
		repaired []string
	)
	if raw, present := doc["day_tasks"]; present && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return types.Plan21{}, nil, false
		}
		tasks = obj
	}

	plan := types.Plan21{DayTasks: make(map[string]string, types.PlanDays)}
	for _, key := range types.DayKeys() {
		task, _ := tasks.String(key)
		task = strings.TrimSpace(task)
		if !types.ValidTask(task) {
			task = base.DayTasks[key]
			repaired = append(repaired, key)
		}
		plan.DayTasks[key] = task
	}

	summary, ok := doc.String("plan_summary")
	summary = strings.TrimSpace(summary)
	if !ok || summary == "" {
		summary = fallback.PlanSummary(canonical)
		repaired = append(repaired, "plan_summary")
	}
	plan.PlanSummary = summary
	return plan, repaired, true
}

// validatePlan checks the final plan against the plan schema.
func validatePlan(plan types.Plan21) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = schema.Plan21.ValidateJSON(raw)
	return err
}
