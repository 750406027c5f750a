// Package fallback produces deterministic stage outputs from whatever
// context is available. Nothing here can fail or call a model.
package fallback

import (
	"fmt"
	"strings"

	"unhabit/internal/types"
)

// Fixed user-facing texts.
const (
	SafetyRefusal = "I'm here only for habit and behavior coaching, so I can't safely respond to this. " +
		"Please avoid medical, illegal, or harmful topics, and consider reaching out to a trusted " +
		"person or local professional if you're in distress."

	BlockedReply = "I'm here only for habit and behavior coaching, so I can't help with medical, legal, " +
		"explicit, or illegal requests. If this is about your health, safety, or a serious situation, " +
		"please talk to a qualified professional or someone you trust in real life."

	CoachEncouragement = "Let's focus on one small step you can do today that matches your plan."
)

// Canonical field defaults.
const (
	UnknownCategory = "unknown"
	LowConfidence   = "low"
)

// Canonical returns the canonicalization used when the model gives nothing
// usable: the raw text, an unknown category and low confidence.
func Canonical(raw string) (name, category, confidence string) {
	return raw, UnknownCategory, LowConfidence
}

// Safety is the fail-closed classification.
func Safety() types.SafetyResult {
	return types.SafetyResult{
		Risk:    types.RiskOther,
		Action:  types.ActionBlockAndEscalate,
		Message: SafetyRefusal,
	}
}

// QuizForm returns a nine-question generic quiz about habit.
func QuizForm(habit string) types.QuizForm {
	label := clip(strings.TrimSpace(habit))
	if label == "" {
		label = "this habit"
	}
	q := func(id, question, helper string) types.QuizQuestion {
		return types.QuizQuestion{ID: id, Question: fmt.Sprintf(question, label), HelperText: helper}
	}
	return types.QuizForm{
		HabitNameGuess: label,
		Questions: []types.QuizQuestion{
			q("q1", "In your own words, what does %s look like for you?", "Describe what you do, what you use, and how it usually happens."),
			q("q2", "How often do you usually do %s in a day or week?", ""),
			q("q3", "At what times of day does %s usually happen?", "For example: late night, after work, during breaks, etc."),
			q("q4", "Where are you most often when %s happens?", "Bedroom, bathroom, desk, outside, with friends, etc."),
			q("q5", "What are you usually feeling right before %s?", "Bored, stressed, lonely, tired, anxious, excited, etc."),
			q("q6", "What tends to trigger %s most often?", "People, places, apps, notifications, objects, situations, etc."),
			q("q7", "Have you tried changing %s before? What worked or failed?", ""),
			q("q8", "Why do you want to reduce or change %s now?", "What matters most to you here?"),
			q("q9", "In which situations is %s hardest to control?", "Specific times, people, places, or moods."),
		},
	}
}

// QuizSummary returns a minimal profile built from the description alone.
func QuizSummary(habit string) types.QuizSummary {
	canonical := habit
	if strings.TrimSpace(canonical) == "" {
		canonical = "user habit"
	}
	return types.QuizSummary{
		UserHabitRaw:       habit,
		CanonicalHabitName: canonical,
		HabitCategory:      "other",
		CategoryConfidence: LowConfidence,
		ProductType:        "unspecified",
		SeverityLevel:      "mild",
		MainTrigger:        "unknown",
		PeakTimes:          "unknown",
		CommonLocations:    "unknown",
		EmotionalPatterns:  "unclear",
		FrequencyPattern:   "unknown",
		PreviousAttempts:   "not_clear",
		MotivationReason:   "user_wants_change",
		RiskSituations:     "unknown",
	}
}

var dayTemplates = [types.PlanDays]string{
	"Write down when and why {habit} usually happens. No pressure to change yet.",
	"Before each urge for {habit}, pause 30 seconds and name what you're feeling.",
	"Move one step further from your usual {trigger} location before acting.",
	"Choose a 5-minute healthy activity to try once when an urge appears.",
	"Disable one small cue that feeds {habit} (notification, tab, app, or object).",
	"Set a clear daily cutoff time after which you do not allow {habit}.",
	"Slip-recovery: review this week, note one pattern, and adjust cutoff time if needed.",
	"Delay {habit} by 5 minutes once today and do your chosen healthy activity first.",
	"Change your usual {habit} location; do it somewhere less comfortable if you must.",
	"Tell future-you in a note why reducing {habit} matters over the next 3 months.",
	"Reduce one typical {habit} episode by half in time, intensity, or frequency.",
	"Plan a simple evening routine that does not include your main trigger source.",
	"Practice one 'urge surfing' cycle: breathe, observe, and let one urge pass unacted.",
	"Slip-recovery: list three things that went well and one small adjustment for next week.",
	"Define a rule: one specific situation where {habit} is no longer allowed at all.",
	"Replace one full {habit} episode with your healthy alternative, start to finish.",
	"Prepare your environment tonight so tomorrow's first hour is completely trigger-free.",
	"Teach someone (or journal) one insight you've learned about your {habit} triggers.",
	"Create a 2-sentence identity statement about who you're becoming without this habit.",
	"Plan how you will keep these limits and routines going after Day 21.",
	"Review progress, refresh your identity statement, and choose one long-term keystone rule.",
}

// Plan21 returns the generic 21-day plan, personalized with the profile's
// habit name, main trigger and motivation when present. summary may be nil.
func Plan21(summary *types.QuizSummary) types.Plan21 {
	var s types.QuizSummary
	if summary != nil {
		s = *summary
	}
	habit := clip(firstNonBlank(s.CanonicalHabitName, s.UserHabitRaw, "your habit"))
	trigger := clip(firstNonBlank(s.MainTrigger, "your usual triggers"))
	motive := clip(firstNonBlank(s.MotivationReason, "your reasons for change"))

	r := strings.NewReplacer("{habit}", habit, "{trigger}", trigger)
	tasks := make(map[string]string, types.PlanDays)
	for i, tmpl := range dayTemplates {
		tasks[types.DayKey(i+1)] = r.Replace(tmpl)
	}
	return types.Plan21{
		PlanSummary: fmt.Sprintf("This 21-day plan helps you reduce %s with small daily actions, "+
			"focusing on awareness, friction around %s, and identity shifts based on %s.", habit, trigger, motive),
		DayTasks: tasks,
	}
}

// PlanSummary synthesizes a summary line for a generated plan that lacks one.
func PlanSummary(canonical string) string {
	return fmt.Sprintf("Personalized 21-day behavioural plan to reduce %s.", clip(firstNonBlank(canonical, "your habit")))
}

// maxLabel keeps interpolated day tasks within types.MaxTaskLength.
const maxLabel = 80

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxLabel {
		return s
	}
	return strings.TrimSpace(string(r[:maxLabel-3])) + "..."
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
