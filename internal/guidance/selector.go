package guidance

import (
	"fmt"
	"strings"

	"unhabit/internal/types"
)

// Guidance is a filled strategy block preceded by the user-specific context.
type Guidance struct {
	Category Category
	Context  []ContextLine
	Block    Block
}

// ContextLine is one labelled fact from the habit profile.
type ContextLine struct {
	Label string
	Value string
}

// Select resolves the category of summary and fills its strategy block.
// It is total: a nil summary yields the default block with placeholder text.
func Select(summary *types.QuizSummary) Guidance {
	var s types.QuizSummary
	if summary != nil {
		s = *summary
	}
	p := profileOf(s)
	cat := Normalize(s.HabitCategory)

	raw := BlockFor(cat)
	filled := Block{Title: raw.Title}
	for _, line := range raw.Strategy {
		filled.Strategy = append(filled.Strategy, p.fill(line))
	}
	for _, req := range raw.Coverage {
		filled.Coverage = append(filled.Coverage, Requirement{Min: req.Min, Topic: p.fill(req.Topic)})
	}

	return Guidance{
		Category: cat,
		Context: []ContextLine{
			{"Exact wording", s.UserHabitRaw},
			{"Canonical habit name", p.name},
			{"Severity", orDefault(s.SeverityLevel, "unspecified")},
			{"Main trigger", p.trigger},
			{"Peak times", p.peak},
			{"Common locations", p.loc},
			{"Emotional pattern", p.emo},
			{"Frequency pattern", orDefault(s.FrequencyPattern, "unclear frequency")},
			{"Motivation", p.motive},
			{"High-risk situations", p.risk},
			{"Previous attempts", orDefault(s.PreviousAttempts, "not clearly described")},
		},
		Block: filled,
	}
}

// Render formats the guidance as prompt text.
func (g Guidance) Render() string {
	var sb strings.Builder
	sb.WriteString("User-specific context:\n")
	for _, c := range g.Context {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Label, c.Value)
	}
	sb.WriteString("\nThe plan must refer to these details explicitly across the 21 days.\n\n")

	fmt.Fprintf(&sb, "Category: %s\n\nCore strategy:\n", g.Block.Title)
	for _, line := range g.Block.Strategy {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	sb.WriteString("\nAcross the 21 days, include:\n")
	for _, req := range g.Block.Coverage {
		fmt.Fprintf(&sb, "- At least %d tasks about %s.\n", req.Min, req.Topic)
	}
	return sb.String()
}

type profile struct {
	name, trigger, peak, loc, emo, motive, risk string
}

func profileOf(s types.QuizSummary) profile {
	return profile{
		name:    orDefault(s.CanonicalHabitName, orDefault(s.UserHabitRaw, "the habit")),
		trigger: orDefault(s.MainTrigger, "unclear triggers"),
		peak:    orDefault(s.PeakTimes, "unclear peak times"),
		loc:     orDefault(s.CommonLocations, "unclear locations"),
		emo:     orDefault(s.EmotionalPatterns, "unclear emotional patterns"),
		motive:  orDefault(s.MotivationReason, "unclear motivation"),
		risk:    orDefault(s.RiskSituations, "unclear risk situations"),
	}
}

func (p profile) fill(text string) string {
	return strings.NewReplacer(
		"{name}", p.name,
		"{trigger}", p.trigger,
		"{peak}", p.peak,
		"{loc}", p.loc,
		"{emo}", p.emo,
		"{motive}", p.motive,
		"{risk}", p.risk,
	).Replace(text)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
