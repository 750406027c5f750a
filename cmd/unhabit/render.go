package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"unhabit/internal/session"
	"unhabit/internal/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	promptStyle = lipgloss.NewStyle().Bold(true)
	helperStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	noteStyle   = lipgloss.NewStyle().Faint(true)
	coachStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	alertStyle  = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F87")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF5F87")).
			Padding(0, 1)
)

func printTitle(w io.Writer, text string) {
	fmt.Fprintln(w, titleStyle.Render(text))
}

func printCoach(w io.Writer, reply string) {
	fmt.Fprintln(w, coachStyle.Render("Coach:"), reply)
}

func printBlocked(w io.Writer, s *types.SafetyResult) {
	msg := "This session can't continue."
	if s != nil && s.Message != "" {
		msg = s.Message
	}
	fmt.Fprintln(w, alertStyle.Render(msg))
}

func printQuestion(w io.Writer, n int, q types.QuizQuestion) {
	fmt.Fprintln(w, promptStyle.Render(fmt.Sprintf("%d. %s", n, q.Question)))
	if q.HelperText != "" {
		fmt.Fprintln(w, helperStyle.Render("   "+q.HelperText))
	}
}

// printNotes tells the user which steps used built-in content.
func printNotes(w io.Writer, step session.Step) {
	for _, r := range step.Fallbacks() {
		if verbose {
			fmt.Fprintln(w, noteStyle.Render(fmt.Sprintf("(%s used built-in content: %s)", r.Stage, r.Reason)))
		} else {
			fmt.Fprintln(w, noteStyle.Render(fmt.Sprintf("(%s used built-in content)", r.Stage)))
		}
	}
}

// planMarkdown formats a plan for rendering.
func planMarkdown(p *types.Plan21) string {
	var sb strings.Builder
	sb.WriteString("## Your 21-day plan\n\n")
	sb.WriteString(p.PlanSummary)
	sb.WriteString("\n\n")
	for i, task := range p.Tasks() {
		if i%7 == 0 {
			fmt.Fprintf(&sb, "\n### Week %d\n\n", i/7+1)
		}
		fmt.Fprintf(&sb, "- **Day %d:** %s\n", i+1, task)
	}
	return sb.String()
}

func printPlan(w io.Writer, p *types.Plan21) {
	if p == nil {
		return
	}
	md := planMarkdown(p)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		if out, err := renderer.Render(md); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprint(w, md)
}
