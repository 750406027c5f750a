package types

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SAFETY
// =============================================================================

// Risk is the safety classifier's risk label.
type Risk string

const (
	RiskNone            Risk = "none"
	RiskSelfHarm        Risk = "self_harm"
	RiskEatingDisorder  Risk = "eating_disorder"
	RiskSevereAddiction Risk = "severe_addiction"
	RiskViolence        Risk = "violence"
	RiskOther           Risk = "other"
)

// Action is the safety gate decision.
type Action string

const (
	ActionAllow            Action = "allow"
	ActionBlockAndEscalate Action = "block_and_escalate"
)

// SafetyResult is the output of the Safety stage.
type SafetyResult struct {
	Risk    Risk   `json:"risk"`
	Action  Action `json:"action"`
	Message string `json:"message"`
}

// Blocked reports whether the result short-circuits coaching.
func (r SafetyResult) Blocked() bool {
	return r.Action == ActionBlockAndEscalate
}

// =============================================================================
// QUIZ
// =============================================================================

// Quiz size bounds.
const (
	MinQuizQuestions = 8
	MaxQuizQuestions = 10
)

// QuizQuestion is one entry of the personalized quiz.
type QuizQuestion struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	HelperText string `json:"helper_text,omitempty"`
}

// QuizForm is the output of the QuizForm stage.
type QuizForm struct {
	HabitNameGuess string         `json:"habit_name_guess"`
	Questions      []QuizQuestion `json:"questions"`
}

var (
	ErrQuizSize        = errors.New("quiz question count out of range")
	ErrQuizDuplicateID = errors.New("duplicate quiz question id")
	ErrQuizEmptyField  = errors.New("empty quiz question field")
)

// Validate checks the question count and id uniqueness.
func (f QuizForm) Validate() error {
	n := len(f.Questions)
	if n < MinQuizQuestions || n > MaxQuizQuestions {
		return fmt.Errorf("%w: got %d, want %d-%d", ErrQuizSize, n, MinQuizQuestions, MaxQuizQuestions)
	}
	seen := make(map[string]struct{}, n)
	for i, q := range f.Questions {
		id := strings.TrimSpace(q.ID)
		if id == "" || strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("%w: question %d", ErrQuizEmptyField, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q", ErrQuizDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// QuizSummary is the structured habit profile produced from the quiz answers.
type QuizSummary struct {
	UserHabitRaw       string `json:"user_habit_raw"`
	CanonicalHabitName string `json:"canonical_habit_name"`
	HabitCategory      string `json:"habit_category"`
	CategoryConfidence string `json:"category_confidence"`
	ProductType        string `json:"product_type"`
	SeverityLevel      string `json:"severity_level"`
	MainTrigger        string `json:"main_trigger"`
	PeakTimes          string `json:"peak_times"`
	CommonLocations    string `json:"common_locations"`
	EmotionalPatterns  string `json:"emotional_patterns"`
	FrequencyPattern   string `json:"frequency_pattern"`
	PreviousAttempts   string `json:"previous_attempts"`
	MotivationReason   string `json:"motivation_reason"`
	RiskSituations     string `json:"risk_situations"`
}

// =============================================================================
// PLAN
// =============================================================================

// PlanDays is the fixed length of the intervention plan.
const PlanDays = 21

// MaxTaskLength bounds a single day's instruction, in runes.
const MaxTaskLength = 300

// Plan21 is the 21-day intervention plan.
type Plan21 struct {
	PlanSummary string            `json:"plan_summary"`
	DayTasks    map[string]string `json:"day_tasks"`
}

var (
	ErrPlanMissingDay = errors.New("plan day missing or blank")
	ErrPlanExtraKey   = errors.New("plan has unexpected day key")
	ErrPlanTaskLength = errors.New("plan task too long")
)

// DayKey returns the day_tasks key for day n (1-based).
func DayKey(n int) string {
	return fmt.Sprintf("day_%d", n)
}

// DayKeys returns day_1..day_21 in order.
func DayKeys() []string {
	keys := make([]string, PlanDays)
	for i := range keys {
		keys[i] = DayKey(i + 1)
	}
	return keys
}

// ValidTask reports whether s is usable as a day instruction.
func ValidTask(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && len([]rune(s)) <= MaxTaskLength
}

// Validate checks that day_tasks holds exactly day_1..day_21, all usable.
func (p Plan21) Validate() error {
	for _, key := range DayKeys() {
		task, ok := p.DayTasks[key]
		if !ok || strings.TrimSpace(task) == "" {
			return fmt.Errorf("%w: %s", ErrPlanMissingDay, key)
		}
		if !ValidTask(task) {
			return fmt.Errorf("%w: %s", ErrPlanTaskLength, key)
		}
	}
	if len(p.DayTasks) != PlanDays {
		for key := range p.DayTasks {
			if !isDayKey(key) {
				return fmt.Errorf("%w: %s", ErrPlanExtraKey, key)
			}
		}
	}
	return nil
}

// Tasks returns the day instructions in day order.
func (p Plan21) Tasks() []string {
	out := make([]string, 0, PlanDays)
	for _, key := range DayKeys() {
		out = append(out, p.DayTasks[key])
	}
	return out
}

func isDayKey(key string) bool {
	for i := 1; i <= PlanDays; i++ {
		if key == DayKey(i) {
			return true
		}
	}
	return false
}

// =============================================================================
// CHAT
// =============================================================================

// Role identifies the speaker of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one entry of the coaching conversation.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
