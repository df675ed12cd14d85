// Package progress renders the throttled human-readable status text shown
// to users while a generation job is in flight.
package progress

import (
	"fmt"
	"time"
)

// DefaultPromptBudget is the number of prompt characters echoed back in a
// progress message before truncation.
const DefaultPromptBudget = 100

// ellipsis marks a truncated prompt.
const ellipsis = "…"

// Reporter renders progress text for one provider variant.
type Reporter struct {
	// AvgDuration is the fixed per-variant estimate used for the
	// remaining-time hint. It is a constant, not a measurement.
	AvgDuration time.Duration
	// PromptBudget caps the echoed prompt length; zero means the default.
	PromptBudget int
}

// NewReporter creates a Reporter for a variant's average duration.
func NewReporter(avgDuration time.Duration) *Reporter {
	return &Reporter{
		AvgDuration:  avgDuration,
		PromptBudget: DefaultPromptBudget,
	}
}

// Render produces the progress text for a job at the given elapsed time.
// The remaining estimate never goes negative; once elapsed passes the
// average the message keeps a zero estimate rather than counting up.
func (r *Reporter) Render(prompt string, elapsed time.Duration) string {
	remaining := r.AvgDuration - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return fmt.Sprintf(
		"Generating video: %s\nElapsed: %s, about %s remaining",
		r.TruncatePrompt(prompt),
		formatDuration(elapsed),
		formatDuration(remaining),
	)
}

// TruncatePrompt cuts the prompt to the budget and appends an ellipsis.
// Truncation is rune-aware so multi-byte prompts are not split mid-character.
func (r *Reporter) TruncatePrompt(prompt string) string {
	budget := r.PromptBudget
	if budget <= 0 {
		budget = DefaultPromptBudget
	}

	runes := []rune(prompt)
	if len(runes) <= budget {
		return prompt
	}
	return string(runes[:budget]) + ellipsis
}

// IdempotentUpdate returns the new text and true when it differs from the
// previous one, and "" and false otherwise, so callers never re-send an
// unchanged notification. Pure function.
func IdempotentUpdate(previous, next string) (string, bool) {
	if previous == next {
		return "", false
	}
	return next, true
}

// formatDuration renders a duration as whole seconds, or minutes and
// seconds once it passes a minute.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}
