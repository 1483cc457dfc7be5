// Package theme holds the lipgloss styles used by CLI output.
package theme

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/assessor/internal/difficulty"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim)

	Label = lipgloss.NewStyle().
		Foreground(TextDim).
		Width(18)

	Value = lipgloss.NewStyle().
		Foreground(Text).
		Bold(true)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)
)

// States
var (
	Correct = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Incorrect = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	Warning = lipgloss.NewStyle().
		Foreground(Accent)

	ProgressFilled = lipgloss.NewStyle().
			Foreground(Secondary)

	ProgressEmpty = lipgloss.NewStyle().
			Foreground(Border)
)

var levelColors = map[difficulty.Level]string{
	difficulty.Easy:     "#22C55E",
	difficulty.Medium:   "#14B8A6",
	difficulty.Hard:     "#F97316",
	difficulty.Advanced: "#F43F5E",
}

// Level renders a difficulty level as a colored badge.
func Level(l difficulty.Level) string {
	c, ok := levelColors[l]
	if !ok {
		c = "#94A3B8"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(c)).
		Bold(true).
		Render(l.String())
}

// Mark renders a check or cross.
func Mark(correct bool) string {
	if correct {
		return Correct.Render("✓")
	}
	return Incorrect.Render("✗")
}

// Row renders one label and value pair.
func Row(label string, value any) string {
	return Label.Render(label) + Value.Render(fmt.Sprint(value))
}

// Bar renders a progress bar width cells wide filled to frac.
func Bar(width int, frac float64) string {
	if width <= 0 {
		return ""
	}
	frac = min(max(frac, 0), 1)
	filled := int(frac*float64(width) + 0.5)
	return ProgressFilled.Render(strings.Repeat("█", filled)) +
		ProgressEmpty.Render(strings.Repeat("░", width-filled))
}

// Percent renders an accuracy percentage colored by threshold.
func Percent(p int) string {
	s := fmt.Sprintf("%d%%", p)
	switch {
	case p >= 80:
		return Correct.Render(s)
	case p < 60:
		return Incorrect.Render(s)
	}
	return Value.Render(s)
}
