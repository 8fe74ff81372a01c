package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/studylog/internal/ui/theme"
)

// ProgressBar renders how far a value is toward a target.
type ProgressBar struct {
	Label string
	// Fraction is clamped to [0, 1] for the bar. The percent label is not.
	Fraction    float64
	ShowPercent bool
	Width       int
}

func NewProgressBar(label string, fraction float64, showPercent bool, width int) ProgressBar {
	return ProgressBar{
		Label:       label,
		Fraction:    fraction,
		ShowPercent: showPercent,
		Width:       width,
	}
}

func (p ProgressBar) View() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.Text).Render(p.Label) + "  ")
	}

	percentWidth := 0
	if p.ShowPercent {
		percentWidth = 7 // "  100%"
	}
	barWidth := max(4, p.Width-lipgloss.Width(b.String())-percentWidth)

	filled := int(float64(barWidth) * min(max(p.Fraction, 0), 1))
	b.WriteString(theme.ProgressColor(p.Fraction).Render(strings.Repeat(" ", filled)))
	b.WriteString(lipgloss.NewStyle().Background(theme.Border).Render(strings.Repeat(" ", barWidth-filled)))

	if p.ShowPercent {
		b.WriteString(lipgloss.NewStyle().
			Foreground(theme.TextDim).
			Render(fmt.Sprintf("  %d%%", int(p.Fraction*100))))
	}
	return b.String()
}
