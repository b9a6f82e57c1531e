package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/xtriage/model"
)

var (
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	headerStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
	orangeStyle = lipgloss.NewStyle().Foreground(colorOrange)
)

// tierStyle colors a confidence tier: high is the most actionable.
func tierStyle(t model.ConfidenceTier) lipgloss.Style {
	switch t {
	case model.TierHigh:
		return critStyle
	case model.TierMedium:
		return warnStyle
	case model.TierLow:
		return orangeStyle
	default:
		return dimStyle
	}
}

func verdictStyle(v model.FilterVerdict) lipgloss.Style {
	if v == model.DeleteBenign {
		return okStyle
	}
	return critStyle
}
