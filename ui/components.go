package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// colKey is the label column width inside key/value boxes.
const colKey = 16

type kv struct {
	Key string
	Val string
}

// styledPad pads a styled string to the given visual width using spaces.
// Unlike fmt.Sprintf("%-Xs"), this accounts for ANSI escape codes.
func styledPad(styled string, width int) string {
	visW := lipgloss.Width(styled)
	if visW >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-visW)
}

// boxTop renders the top border of a rounded box.
// Total visual width = innerW + 5 (1 indent + 1 corner + innerW+2 dashes + 1 corner).
func boxTop(innerW int) string {
	return " " + dimStyle.Render("╭"+strings.Repeat("─", innerW+2)+"╮")
}

func boxBot(innerW int) string {
	return " " + dimStyle.Render("╰"+strings.Repeat("─", innerW+2)+"╯")
}

func boxMid(innerW int) string {
	return " " + dimStyle.Render("├"+strings.Repeat("─", innerW+2)+"┤")
}

// boxRow renders one content line inside a box, padded to innerW.
func boxRow(content string, innerW int) string {
	pad := max(innerW-lipgloss.Width(content), 0)
	return " " + dimStyle.Render("│") + " " + content + strings.Repeat(" ", pad) + " " + dimStyle.Render("│")
}

// boxSection renders a titled section inside a bordered box. Lines wider
// than the box are wrapped.
func boxSection(title string, lines []string, innerW int) string {
	var sb strings.Builder
	sb.WriteString(boxTop(innerW) + "\n")
	sb.WriteString(boxRow(headerStyle.Render(title), innerW) + "\n")
	sb.WriteString(boxMid(innerW) + "\n")
	for _, line := range lines {
		for _, l := range wrap(line, innerW) {
			sb.WriteString(boxRow(l, innerW) + "\n")
		}
	}
	sb.WriteString(boxBot(innerW) + "\n")
	return sb.String()
}

// kvLines renders key/value pairs with an aligned label column.
func kvLines(details []kv) []string {
	out := make([]string, 0, len(details))
	for _, d := range details {
		out = append(out, fmt.Sprintf("%s %s", styledPad(dimStyle.Render(d.Key+":"), colKey), d.Val))
	}
	return out
}

func wrap(s string, width int) []string {
	if lipgloss.Width(s) <= width {
		return []string{s}
	}
	return strings.Split(lipgloss.NewStyle().Width(width).Render(s), "\n")
}

// pageInnerW computes box inner width from terminal width.
func pageInnerW(termWidth int) int {
	return max(termWidth-6, 60)
}

// truncate shortens s to maxLen runes with an ellipsis if needed.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// bar renders a fill bar for ratio in [0,1] of the given width.
func bar(ratio float64, width int) string {
	ratio = min(max(ratio, 0), 1)
	filled := int(ratio * float64(width))
	style := okStyle
	switch {
	case ratio >= 1:
		style = critStyle
	case ratio >= 0.5:
		style = warnStyle
	}
	return style.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
}
