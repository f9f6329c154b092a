package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var TableGray = lipgloss.Color("240")

var Title = lipgloss.NewStyle().Inline(true).Bold(true).Foreground(lipgloss.Color("252")).Render
var Help = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("241")).Render
var TableBase = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(TableGray).Render

var Good = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("70")).Render
var Bad = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("203")).Render

// OffsetWarnMs is the offset beyond which Offset renders in the Bad style.
const OffsetWarnMs = 1000

// Offset renders a millisecond offset with an explicit sign.
func Offset(ms int64) string {
	text := fmt.Sprintf("%+dms", ms)
	if ms > OffsetWarnMs || ms < -OffsetWarnMs {
		return Bad(text)
	}
	return Good(text)
}

// Reachable renders a server's reachability the way the diagnostics dump does.
func Reachable(ok bool) string {
	if ok {
		return Good("OK")
	}
	return Bad("UNREACHABLE")
}
