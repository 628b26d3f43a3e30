package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/beadworks/beads/internal/types"
)

// Palette shared by every renderer. Adaptive pairs keep output readable
// on both light and dark backgrounds.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#02A868", Dark: "#2AD28C"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#B57C02", Dark: "#E5B567"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C93B52", Dark: "#E06C75"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#5C5C5C"}
)

var (
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	IDStyle      = lipgloss.NewStyle().Foreground(ColorAccent)
)

// ConfigureColors pins the lipgloss color profile for the process.
// Called once from command setup, after flags are parsed, so --json and
// piped output render as plain text.
func ConfigureColors() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

var statusStyles = map[types.Status]lipgloss.Style{
	types.StatusOpen:       lipgloss.NewStyle().Foreground(ColorPass),
	types.StatusInProgress: lipgloss.NewStyle().Foreground(ColorAccent),
	types.StatusBlocked:    lipgloss.NewStyle().Foreground(ColorFail),
	types.StatusDeferred:   lipgloss.NewStyle().Foreground(ColorWarn),
	types.StatusClosed:     lipgloss.NewStyle().Foreground(ColorMuted),
	types.StatusPinned:     lipgloss.NewStyle().Foreground(ColorWarn),
	types.StatusHooked:     lipgloss.NewStyle().Foreground(ColorWarn),
	types.StatusTombstone:  lipgloss.NewStyle().Foreground(ColorMuted).Strikethrough(true),
}

// RenderStatus renders a status name in its conventional color.
func RenderStatus(status types.Status) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(string(status))
	}
	return string(status)
}

// RenderPriority renders P0..P4. The urgent half of the scale gets
// color, P2 and below stay plain.
func RenderPriority(priority int) string {
	label := fmt.Sprintf("P%d", priority)
	switch priority {
	case 0:
		return ErrorStyle.Bold(true).Render(label)
	case 1:
		return WarnStyle.Render(label)
	default:
		return label
	}
}

// RenderID renders an issue ID in the accent color.
func RenderID(id string) string {
	return IDStyle.Render(id)
}

// RenderPass renders a success marker.
func RenderPass(s string) string {
	return SuccessStyle.Render(s)
}

// RenderWarn renders a warning marker.
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}
