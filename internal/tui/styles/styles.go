package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// --- Color Palette ---
var (
	ColorPrimary = lipgloss.Color("#7D56F4") // Indigo/Purple
	ColorGood    = lipgloss.Color("#04B575") // Green
	ColorError   = lipgloss.Color("#FF5F87") // Pink/Red
	ColorWarning = lipgloss.Color("#FFAF00") // Gold
	ColorSubtle  = lipgloss.Color("#767676") // Gray
	ColorBorder  = lipgloss.Color("#3C3C3C") // Dark Gray border
	ColorBanner  = ColorPrimary
)

// --- Base Styles ---
var (
	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1)

	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)

	Active  = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	Success = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(ColorError)
	Warn    = lipgloss.NewStyle().Foreground(ColorWarning)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 2)
)
