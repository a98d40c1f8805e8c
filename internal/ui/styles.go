package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. Single cyan accent, everything else neutral.
const (
	ColorCyan     = "45"  // primary accent, bright cyan
	ColorCyanDim  = "37"  // dimmed cyan for inactive elements
	ColorWhite    = "255" // headers, important text
	ColorGray     = "245" // secondary text, labels
	ColorDarkGray = "238" // box borders, separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds all UI styles for TUI rendering.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style

	Border    lipgloss.Style
	Sparkline lipgloss.Style
	Speed     lipgloss.Style
	Label     lipgloss.Style
}

// DefaultStyles returns styled components for TUI mode.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),

		Border:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Sparkline: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan)),
		Speed:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle(),
		Success:   lipgloss.NewStyle(),
		Warning:   lipgloss.NewStyle(),
		Error:     lipgloss.NewStyle(),
		Dim:       lipgloss.NewStyle(),
		Active:    lipgloss.NewStyle(),
		Border:    lipgloss.NewStyle(),
		Sparkline: lipgloss.NewStyle(),
		Speed:     lipgloss.NewStyle(),
		Label:     lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
