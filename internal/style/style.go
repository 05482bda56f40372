// Package style holds the lipgloss styles used by the informational
// subcommands. The echo path never renders styles: stdout there is data.
package style

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha accents
var (
	Surface1 = lipgloss.Color("#45475a")
	Overlay1 = lipgloss.Color("#7f849c")
	Text     = lipgloss.Color("#cdd6f4")
	Green    = lipgloss.Color("#a6e3a1")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")
	Mauve    = lipgloss.Color("#cba6f7")
)

var (
	// Title heads a block of port details
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Mauve)

	// Header is the column header row of the port table
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Mauve).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(Surface1)

	Cell = lipgloss.NewStyle().
		Foreground(Text).
		PaddingRight(2)

	Label = lipgloss.NewStyle().
		Foreground(Overlay1)

	Error = lipgloss.NewStyle().
		Foreground(Red)
)

// PortKind is the broad family of a serial device
type PortKind int

const (
	KindOther PortKind = iota
	KindUSB
	KindOnboard
)

// ForKind returns the cell style for a port of the given kind
func ForKind(k PortKind) lipgloss.Style {
	switch k {
	case KindUSB:
		return Cell.Foreground(Green)
	case KindOnboard:
		return Cell.Foreground(Peach)
	default:
		return Cell
	}
}
