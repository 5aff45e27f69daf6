package style

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/domain"
)

// Light/Dark variants follow the terminal background.
var (
	teal   = lipgloss.AdaptiveColor{Light: "#00796B", Dark: "#4DD0C4"}
	orange = lipgloss.AdaptiveColor{Light: "#E65100", Dark: "#FFA040"}
	amber  = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFCA28"}
	leaf   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"}
	brick  = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
	indigo = lipgloss.AdaptiveColor{Light: "#283593", Dark: "#7986CB"}

	ink    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#E8E8E3"}
	slate  = lipgloss.AdaptiveColor{Light: "#4A4A4A", Dark: "#B0B0A8"}
	ash    = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6E6E68"}
	paper  = lipgloss.AdaptiveColor{Light: "#F5F5F0", Dark: "#1C1C1A"}
	paper2 = lipgloss.AdaptiveColor{Light: "#E8E8E0", Dark: "#2A2A27"}
)

// Palette names colors by role.
type Palette struct {
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
	Warning   lipgloss.AdaptiveColor
	Info      lipgloss.AdaptiveColor

	Background    lipgloss.AdaptiveColor
	BackgroundAlt lipgloss.AdaptiveColor
	Text          lipgloss.AdaptiveColor
	TextMuted     lipgloss.AdaptiveColor
	TextSecondary lipgloss.AdaptiveColor
}

func DefaultPalette() Palette {
	return Palette{
		Primary:       teal,
		Secondary:     orange,
		Success:       leaf,
		Error:         brick,
		Warning:       amber,
		Info:          indigo,
		Background:    paper,
		BackgroundAlt: paper2,
		Text:          ink,
		TextMuted:     ash,
		TextSecondary: slate,
	}
}

var palette = DefaultPalette()

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			Margin(1, 0, 1, 2)

	InfoStyle = lipgloss.NewStyle().
			Foreground(palette.Text).
			Padding(0, 2)

	MutedStyle = lipgloss.NewStyle().
			Foreground(palette.TextMuted).
			Padding(0, 2)

	WarningStyle = lipgloss.NewStyle().
			Foreground(palette.Warning).
			Bold(true).
			Padding(0, 2)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(palette.Error).
			Bold(true).
			Padding(0, 2)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true).
			Padding(0, 2)

	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(palette.Error).
			Padding(1, 3).
			Width(60)
)

// StateColor maps a lifecycle state to its display color.
func StateColor(s domain.State) lipgloss.AdaptiveColor {
	switch s {
	case domain.StateRunning:
		return palette.Warning
	case domain.StateCompleted:
		return palette.Success
	case domain.StateFailed:
		return palette.Error
	case domain.StateCancelled:
		return palette.Secondary
	default:
		return palette.TextMuted
	}
}

// OutcomeColor maps a result outcome to its display color.
func OutcomeColor(o domain.Outcome) lipgloss.AdaptiveColor {
	switch o {
	case domain.OutcomeSuccess:
		return palette.Success
	case domain.OutcomeFailed:
		return palette.Error
	default:
		return palette.Warning
	}
}
