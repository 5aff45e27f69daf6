package component

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/ui/style"
)

// StatusHeader is the one-line banner on top of every screen.
type StatusHeader struct {
	title   string
	screen  string
	running []domain.Key
	notice  string
	width   int
	style   StatusHeaderStyle
}

// StatusHeaderStyle contains all styling for the status header
type StatusHeaderStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	screen    lipgloss.Style
	idle      lipgloss.Style
	busy      lipgloss.Style
	notice    lipgloss.Style
}

// NewStatusHeader creates a new status header component
func NewStatusHeader(title string) *StatusHeader {
	palette := style.DefaultPalette()

	return &StatusHeader{
		title: title,
		style: StatusHeaderStyle{
			container: lipgloss.NewStyle().
				Foreground(palette.Text).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Primary).
				Padding(0, 2),

			title: lipgloss.NewStyle().
				Foreground(palette.Primary).
				Bold(true),

			screen: lipgloss.NewStyle().
				Foreground(palette.TextSecondary),

			idle: lipgloss.NewStyle().
				Foreground(palette.TextMuted),

			busy: lipgloss.NewStyle().
				Foreground(palette.Warning).
				Bold(true),

			notice: lipgloss.NewStyle().
				Foreground(palette.Info),
		},
	}
}

// SetScreen names the current screen.
func (sh *StatusHeader) SetScreen(name string) {
	sh.screen = name
}

// SetRunning updates the keys with an active run.
func (sh *StatusHeader) SetRunning(keys []domain.Key) {
	sh.running = keys
}

// SetNotice shows a short transient message.
func (sh *StatusHeader) SetNotice(notice string) {
	sh.notice = notice
}

// SetWidth sets the component width for responsive layout
func (sh *StatusHeader) SetWidth(width int) {
	sh.width = width
}

// View renders the status header
func (sh *StatusHeader) View() string {
	parts := []string{sh.style.title.Render(sh.title)}
	if sh.screen != "" {
		parts = append(parts, sh.style.screen.Render(sh.screen))
	}
	parts = append(parts, sh.renderRunning())
	if sh.notice != "" {
		parts = append(parts, sh.style.notice.Render(sh.notice))
	}

	c := sh.style.container
	if sh.width > 4 {
		c = c.Width(sh.width - 2)
	}
	return c.Render(strings.Join(parts, " | "))
}

func (sh *StatusHeader) renderRunning() string {
	if len(sh.running) == 0 {
		return sh.style.idle.Render("● idle")
	}
	names := make([]string, len(sh.running))
	for i, k := range sh.running {
		names[i] = string(k)
	}
	return sh.style.busy.Render(fmt.Sprintf("● running: %s", strings.Join(names, ", ")))
}

// GetHeight returns the component height for layout calculations
func (sh *StatusHeader) GetHeight() int {
	return 3
}
