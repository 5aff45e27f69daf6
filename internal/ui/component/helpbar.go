package component

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/ui/style"
)

// HelpBar shows the key bindings of the current screen, or every binding
// grouped in columns when expanded.
type HelpBar struct {
	keyBindings []key.Binding
	groups      [][]key.Binding
	width       int
	expanded    bool

	keyStyle       lipgloss.Style
	descStyle      lipgloss.Style
	sepStyle       lipgloss.Style
	containerStyle lipgloss.Style
}

// NewHelpBar creates a new help bar component
func NewHelpBar() *HelpBar {
	palette := style.DefaultPalette()

	return &HelpBar{
		width: 80,

		keyStyle: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true),

		descStyle: lipgloss.NewStyle().
			Foreground(palette.TextMuted),

		sepStyle: lipgloss.NewStyle().
			Foreground(palette.TextMuted),

		containerStyle: lipgloss.NewStyle().
			Padding(0, 1).
			Margin(1, 0, 0, 0),
	}
}

// SetKeyBindings sets the key bindings to display
func (h *HelpBar) SetKeyBindings(bindings []key.Binding) *HelpBar {
	h.keyBindings = bindings
	return h
}

// SetFullHelp sets the grouped bindings shown when expanded.
func (h *HelpBar) SetFullHelp(groups [][]key.Binding) *HelpBar {
	h.groups = groups
	return h
}

// SetWidth sets the help bar width
func (h *HelpBar) SetWidth(width int) *HelpBar {
	h.width = width
	return h
}

// Toggle switches between the short and the expanded help.
func (h *HelpBar) Toggle() {
	h.expanded = !h.expanded
}

// View renders the help bar
func (h *HelpBar) View() string {
	if h.expanded && len(h.groups) > 0 {
		return h.containerStyle.Render(h.viewGroups())
	}
	items := h.items(h.keyBindings)
	if len(items) == 0 {
		return ""
	}
	sep := h.sepStyle.Render(" • ")
	return h.containerStyle.Width(h.width).Render(h.wrap(items, h.width-4, sep))
}

func (h *HelpBar) items(bindings []key.Binding) []string {
	items := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() || b.Help().Desc == "" {
			continue
		}
		items = append(items, h.keyStyle.Render(b.Help().Key)+" "+h.descStyle.Render(b.Help().Desc))
	}
	return items
}

func (h *HelpBar) viewGroups() string {
	cols := make([]string, 0, len(h.groups))
	for _, g := range h.groups {
		cols = append(cols, lipgloss.NewStyle().MarginRight(4).Render(strings.Join(h.items(g), "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// wrap joins items with sep, breaking lines at maxWidth.
func (h *HelpBar) wrap(items []string, maxWidth int, sep string) string {
	var lines []string
	var line []string
	width := 0
	sepWidth := lipgloss.Width(sep)

	for _, item := range items {
		w := lipgloss.Width(item) + sepWidth
		if width+w > maxWidth && len(line) > 0 {
			lines = append(lines, strings.Join(line, sep))
			line, width = nil, 0
		}
		line = append(line, item)
		width += w
	}
	if len(line) > 0 {
		lines = append(lines, strings.Join(line, sep))
	}
	return strings.Join(lines, "\n")
}
