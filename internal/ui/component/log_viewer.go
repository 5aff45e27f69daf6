package component

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/nregabot/nregabot/internal/ui/style"
)

// LogFilter defines what log levels to show
type LogFilter struct {
	ShowError   bool
	ShowWarning bool
	ShowInfo    bool
	ShowDebug   bool
}

// LogViewer shows the tail of the in-memory log buffer in a scrollable
// viewport.
type LogViewer struct {
	buffer   *logger.LogBuffer
	viewport viewport.Model
	filter   LogFilter
	style    LogViewerStyle
	limit    int
	follow   bool
	// seq of the newest entry rendered, 0 forces a reload
	seq uint64
}

// LogViewerStyle contains all styling for the log viewer
type LogViewerStyle struct {
	container lipgloss.Style
	timestamp lipgloss.Style
	name      lipgloss.Style
	fields    lipgloss.Style
	error     lipgloss.Style
	warning   lipgloss.Style
	info      lipgloss.Style
	debug     lipgloss.Style
}

// NewLogViewer creates a log viewer over buffer, which may be nil.
func NewLogViewer(buffer *logger.LogBuffer) *LogViewer {
	palette := style.DefaultPalette()

	return &LogViewer{
		buffer: buffer,
		limit:  500,
		follow: true,
		filter: LogFilter{
			ShowError:   true,
			ShowWarning: true,
			ShowInfo:    true,
		},
		style: LogViewerStyle{
			container: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Info).
				Padding(0, 1),
			timestamp: lipgloss.NewStyle().Foreground(palette.TextMuted),
			name:      lipgloss.NewStyle().Foreground(palette.Secondary),
			fields:    lipgloss.NewStyle().Foreground(palette.TextSecondary),
			error:     lipgloss.NewStyle().Foreground(palette.Error).Bold(true),
			warning:   lipgloss.NewStyle().Foreground(palette.Warning).Bold(true),
			info:      lipgloss.NewStyle().Foreground(palette.Info),
			debug:     lipgloss.NewStyle().Foreground(palette.TextMuted),
		},
		viewport: viewport.New(80, 10),
	}
}

// SetSize sets the component dimensions
func (lv *LogViewer) SetSize(width, height int) {
	lv.viewport.Width = max(width-4, 10)
	lv.viewport.Height = max(height-2, 2)
}

// ToggleLogLevel toggles a specific log level
func (lv *LogViewer) ToggleLogLevel(level string) {
	switch level {
	case "error":
		lv.filter.ShowError = !lv.filter.ShowError
	case "warn":
		lv.filter.ShowWarning = !lv.filter.ShowWarning
	case "info":
		lv.filter.ShowInfo = !lv.filter.ShowInfo
	case "debug":
		lv.filter.ShowDebug = !lv.filter.ShowDebug
	}
	lv.seq = 0
	lv.Refresh()
}

// Filter returns the active filter.
func (lv *LogViewer) Filter() LogFilter {
	return lv.filter
}

// Update handles scrolling. Scrolling away from the bottom stops following
// new entries until the bottom is reached again.
func (lv *LogViewer) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	lv.viewport, cmd = lv.viewport.Update(msg)
	lv.follow = lv.viewport.AtBottom()
	return cmd
}

// Refresh reloads the viewport content when the buffer has new entries.
func (lv *LogViewer) Refresh() {
	if lv.buffer == nil {
		lv.viewport.SetContent("No log buffer available")
		return
	}
	seq := lv.buffer.Seq()
	if seq != 0 && seq == lv.seq {
		return
	}
	lv.seq = seq

	entries := lv.buffer.Recent(lv.limit, lv.shouldShowEntry)
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, lv.formatLogEntry(entry))
	}
	if len(lines) == 0 {
		lv.viewport.SetContent("No logs match current filter")
		return
	}
	lv.viewport.SetContent(strings.Join(lines, "\n"))
	if lv.follow {
		lv.viewport.GotoBottom()
	}
}

// View renders the log viewer
func (lv *LogViewer) View() string {
	return lv.style.container.Render(lv.viewport.View())
}

func (lv *LogViewer) shouldShowEntry(entry logger.LogEntry) bool {
	switch strings.ToLower(entry.Level) {
	case "error", "dpanic", "panic", "fatal":
		return lv.filter.ShowError
	case "warning", "warn":
		return lv.filter.ShowWarning
	case "debug":
		return lv.filter.ShowDebug
	default:
		return lv.filter.ShowInfo
	}
}

func (lv *LogViewer) formatLogEntry(entry logger.LogEntry) string {
	var level lipgloss.Style
	switch strings.ToLower(entry.Level) {
	case "error", "dpanic", "panic", "fatal":
		level = lv.style.error
	case "warning", "warn":
		level = lv.style.warning
	case "debug":
		level = lv.style.debug
	default:
		level = lv.style.info
	}

	var b strings.Builder
	b.WriteString(lv.style.timestamp.Render(entry.Timestamp.Format("15:04:05")))
	b.WriteString(" ")
	b.WriteString(level.Render(fmt.Sprintf("%-5s", strings.ToUpper(entry.Level))))
	if entry.Logger != "" {
		b.WriteString(" ")
		b.WriteString(lv.style.name.Render(entry.Logger))
	}
	if entry.Task != "" {
		tag := entry.Task
		if len(entry.RunID) >= 8 {
			tag += " " + entry.RunID[:8]
		}
		b.WriteString(" ")
		b.WriteString(lv.style.name.Render("[" + tag + "]"))
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)
	if f := formatFields(entry.Fields); f != "" {
		b.WriteString(" ")
		b.WriteString(lv.style.fields.Render(f))
	}
	return b.String()
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "task" && k != "run_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}

// GetFilterStatus returns current filter status as string
func (lv *LogViewer) GetFilterStatus() string {
	var active []string
	if lv.filter.ShowError {
		active = append(active, "Error")
	}
	if lv.filter.ShowWarning {
		active = append(active, "Warning")
	}
	if lv.filter.ShowInfo {
		active = append(active, "Info")
	}
	if lv.filter.ShowDebug {
		active = append(active, "Debug")
	}
	if len(active) == 0 {
		return "No levels shown"
	}
	return fmt.Sprintf("Showing: %s", strings.Join(active, ", "))
}
