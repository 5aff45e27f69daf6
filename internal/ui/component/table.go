package component

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/ui/style"
)

// TableColumn represents a column configuration. A zero width shares the
// remaining space with the other zero-width columns.
type TableColumn struct {
	Header string
	Width  int
	Align  lipgloss.Position
}

// TableRow represents a row of data
type TableRow struct {
	Data  []string
	Style lipgloss.Style
}

// Table renders rows in fixed-width columns and scrolls to keep the
// selection (or, when following, the last row) visible.
type Table struct {
	columns     []TableColumn
	widths      []int
	rows        []TableRow
	width       int
	height      int
	selectedRow int
	offset      int

	headerStyle      lipgloss.Style
	rowStyle         lipgloss.Style
	selectedRowStyle lipgloss.Style
	borderStyle      lipgloss.Style

	showBorder bool
	selectable bool
	follow     bool
	zebra      bool
}

// NewTable creates a new table component
func NewTable() *Table {
	palette := style.DefaultPalette()

	return &Table{
		headerStyle: lipgloss.NewStyle().
			Foreground(palette.Secondary).
			Bold(true).
			Padding(0, 1),

		rowStyle: lipgloss.NewStyle().
			Foreground(palette.Text).
			Padding(0, 1),

		selectedRowStyle: lipgloss.NewStyle().
			Foreground(palette.Background).
			Background(palette.Primary).
			Padding(0, 1),

		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted),

		showBorder: true,
		selectable: true,
	}
}

// AddColumn adds a column to the table
func (t *Table) AddColumn(header string, width int, align lipgloss.Position) *Table {
	t.columns = append(t.columns, TableColumn{Header: header, Width: width, Align: align})
	t.widths = nil
	return t
}

// SetRows sets all table rows with the default style
func (t *Table) SetRows(rows [][]string) *Table {
	t.rows = make([]TableRow, len(rows))
	for i, data := range rows {
		t.rows[i] = TableRow{Data: data, Style: t.rowStyle}
	}
	t.clamp()
	return t
}

// AddRow appends a row, optionally colored.
func (t *Table) AddRow(data []string, fg ...lipgloss.TerminalColor) *Table {
	st := t.rowStyle
	if len(fg) > 0 {
		st = st.Foreground(fg[0])
	}
	t.rows = append(t.rows, TableRow{Data: data, Style: st})
	if t.follow {
		t.selectedRow = len(t.rows) - 1
	}
	t.clamp()
	return t
}

// SetRowColor colors one row.
func (t *Table) SetRowColor(index int, fg lipgloss.TerminalColor) *Table {
	if index >= 0 && index < len(t.rows) {
		t.rows[index].Style = t.rowStyle.Foreground(fg)
	}
	return t
}

// SetSize sets the table dimensions
func (t *Table) SetSize(width, height int) *Table {
	t.width = width
	t.height = height
	t.widths = nil
	t.clamp()
	return t
}

// SetSelectable enables/disables row selection
func (t *Table) SetSelectable(selectable bool) *Table {
	t.selectable = selectable
	return t
}

// SetFollow keeps the newest row in view as rows are added.
func (t *Table) SetFollow(follow bool) *Table {
	t.follow = follow
	return t
}

// SetShowBorder enables/disables table border
func (t *Table) SetShowBorder(show bool) *Table {
	t.showBorder = show
	return t
}

// SetZebra enables/disables alternating row colors
func (t *Table) SetZebra(zebra bool) *Table {
	t.zebra = zebra
	return t
}

// GetSelectedRow returns the currently selected row index
func (t *Table) GetSelectedRow() int {
	return t.selectedRow
}

// MoveUp moves selection up
func (t *Table) MoveUp() *Table {
	if t.selectedRow > 0 {
		t.selectedRow--
	}
	t.clamp()
	return t
}

// MoveDown moves selection down
func (t *Table) MoveDown() *Table {
	if t.selectedRow < len(t.rows)-1 {
		t.selectedRow++
	}
	t.clamp()
	return t
}

// GetRowCount returns the number of rows
func (t *Table) GetRowCount() int {
	return len(t.rows)
}

// Clear removes all rows from the table
func (t *Table) Clear() *Table {
	t.rows = nil
	t.selectedRow = 0
	t.offset = 0
	return t
}

// visibleRows is the number of data rows that fit, or all when unsized.
func (t *Table) visibleRows() int {
	if t.height <= 0 {
		return len(t.rows)
	}
	n := t.height - 2 // header + separator
	if t.showBorder {
		n -= 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (t *Table) clamp() {
	if t.selectedRow >= len(t.rows) {
		t.selectedRow = len(t.rows) - 1
	}
	if t.selectedRow < 0 {
		t.selectedRow = 0
	}
	n := t.visibleRows()
	if t.selectedRow < t.offset {
		t.offset = t.selectedRow
	}
	if t.selectedRow >= t.offset+n {
		t.offset = t.selectedRow - n + 1
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

// View renders the table
func (t *Table) View() string {
	if len(t.columns) == 0 {
		return ""
	}
	widths := t.columnWidths()

	var content strings.Builder
	for i, col := range t.columns {
		content.WriteString(renderCell(col.Header, widths[i], col.Align, t.headerStyle))
		if i < len(t.columns)-1 {
			content.WriteString("│")
		}
	}
	content.WriteString("\n")
	for i, w := range widths {
		content.WriteString(strings.Repeat("─", w+2))
		if i < len(widths)-1 {
			content.WriteString("┼")
		}
	}

	end := t.offset + t.visibleRows()
	if end > len(t.rows) {
		end = len(t.rows)
	}
	palette := style.DefaultPalette()
	for idx := t.offset; idx < end; idx++ {
		row := t.rows[idx]
		rowStyle := row.Style
		switch {
		case t.selectable && idx == t.selectedRow:
			rowStyle = t.selectedRowStyle
		case t.zebra && idx%2 == 1:
			rowStyle = rowStyle.Background(palette.BackgroundAlt)
		}

		content.WriteString("\n")
		for i, col := range t.columns {
			cell := ""
			if i < len(row.Data) {
				cell = row.Data[i]
			}
			content.WriteString(renderCell(cell, widths[i], col.Align, rowStyle))
			if i < len(t.columns)-1 {
				content.WriteString("│")
			}
		}
	}

	if t.showBorder {
		return t.borderStyle.Render(content.String())
	}
	return content.String()
}

func renderCell(content string, width int, align lipgloss.Position, st lipgloss.Style) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if r := []rune(content); len(r) > width {
		if width > 1 {
			content = string(r[:width-1]) + "…"
		} else {
			content = string(r[:width])
		}
	}
	// Width includes the horizontal padding of the style.
	return st.Width(width + 2).Align(align).Render(content)
}

func (t *Table) columnWidths() []int {
	if t.widths != nil {
		return t.widths
	}
	widths := make([]int, len(t.columns))
	fixed, auto := 0, 0
	for i, col := range t.columns {
		widths[i] = col.Width
		if col.Width > 0 {
			fixed += col.Width
		} else {
			auto++
		}
	}
	if auto > 0 {
		// padding (2) and separator (1) per column, border (2)
		avail := t.width - fixed - 3*len(t.columns) - 2
		each := 10
		if avail > 0 && avail/auto > each {
			each = avail / auto
		}
		for i := range widths {
			if widths[i] <= 0 {
				widths[i] = each
			}
		}
	}
	t.widths = widths
	return widths
}
