package component

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/runconfig"
	"github.com/nregabot/nregabot/internal/ui/style"
	"github.com/nregabot/nregabot/internal/workflow"
)

const maxSuggestions = 5

// FormField is one input of a task form. Multiline fields use a textarea,
// everything else a single-line textinput.
type FormField struct {
	Spec    workflow.FieldSpec
	history []string

	input textinput.Model
	area  textarea.Model

	suggestions []string
	suggestIdx  int
}

func (ff *FormField) Value() string {
	if ff.Spec.Multiline {
		return ff.area.Value()
	}
	return ff.input.Value()
}

func (ff *FormField) SetValue(v string) {
	if ff.Spec.Multiline {
		ff.area.SetValue(v)
		return
	}
	ff.input.SetValue(v)
	ff.input.CursorEnd()
}

func (ff *FormField) label() string {
	l := ff.Spec.Label
	if l == "" {
		l = ff.Spec.Name
	}
	if ff.Spec.Required {
		l += " *"
	}
	return l
}

// Form edits the run configuration of one task.
type Form struct {
	fields     []*FormField
	focusIndex int
	width      int
	disabled   bool

	labelStyle      lipgloss.Style
	inputStyle      lipgloss.Style
	focusedStyle    lipgloss.Style
	suggestStyle    lipgloss.Style
	suggestSelStyle lipgloss.Style
}

// NewForm builds inputs for the declared fields of a task.
func NewForm(specs []workflow.FieldSpec) *Form {
	palette := style.DefaultPalette()

	f := &Form{
		width: 60,

		labelStyle: lipgloss.NewStyle().
			Foreground(palette.Text).
			Bold(true),

		inputStyle: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted),

		focusedStyle: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Primary),

		suggestStyle: lipgloss.NewStyle().
			Foreground(palette.TextMuted).
			PaddingLeft(2),

		suggestSelStyle: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			PaddingLeft(2),
	}

	for _, spec := range specs {
		ff := &FormField{Spec: spec}
		if spec.Multiline {
			ff.area = textarea.New()
			ff.area.ShowLineNumbers = true
			ff.area.Placeholder = "one item per line"
			ff.area.SetHeight(6)
			ff.area.CharLimit = 0
		} else {
			ff.input = textinput.New()
			ff.input.Placeholder = spec.Default
		}
		f.fields = append(f.fields, ff)
	}
	f.focus()
	return f
}

// SetValues loads v into the inputs.
func (f *Form) SetValues(v map[string]string) {
	for _, ff := range f.fields {
		ff.SetValue(v[ff.Spec.Name])
		ff.suggestions = nil
	}
}

// Values returns the current input of every field.
func (f *Form) Values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, ff := range f.fields {
		out[ff.Spec.Name] = ff.Value()
	}
	return out
}

// SetHistory sets the autocomplete values of a field.
func (f *Form) SetHistory(name string, values []string) {
	for _, ff := range f.fields {
		if ff.Spec.Name == name {
			ff.history = values
		}
	}
}

// SetDisabled blurs every input, e.g. while the task runs.
func (f *Form) SetDisabled(disabled bool) {
	f.disabled = disabled
	f.focus()
}

// Focused returns the field with focus.
func (f *Form) Focused() *FormField {
	if len(f.fields) == 0 {
		return nil
	}
	return f.fields[f.focusIndex]
}

// SetSize sets the form width
func (f *Form) SetSize(width, height int) *Form {
	f.width = width
	inner := max(width-6, 20)
	for _, ff := range f.fields {
		if ff.Spec.Multiline {
			ff.area.SetWidth(inner)
			ff.area.SetHeight(max(min(height/3, 10), 3))
		} else {
			ff.input.Width = inner - 2
		}
	}
	return f
}

// Init returns the cursor blink command
func (f *Form) Init() tea.Cmd {
	return textinput.Blink
}

// Update routes keys to the focused input. Tab and shift+tab move focus;
// with suggestions open, up and down pick one and enter accepts it.
func (f *Form) Update(msg tea.Msg) (*Form, tea.Cmd) {
	if len(f.fields) == 0 || f.disabled {
		return f, nil
	}
	ff := f.fields[f.focusIndex]

	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "tab":
			f.move(1)
			return f, nil
		case "shift+tab":
			f.move(-1)
			return f, nil
		}
		if len(ff.suggestions) > 0 {
			switch km.String() {
			case "up":
				ff.suggestIdx = (ff.suggestIdx + len(ff.suggestions) - 1) % len(ff.suggestions)
				return f, nil
			case "down":
				ff.suggestIdx = (ff.suggestIdx + 1) % len(ff.suggestions)
				return f, nil
			case "enter":
				ff.SetValue(ff.suggestions[ff.suggestIdx])
				ff.suggestions = nil
				return f, nil
			case "esc":
				ff.suggestions = nil
				return f, nil
			}
		}
		if km.String() == "enter" && !ff.Spec.Multiline {
			f.move(1)
			return f, nil
		}
	}

	var cmd tea.Cmd
	if ff.Spec.Multiline {
		ff.area, cmd = ff.area.Update(msg)
	} else {
		ff.input, cmd = ff.input.Update(msg)
		if _, ok := msg.(tea.KeyMsg); ok {
			f.suggest(ff)
		}
	}
	return f, cmd
}

// HasSuggestions reports whether the focused field shows suggestions.
func (f *Form) HasSuggestions() bool {
	ff := f.Focused()
	return ff != nil && len(ff.suggestions) > 0
}

func (f *Form) suggest(ff *FormField) {
	ff.suggestIdx = 0
	v := ff.input.Value()
	if len(ff.history) == 0 || strings.TrimSpace(v) == "" {
		ff.suggestions = nil
		return
	}
	var out []string
	for _, s := range runconfig.Suggest(ff.history, v) {
		if s == v {
			continue
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	ff.suggestions = out
}

func (f *Form) move(delta int) {
	f.fields[f.focusIndex].suggestions = nil
	f.focusIndex = (f.focusIndex + delta + len(f.fields)) % len(f.fields)
	f.focus()
}

func (f *Form) focus() {
	for i, ff := range f.fields {
		active := i == f.focusIndex && !f.disabled
		if ff.Spec.Multiline {
			if active {
				ff.area.Focus()
			} else {
				ff.area.Blur()
			}
			continue
		}
		if active {
			ff.input.Focus()
		} else {
			ff.input.Blur()
		}
	}
}

// View renders the form
func (f *Form) View() string {
	if len(f.fields) == 0 {
		return "This task takes no input."
	}

	var content strings.Builder
	for i, ff := range f.fields {
		content.WriteString(f.labelStyle.Render(ff.label()))
		content.WriteString("\n")

		st := f.inputStyle
		if i == f.focusIndex && !f.disabled {
			st = f.focusedStyle
		}
		if ff.Spec.Multiline {
			content.WriteString(st.Render(ff.area.View()))
		} else {
			content.WriteString(st.Render(ff.input.View()))
		}
		content.WriteString("\n")

		for j, s := range ff.suggestions {
			if j == ff.suggestIdx {
				content.WriteString(f.suggestSelStyle.Render("› " + s))
			} else {
				content.WriteString(f.suggestStyle.Render("  " + s))
			}
			content.WriteString("\n")
		}
	}
	return content.String()
}
