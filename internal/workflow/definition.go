// =============================================
// File: internal/workflow/definition.go
// =============================================
package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("20s", "1m30s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Action names a step kind.
type Action string

const (
	ActionNavigate     Action = "navigate"
	ActionWait         Action = "wait"
	ActionWaitText     Action = "wait_text"
	ActionClick        Action = "click"
	ActionFill         Action = "fill"
	ActionSelect       Action = "select"
	ActionSelectIndex  Action = "select_index"
	ActionEval         Action = "eval"
	ActionReadText     Action = "read_text"
	ActionAcceptDialog Action = "accept_dialog"
	ActionCheck        Action = "check"
	ActionSleep        Action = "sleep"
)

var needsSelector = map[Action]bool{
	ActionWait: true, ActionWaitText: true, ActionClick: true, ActionFill: true,
	ActionSelect: true, ActionSelectIndex: true, ActionReadText: true,
}

var needsValue = map[Action]bool{
	ActionNavigate: true, ActionWaitText: true, ActionSelect: true,
	ActionSelectIndex: true, ActionEval: true,
}

// FieldSpec declares one input of a task's run configuration.
type FieldSpec struct {
	Name      string `yaml:"name"`
	Label     string `yaml:"label"`
	Required  bool   `yaml:"required"`
	Default   string `yaml:"default"`
	Multiline bool   `yaml:"multiline"`
	History   bool   `yaml:"history"`
}

// Step is one browser interaction. Selector and Value are text/template
// strings evaluated against TemplateData.
type Step struct {
	Action   Action   `yaml:"action"`
	Selector string   `yaml:"selector"`
	Value    string   `yaml:"value"`
	Timeout  Duration `yaml:"timeout"`
	// Capture stores the step's text result for outcome matching.
	Capture bool `yaml:"capture"`
	// Optional steps log failures and continue.
	Optional bool `yaml:"optional"`
	// Fatal failures abort the whole run instead of the item.
	Fatal bool `yaml:"fatal"`
	// Outcome and Detail end the item early when a check step matches. A check
	// without a selector tests the captured text; without a value it matches
	// any non-blank text.
	Outcome domain.Outcome `yaml:"outcome"`
	Detail  string         `yaml:"detail"`

	selector *template.Template
	value    *template.Template
	detail   *template.Template
}

// OutcomeRule maps captured page text to an item outcome. Matching is
// case-insensitive; the first matching rule wins.
type OutcomeRule struct {
	Contains string         `yaml:"contains"`
	Outcome  domain.Outcome `yaml:"outcome"`
	Detail   string         `yaml:"detail"`

	detail *template.Template
}

type DelaySpec struct {
	Min *Duration `yaml:"min"`
	Max *Duration `yaml:"max"`
}

// Definition is the declarative script of one task.
type Definition struct {
	Key            domain.Key     `yaml:"key"`
	Title          string         `yaml:"title"`
	Description    string         `yaml:"description"`
	URL            string         `yaml:"url"`
	ItemField      string         `yaml:"item_field"`
	Fields         []FieldSpec    `yaml:"fields"`
	Setup          []Step         `yaml:"setup"`
	Items          []Step         `yaml:"items"`
	Outcomes       []OutcomeRule  `yaml:"outcomes"`
	DefaultOutcome domain.Outcome `yaml:"default_outcome"`
	Delay          DelaySpec      `yaml:"delay"`

	Source string `yaml:"-"`
}

// TemplateData is visible to step templates.
type TemplateData struct {
	Fields   map[string]string
	URL      string
	Item     string
	Index    int
	Total    int
	Captured string
}

var funcs = template.FuncMap{
	"trim":  strings.TrimSpace,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"default": func(def, v string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	},
}

// Parse decodes and validates one YAML definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if def.DefaultOutcome == "" {
		def.DefaultOutcome = domain.OutcomeFailed
	}
	if err := def.compile(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) compile() error {
	var errs []error
	if d.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if d.Title == "" {
		d.Title = string(d.Key)
	}

	seen := make(map[string]bool)
	for _, f := range d.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("field with empty name"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate field %q", f.Name))
		}
		seen[f.Name] = true
	}
	if d.ItemField == "" {
		errs = append(errs, errors.New("item_field is required"))
	} else if !seen[d.ItemField] {
		errs = append(errs, fmt.Errorf("item_field %q is not a declared field", d.ItemField))
	}
	if len(d.Items) == 0 {
		errs = append(errs, errors.New("items must contain at least one step"))
	}

	for i := range d.Setup {
		if err := d.Setup[i].compile(); err != nil {
			errs = append(errs, fmt.Errorf("setup[%d]: %w", i, err))
		}
	}
	for i := range d.Items {
		if err := d.Items[i].compile(); err != nil {
			errs = append(errs, fmt.Errorf("items[%d]: %w", i, err))
		}
	}
	for i := range d.Outcomes {
		r := &d.Outcomes[i]
		if r.Contains == "" {
			errs = append(errs, fmt.Errorf("outcomes[%d]: contains is required", i))
		}
		o, err := domain.ParseOutcome(string(r.Outcome))
		if err != nil {
			errs = append(errs, fmt.Errorf("outcomes[%d]: %w", i, err))
		}
		r.Outcome = o
		t, err := parseTemplate(r.Detail)
		if err != nil {
			errs = append(errs, fmt.Errorf("outcomes[%d].detail: %w", i, err))
		}
		r.detail = t
	}
	if o, err := domain.ParseOutcome(string(d.DefaultOutcome)); err != nil {
		errs = append(errs, fmt.Errorf("default_outcome: %w", err))
	} else {
		d.DefaultOutcome = o
	}
	if d.Delay.Min != nil && d.Delay.Max != nil && *d.Delay.Max < *d.Delay.Min {
		errs = append(errs, errors.New("delay.max must not be less than delay.min"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("workflow %q: %w", d.Key, errors.Join(errs...))
	}
	return nil
}

func (s *Step) compile() error {
	if _, ok := validActions[s.Action]; !ok {
		return fmt.Errorf("unknown action %q", s.Action)
	}
	if needsSelector[s.Action] && s.Selector == "" {
		return fmt.Errorf("%s: selector is required", s.Action)
	}
	if needsValue[s.Action] && s.Value == "" {
		return fmt.Errorf("%s: value is required", s.Action)
	}
	if s.Action == ActionSleep && s.Timeout <= 0 {
		return errors.New("sleep: timeout is required")
	}
	if s.Action == ActionCheck {
		o, err := domain.ParseOutcome(string(s.Outcome))
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}
		s.Outcome = o
	}

	var err error
	if s.selector, err = parseTemplate(s.Selector); err != nil {
		return fmt.Errorf("%s selector: %w", s.Action, err)
	}
	if s.value, err = parseTemplate(s.Value); err != nil {
		return fmt.Errorf("%s value: %w", s.Action, err)
	}
	if s.detail, err = parseTemplate(s.Detail); err != nil {
		return fmt.Errorf("%s detail: %w", s.Action, err)
	}
	return nil
}

var validActions = map[Action]struct{}{
	ActionNavigate: {}, ActionWait: {}, ActionWaitText: {}, ActionClick: {}, ActionFill: {},
	ActionSelect: {}, ActionSelectIndex: {}, ActionEval: {}, ActionReadText: {},
	ActionAcceptDialog: {}, ActionCheck: {}, ActionSleep: {},
}

func parseTemplate(text string) (*template.Template, error) {
	if text == "" {
		return nil, nil
	}
	return template.New("").Funcs(funcs).Option("missingkey=zero").Parse(text)
}

func render(t *template.Template, data *TemplateData) (string, error) {
	if t == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Field returns the spec of name.
func (d *Definition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// SplitItems returns the non-empty trimmed lines of the item field, in order.
func SplitItems(raw string) []string {
	var items []string
	for _, line := range strings.Split(raw, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			items = append(items, s)
		}
	}
	return items
}

// Match applies the outcome rules to captured text.
func (d *Definition) Match(captured string, data *TemplateData) (domain.Outcome, string, error) {
	text := strings.ToLower(captured)
	for _, r := range d.Outcomes {
		if !strings.Contains(text, strings.ToLower(r.Contains)) {
			continue
		}
		detail, err := render(r.detail, data)
		if err != nil {
			return "", "", err
		}
		if detail == "" {
			detail = captured
		}
		return r.Outcome, detail, nil
	}
	if captured == "" && len(d.Outcomes) == 0 {
		return domain.OutcomeSuccess, "done", nil
	}
	if captured == "" {
		return d.DefaultOutcome, "no response captured", nil
	}
	return d.DefaultOutcome, captured, nil
}
