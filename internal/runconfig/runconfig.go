package runconfig

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/workflow"
	"go.uber.org/zap"
)

// Store persists run configurations between sessions.
type Store interface {
	LoadConfig(ctx context.Context, key domain.Key) (map[string]string, error)
	SaveConfig(ctx context.Context, key domain.Key, values map[string]string) error
}

// HistoryStore keeps previously entered values for autocomplete.
type HistoryStore interface {
	AddHistory(ctx context.Context, key domain.Key, field string, values []string) error
	History(ctx context.Context, key domain.Key, field string) ([]string, error)
}

// RunConfiguration is the typed input record of one task. Only declared
// fields can be set.
type RunConfiguration struct {
	Task      domain.Key
	fields    []workflow.FieldSpec
	itemField string
	values    map[string]string
}

// New returns a configuration holding the declared defaults of def.
func New(def *workflow.Definition) *RunConfiguration {
	c := &RunConfiguration{
		Task:      def.Key,
		fields:    def.Fields,
		itemField: def.ItemField,
		values:    make(map[string]string, len(def.Fields)),
	}
	for _, f := range def.Fields {
		c.values[f.Name] = f.Default
	}
	return c
}

func (c *RunConfiguration) Fields() []workflow.FieldSpec {
	return c.fields
}

// ItemField names the multiline field that lists the work items.
func (c *RunConfiguration) ItemField() string {
	return c.itemField
}

func (c *RunConfiguration) Get(name string) string {
	return c.values[name]
}

func (c *RunConfiguration) Set(name, value string) error {
	if _, ok := c.values[name]; !ok {
		return fmt.Errorf("task %q has no field %q", c.Task, name)
	}
	c.values[name] = value
	return nil
}

// Apply copies stored values over the defaults. Unknown names are ignored so
// that renamed fields do not break old saves.
func (c *RunConfiguration) Apply(stored map[string]string) {
	for k, v := range stored {
		if _, ok := c.values[k]; ok {
			c.values[k] = v
		}
	}
}

// Values returns a copy of all field values.
func (c *RunConfiguration) Values() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (c *RunConfiguration) Clone() *RunConfiguration {
	cp := *c
	cp.values = c.Values()
	return &cp
}

// Items returns the work items listed in the item field.
func (c *RunConfiguration) Items() []string {
	return workflow.SplitItems(c.values[c.itemField])
}

// Validate reports every required field that is blank.
func (c *RunConfiguration) Validate() error {
	var missing []string
	for _, f := range c.fields {
		if f.Required && strings.TrimSpace(c.values[f.Name]) == "" {
			missing = append(missing, label(f))
		}
	}
	if len(missing) > 0 {
		return &domain.ValidationError{Task: c.Task, Missing: missing}
	}
	return nil
}

func label(f workflow.FieldSpec) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Load builds the configuration of def from its defaults and the saved values.
// Store errors are logged and the defaults are kept.
func Load(ctx context.Context, store Store, def *workflow.Definition, logger *zap.Logger) *RunConfiguration {
	c := New(def)
	if store == nil {
		return c
	}
	stored, err := store.LoadConfig(ctx, def.Key)
	if err != nil {
		logger.Warn("Failed to load run configuration, using defaults",
			zap.String("task", string(def.Key)), zap.Error(err))
		return c
	}
	c.Apply(stored)
	return c
}

// Save persists c and records history values. Failures are logged only.
func Save(ctx context.Context, store Store, history HistoryStore, c *RunConfiguration, logger *zap.Logger) {
	if store != nil {
		if err := store.SaveConfig(ctx, c.Task, c.Values()); err != nil {
			logger.Warn("Failed to save run configuration",
				zap.String("task", string(c.Task)), zap.Error(err))
		}
	}
	if history == nil {
		return
	}
	for _, f := range c.fields {
		if !f.History {
			continue
		}
		vals := historyValues(c.values[f.Name], f.Multiline)
		if len(vals) == 0 {
			continue
		}
		if err := history.AddHistory(ctx, c.Task, f.Name, vals); err != nil {
			logger.Warn("Failed to save field history",
				zap.String("task", string(c.Task)),
				zap.String("field", f.Name),
				zap.Error(err))
		}
	}
}

func historyValues(v string, multiline bool) []string {
	if multiline {
		return workflow.SplitItems(v)
	}
	if s := strings.TrimSpace(v); s != "" {
		return []string{s}
	}
	return nil
}

// Suggest returns the history values of field that start with prefix,
// case-insensitively, in sorted order.
func Suggest(history []string, prefix string) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	var out []string
	for _, h := range history {
		if strings.HasPrefix(strings.ToLower(h), p) {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}
