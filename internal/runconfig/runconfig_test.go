package runconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	configs map[domain.Key]map[string]string
	history map[string][]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{configs: map[domain.Key]map[string]string{}, history: map[string][]string{}}
}

func (m *memStore) LoadConfig(_ context.Context, key domain.Key) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.configs[key], nil
}

func (m *memStore) SaveConfig(_ context.Context, key domain.Key, values map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.configs[key] = values
	return nil
}

func (m *memStore) AddHistory(_ context.Context, key domain.Key, field string, values []string) error {
	if m.err != nil {
		return m.err
	}
	k := string(key) + "/" + field
	m.history[k] = append(m.history[k], values...)
	return nil
}

func (m *memStore) History(_ context.Context, key domain.Key, field string) ([]string, error) {
	return m.history[string(key)+"/"+field], nil
}

func testDefinition(t *testing.T) *workflow.Definition {
	t.Helper()
	def, err := workflow.Parse([]byte(`
key: msr
item_field: work_keys
fields:
  - name: panchayat
    label: Panchayat
    required: true
    history: true
  - name: work_keys
    required: true
    multiline: true
    history: true
  - name: verify_amount
    default: "282"
items:
  - action: click
    selector: "#go"
`))
	require.NoError(t, err)
	return def
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(testDefinition(t))
	assert.Equal(t, "282", c.Get("verify_amount"))
	assert.Equal(t, "", c.Get("panchayat"))
	assert.Error(t, c.Set("unknown", "x"))
}

func TestCloneIsIndependent(t *testing.T) {
	c := New(testDefinition(t))
	require.NoError(t, c.Set("panchayat", "Rampur"))

	cp := c.Clone()
	require.NoError(t, c.Set("panchayat", "Other"))
	assert.Equal(t, "Rampur", cp.Get("panchayat"))
	assert.Equal(t, c.Task, cp.Task)
	assert.Equal(t, c.ItemField(), cp.ItemField())
}

func TestValidateListsMissingFields(t *testing.T) {
	c := New(testDefinition(t))
	require.NoError(t, c.Set("panchayat", "   "))

	err := c.Validate()
	require.Error(t, err)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"Panchayat", "work_keys"}, ve.Missing)
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, c.Set("panchayat", "Rampur"))
	require.NoError(t, c.Set("work_keys", "W1\n\nW2\n"))
	assert.NoError(t, c.Validate())
	assert.Equal(t, []string{"W1", "W2"}, c.Items())
}

func TestLoadFallsBackOnStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("database is locked")

	c := Load(context.Background(), store, testDefinition(t), zap.NewNop())
	assert.Equal(t, "282", c.Get("verify_amount"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newMemStore()
	def := testDefinition(t)

	c := New(def)
	require.NoError(t, c.Set("panchayat", " Rampur "))
	require.NoError(t, c.Set("work_keys", "W1\nW2"))
	Save(context.Background(), store, store, c, zap.NewNop())

	store.configs["msr"]["stale"] = "ignored"
	loaded := Load(context.Background(), store, def, zap.NewNop())
	assert.Equal(t, " Rampur ", loaded.Get("panchayat"))
	assert.NotContains(t, loaded.Values(), "stale")

	assert.Equal(t, []string{"Rampur"}, store.history["msr/panchayat"])
	assert.Equal(t, []string{"W1", "W2"}, store.history["msr/work_keys"])
	assert.Empty(t, store.history["msr/verify_amount"])
}

func TestSaveIgnoresStoreErrors(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")
	c := New(testDefinition(t))
	require.NoError(t, c.Set("panchayat", "Rampur"))

	assert.NotPanics(t, func() {
		Save(context.Background(), store, store, c, zap.NewNop())
	})
}

func TestSuggest(t *testing.T) {
	hist := []string{"Rampur", "rajnagar", "Barhet"}
	assert.Equal(t, []string{"Rampur", "rajnagar"}, Suggest(hist, "ra"))
	assert.Len(t, Suggest(hist, ""), 3)
}
