package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry holds the loaded task definitions keyed by task key.
type Registry struct {
	mu   sync.RWMutex
	defs map[domain.Key]*Definition
}

func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[domain.Key]*Definition)}
	for _, d := range defs {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers d. Keys must be unique.
func (r *Registry) Add(d *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.defs[d.Key]; ok {
		return fmt.Errorf("duplicate task key %q (%s and %s)", d.Key, prev.Source, d.Source)
	}
	r.defs[d.Key] = d
	return nil
}

func (r *Registry) Get(key domain.Key) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTask, key)
	}
	return d, nil
}

// List returns the definitions ordered by key.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// LoadDir parses every *.yaml and *.yml file in dir concurrently.
func LoadDir(ctx context.Context, dir string, logger *zap.Logger) (*Registry, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, m...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow definitions found in %s", dir)
	}
	sort.Strings(files)

	defs := make([]*Definition, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			d, err := Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			d.Source = path
			defs[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reg, err := NewRegistry(defs...)
	if err != nil {
		return nil, err
	}
	logger.Info("Workflows loaded", zap.String("dir", dir), zap.Int("count", reg.Len()))
	return reg, nil
}
