package directory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/middlebury/dynamic-add-users/internal/config"
)

// ErrUnknownKind is returned by Open for a kind without a factory.
var ErrUnknownKind = errors.New("unknown directory kind")

// Factory builds a directory from its config section.
type Factory func(cfg config.Directory) (Directory, error)

// Registry maps directory kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry that knows the null directory.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(config.DirectoryNull, func(config.Directory) (Directory, error) {
		return Null{}, nil
	})

	return r
}

// Register adds or replaces the factory of kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = f
}

// Kinds lists the registered kinds in order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// Open builds the directory named by cfg.Kind.
func (r *Registry) Open(cfg config.Directory) (Directory, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	d, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s directory: %w", cfg.Kind, err)
	}

	return d, nil
}
