package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

// Registry resolves strategies by id.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy. Ids must be unique and non-empty.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy is required")
	}
	id := strings.TrimSpace(s.Describe().ID)
	if id == "" {
		return fmt.Errorf("strategy id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[id]; exists {
		return fmt.Errorf("strategy %s already registered", id)
	}
	r.strategies[id] = s
	return nil
}

// Resolve returns the strategy registered under id.
func (r *Registry) Resolve(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[strings.TrimSpace(id)]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeStrategyNotFound, "strategy not found", map[string]string{"StrategyID": id})
	}
	return s, nil
}

// List returns every registered descriptor ordered by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
