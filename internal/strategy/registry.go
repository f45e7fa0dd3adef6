package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Registry manages a named collection of strategies that can be looked up at
// runtime. It is safe for concurrent use.
type Registry struct {
	strategies map[domain.AgentStrategy]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns a Registry pre-populated with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[domain.AgentStrategy]Strategy),
	}
	r.Register(NewTrendFollow())
	r.Register(NewMeanReversion())
	r.Register(NewMomentum())
	return r
}

// Register adds a strategy under its own name. An existing strategy with the
// same name is replaced.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name domain.AgentStrategy) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
