package decision

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ModelScorer is an external predictor. Implementations wrap whatever
// model artifact the deployment provides; the engine only needs a
// scalar score for a feature vector.
type ModelScorer interface {
	// Score returns a scalar for the given features.
	Score(ctx context.Context, features map[string]float64) (float64, error)
	// Version identifies the model artifact for the decision record.
	Version() string
}

// ScorerFactory builds a scorer from its configured version and path.
type ScorerFactory func(version, path string) (ModelScorer, error)

// Registry maps scorer names to factories. Deployments register their
// model wrappers at startup; the engine loads by configured name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ScorerFactory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]ScorerFactory{}}
}

// Register adds a factory under a name, replacing any previous one.
func (r *Registry) Register(name string, factory ScorerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Load builds the named scorer. In production mode a missing name or a
// failed factory is a hard configuration error; otherwise a nil scorer
// is returned and the caller degrades with a warning.
func (r *Registry) Load(name, version, path string, production bool) (ModelScorer, error) {
	if name == "" {
		if production {
			return nil, fmt.Errorf("decision: no scorer configured in production")
		}
		return nil, nil
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		if production {
			return nil, fmt.Errorf("decision: scorer %q not registered (have %v)", name, r.names())
		}
		return nil, nil
	}

	scorer, err := factory(version, path)
	if err != nil {
		if production {
			return nil, fmt.Errorf("decision: load scorer %q: %w", name, err)
		}
		return nil, nil
	}
	return scorer, nil
}

func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
