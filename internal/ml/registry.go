package ml

import (
	"sort"
)

// Registry is an immutable set of production models keyed by statistic.
// Updates return a new Registry; a published Registry is never modified, so
// it can be shared between goroutines without locking.
type Registry struct {
	models map[string]*StatModel
}

func NewRegistry(ms ...*StatModel) *Registry {
	r := &Registry{models: make(map[string]*StatModel, len(ms))}
	for _, m := range ms {
		if m != nil {
			r.models[m.Statistic] = m
		}
	}
	return r
}

// With returns a copy of r with m installed for its statistic.
func (r *Registry) With(m *StatModel) *Registry {
	next := &Registry{models: make(map[string]*StatModel, len(r.models)+1)}
	for k, v := range r.models {
		next.models[k] = v
	}
	next.models[m.Statistic] = m
	return next
}

func (r *Registry) Get(stat string) (*StatModel, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.models[stat]
	return m, ok
}

// Version returns the model version for stat, empty when none is loaded.
func (r *Registry) Version(stat string) string {
	if m, ok := r.Get(stat); ok {
		return m.Version
	}
	return ""
}

// Statistics lists the statistics with a loaded model, sorted.
func (r *Registry) Statistics() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.models))
	for k := range r.models {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.models)
}
