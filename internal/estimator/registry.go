package estimator

import (
	"errors"
	"fmt"
	"sync"
)

// Entry describes one algorithm available to the search.
type Entry struct {
	Name       string
	Capability Capability
	// Composes is the capability of the base estimators an Ensemble entry
	// combines, and therefore the task it can serve.
	Composes Capability
	Space    Space
	New      func() Estimator
}

func (e Entry) IsEnsemble() bool {
	return e.Capability == Ensemble
}

// Compatible reports whether the entry can be used for the task.
func (e Entry) Compatible(task Task) bool {
	want := task.Capability()
	if e.IsEnsemble() {
		return e.Composes == want
	}
	return e.Capability == want
}

func (e Entry) validate() error {
	if e.Name == "" {
		return errors.New("registry entry name is required")
	}
	if e.New == nil {
		return fmt.Errorf("registry entry %s: constructor is required", e.Name)
	}
	switch e.Capability {
	case Classifier, Regressor:
	case Ensemble:
		if e.Composes != Classifier && e.Composes != Regressor {
			return fmt.Errorf("registry entry %s: ensemble must compose classifiers or regressors", e.Name)
		}
	default:
		return fmt.Errorf("registry entry %s: unknown capability %q", e.Name, e.Capability)
	}
	if err := e.Space.Validate(); err != nil {
		return fmt.Errorf("registry entry %s: %w", e.Name, err)
	}
	return nil
}

// Registry is an ordered set of entries. Order matters: it fixes each
// algorithm's index in a target's roster.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(entries))}
	for _, e := range entries {
		if err := r.Add(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Add(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[e.Name]; exists {
		return fmt.Errorf("algorithm already registered: %s", e.Name)
	}
	r.byName[e.Name] = len(r.entries)
	r.entries = append(r.entries, e)
	return nil
}

func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Roster returns the entries compatible with the task, in registration order.
func (r *Registry) Roster(task Task) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Compatible(task) {
			out = append(out, e)
		}
	}
	return out
}

// Instantiate builds a fresh estimator for name and applies params.
func (r *Registry) Instantiate(name string, params Params) (Estimator, error) {
	entry, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("algorithm not registered: %s", name)
	}
	est := entry.New()
	if len(params) > 0 {
		if err := est.SetParams(params.Clone()); err != nil {
			return nil, fmt.Errorf("instantiate %s: %w", name, err)
		}
	}
	return est, nil
}
