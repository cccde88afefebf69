// Package estimator defines the contract every learning algorithm satisfies
// and the registry that describes which algorithms a search may choose from.
package estimator

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Capability tags what kind of estimator a registry entry produces.
type Capability string

const (
	Classifier Capability = "classifier"
	Regressor  Capability = "regressor"
	Ensemble   Capability = "ensemble"
)

// Task is the prediction problem posed by a target column.
type Task string

const (
	Classification Task = "classification"
	Regression     Task = "regression"
)

// Capability returns the estimator capability that can serve the task.
func (t Task) Capability() Capability {
	if t == Classification {
		return Classifier
	}
	return Regressor
}

// Estimator is an opaque learning algorithm. Fit may be called again after
// SetParams; Clone returns an unfitted copy carrying the same parameters.
type Estimator interface {
	Name() string
	Capability() Capability
	Params() Params
	SetParams(params Params) error
	Fit(ctx context.Context, X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	Score(X [][]float64, y []float64) (float64, error)
	Clone() Estimator
}

// Named labels a base estimator inside a composite.
type Named struct {
	Label     string
	Estimator Estimator
}

// Composite is an estimator built from base estimators (voting, stacking).
// A freshly constructed composite has no bases.
type Composite interface {
	Estimator
	SetBases(bases []Named)
	Bases() []Named
}

// CloneBases deep-copies a base list so composites never share fitted state.
func CloneBases(bases []Named) []Named {
	out := make([]Named, 0, len(bases))
	for _, base := range bases {
		out = append(out, Named{Label: base.Label, Estimator: base.Estimator.Clone()})
	}
	return out
}

// Params holds hyperparameter values keyed by name.
type Params map[string]any

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) Float(name string, def float64) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func (p Params) Int(name string, def int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return def
	}
}

func (p Params) String(name, def string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return def
}

// Key renders the params in sorted key order, suitable for logs and dedup.
func (p Params) Key() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, ",")
}

// CheckKnown fails when params carries a name outside allowed.
func CheckKnown(estimatorName string, params Params, allowed ...string) error {
	for name := range params {
		known := false
		for _, a := range allowed {
			if a == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s: unknown parameter %q", estimatorName, name)
		}
	}
	return nil
}
