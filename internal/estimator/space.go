package estimator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const defaultGridSteps = 3

// Dimension is one hyperparameter axis: either explicit Choices, or a numeric
// [Min, Max] range that grid search discretizes into Steps points and random
// search samples from.
type Dimension struct {
	Name    string
	Choices []any
	Min     float64
	Max     float64
	Integer bool
	Log     bool
	Steps   int
}

func (d Dimension) validate() error {
	if d.Name == "" {
		return errors.New("dimension name is required")
	}
	if len(d.Choices) > 0 {
		return nil
	}
	if d.Max < d.Min {
		return fmt.Errorf("dimension %s: max < min", d.Name)
	}
	if d.Log && d.Min <= 0 {
		return fmt.Errorf("dimension %s: log scale requires min > 0", d.Name)
	}
	return nil
}

func (d Dimension) gridValues() []any {
	if len(d.Choices) > 0 {
		return append([]any(nil), d.Choices...)
	}
	steps := d.Steps
	if steps <= 0 {
		steps = defaultGridSteps
	}
	if steps == 1 || d.Max == d.Min {
		return []any{d.cast(d.Min)}
	}

	values := make([]any, 0, steps)
	seen := map[any]struct{}{}
	for i := 0; i < steps; i++ {
		frac := float64(i) / float64(steps-1)
		var v float64
		if d.Log {
			v = math.Exp(math.Log(d.Min) + frac*(math.Log(d.Max)-math.Log(d.Min)))
		} else {
			v = d.Min + frac*(d.Max-d.Min)
		}
		cast := d.cast(v)
		if _, dup := seen[cast]; dup {
			continue
		}
		seen[cast] = struct{}{}
		values = append(values, cast)
	}
	return values
}

func (d Dimension) sample(rng *rand.Rand) any {
	if len(d.Choices) > 0 {
		return d.Choices[rng.Intn(len(d.Choices))]
	}
	if d.Max == d.Min {
		return d.cast(d.Min)
	}
	if d.Log {
		lo, hi := math.Log(d.Min), math.Log(d.Max)
		return d.cast(math.Exp(lo + rng.Float64()*(hi-lo)))
	}
	return d.cast(d.Min + rng.Float64()*(d.Max-d.Min))
}

func (d Dimension) cast(v float64) any {
	if d.Integer {
		return int(math.Round(v))
	}
	return v
}

// Space is the hyperparameter search space of a registry entry. An empty
// space has exactly one candidate: the estimator defaults.
type Space []Dimension

func (s Space) Validate() error {
	seen := map[string]struct{}{}
	for _, d := range s {
		if err := d.validate(); err != nil {
			return err
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("duplicate dimension %s", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// Grid returns the cartesian product of every dimension's grid values.
func (s Space) Grid() []Params {
	out := []Params{{}}
	for _, d := range s {
		values := d.gridValues()
		next := make([]Params, 0, len(out)*len(values))
		for _, base := range out {
			for _, v := range values {
				p := base.Clone()
				p[d.Name] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// Sample draws one point uniformly per dimension (log-uniformly for Log ranges).
func (s Space) Sample(rng *rand.Rand) Params {
	p := make(Params, len(s))
	for _, d := range s {
		p[d.Name] = d.sample(rng)
	}
	return p
}
