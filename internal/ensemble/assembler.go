// Package ensemble builds composite estimators from the best trials already
// recorded for a target.
package ensemble

import (
	"errors"
	"fmt"

	"automl/internal/estimator"
	"automl/internal/ledger"
)

const (
	DefaultMaxBases = 3
	MinBases        = 2
)

var (
	ErrTooFewBases  = errors.New("too few distinct base algorithms for an ensemble")
	ErrNotComposite = errors.New("estimator does not accept bases")
)

type Assembler struct {
	registry *estimator.Registry
	maxBases int
}

func NewAssembler(registry *estimator.Registry, maxBases int) *Assembler {
	if maxBases <= 0 {
		maxBases = DefaultMaxBases
	}
	return &Assembler{registry: registry, maxBases: maxBases}
}

func (a *Assembler) MaxBases() int {
	return a.maxBases
}

// Assemble instantiates fresh, unfitted bases from the best trial of each of
// the top non-ensemble algorithms in l, labelled e1..ek in rank order. Fewer
// than MinBases distinct algorithms yields ErrTooFewBases.
func (a *Assembler) Assemble(l *ledger.Ledger) ([]estimator.Named, error) {
	top := l.TopDistinct(a.maxBases, true)
	if len(top) < MinBases {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewBases, len(top), MinBases)
	}
	bases := make([]estimator.Named, 0, len(top))
	for i, tr := range top {
		est, err := a.registry.Instantiate(tr.Algorithm, tr.Params)
		if err != nil {
			return nil, fmt.Errorf("rebuild base %s: %w", tr.Key(), err)
		}
		bases = append(bases, estimator.Named{Label: fmt.Sprintf("e%d", i+1), Estimator: est})
	}
	return bases, nil
}

// Attach assembles bases and sets them on est, which must be a Composite.
// It fails with ErrNotComposite before looking at l otherwise.
func (a *Assembler) Attach(est estimator.Estimator, l *ledger.Ledger) error {
	comp, ok := est.(estimator.Composite)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotComposite, est.Name())
	}
	bases, err := a.Assemble(l)
	if err != nil {
		return err
	}
	comp.SetBases(bases)
	return nil
}
