package tuning

import (
	"fmt"
	"math"

	"automl/internal/estimator"
)

// IterationPolicy decides how many candidates a random search draws.
type IterationPolicy interface {
	Name() string
	Iterations(baseIterations int, space estimator.Space) int
}

type FixedIterationPolicy struct{}

func (FixedIterationPolicy) Name() string { return "fixed" }

func (FixedIterationPolicy) Iterations(baseIterations int, _ estimator.Space) int {
	if baseIterations < 0 {
		return 0
	}
	return baseIterations
}

// GridCappedIterationPolicy never draws more candidates than the space's
// grid holds, so small discrete spaces are not oversampled.
type GridCappedIterationPolicy struct{}

func (GridCappedIterationPolicy) Name() string { return "grid_capped" }

func (GridCappedIterationPolicy) Iterations(baseIterations int, space estimator.Space) int {
	if baseIterations <= 0 {
		return 0
	}
	if n := len(space.Grid()); n < baseIterations {
		return n
	}
	return baseIterations
}

// DimensionScaledIterationPolicy grows the draw count with the number of
// dimensions, clamped to [MinIterations, MaxIterations].
type DimensionScaledIterationPolicy struct {
	Scale         float64
	MinIterations int
	MaxIterations int
}

func (DimensionScaledIterationPolicy) Name() string { return "dimension_scaled" }

func (p DimensionScaledIterationPolicy) Iterations(baseIterations int, space estimator.Space) int {
	if baseIterations <= 0 {
		return 0
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1.0
	}
	n := int(math.Round(float64(baseIterations) * scale * float64(max(len(space), 1))))
	if n < p.MinIterations {
		n = p.MinIterations
	}
	if p.MaxIterations > 0 && n > p.MaxIterations {
		n = p.MaxIterations
	}
	return n
}

func IterationPolicyFromConfig(name string, param float64) (IterationPolicy, error) {
	switch NormalizeIterationPolicyName(name) {
	case "fixed":
		return FixedIterationPolicy{}, nil
	case "grid_capped":
		return GridCappedIterationPolicy{}, nil
	case "dimension_scaled":
		scale := param
		if scale <= 0 {
			scale = 1.0
		}
		return DimensionScaledIterationPolicy{Scale: scale, MinIterations: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported iteration policy: %s", name)
	}
}

func NormalizeIterationPolicyName(name string) string {
	switch name {
	case "", "fixed", "const":
		return "fixed"
	case "grid_capped", "capped":
		return "grid_capped"
	case "dimension_scaled", "scaled":
		return "dimension_scaled"
	default:
		return name
	}
}
