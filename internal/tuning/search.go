package tuning

import (
	"context"
	"math/rand"

	"automl/internal/estimator"
)

const defaultIterations = 10

// GridTuner evaluates every point of the space's grid.
type GridTuner struct {
	cv crossValidator
}

func (g *GridTuner) Name() string { return ModeGrid }

func (g *GridTuner) Tune(ctx context.Context, p Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return g.cv.selectBest(ctx, p, p.Space.Grid())
}

// RandomTuner evaluates Policy-many points sampled from the space. Each Tune
// call draws from its own generator seeded with Seed.
type RandomTuner struct {
	cv         crossValidator
	Iterations int
	Policy     IterationPolicy
	Seed       int64
}

func (r *RandomTuner) Name() string { return ModeRandom }

func (r *RandomTuner) Tune(ctx context.Context, p Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return r.cv.selectBest(ctx, p, r.candidates(p.Space))
}

func (r *RandomTuner) candidates(space estimator.Space) []estimator.Params {
	if len(space) == 0 {
		return []estimator.Params{{}}
	}
	base := r.Iterations
	if base <= 0 {
		base = defaultIterations
	}
	policy := r.Policy
	if policy == nil {
		policy = FixedIterationPolicy{}
	}
	n := policy.Iterations(base, space)
	if n < 1 {
		n = 1
	}

	rng := rand.New(rand.NewSource(r.Seed))
	seen := make(map[string]struct{}, n)
	out := make([]estimator.Params, 0, n)
	for i := 0; i < n; i++ {
		params := space.Sample(rng)
		key := params.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, params)
	}
	return out
}
