package tuning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"automl/internal/estimator"
)

// HillClimbTuner starts from the estimator's own parameters and repeatedly
// perturbs the best point found so far, keeping a candidate only when it
// beats the incumbent by more than MinImprovement.
type HillClimbTuner struct {
	cv             crossValidator
	Steps          int
	StepSize       float64
	MinImprovement float64
	Seed           int64
}

func (h *HillClimbTuner) Name() string { return ModeHillClimb }

func (h *HillClimbTuner) Tune(ctx context.Context, p Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if p.Prototype == nil {
		return Result{}, errors.New("tuning problem has no prototype estimator")
	}
	if h.StepSize <= 0 {
		return Result{}, errors.New("step size must be > 0")
	}
	if h.MinImprovement < 0 {
		return Result{}, errors.New("min improvement must be >= 0")
	}

	best := startingPoint(p.Prototype.Params(), p.Space)
	if len(p.Space) == 0 || h.Steps <= 0 {
		return h.cv.selectBest(ctx, p, []estimator.Params{best})
	}

	report := TuneReport{CandidatesPlanned: h.Steps + 1}
	var lastErr error
	bestScore, err := h.cv.Score(ctx, p, best)
	found := err == nil
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		// A failed start still centres the first perturbations.
		bestScore, lastErr = math.NaN(), err
		report.FailedCandidates++
	} else {
		report.CandidatesEvaluated++
		report.AcceptedCandidates++
	}

	rng := rand.New(rand.NewSource(h.Seed))
	seen := map[string]struct{}{best.Key(): {}}
	for step := 0; step < h.Steps; step++ {
		candidate := h.perturb(rng, best, p.Space)
		key := candidate.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		score, err := h.cv.Score(ctx, p, candidate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			report.FailedCandidates++
			lastErr = err
			continue
		}
		report.CandidatesEvaluated++
		if !found || (!math.IsNaN(score) && (math.IsNaN(bestScore) || score > bestScore+h.MinImprovement)) {
			best, bestScore, found = candidate, score, true
			report.AcceptedCandidates++
		}
	}
	if !found {
		return Result{}, fmt.Errorf("all %d candidates failed: %w", report.FailedCandidates, lastErr)
	}

	est, err := h.cv.Refit(ctx, p, best)
	if err != nil {
		return Result{}, err
	}
	return Result{Estimator: est, Params: best.Clone(), CVScore: bestScore, Report: report}, nil
}

// startingPoint restricts current to the space's dimensions.
func startingPoint(current estimator.Params, space estimator.Space) estimator.Params {
	out := estimator.Params{}
	for _, d := range space {
		if v, ok := current[d.Name]; ok {
			out[d.Name] = v
		}
	}
	return out
}

// perturb changes each dimension with probability 1/len(space), and always at
// least one. Choices are redrawn; ranges take a gaussian step of StepSize
// times the range width (in log space for Log dimensions) and are clamped.
func (h *HillClimbTuner) perturb(rng *rand.Rand, base estimator.Params, space estimator.Space) estimator.Params {
	out := base.Clone()
	p := 1 / float64(len(space))
	forced := rng.Intn(len(space))
	for i, d := range space {
		if i != forced && rng.Float64() >= p {
			continue
		}
		if len(d.Choices) > 0 {
			out[d.Name] = d.Choices[rng.Intn(len(d.Choices))]
			continue
		}
		lo, hi := d.Min, d.Max
		cur := base.Float(d.Name, (lo+hi)/2)
		if d.Log {
			lo, hi = math.Log(lo), math.Log(hi)
			cur = math.Log(math.Max(cur, d.Min))
		}
		next := cur + rng.NormFloat64()*h.StepSize*(hi-lo)
		next = math.Max(lo, math.Min(hi, next))
		if d.Log {
			next = math.Exp(next)
		}
		if d.Integer {
			out[d.Name] = int(math.Round(next))
		} else {
			out[d.Name] = next
		}
	}
	return out
}
