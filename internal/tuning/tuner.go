package tuning

import (
	"context"
	"fmt"
	"strings"

	"automl/internal/budget"
	"automl/internal/estimator"
	"automl/internal/metrics"
)

const (
	ModeGrid      = "grid"
	ModeRandom    = "random"
	ModeHillClimb = "hillclimb"
)

// Problem is one nested hyperparameter search: pick the best params for
// Prototype on (X, Y) by cross-validated Metric.
type Problem struct {
	Prototype estimator.Estimator
	Space     estimator.Space
	X         [][]float64
	Y         []float64
	Metric    metrics.Metric
}

type Result struct {
	// Estimator is refit on all of X with Params.
	Estimator estimator.Estimator
	Params    estimator.Params
	CVScore   float64
	Report    TuneReport
}

type TuneReport struct {
	CandidatesPlanned   int `json:"candidates_planned"`
	CandidatesEvaluated int `json:"candidates_evaluated"`
	FailedCandidates    int `json:"failed_candidates"`
	AcceptedCandidates  int `json:"accepted_candidates"`
}

type Tuner interface {
	Name() string
	Tune(ctx context.Context, problem Problem) (Result, error)
}

type Options struct {
	Mode            string
	Folds           int
	Iterations      int
	IterationPolicy string
	PolicyParam     float64
	Seed            int64
	Budget          *budget.Budget
}

// NewTuner builds the tuner for opts.Mode. An empty mode means grid search.
func NewTuner(opts Options) (Tuner, error) {
	cv := crossValidator{Folds: opts.Folds, Budget: opts.Budget}
	if cv.Budget == nil {
		cv.Budget = budget.New(0)
	}
	switch NormalizeModeName(opts.Mode) {
	case ModeGrid:
		return &GridTuner{cv: cv}, nil
	case ModeRandom:
		policy, err := IterationPolicyFromConfig(opts.IterationPolicy, opts.PolicyParam)
		if err != nil {
			return nil, err
		}
		return &RandomTuner{cv: cv, Iterations: opts.Iterations, Policy: policy, Seed: opts.Seed}, nil
	case ModeHillClimb:
		steps := opts.Iterations
		if steps <= 0 {
			steps = defaultIterations
		}
		return &HillClimbTuner{cv: cv, Steps: steps, StepSize: 0.2, Seed: opts.Seed}, nil
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", opts.Mode)
	}
}

func NormalizeModeName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "grid", "grid_search":
		return ModeGrid
	case "random", "random_search", "randomized":
		return ModeRandom
	case "hillclimb", "hill_climb":
		return ModeHillClimb
	default:
		return name
	}
}
