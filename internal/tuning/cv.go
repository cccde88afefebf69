package tuning

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"automl/internal/budget"
	"automl/internal/estimator"
)

const DefaultFolds = 5

var ErrEstimatorPanic = errors.New("estimator panicked")

type Fold struct {
	Train []int
	Test  []int
}

// KFold splits n rows into k contiguous folds. The first n%k folds hold one
// extra row. k is clamped to n.
func KFold(n, k int) ([]Fold, error) {
	if n < 2 {
		return nil, fmt.Errorf("cross-validation needs at least 2 rows, got %d", n)
	}
	if k < 2 {
		return nil, fmt.Errorf("cross-validation needs at least 2 folds, got %d", k)
	}
	if k > n {
		k = n
	}
	folds := make([]Fold, 0, k)
	start := 0
	for i := 0; i < k; i++ {
		size := n / k
		if i < n%k {
			size++
		}
		fold := Fold{Test: make([]int, 0, size), Train: make([]int, 0, n-size)}
		for r := 0; r < n; r++ {
			if r >= start && r < start+size {
				fold.Test = append(fold.Test, r)
			} else {
				fold.Train = append(fold.Train, r)
			}
		}
		folds = append(folds, fold)
		start += size
	}
	return folds, nil
}

func take(X [][]float64, y []float64, rows []int) ([][]float64, []float64) {
	outX := make([][]float64, len(rows))
	outY := make([]float64, len(rows))
	for i, r := range rows {
		outX[i] = X[r]
		outY[i] = y[r]
	}
	return outX, outY
}

// Safely runs fn and turns a panic into an error wrapping ErrEstimatorPanic.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEstimatorPanic, r)
		}
	}()
	return fn()
}

// crossValidator scores candidate params. Every fold fit holds one budget
// token; nothing else does.
type crossValidator struct {
	Folds  int
	Budget *budget.Budget
}

func (c crossValidator) folds() int {
	if c.Folds <= 0 {
		return DefaultFolds
	}
	return c.Folds
}

func (c crossValidator) configure(p Problem, params estimator.Params) (estimator.Estimator, error) {
	est := p.Prototype.Clone()
	if len(params) > 0 {
		if err := est.SetParams(params.Clone()); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Score returns the mean fold score of params. Any failing fold fails the
// candidate.
func (c crossValidator) Score(ctx context.Context, p Problem, params estimator.Params) (float64, error) {
	folds, err := KFold(len(p.X), c.folds())
	if err != nil {
		return math.NaN(), err
	}
	scores := make([]float64, len(folds))
	g, gctx := errgroup.WithContext(ctx)
	for i, fold := range folds {
		i, fold := i, fold
		g.Go(func() error {
			return c.Budget.Do(gctx, func() error {
				return Safely(func() error {
					est, err := c.configure(p, params)
					if err != nil {
						return err
					}
					trainX, trainY := take(p.X, p.Y, fold.Train)
					if err := est.Fit(gctx, trainX, trainY); err != nil {
						return err
					}
					testX, testY := take(p.X, p.Y, fold.Test)
					pred, err := est.Predict(testX)
					if err != nil {
						return err
					}
					scores[i] = p.Metric.Score(testY, pred)
					return nil
				})
			})
		})
	}
	if err := g.Wait(); err != nil {
		return math.NaN(), err
	}
	return stat.Mean(scores, nil), nil
}

// Refit fits params on the whole problem under one budget token.
func (c crossValidator) Refit(ctx context.Context, p Problem, params estimator.Params) (estimator.Estimator, error) {
	var est estimator.Estimator
	err := c.Budget.Do(ctx, func() error {
		return Safely(func() error {
			var err error
			est, err = c.configure(p, params)
			if err != nil {
				return err
			}
			return est.Fit(ctx, p.X, p.Y)
		})
	})
	if err != nil {
		return nil, err
	}
	return est, nil
}

func better(score, best float64, found bool) bool {
	if !found {
		return true
	}
	if math.IsNaN(score) {
		return false
	}
	return math.IsNaN(best) || score > best
}

// selectBest scores every candidate in order and refits the best. Earlier
// candidates win ties. Individual candidate failures are tolerated while at
// least one candidate succeeds.
func (c crossValidator) selectBest(ctx context.Context, p Problem, candidates []estimator.Params) (Result, error) {
	if p.Prototype == nil {
		return Result{}, errors.New("tuning problem has no prototype estimator")
	}
	report := TuneReport{CandidatesPlanned: len(candidates)}
	var (
		bestParams estimator.Params
		bestScore  = math.NaN()
		found      bool
		lastErr    error
	)
	for _, params := range candidates {
		score, err := c.Score(ctx, p, params)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			report.FailedCandidates++
			lastErr = err
			continue
		}
		report.CandidatesEvaluated++
		if better(score, bestScore, found) {
			bestParams, bestScore, found = params, score, true
			report.AcceptedCandidates++
		}
	}
	if !found {
		return Result{}, fmt.Errorf("all %d candidates failed: %w", len(candidates), lastErr)
	}
	est, err := c.Refit(ctx, p, bestParams)
	if err != nil {
		return Result{}, err
	}
	return Result{Estimator: est, Params: bestParams.Clone(), CVScore: bestScore, Report: report}, nil
}
