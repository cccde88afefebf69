// Package learners provides the default estimators the search draws from,
// built on gonum.
package learners

import (
	"context"
	"errors"
	"fmt"

	"automl/internal/estimator"
	"automl/internal/metrics"
)

var ErrNotFitted = errors.New("estimator is not fitted")

func checkTraining(name string, X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%s: empty training set", name)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%s: %d rows but %d labels", name, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, fmt.Errorf("%s: no feature columns", name)
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%s: row %d has %d columns, want %d", name, i, len(row), width)
		}
	}
	return width, nil
}

func checkPredict(name string, X [][]float64, width int) error {
	if width == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFitted)
	}
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%s: row %d has %d columns, want %d", name, i, len(row), width)
		}
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// scoreWith predicts X and scores the result with the named default metric.
func scoreWith(est estimator.Estimator, metricName string, X [][]float64, y []float64) (float64, error) {
	pred, err := est.Predict(X)
	if err != nil {
		return 0, err
	}
	m, ok := metrics.Lookup(metricName)
	if !ok {
		return 0, fmt.Errorf("unknown metric %s", metricName)
	}
	return m.Score(y, pred), nil
}

func regressorScore(est estimator.Estimator, X [][]float64, y []float64) (float64, error) {
	return scoreWith(est, "r2", X, y)
}

func classifierScore(est estimator.Estimator, X [][]float64, y []float64) (float64, error) {
	return scoreWith(est, "accuracy", X, y)
}

func copyMatrix(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func majority(votes map[float64]float64) float64 {
	best, bestWeight := 0.0, -1.0
	for label, w := range votes {
		if w > bestWeight || (w == bestWeight && label < best) {
			best, bestWeight = label, w
		}
	}
	return best
}
