package learners

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"automl/internal/estimator"
	"automl/internal/metrics"
)

const LogisticRegressionName = "logistic_regression"

// LogisticRegression is an L2-regularized one-vs-rest logistic model trained
// with full-batch gradient descent. C is the inverse regularization strength.
type LogisticRegression struct {
	C            float64
	MaxIter      int
	LearningRate float64

	classes []float64
	weights [][]float64
	biases  []float64
	width   int
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 200, LearningRate: 0.5}
}

func (l *LogisticRegression) Name() string                      { return LogisticRegressionName }
func (l *LogisticRegression) Capability() estimator.Capability { return estimator.Classifier }

func (l *LogisticRegression) Params() estimator.Params {
	return estimator.Params{"c": l.C, "max_iter": l.MaxIter, "learning_rate": l.LearningRate}
}

func (l *LogisticRegression) SetParams(p estimator.Params) error {
	if err := estimator.CheckKnown(LogisticRegressionName, p, "c", "max_iter", "learning_rate"); err != nil {
		return err
	}
	c := p.Float("c", l.C)
	iter := p.Int("max_iter", l.MaxIter)
	lr := p.Float("learning_rate", l.LearningRate)
	if c <= 0 || iter < 1 || lr <= 0 {
		return fmt.Errorf("%s: c, max_iter and learning_rate must be positive", LogisticRegressionName)
	}
	l.C, l.MaxIter, l.LearningRate = c, iter, lr
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (l *LogisticRegression) Fit(ctx context.Context, X [][]float64, y []float64) error {
	width, err := checkTraining(LogisticRegressionName, X, y)
	if err != nil {
		return err
	}
	classes := metrics.Labels(y)
	// a single class still predicts that class
	targets := classes
	if len(classes) == 2 {
		targets = classes[1:]
	}

	weights := make([][]float64, len(targets))
	biases := make([]float64, len(targets))
	for k, positive := range targets {
		w, b, err := l.fitBinary(ctx, X, y, positive, width)
		if err != nil {
			return err
		}
		weights[k], biases[k] = w, b
	}
	l.classes, l.weights, l.biases, l.width = classes, weights, biases, width
	return nil
}

func (l *LogisticRegression) fitBinary(ctx context.Context, X [][]float64, y []float64, positive float64, width int) ([]float64, float64, error) {
	n := float64(len(X))
	w := make([]float64, width)
	b := 0.0
	grad := make([]float64, width)
	for iter := 0; iter < l.MaxIter; iter++ {
		if err := checkContext(ctx); err != nil {
			return nil, 0, err
		}
		for j := range grad {
			grad[j] = 0
		}
		gradB := 0.0
		for i, row := range X {
			target := 0.0
			if y[i] == positive {
				target = 1
			}
			diff := sigmoid(floats.Dot(w, row)+b) - target
			floats.AddScaled(grad, diff, row)
			gradB += diff
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, 1/(l.C*n), w)
		floats.AddScaled(w, -l.LearningRate, grad)
		b -= l.LearningRate * gradB / n
	}
	return w, b, nil
}

// decision returns the per-target positive-class probabilities for row.
func (l *LogisticRegression) decision(row []float64) []float64 {
	out := make([]float64, len(l.weights))
	for k := range l.weights {
		out[k] = sigmoid(floats.Dot(l.weights[k], row) + l.biases[k])
	}
	return out
}

func (l *LogisticRegression) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(LogisticRegressionName, X, l.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		switch len(l.classes) {
		case 1:
			out[i] = l.classes[0]
		case 2:
			if l.decision(row)[0] >= 0.5 {
				out[i] = l.classes[1]
			} else {
				out[i] = l.classes[0]
			}
		default:
			out[i] = l.classes[floats.MaxIdx(l.decision(row))]
		}
	}
	return out, nil
}

func (l *LogisticRegression) Score(X [][]float64, y []float64) (float64, error) {
	return classifierScore(l, X, y)
}

func (l *LogisticRegression) Clone() estimator.Estimator {
	return &LogisticRegression{C: l.C, MaxIter: l.MaxIter, LearningRate: l.LearningRate}
}
