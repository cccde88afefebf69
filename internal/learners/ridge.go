package learners

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"automl/internal/estimator"
)

const RidgeName = "ridge"

// Ridge is L2-regularized least squares with an unpenalized intercept.
type Ridge struct {
	Alpha float64

	coef      []float64
	intercept float64
}

func NewRidge() *Ridge {
	return &Ridge{Alpha: 1}
}

func (r *Ridge) Name() string                      { return RidgeName }
func (r *Ridge) Capability() estimator.Capability { return estimator.Regressor }

func (r *Ridge) Params() estimator.Params {
	return estimator.Params{"alpha": r.Alpha}
}

func (r *Ridge) SetParams(p estimator.Params) error {
	if err := estimator.CheckKnown(RidgeName, p, "alpha"); err != nil {
		return err
	}
	alpha := p.Float("alpha", r.Alpha)
	if alpha < 0 {
		return fmt.Errorf("%s: alpha must be >= 0", RidgeName)
	}
	r.Alpha = alpha
	return nil
}

func (r *Ridge) Fit(ctx context.Context, X [][]float64, y []float64) error {
	width, err := checkTraining(RidgeName, X, y)
	if err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}
	coef, intercept, err := solveRidge(X, y, width, r.Alpha)
	if err != nil {
		return fmt.Errorf("%s: %w", RidgeName, err)
	}
	r.coef, r.intercept = coef, intercept
	return nil
}

// solveRidge centers X and y, solves (XᵀX + αI)w = Xᵀy and recovers the
// intercept from the means.
func solveRidge(X [][]float64, y []float64, width int, alpha float64) ([]float64, float64, error) {
	n := len(X)
	means := make([]float64, width)
	for _, row := range X {
		floats.Add(means, row)
	}
	floats.Scale(1/float64(n), means)
	yMean := floats.Sum(y) / float64(n)

	xc := mat.NewDense(n, width, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-means[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	for j := 0; j < width; j++ {
		gram.Set(j, j, gram.At(j, j)+alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, 0, err
		}
	}
	coef := make([]float64, width)
	for j := range coef {
		coef[j] = w.AtVec(j)
	}
	return coef, yMean - floats.Dot(coef, means), nil
}

func (r *Ridge) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(RidgeName, X, len(r.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(r.coef, row) + r.intercept
	}
	return out, nil
}

func (r *Ridge) Score(X [][]float64, y []float64) (float64, error) {
	return regressorScore(r, X, y)
}

func (r *Ridge) Clone() estimator.Estimator {
	return &Ridge{Alpha: r.Alpha}
}

// Coefficients returns the fitted weights and intercept.
func (r *Ridge) Coefficients() ([]float64, float64) {
	return append([]float64(nil), r.coef...), r.intercept
}
