package learners

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl/internal/estimator"
)

// linearData returns y = 3*x0 - 2*x1 + 1 with small noise.
func linearData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x0, x1 := rng.Float64(), rng.Float64()
		X[i] = []float64{x0, x1}
		y[i] = 3*x0 - 2*x1 + 1 + rng.NormFloat64()*0.01
	}
	return X, y
}

// blobData returns two well separated classes labelled 0 and 1.
func blobData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		label := float64(i % 2)
		X[i] = []float64{label*4 + rng.NormFloat64()*0.3, label*4 + rng.NormFloat64()*0.3}
		y[i] = label
	}
	return X, y
}

func threeClassData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	centers := [][]float64{{0, 0}, {5, 0}, {0, 5}}
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		c := i % 3
		X[i] = []float64{centers[c][0] + rng.NormFloat64()*0.3, centers[c][1] + rng.NormFloat64()*0.3}
		y[i] = float64(c)
	}
	return X, y
}

func TestRidgeRecoversLinearCoefficients(t *testing.T) {
	X, y := linearData(200, 1)
	r := NewRidge()
	require.NoError(t, r.SetParams(estimator.Params{"alpha": 1e-6}))
	require.NoError(t, r.Fit(context.Background(), X, y))

	coef, intercept := r.Coefficients()
	assert.InDelta(t, 3, coef[0], 0.05)
	assert.InDelta(t, -2, coef[1], 0.05)
	assert.InDelta(t, 1, intercept, 0.05)

	score, err := r.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.99)
}

func TestRegressorsFitLinearSignal(t *testing.T) {
	X, y := linearData(150, 2)
	for _, est := range []estimator.Estimator{NewRidge(), NewKNNRegressor(), NewDecisionTreeRegressor()} {
		require.NoError(t, est.Fit(context.Background(), X, y), est.Name())
		score, err := est.Score(X, y)
		require.NoError(t, err)
		assert.Greater(t, score, 0.8, est.Name())
	}
}

func TestClassifiersSeparateBlobs(t *testing.T) {
	X, y := blobData(100, 3)
	for _, est := range []estimator.Estimator{NewLogisticRegression(), NewKNNClassifier(), NewDecisionTreeClassifier()} {
		require.NoError(t, est.Fit(context.Background(), X, y), est.Name())
		score, err := est.Score(X, y)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.95, est.Name())
	}
}

func TestClassifiersHandleThreeClasses(t *testing.T) {
	X, y := threeClassData(90, 4)
	for _, est := range []estimator.Estimator{NewLogisticRegression(), NewKNNClassifier(), NewDecisionTreeClassifier()} {
		require.NoError(t, est.Fit(context.Background(), X, y), est.Name())
		pred, err := est.Predict(X)
		require.NoError(t, err)
		for _, p := range pred {
			assert.Contains(t, []float64{0, 1, 2}, p, est.Name())
		}
		score, err := est.Score(X, y)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.9, est.Name())
	}
}

func TestPredictBeforeFitFails(t *testing.T) {
	for _, est := range []estimator.Estimator{NewRidge(), NewKNNClassifier(), NewDecisionTreeRegressor(), NewLogisticRegression(), NewVotingRegressor()} {
		_, err := est.Predict([][]float64{{1, 2}})
		require.Error(t, err, est.Name())
		assert.True(t, errors.Is(err, ErrNotFitted), est.Name())
	}
}

func TestFitValidatesShapes(t *testing.T) {
	r := NewRidge()
	require.Error(t, r.Fit(context.Background(), nil, nil))
	require.Error(t, r.Fit(context.Background(), [][]float64{{1}, {2}}, []float64{1}))
	require.Error(t, r.Fit(context.Background(), [][]float64{{1}, {2, 3}}, []float64{1, 2}))
}

func TestFitHonoursCancelledContext(t *testing.T) {
	X, y := blobData(20, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewLogisticRegression().Fit(ctx, X, y)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSetParamsRejectsUnknownAndInvalid(t *testing.T) {
	require.Error(t, NewRidge().SetParams(estimator.Params{"alpha": -1}))
	require.Error(t, NewKNNRegressor().SetParams(estimator.Params{"n_neighbors": 0}))
	require.Error(t, NewKNNRegressor().SetParams(estimator.Params{"weights": "cosine"}))
	require.Error(t, NewDecisionTreeClassifier().SetParams(estimator.Params{"depth": 3}))
	require.Error(t, NewVotingClassifier().SetParams(estimator.Params{"anything": 1}))
	require.NoError(t, NewVotingClassifier().SetParams(estimator.Params{}))
}

func TestCloneIsUnfittedWithSameParams(t *testing.T) {
	X, y := linearData(30, 6)
	k := NewKNNRegressor()
	require.NoError(t, k.SetParams(estimator.Params{"n_neighbors": 3, "weights": "distance"}))
	require.NoError(t, k.Fit(context.Background(), X, y))

	c := k.Clone()
	assert.Equal(t, k.Params(), c.Params())
	_, err := c.Predict(X)
	require.ErrorIs(t, err, ErrNotFitted)
}

func TestVotingRegressorAveragesBases(t *testing.T) {
	X, y := linearData(60, 7)
	v := NewVotingRegressor()
	v.SetBases([]estimator.Named{
		{Label: "e1", Estimator: NewRidge()},
		{Label: "e2", Estimator: NewKNNRegressor()},
	})
	require.NoError(t, v.Fit(context.Background(), X, y))

	pred, err := v.Predict(X[:5])
	require.NoError(t, err)
	a, err := v.Bases()[0].Estimator.Predict(X[:5])
	require.NoError(t, err)
	b, err := v.Bases()[1].Estimator.Predict(X[:5])
	require.NoError(t, err)
	for i := range pred {
		assert.InDelta(t, (a[i]+b[i])/2, pred[i], 1e-12)
	}
}

func TestVotingClassifierMajority(t *testing.T) {
	X, y := blobData(60, 8)
	v := NewVotingClassifier()
	v.SetBases([]estimator.Named{
		{Label: "e1", Estimator: NewLogisticRegression()},
		{Label: "e2", Estimator: NewKNNClassifier()},
		{Label: "e3", Estimator: NewDecisionTreeClassifier()},
	})
	require.NoError(t, v.Fit(context.Background(), X, y))
	score, err := v.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.95)
}

func TestStackingRegressorFitsMetaLearner(t *testing.T) {
	X, y := linearData(80, 9)
	s := NewStackingRegressor()
	s.SetBases([]estimator.Named{
		{Label: "e1", Estimator: NewRidge()},
		{Label: "e2", Estimator: NewDecisionTreeRegressor()},
	})
	require.NoError(t, s.Fit(context.Background(), X, y))
	score, err := s.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)

	clone := s.Clone().(*StackingRegressor)
	require.Len(t, clone.Bases(), 2)
	assert.NotSame(t, s.Bases()[0].Estimator, clone.Bases()[0].Estimator)
}

func TestEnsembleWithoutBasesFails(t *testing.T) {
	X, y := linearData(10, 10)
	err := NewVotingRegressor().Fit(context.Background(), X, y)
	require.ErrorIs(t, err, ErrNoBases)
}

func TestDefaultRegistryRosters(t *testing.T) {
	r := DefaultRegistry()
	reg := r.Roster(estimator.Regression)
	clf := r.Roster(estimator.Classification)
	require.Len(t, reg, 5)
	require.Len(t, clf, 4)
	for _, e := range r.Entries() {
		assert.Equal(t, e.Name, e.New().Name(), "constructor name must match registry name")
		if e.IsEnsemble() {
			_, ok := e.New().(estimator.Composite)
			assert.True(t, ok, e.Name)
		}
	}
}

func TestRegistrySpacesAreAcceptedByTheirEstimators(t *testing.T) {
	r := DefaultRegistry()
	stacking, ok := r.Lookup(StackingRegressorName)
	require.True(t, ok)
	require.Len(t, stacking.Space, 1)
	assert.Equal(t, "final_alpha", stacking.Space[0].Name)

	for _, e := range r.Entries() {
		for _, d := range e.Space {
			value := any(d.Min)
			if len(d.Choices) > 0 {
				value = d.Choices[0]
			} else if d.Integer {
				value = int(d.Min)
			}
			assert.NoError(t, e.New().SetParams(estimator.Params{d.Name: value}), "%s.%s", e.Name, d.Name)
		}
	}
}
