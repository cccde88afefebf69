package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl/internal/estimator"
)

func TestRegressionMetrics(t *testing.T) {
	yTrue := []float64{3, -0.5, 2, 7}
	yPred := []float64{2.5, 0, 2, 8}

	assert.InDelta(t, 0.9486081370449679, R2(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.5, MeanAbsoluteError(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.375, MeanSquaredError(yTrue, yPred), 1e-12)
	assert.InDelta(t, math.Sqrt(0.375), RootMeanSquaredError(yTrue, yPred), 1e-12)

	m, ok := Lookup("neg_mean_absolute_error")
	require.True(t, ok)
	assert.InDelta(t, -0.5, m.Score(yTrue, yPred), 1e-12)
}

func TestR2ConstantTruth(t *testing.T) {
	assert.Equal(t, 1.0, R2([]float64{2, 2}, []float64{2, 2}))
	assert.Equal(t, 0.0, R2([]float64{2, 2}, []float64{1, 2}))
}

func TestBinaryClassificationMetrics(t *testing.T) {
	yTrue := []float64{0, 1, 1, 0, 1, 1}
	yPred := []float64{0, 1, 0, 0, 1, 1}

	assert.InDelta(t, 5.0/6.0, Accuracy(yTrue, yPred), 1e-12)
	assert.InDelta(t, 1.0, Precision(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.75, Recall(yTrue, yPred), 1e-12)
	assert.InDelta(t, 2*0.75/1.75, F1(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.875, ROCAUC(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.875, BalancedAccuracy(yTrue, yPred), 1e-12)
}

func TestMulticlassF1IsMacroAverage(t *testing.T) {
	yTrue := []float64{0, 1, 2, 0, 1, 2}
	yPred := []float64{0, 2, 1, 0, 0, 1}

	// class 0: tp=2 fp=1 fn=0 -> 0.8; classes 1 and 2 score 0.
	assert.InDelta(t, 0.8/3, F1(yTrue, yPred), 1e-12)
	assert.InDelta(t, F1Macro(yTrue, yPred), F1(yTrue, yPred), 1e-12)
}

func TestROCAUCPerfectAndSingleClass(t *testing.T) {
	assert.Equal(t, 1.0, ROCAUC([]float64{0, 1, 0, 1}, []float64{0, 1, 0, 1}))
	assert.Equal(t, 0.5, ROCAUC([]float64{0, 1, 0, 1}, []float64{1, 1, 1, 1}))
	assert.True(t, math.IsNaN(ROCAUC([]float64{1, 1}, []float64{1, 0})))
}

func TestConfusion(t *testing.T) {
	cm := Confusion([]float64{0, 1, 1, 2}, []float64{0, 1, 2, 2}, []float64{0, 1, 2})
	assert.Equal(t, [][]int{{1, 0, 0}, {0, 1, 1}, {0, 0, 1}}, cm)
}

func TestResolveChecksTask(t *testing.T) {
	ms, err := Resolve(estimator.Regression, []string{"r2", "neg_mean_squared_error"})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "r2", ms[0].Name)

	_, err = Resolve(estimator.Regression, []string{"f1"})
	require.Error(t, err)
	_, err = Resolve(estimator.Classification, []string{"bogus"})
	require.Error(t, err)
	_, err = Resolve(estimator.Classification, nil)
	require.Error(t, err)

	for _, task := range []estimator.Task{estimator.Regression, estimator.Classification} {
		_, err := Resolve(task, Defaults(task))
		require.NoError(t, err)
	}
}

func TestScoreRejectsMismatchedLengths(t *testing.T) {
	m, ok := Lookup("accuracy")
	require.True(t, ok)
	assert.True(t, math.IsNaN(m.Score([]float64{1}, []float64{1, 0})))
	assert.True(t, math.IsNaN(m.Score(nil, nil)))
}

func TestBoundClassesFixTheAveragingFormula(t *testing.T) {
	f1, ok := Lookup("f1")
	require.True(t, ok)
	bound := f1.WithClasses([]float64{2, 0, 1})
	assert.Equal(t, []float64{0, 1, 2}, bound.Classes)

	// The slice never shows class 2 in its truth; both predictions miss one
	// row and must be scored with the same macro formula.
	yTrue := []float64{0, 0, 1, 1}
	missesIntoKnownClass := []float64{0, 0, 0, 1}
	missesIntoAbsentClass := []float64{0, 0, 2, 1}
	assert.InDelta(t, (0.8+2.0/3+0)/3, bound.Score(yTrue, missesIntoKnownClass), 1e-12)
	assert.InDelta(t, (1+2.0/3+0)/3, bound.Score(yTrue, missesIntoAbsentClass), 1e-12)

	binary := f1.WithClasses([]float64{0, 1})
	onlyNegatives := []float64{0, 0, 0}
	assert.Equal(t, 0.0, binary.Score(onlyNegatives, onlyNegatives), "positive class stays fixed")
	assert.Equal(t, 1.0, f1.Score(onlyNegatives, onlyNegatives), "unbound metric infers classes from the slice")
}

func TestBoundPrecisionRecallAndAUC(t *testing.T) {
	classes := []float64{0, 1, 2}
	yTrue := []float64{0, 1, 1, 0}
	yPred := []float64{0, 1, 0, 0}

	precision, _ := Lookup("precision")
	recall, _ := Lookup("recall")
	assert.InDelta(t, (2.0/3+1+0)/3, precision.WithClasses(classes).Score(yTrue, yPred), 1e-12)
	assert.InDelta(t, (1+0.5+0)/3, recall.WithClasses(classes).Score(yTrue, yPred), 1e-12)

	auc, _ := Lookup("roc_auc")
	bound := auc.WithClasses(classes).Score(yTrue, yPred)
	assert.False(t, math.IsNaN(bound), "absent classes are skipped, not fatal")
	assert.InDelta(t, ROCAUC(yTrue, yPred), bound, 1e-12)
}
