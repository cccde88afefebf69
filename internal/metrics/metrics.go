// Package metrics implements the scoring functions trials are evaluated with.
// Every metric is oriented so that greater is better; error metrics carry a
// neg_ prefix and return the negated error.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"automl/internal/estimator"
)

// Func scores predictions against ground truth.
type Func func(yTrue, yPred []float64) float64

// ClassFunc scores a classification whose full class list is known.
type ClassFunc func(yTrue, yPred, classes []float64) float64

// Metric is a named scoring function. Classification metrics whose formula
// depends on the class count carry a ClassFn; once Classes are bound the
// binary or macro choice is fixed for every slice scored.
type Metric struct {
	Name    string
	Task    estimator.Task
	Fn      Func
	ClassFn ClassFunc
	Classes []float64
}

func (m Metric) Score(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return math.NaN()
	}
	if m.ClassFn != nil && len(m.Classes) > 0 {
		return m.ClassFn(yTrue, yPred, m.Classes)
	}
	return m.Fn(yTrue, yPred)
}

// WithClasses returns a copy of m bound to the target's classes.
func (m Metric) WithClasses(classes []float64) Metric {
	m.Classes = append([]float64(nil), classes...)
	sort.Float64s(m.Classes)
	return m
}

var registry = map[string]Metric{
	"r2":                          {Name: "r2", Task: estimator.Regression, Fn: R2},
	"explained_variance":          {Name: "explained_variance", Task: estimator.Regression, Fn: ExplainedVariance},
	"neg_mean_absolute_error":     {Name: "neg_mean_absolute_error", Task: estimator.Regression, Fn: negate(MeanAbsoluteError)},
	"neg_mean_squared_error":      {Name: "neg_mean_squared_error", Task: estimator.Regression, Fn: negate(MeanSquaredError)},
	"neg_root_mean_squared_error": {Name: "neg_root_mean_squared_error", Task: estimator.Regression, Fn: negate(RootMeanSquaredError)},
	"accuracy":                    {Name: "accuracy", Task: estimator.Classification, Fn: Accuracy},
	"balanced_accuracy":           {Name: "balanced_accuracy", Task: estimator.Classification, Fn: BalancedAccuracy},
	"f1":                          {Name: "f1", Task: estimator.Classification, Fn: F1, ClassFn: F1Classes},
	"f1_macro":                    {Name: "f1_macro", Task: estimator.Classification, Fn: F1Macro, ClassFn: F1MacroClasses},
	"precision":                   {Name: "precision", Task: estimator.Classification, Fn: Precision, ClassFn: PrecisionClasses},
	"recall":                      {Name: "recall", Task: estimator.Classification, Fn: Recall, ClassFn: RecallClasses},
	"roc_auc":                     {Name: "roc_auc", Task: estimator.Classification, Fn: ROCAUC, ClassFn: ROCAUCClasses},
}

// Lookup resolves a metric by name.
func Lookup(name string) (Metric, bool) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

// Resolve looks up every name and checks it suits the task.
func Resolve(task estimator.Task, names []string) ([]Metric, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one metric is required")
	}
	out := make([]Metric, 0, len(names))
	for _, name := range names {
		m, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", name)
		}
		if m.Task != task {
			return nil, fmt.Errorf("metric %s does not apply to %s", m.Name, task)
		}
		out = append(out, m)
	}
	return out, nil
}

// Defaults returns the metric names used when a target lists none.
func Defaults(task estimator.Task) []string {
	if task == estimator.Classification {
		return []string{"f1", "accuracy", "roc_auc"}
	}
	return []string{"r2", "neg_mean_absolute_error", "neg_mean_squared_error"}
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func negate(fn Func) Func {
	return func(yTrue, yPred []float64) float64 {
		return -fn(yTrue, yPred)
	}
}

func residuals(yTrue, yPred []float64) []float64 {
	out := make([]float64, len(yTrue))
	floats.SubTo(out, yTrue, yPred)
	return out
}

// R2 is the coefficient of determination. A constant ground truth scores 1
// when predicted exactly and 0 otherwise.
func R2(yTrue, yPred []float64) float64 {
	res := residuals(yTrue, yPred)
	ssRes := floats.Dot(res, res)
	mean := stat.Mean(yTrue, nil)
	ssTot := 0.0
	for _, v := range yTrue {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func ExplainedVariance(yTrue, yPred []float64) float64 {
	res := residuals(yTrue, yPred)
	_, varRes := stat.PopMeanVariance(res, nil)
	_, varTrue := stat.PopMeanVariance(yTrue, nil)
	if varTrue == 0 {
		if varRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - varRes/varTrue
}

func MeanAbsoluteError(yTrue, yPred []float64) float64 {
	res := residuals(yTrue, yPred)
	return floats.Norm(res, 1) / float64(len(res))
}

func MeanSquaredError(yTrue, yPred []float64) float64 {
	res := residuals(yTrue, yPred)
	return floats.Dot(res, res) / float64(len(res))
}

func RootMeanSquaredError(yTrue, yPred []float64) float64 {
	return math.Sqrt(MeanSquaredError(yTrue, yPred))
}
