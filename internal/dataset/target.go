package dataset

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"automl/internal/estimator"
	"automl/internal/metrics"
	"automl/internal/model"
)

const (
	DefaultUniqueLimit   = 15
	DefaultTrainFraction = 0.8
	DefaultSplitSeed     = 1102
)

type Options struct {
	// Metrics for the target, primary first. Empty means the task defaults.
	Metrics []string
	// UniqueLimit is the distinct-value count above which integer labels are
	// treated as a regression target.
	UniqueLimit   int
	TrainFraction float64
	SplitSeed     int64
	// Exclude names columns never used as features, such as other targets.
	Exclude []string
}

func (o Options) withDefaults() Options {
	if o.UniqueLimit <= 0 {
		o.UniqueLimit = DefaultUniqueLimit
	}
	if o.TrainFraction <= 0 || o.TrainFraction >= 1 {
		o.TrainFraction = DefaultTrainFraction
	}
	if o.SplitSeed == 0 {
		o.SplitSeed = DefaultSplitSeed
	}
	return o
}

// Target is one prediction problem: a label column with its feature matrices
// already scaled and split.
type Target struct {
	Name     string
	Task     estimator.Task
	Features []string
	XTrain   [][]float64
	XTest    [][]float64
	YTrain   []float64
	YTest    []float64
	Metrics  []string
	// Classes are the encoded class values; ClassNames their original labels.
	Classes    []float64
	ClassNames []string
	Scaler     MinMaxScaler
}

// InferTask types a label column. Boolean and text labels are categorical,
// non-integer numbers are continuous, and integer labels are categorical
// unless they take more than uniqueLimit distinct values.
func InferTask(values []string, uniqueLimit int) estimator.Task {
	allBool := len(values) > 0
	for _, v := range values {
		if _, ok := parseBool(v); !ok {
			allBool = false
			break
		}
	}
	if allBool {
		return estimator.Classification
	}
	integral := true
	for _, v := range values {
		if _, ok := parseNumeric(v); !ok {
			return estimator.Classification
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			if _, isBool := parseBool(v); !isBool {
				integral = false
			}
		}
	}
	if !integral {
		return estimator.Regression
	}
	distinct := map[string]struct{}{}
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	if len(distinct) > uniqueLimit {
		return estimator.Regression
	}
	return estimator.Classification
}

// BuildTarget prepares column of f as a target. Every other numeric column not
// excluded becomes a feature.
func BuildTarget(f *Frame, column string, opts Options) (*Target, error) {
	opts = opts.withDefaults()
	if !f.Has(column) {
		return nil, model.NewConfigurationError("dataset", "target column %q not found", column)
	}
	if f.Len() < 2 {
		return nil, model.NewConfigurationError("dataset", "target %s needs at least 2 rows, got %d", column, f.Len())
	}
	raw, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	task := InferTask(raw, opts.UniqueLimit)

	t := &Target{Name: column, Task: task}
	y, err := t.encodeLabels(raw)
	if err != nil {
		return nil, err
	}

	excluded := map[string]struct{}{column: {}}
	for _, name := range opts.Exclude {
		excluded[name] = struct{}{}
	}
	for _, name := range f.NumericColumns() {
		if _, skip := excluded[name]; !skip {
			t.Features = append(t.Features, name)
		}
	}
	if len(t.Features) == 0 {
		return nil, model.NewConfigurationError("dataset", "target %s has no numeric feature columns", column)
	}

	X, err := matrix(f, t.Features)
	if err != nil {
		return nil, err
	}
	t.Scaler, err = FitMinMax(X)
	if err != nil {
		return nil, err
	}
	if X, err = t.Scaler.Transform(X); err != nil {
		return nil, err
	}

	t.Metrics = opts.Metrics
	if len(t.Metrics) == 0 {
		t.Metrics = metrics.Defaults(task)
	}
	if _, err := metrics.Resolve(task, t.Metrics); err != nil {
		return nil, model.NewConfigurationError("dataset", "target %s: %v", column, err)
	}

	train, test := Split(len(X), opts.TrainFraction, opts.SplitSeed)
	t.XTrain, t.YTrain = rowsOf(X, y, train)
	t.XTest, t.YTest = rowsOf(X, y, test)
	return t, nil
}

func (t *Target) encodeLabels(raw []string) ([]float64, error) {
	if t.Task == estimator.Regression {
		y := make([]float64, len(raw))
		for i, v := range raw {
			parsed, _ := parseNumeric(v)
			y[i] = parsed
		}
		return y, nil
	}

	numeric := true
	for _, v := range raw {
		if _, ok := parseNumeric(v); !ok {
			numeric = false
			break
		}
	}
	y := make([]float64, len(raw))
	if numeric {
		seen := map[float64]struct{}{}
		for i, v := range raw {
			y[i], _ = parseNumeric(v)
			seen[y[i]] = struct{}{}
		}
		for v := range seen {
			t.Classes = append(t.Classes, v)
		}
		sort.Float64s(t.Classes)
		for _, c := range t.Classes {
			t.ClassNames = append(t.ClassNames, strconv.FormatFloat(c, 'f', -1, 64))
		}
		return y, nil
	}

	seen := map[string]struct{}{}
	for _, v := range raw {
		seen[v] = struct{}{}
	}
	for v := range seen {
		t.ClassNames = append(t.ClassNames, v)
	}
	sort.Strings(t.ClassNames)
	code := make(map[string]float64, len(t.ClassNames))
	for i, name := range t.ClassNames {
		code[name] = float64(i)
		t.Classes = append(t.Classes, float64(i))
	}
	for i, v := range raw {
		y[i] = code[v]
	}
	return y, nil
}

func matrix(f *Frame, features []string) ([][]float64, error) {
	columns := make([][]float64, len(features))
	for j, name := range features {
		col, err := f.Floats(name)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}
	X := make([][]float64, f.Len())
	for i := range X {
		row := make([]float64, len(features))
		for j := range features {
			row[j] = columns[j][i]
		}
		X[i] = row
	}
	return X, nil
}

// Split shuffles n row indices with seed and cuts them at fraction. Both
// sides keep at least one row when n >= 2.
func Split(n int, fraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	cut := int(math.Round(float64(n) * fraction))
	if cut < 1 {
		cut = 1
	}
	if cut > n-1 {
		cut = n - 1
	}
	return perm[:cut], perm[cut:]
}

func rowsOf(X [][]float64, y []float64, rows []int) ([][]float64, []float64) {
	outX := make([][]float64, len(rows))
	outY := make([]float64, len(rows))
	for i, r := range rows {
		outX[i] = X[r]
		outY[i] = y[r]
	}
	return outX, outY
}

// Primary is the metric fitness is computed from.
func (t *Target) Primary() string {
	if len(t.Metrics) == 0 {
		return ""
	}
	return t.Metrics[0]
}

// Validate checks a caller-assembled target before any search uses it.
func (t *Target) Validate() error {
	if t == nil {
		return model.NewConfigurationError("target", "target is nil")
	}
	if t.Name == "" {
		return model.NewConfigurationError("target", "name is required")
	}
	if t.Task != estimator.Classification && t.Task != estimator.Regression {
		return model.NewConfigurationError("target", "%s: unknown task %q", t.Name, t.Task)
	}
	if len(t.Features) == 0 {
		return model.NewConfigurationError("target", "%s: no features", t.Name)
	}
	if len(t.XTrain) == 0 || len(t.XTest) == 0 {
		return model.NewConfigurationError("target", "%s: empty train or test split", t.Name)
	}
	if len(t.XTrain) != len(t.YTrain) || len(t.XTest) != len(t.YTest) {
		return model.NewConfigurationError("target", "%s: matrix and label lengths differ", t.Name)
	}
	for _, X := range [][][]float64{t.XTrain, t.XTest} {
		for i, row := range X {
			if len(row) != len(t.Features) {
				return model.NewConfigurationError("target", "%s: row %d has %d columns for %d features", t.Name, i, len(row), len(t.Features))
			}
		}
	}
	if _, err := metrics.Resolve(t.Task, t.Metrics); err != nil {
		return model.NewConfigurationError("target", "%s: %v", t.Name, err)
	}
	return nil
}

// Slice keeps the columns of X named by features, in that order.
func (t *Target) Slice(X [][]float64, features []string) ([][]float64, error) {
	index := make(map[string]int, len(t.Features))
	for i, name := range t.Features {
		index[name] = i
	}
	cols := make([]int, len(features))
	for j, name := range features {
		i, ok := index[name]
		if !ok {
			return nil, model.NewConfigurationError("target", "%s: unknown feature %q", t.Name, name)
		}
		cols[j] = i
	}
	out := make([][]float64, len(X))
	for r, row := range X {
		sliced := make([]float64, len(cols))
		for j, c := range cols {
			sliced[j] = row[c]
		}
		out[r] = sliced
	}
	return out, nil
}

// Project reads this target's feature columns from another frame and scales
// them with the fitted scaler, ready for prediction.
func (t *Target) Project(f *Frame) ([][]float64, error) {
	X, err := matrix(f, t.Features)
	if err != nil {
		return nil, err
	}
	return t.Scaler.Transform(X)
}

// Label renders a predicted value as the original class label when the
// target is a classification problem.
func (t *Target) Label(v float64) string {
	if t.Task == estimator.Classification {
		for i, c := range t.Classes {
			if c == v && i < len(t.ClassNames) {
				return t.ClassNames[i]
			}
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
