package learners

import (
	"context"
	"fmt"
	"sort"

	"automl/internal/estimator"
)

const (
	DecisionTreeRegressorName  = "decision_tree_regressor"
	DecisionTreeClassifierName = "decision_tree_classifier"
)

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// cart grows a binary tree greedily. impurity scores a label set (lower is
// purer) and leafValue summarizes it.
type cart struct {
	name            string
	MaxDepth        int
	MinSamplesSplit int

	impurity  func(y []float64) float64
	leafValue func(y []float64) float64

	root  *treeNode
	width int
}

func (c *cart) params() estimator.Params {
	return estimator.Params{"max_depth": c.MaxDepth, "min_samples_split": c.MinSamplesSplit}
}

func (c *cart) setParams(p estimator.Params) error {
	if err := estimator.CheckKnown(c.name, p, "max_depth", "min_samples_split"); err != nil {
		return err
	}
	depth := p.Int("max_depth", c.MaxDepth)
	split := p.Int("min_samples_split", c.MinSamplesSplit)
	if depth < 1 || split < 2 {
		return fmt.Errorf("%s: max_depth must be >= 1 and min_samples_split >= 2", c.name)
	}
	c.MaxDepth, c.MinSamplesSplit = depth, split
	return nil
}

func (c *cart) fit(ctx context.Context, X [][]float64, y []float64) error {
	width, err := checkTraining(c.name, X, y)
	if err != nil {
		return err
	}
	rows := make([]int, len(X))
	for i := range rows {
		rows[i] = i
	}
	root, err := c.grow(ctx, X, y, rows, 0)
	if err != nil {
		return err
	}
	c.root, c.width = root, width
	return nil
}

func labelsOf(y []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = y[r]
	}
	return out
}

func (c *cart) grow(ctx context.Context, X [][]float64, y []float64, rows []int, depth int) (*treeNode, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	labels := labelsOf(y, rows)
	leaf := &treeNode{leaf: true, value: c.leafValue(labels)}
	parent := c.impurity(labels)
	if depth >= c.MaxDepth || len(rows) < c.MinSamplesSplit || parent == 0 {
		return leaf, nil
	}

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	width := len(X[rows[0]])
	sorted := append([]int(nil), rows...)
	for f := 0; f < width; f++ {
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })
		for i := 1; i < len(sorted); i++ {
			lo, hi := X[sorted[i-1]][f], X[sorted[i]][f]
			if lo == hi {
				continue
			}
			left := labelsOf(y, sorted[:i])
			right := labelsOf(y, sorted[i:])
			n := float64(len(sorted))
			child := (float64(len(left))*c.impurity(left) + float64(len(right))*c.impurity(right)) / n
			if gain := parent - child; gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, (lo+hi)/2
			}
		}
	}
	if bestFeature < 0 {
		return leaf, nil
	}

	var leftRows, rightRows []int
	for _, r := range rows {
		if X[r][bestFeature] <= bestThreshold {
			leftRows = append(leftRows, r)
		} else {
			rightRows = append(rightRows, r)
		}
	}
	left, err := c.grow(ctx, X, y, leftRows, depth+1)
	if err != nil {
		return nil, err
	}
	right, err := c.grow(ctx, X, y, rightRows, depth+1)
	if err != nil {
		return nil, err
	}
	return &treeNode{feature: bestFeature, threshold: bestThreshold, left: left, right: right}, nil
}

func (c *cart) predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(c.name, X, c.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = c.root.predict(row)
	}
	return out, nil
}

func variance(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	mean := meanOf(y)
	total := 0.0
	for _, v := range y {
		total += (v - mean) * (v - mean)
	}
	return total / float64(len(y))
}

func meanOf(y []float64) float64 {
	total := 0.0
	for _, v := range y {
		total += v
	}
	return total / float64(len(y))
}

func gini(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	counts := map[float64]int{}
	for _, v := range y {
		counts[v]++
	}
	g := 1.0
	for _, n := range counts {
		p := float64(n) / float64(len(y))
		g -= p * p
	}
	return g
}

func modeOf(y []float64) float64 {
	votes := map[float64]float64{}
	for _, v := range y {
		votes[v]++
	}
	return majority(votes)
}

type DecisionTreeRegressor struct{ cart }

func NewDecisionTreeRegressor() *DecisionTreeRegressor {
	return &DecisionTreeRegressor{cart{
		name: DecisionTreeRegressorName, MaxDepth: 6, MinSamplesSplit: 2,
		impurity: variance, leafValue: meanOf,
	}}
}

func (d *DecisionTreeRegressor) Name() string                       { return DecisionTreeRegressorName }
func (d *DecisionTreeRegressor) Capability() estimator.Capability  { return estimator.Regressor }
func (d *DecisionTreeRegressor) Params() estimator.Params          { return d.params() }
func (d *DecisionTreeRegressor) SetParams(p estimator.Params) error { return d.setParams(p) }
func (d *DecisionTreeRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	return d.fit(ctx, X, y)
}
func (d *DecisionTreeRegressor) Predict(X [][]float64) ([]float64, error) { return d.predict(X) }
func (d *DecisionTreeRegressor) Score(X [][]float64, y []float64) (float64, error) {
	return regressorScore(d, X, y)
}

func (d *DecisionTreeRegressor) Clone() estimator.Estimator {
	c := NewDecisionTreeRegressor()
	c.MaxDepth, c.MinSamplesSplit = d.MaxDepth, d.MinSamplesSplit
	return c
}

type DecisionTreeClassifier struct{ cart }

func NewDecisionTreeClassifier() *DecisionTreeClassifier {
	return &DecisionTreeClassifier{cart{
		name: DecisionTreeClassifierName, MaxDepth: 6, MinSamplesSplit: 2,
		impurity: gini, leafValue: modeOf,
	}}
}

func (d *DecisionTreeClassifier) Name() string                       { return DecisionTreeClassifierName }
func (d *DecisionTreeClassifier) Capability() estimator.Capability  { return estimator.Classifier }
func (d *DecisionTreeClassifier) Params() estimator.Params          { return d.params() }
func (d *DecisionTreeClassifier) SetParams(p estimator.Params) error { return d.setParams(p) }
func (d *DecisionTreeClassifier) Fit(ctx context.Context, X [][]float64, y []float64) error {
	return d.fit(ctx, X, y)
}
func (d *DecisionTreeClassifier) Predict(X [][]float64) ([]float64, error) { return d.predict(X) }
func (d *DecisionTreeClassifier) Score(X [][]float64, y []float64) (float64, error) {
	return classifierScore(d, X, y)
}

func (d *DecisionTreeClassifier) Clone() estimator.Estimator {
	c := NewDecisionTreeClassifier()
	c.MaxDepth, c.MinSamplesSplit = d.MaxDepth, d.MinSamplesSplit
	return c
}
