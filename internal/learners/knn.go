package learners

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"automl/internal/estimator"
)

const (
	KNNRegressorName  = "knn_regressor"
	KNNClassifierName = "knn_classifier"

	weightsUniform  = "uniform"
	weightsDistance = "distance"
)

// knn holds the shared neighbour search of the regressor and classifier.
type knn struct {
	name      string
	Neighbors int
	Weights   string

	x     [][]float64
	y     []float64
	width int
}

func (k *knn) params() estimator.Params {
	return estimator.Params{"n_neighbors": k.Neighbors, "weights": k.Weights}
}

func (k *knn) setParams(p estimator.Params) error {
	if err := estimator.CheckKnown(k.name, p, "n_neighbors", "weights"); err != nil {
		return err
	}
	neighbors := p.Int("n_neighbors", k.Neighbors)
	if neighbors < 1 {
		return fmt.Errorf("%s: n_neighbors must be >= 1", k.name)
	}
	weights := p.String("weights", k.Weights)
	if weights != weightsUniform && weights != weightsDistance {
		return fmt.Errorf("%s: unknown weights %q", k.name, weights)
	}
	k.Neighbors, k.Weights = neighbors, weights
	return nil
}

func (k *knn) fit(ctx context.Context, X [][]float64, y []float64) error {
	width, err := checkTraining(k.name, X, y)
	if err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}
	k.x, k.y, k.width = copyMatrix(X), append([]float64(nil), y...), width
	return nil
}

type neighbour struct {
	dist  float64
	label float64
}

func (k *knn) nearest(row []float64) []neighbour {
	all := make([]neighbour, len(k.x))
	for i, train := range k.x {
		all[i] = neighbour{dist: floats.Distance(row, train, 2), label: k.y[i]}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })
	n := k.Neighbors
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// weights returns per-neighbour vote weights. With distance weighting an exact
// match takes all the weight.
func (k *knn) weights(nb []neighbour) []float64 {
	w := make([]float64, len(nb))
	if k.Weights != weightsDistance {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	exact := false
	for i, n := range nb {
		if n.dist == 0 {
			w[i] = 1
			exact = true
		}
	}
	if exact {
		return w
	}
	for i, n := range nb {
		w[i] = 1 / n.dist
	}
	return w
}

type KNNRegressor struct{ knn }

func NewKNNRegressor() *KNNRegressor {
	return &KNNRegressor{knn{name: KNNRegressorName, Neighbors: 5, Weights: weightsUniform}}
}

func (k *KNNRegressor) Name() string                       { return KNNRegressorName }
func (k *KNNRegressor) Capability() estimator.Capability  { return estimator.Regressor }
func (k *KNNRegressor) Params() estimator.Params          { return k.params() }
func (k *KNNRegressor) SetParams(p estimator.Params) error { return k.setParams(p) }

func (k *KNNRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	return k.fit(ctx, X, y)
}

func (k *KNNRegressor) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(k.name, X, k.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		nb := k.nearest(row)
		w := k.weights(nb)
		sum, total := 0.0, 0.0
		for j, n := range nb {
			sum += w[j] * n.label
			total += w[j]
		}
		out[i] = sum / total
	}
	return out, nil
}

func (k *KNNRegressor) Score(X [][]float64, y []float64) (float64, error) {
	return regressorScore(k, X, y)
}

func (k *KNNRegressor) Clone() estimator.Estimator {
	c := NewKNNRegressor()
	c.Neighbors, c.Weights = k.Neighbors, k.Weights
	return c
}

type KNNClassifier struct{ knn }

func NewKNNClassifier() *KNNClassifier {
	return &KNNClassifier{knn{name: KNNClassifierName, Neighbors: 5, Weights: weightsUniform}}
}

func (k *KNNClassifier) Name() string                       { return KNNClassifierName }
func (k *KNNClassifier) Capability() estimator.Capability  { return estimator.Classifier }
func (k *KNNClassifier) Params() estimator.Params          { return k.params() }
func (k *KNNClassifier) SetParams(p estimator.Params) error { return k.setParams(p) }

func (k *KNNClassifier) Fit(ctx context.Context, X [][]float64, y []float64) error {
	return k.fit(ctx, X, y)
}

func (k *KNNClassifier) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(k.name, X, k.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		nb := k.nearest(row)
		w := k.weights(nb)
		votes := map[float64]float64{}
		for j, n := range nb {
			votes[n.label] += w[j]
		}
		out[i] = majority(votes)
	}
	return out, nil
}

func (k *KNNClassifier) Score(X [][]float64, y []float64) (float64, error) {
	return classifierScore(k, X, y)
}

func (k *KNNClassifier) Clone() estimator.Estimator {
	c := NewKNNClassifier()
	c.Neighbors, c.Weights = k.Neighbors, k.Weights
	return c
}
