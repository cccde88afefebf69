package tuning

import (
	"context"
	"errors"
	"math"
	"testing"

	"automl/internal/budget"
	"automl/internal/estimator"
	"automl/internal/metrics"
)

// offsetEstimator predicts the training mean plus a fixed offset, so the
// best offset under an error metric is the one closest to zero.
type offsetEstimator struct {
	offset float64
	panics bool
	mean   float64
	fitted bool
	// failAt3 makes Fit fail at offset 3, the prototype's starting point.
	failAt3 bool
}

func (o *offsetEstimator) Name() string                      { return "offset" }
func (o *offsetEstimator) Capability() estimator.Capability { return estimator.Regressor }
func (o *offsetEstimator) Params() estimator.Params {
	return estimator.Params{"offset": o.offset}
}
func (o *offsetEstimator) SetParams(p estimator.Params) error {
	if err := estimator.CheckKnown("offset", p, "offset"); err != nil {
		return err
	}
	o.offset = p.Float("offset", o.offset)
	return nil
}
func (o *offsetEstimator) Fit(ctx context.Context, _ [][]float64, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.panics {
		panic("boom")
	}
	if o.failAt3 && o.offset == 3 {
		return errors.New("offset 3 diverged")
	}
	total := 0.0
	for _, v := range y {
		total += v
	}
	o.mean = total / float64(len(y))
	o.fitted = true
	return nil
}
func (o *offsetEstimator) Predict(X [][]float64) ([]float64, error) {
	if !o.fitted {
		return nil, errors.New("not fitted")
	}
	out := make([]float64, len(X))
	for i := range out {
		out[i] = o.mean + o.offset
	}
	return out, nil
}
func (o *offsetEstimator) Score([][]float64, []float64) (float64, error) { return 0, nil }
func (o *offsetEstimator) Clone() estimator.Estimator {
	return &offsetEstimator{offset: o.offset, panics: o.panics, failAt3: o.failAt3}
}

func constantProblem(t *testing.T, space estimator.Space) Problem {
	t.Helper()
	m, ok := metrics.Lookup("neg_mean_absolute_error")
	if !ok {
		t.Fatal("metric missing")
	}
	X := make([][]float64, 20)
	y := make([]float64, 20)
	for i := range X {
		X[i] = []float64{float64(i)}
		y[i] = 5
	}
	return Problem{Prototype: &offsetEstimator{offset: 3}, Space: space, X: X, Y: y, Metric: m}
}

var offsetSpace = estimator.Space{{Name: "offset", Choices: []any{2.0, -1.0, 0.0, 1.0}}}

func TestKFoldPartitionsRows(t *testing.T) {
	folds, err := KFold(10, 3)
	if err != nil {
		t.Fatalf("kfold: %v", err)
	}
	if len(folds) != 3 {
		t.Fatalf("expected 3 folds, got=%d", len(folds))
	}
	sizes := []int{4, 3, 3}
	seen := map[int]int{}
	for i, fold := range folds {
		if len(fold.Test) != sizes[i] {
			t.Fatalf("fold %d: expected test size %d, got=%d", i, sizes[i], len(fold.Test))
		}
		if len(fold.Train)+len(fold.Test) != 10 {
			t.Fatalf("fold %d does not cover every row", i)
		}
		for _, r := range fold.Test {
			seen[r]++
		}
	}
	for r := 0; r < 10; r++ {
		if seen[r] != 1 {
			t.Fatalf("row %d tested %d times", r, seen[r])
		}
	}
}

func TestKFoldClampsAndValidates(t *testing.T) {
	folds, err := KFold(3, 5)
	if err != nil || len(folds) != 3 {
		t.Fatalf("expected 3 clamped folds, got=%d err=%v", len(folds), err)
	}
	if _, err := KFold(1, 5); err == nil {
		t.Fatal("expected too few rows error")
	}
	if _, err := KFold(10, 1); err == nil {
		t.Fatal("expected too few folds error")
	}
}

func TestGridTunerPicksBestCandidate(t *testing.T) {
	tuner, err := NewTuner(Options{Mode: "grid", Folds: 4, Budget: budget.New(2)})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	res, err := tuner.Tune(context.Background(), constantProblem(t, offsetSpace))
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if got := res.Params.Float("offset", math.NaN()); got != 0 {
		t.Fatalf("expected offset=0, got=%v", got)
	}
	if res.CVScore != 0 {
		t.Fatalf("expected perfect cv score, got=%f", res.CVScore)
	}
	if res.Report.CandidatesPlanned != 4 || res.Report.CandidatesEvaluated != 4 {
		t.Fatalf("unexpected report: %+v", res.Report)
	}
	pred, err := res.Estimator.Predict([][]float64{{1}})
	if err != nil || pred[0] != 5 {
		t.Fatalf("expected refit estimator to predict 5, got=%v err=%v", pred, err)
	}
}

func TestGridTunerEmptySpaceUsesDefaults(t *testing.T) {
	tuner, err := NewTuner(Options{Mode: "grid", Folds: 3})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	res, err := tuner.Tune(context.Background(), constantProblem(t, nil))
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if res.Report.CandidatesPlanned != 1 {
		t.Fatalf("expected a single candidate, got=%d", res.Report.CandidatesPlanned)
	}
	if res.CVScore != -3 {
		t.Fatalf("expected default offset score -3, got=%f", res.CVScore)
	}
}

func TestRandomTunerIsDeterministicPerSeed(t *testing.T) {
	space := estimator.Space{{Name: "offset", Min: -4, Max: 4}}
	run := func() Result {
		tuner, err := NewTuner(Options{Mode: "random", Folds: 3, Iterations: 8, Seed: 7})
		if err != nil {
			t.Fatalf("new tuner: %v", err)
		}
		res, err := tuner.Tune(context.Background(), constantProblem(t, space))
		if err != nil {
			t.Fatalf("tune: %v", err)
		}
		return res
	}
	a, b := run(), run()
	if a.Params.Float("offset", 0) != b.Params.Float("offset", 1) {
		t.Fatalf("expected identical picks, got=%v and %v", a.Params, b.Params)
	}
	if a.Report.CandidatesPlanned != 8 {
		t.Fatalf("expected 8 candidates, got=%d", a.Report.CandidatesPlanned)
	}
	if math.Abs(a.Params.Float("offset", 9)) > 4 {
		t.Fatalf("sampled offset out of range: %v", a.Params)
	}
}

func TestHillClimbImprovesOnStartingPoint(t *testing.T) {
	space := estimator.Space{{Name: "offset", Min: -4, Max: 4}}
	tuner, err := NewTuner(Options{Mode: "hillclimb", Folds: 3, Iterations: 40, Seed: 1})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	res, err := tuner.Tune(context.Background(), constantProblem(t, space))
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if res.CVScore <= -3 {
		t.Fatalf("expected tuned score > starting score -3, got=%f", res.CVScore)
	}
	if res.Report.AcceptedCandidates < 2 {
		t.Fatalf("expected at least one accepted move, got=%+v", res.Report)
	}
}

func TestHillClimbSurvivesFailingStartingPoint(t *testing.T) {
	tuner, err := NewTuner(Options{Mode: "hillclimb", Folds: 3, Iterations: 40, Seed: 1})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	p := constantProblem(t, estimator.Space{{Name: "offset", Min: -4, Max: 4}})
	p.Prototype = &offsetEstimator{offset: 3, failAt3: true}
	res, err := tuner.Tune(context.Background(), p)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if math.IsNaN(res.CVScore) || res.Params.Float("offset", 3) == 3 {
		t.Fatalf("expected a perturbed point to win, got params=%v score=%f", res.Params, res.CVScore)
	}
	if res.Report.FailedCandidates < 1 || res.Report.AcceptedCandidates < 1 {
		t.Fatalf("unexpected report: %+v", res.Report)
	}

	// Perturbing a single choice only ever revisits the failed start.
	p.Space = estimator.Space{{Name: "offset", Choices: []any{3.0}}}
	if _, err := tuner.Tune(context.Background(), p); err == nil {
		t.Fatal("expected an error when no candidate can be scored")
	}
}

func TestTunerRecoversEstimatorPanic(t *testing.T) {
	tuner, err := NewTuner(Options{Mode: "grid", Folds: 2})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	p := constantProblem(t, nil)
	p.Prototype = &offsetEstimator{panics: true}
	_, err = tuner.Tune(context.Background(), p)
	if !errors.Is(err, ErrEstimatorPanic) {
		t.Fatalf("expected panic error, got=%v", err)
	}
}

func TestTunerToleratesFailingCandidates(t *testing.T) {
	space := estimator.Space{{Name: "offset", Choices: []any{1.0}}, {Name: "bogus", Choices: []any{1}}}
	tuner, err := NewTuner(Options{Mode: "grid", Folds: 2})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	_, err = tuner.Tune(context.Background(), constantProblem(t, space))
	if err == nil {
		t.Fatal("expected error when every candidate fails")
	}
}

func TestTunerHonoursCancellation(t *testing.T) {
	tuner, err := NewTuner(Options{Mode: "grid", Folds: 2})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tuner.Tune(ctx, constantProblem(t, offsetSpace))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got=%v", err)
	}
}

func TestTunerRespectsBudget(t *testing.T) {
	b := budget.New(1)
	tuner, err := NewTuner(Options{Mode: "grid", Folds: 5, Budget: b})
	if err != nil {
		t.Fatalf("new tuner: %v", err)
	}
	if _, err := tuner.Tune(context.Background(), constantProblem(t, offsetSpace)); err != nil {
		t.Fatalf("tune: %v", err)
	}
	if b.Peak() != 1 {
		t.Fatalf("expected peak concurrency 1, got=%d", b.Peak())
	}
}

func TestNewTunerRejectsUnknownMode(t *testing.T) {
	if _, err := NewTuner(Options{Mode: "bayes"}); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	if _, err := NewTuner(Options{Mode: "random", IterationPolicy: "nope"}); err == nil {
		t.Fatal("expected unsupported policy error")
	}
}
