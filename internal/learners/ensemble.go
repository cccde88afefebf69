package learners

import (
	"context"
	"errors"
	"fmt"

	"automl/internal/estimator"
)

const (
	VotingRegressorName   = "voting_regressor"
	VotingClassifierName  = "voting_classifier"
	StackingRegressorName = "stacking_regressor"
)

var ErrNoBases = errors.New("ensemble has no base estimators")

// composite holds the bases shared by every ensemble.
type composite struct {
	name   string
	bases  []estimator.Named
	fitted bool
}

func (c *composite) SetBases(bases []estimator.Named) {
	c.bases = bases
	c.fitted = false
}

func (c *composite) Bases() []estimator.Named {
	return append([]estimator.Named(nil), c.bases...)
}

func (c *composite) fitBases(ctx context.Context, X [][]float64, y []float64) error {
	if len(c.bases) == 0 {
		return fmt.Errorf("%s: %w", c.name, ErrNoBases)
	}
	if _, err := checkTraining(c.name, X, y); err != nil {
		return err
	}
	for _, base := range c.bases {
		if err := checkContext(ctx); err != nil {
			return err
		}
		if err := base.Estimator.Fit(ctx, X, y); err != nil {
			return fmt.Errorf("%s: base %s: %w", c.name, base.Label, err)
		}
	}
	return nil
}

func (c *composite) predictBases(X [][]float64) ([][]float64, error) {
	if !c.fitted {
		return nil, fmt.Errorf("%s: %w", c.name, ErrNotFitted)
	}
	out := make([][]float64, len(c.bases))
	for i, base := range c.bases {
		pred, err := base.Estimator.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("%s: base %s: %w", c.name, base.Label, err)
		}
		out[i] = pred
	}
	return out, nil
}

// VotingRegressor averages its bases' predictions.
type VotingRegressor struct{ composite }

func NewVotingRegressor() *VotingRegressor {
	return &VotingRegressor{composite{name: VotingRegressorName}}
}

func (v *VotingRegressor) Name() string                      { return VotingRegressorName }
func (v *VotingRegressor) Capability() estimator.Capability { return estimator.Ensemble }
func (v *VotingRegressor) Params() estimator.Params         { return estimator.Params{} }

func (v *VotingRegressor) SetParams(p estimator.Params) error {
	return estimator.CheckKnown(VotingRegressorName, p)
}

func (v *VotingRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := v.fitBases(ctx, X, y); err != nil {
		return err
	}
	v.fitted = true
	return nil
}

func (v *VotingRegressor) Predict(X [][]float64) ([]float64, error) {
	preds, err := v.predictBases(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for _, pred := range preds {
		for i, p := range pred {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(preds))
	}
	return out, nil
}

func (v *VotingRegressor) Score(X [][]float64, y []float64) (float64, error) {
	return regressorScore(v, X, y)
}

func (v *VotingRegressor) Clone() estimator.Estimator {
	c := NewVotingRegressor()
	c.bases = estimator.CloneBases(v.bases)
	return c
}

// VotingClassifier takes the hard majority vote of its bases. Ties go to the
// smallest label.
type VotingClassifier struct{ composite }

func NewVotingClassifier() *VotingClassifier {
	return &VotingClassifier{composite{name: VotingClassifierName}}
}

func (v *VotingClassifier) Name() string                      { return VotingClassifierName }
func (v *VotingClassifier) Capability() estimator.Capability { return estimator.Ensemble }
func (v *VotingClassifier) Params() estimator.Params         { return estimator.Params{} }

func (v *VotingClassifier) SetParams(p estimator.Params) error {
	return estimator.CheckKnown(VotingClassifierName, p)
}

func (v *VotingClassifier) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := v.fitBases(ctx, X, y); err != nil {
		return err
	}
	v.fitted = true
	return nil
}

func (v *VotingClassifier) Predict(X [][]float64) ([]float64, error) {
	preds, err := v.predictBases(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range out {
		votes := map[float64]float64{}
		for _, pred := range preds {
			votes[pred[i]]++
		}
		out[i] = majority(votes)
	}
	return out, nil
}

func (v *VotingClassifier) Score(X [][]float64, y []float64) (float64, error) {
	return classifierScore(v, X, y)
}

func (v *VotingClassifier) Clone() estimator.Estimator {
	c := NewVotingClassifier()
	c.bases = estimator.CloneBases(v.bases)
	return c
}

// StackingRegressor fits a ridge meta-learner on the in-sample predictions of
// its bases.
type StackingRegressor struct {
	composite
	FinalAlpha float64

	final *Ridge
}

func NewStackingRegressor() *StackingRegressor {
	return &StackingRegressor{composite: composite{name: StackingRegressorName}, FinalAlpha: 1}
}

func (s *StackingRegressor) Name() string                      { return StackingRegressorName }
func (s *StackingRegressor) Capability() estimator.Capability { return estimator.Ensemble }

func (s *StackingRegressor) Params() estimator.Params {
	return estimator.Params{"final_alpha": s.FinalAlpha}
}

func (s *StackingRegressor) SetParams(p estimator.Params) error {
	if err := estimator.CheckKnown(StackingRegressorName, p, "final_alpha"); err != nil {
		return err
	}
	alpha := p.Float("final_alpha", s.FinalAlpha)
	if alpha < 0 {
		return fmt.Errorf("%s: final_alpha must be >= 0", StackingRegressorName)
	}
	s.FinalAlpha = alpha
	return nil
}

func (s *StackingRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := s.fitBases(ctx, X, y); err != nil {
		return err
	}
	s.fitted = true
	meta, err := s.metaFeatures(X)
	if err != nil {
		s.fitted = false
		return err
	}
	final := &Ridge{Alpha: s.FinalAlpha}
	if err := final.Fit(ctx, meta, y); err != nil {
		s.fitted = false
		return err
	}
	s.final = final
	return nil
}

func (s *StackingRegressor) metaFeatures(X [][]float64) ([][]float64, error) {
	preds, err := s.predictBases(X)
	if err != nil {
		return nil, err
	}
	meta := make([][]float64, len(X))
	for i := range meta {
		row := make([]float64, len(preds))
		for j, pred := range preds {
			row[j] = pred[i]
		}
		meta[i] = row
	}
	return meta, nil
}

func (s *StackingRegressor) Predict(X [][]float64) ([]float64, error) {
	if s.final == nil {
		return nil, fmt.Errorf("%s: %w", StackingRegressorName, ErrNotFitted)
	}
	meta, err := s.metaFeatures(X)
	if err != nil {
		return nil, err
	}
	return s.final.Predict(meta)
}

func (s *StackingRegressor) Score(X [][]float64, y []float64) (float64, error) {
	return regressorScore(s, X, y)
}

func (s *StackingRegressor) Clone() estimator.Estimator {
	c := NewStackingRegressor()
	c.FinalAlpha = s.FinalAlpha
	c.bases = estimator.CloneBases(s.bases)
	return c
}
