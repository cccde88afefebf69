package estimator

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEstimator struct {
	name   string
	cap    Capability
	params Params
	bases  []Named
}

func (s *stubEstimator) Name() string           { return s.name }
func (s *stubEstimator) Capability() Capability { return s.cap }
func (s *stubEstimator) Params() Params         { return s.params.Clone() }
func (s *stubEstimator) SetParams(p Params) error {
	if err := CheckKnown(s.name, p, "alpha"); err != nil {
		return err
	}
	s.params = p.Clone()
	return nil
}
func (s *stubEstimator) Fit(context.Context, [][]float64, []float64) error { return nil }
func (s *stubEstimator) Predict(X [][]float64) ([]float64, error)         { return make([]float64, len(X)), nil }
func (s *stubEstimator) Score([][]float64, []float64) (float64, error)    { return 0, nil }
func (s *stubEstimator) Clone() Estimator {
	return &stubEstimator{name: s.name, cap: s.cap, params: s.params.Clone(), bases: CloneBases(s.bases)}
}
func (s *stubEstimator) SetBases(b []Named) { s.bases = b }
func (s *stubEstimator) Bases() []Named     { return s.bases }

func stubEntry(name string, capability, composes Capability) Entry {
	return Entry{
		Name:       name,
		Capability: capability,
		Composes:   composes,
		New:        func() Estimator { return &stubEstimator{name: name, cap: capability, params: Params{}} },
	}
}

func TestRegistryRosterFiltersByTaskInOrder(t *testing.T) {
	r, err := NewRegistry(
		stubEntry("lin", Regressor, ""),
		stubEntry("logit", Classifier, ""),
		stubEntry("knn_reg", Regressor, ""),
		stubEntry("vote_reg", Ensemble, Regressor),
		stubEntry("vote_clf", Ensemble, Classifier),
	)
	require.NoError(t, err)

	names := func(entries []Entry) []string {
		out := []string{}
		for _, e := range entries {
			out = append(out, e.Name)
		}
		return out
	}
	assert.Equal(t, []string{"lin", "knn_reg", "vote_reg"}, names(r.Roster(Regression)))
	assert.Equal(t, []string{"logit", "vote_clf"}, names(r.Roster(Classification)))
	assert.Len(t, r.Entries(), 5)
}

func TestRegistryAddRejectsDuplicatesAndBadEntries(t *testing.T) {
	r, err := NewRegistry(stubEntry("lin", Regressor, ""))
	require.NoError(t, err)

	require.Error(t, r.Add(stubEntry("lin", Regressor, "")))
	require.Error(t, r.Add(Entry{Name: "nocons", Capability: Regressor}))
	require.Error(t, r.Add(stubEntry("bad_ens", Ensemble, Ensemble)))
	require.Error(t, r.Add(stubEntry("weird", Capability("clusterer"), "")))

	require.NoError(t, r.Add(stubEntry("tree", Regressor, "")))
	entry, ok := r.Lookup("tree")
	require.True(t, ok)
	assert.Equal(t, Regressor, entry.Capability)
}

func TestRegistryInstantiateAppliesParams(t *testing.T) {
	r, err := NewRegistry(stubEntry("lin", Regressor, ""))
	require.NoError(t, err)

	est, err := r.Instantiate("lin", Params{"alpha": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, est.Params().Float("alpha", 0))

	_, err = r.Instantiate("lin", Params{"gamma": 1})
	require.Error(t, err)
	_, err = r.Instantiate("missing", nil)
	require.Error(t, err)
}

func TestSpaceGridIsCartesianProduct(t *testing.T) {
	space := Space{
		{Name: "k", Choices: []any{3, 5}},
		{Name: "alpha", Min: 0.01, Max: 1, Log: true, Steps: 3},
	}
	require.NoError(t, space.Validate())

	grid := space.Grid()
	require.Len(t, grid, 6)
	assert.Equal(t, 3, grid[0].Int("k", 0))
	assert.InDelta(t, 0.01, grid[0].Float("alpha", 0), 1e-12)
	assert.InDelta(t, 0.1, grid[1].Float("alpha", 0), 1e-12)
	assert.InDelta(t, 1, grid[2].Float("alpha", 0), 1e-12)
	assert.Equal(t, 5, grid[5].Int("k", 0))
}

func TestEmptySpaceHasSingleDefaultCandidate(t *testing.T) {
	grid := Space{}.Grid()
	require.Len(t, grid, 1)
	assert.Empty(t, grid[0])
}

func TestIntegerRangeGridDeduplicates(t *testing.T) {
	space := Space{{Name: "depth", Min: 1, Max: 2, Integer: true, Steps: 5}}
	values := []int{}
	for _, p := range space.Grid() {
		values = append(values, p.Int("depth", 0))
	}
	assert.Equal(t, []int{1, 2}, values)
}

func TestSpaceSampleStaysInRange(t *testing.T) {
	space := Space{
		{Name: "c", Min: 0.1, Max: 10, Log: true},
		{Name: "depth", Min: 2, Max: 8, Integer: true},
		{Name: "weights", Choices: []any{"uniform", "distance"}},
	}
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 200; i++ {
		p := space.Sample(rng)
		c := p.Float("c", -1)
		assert.GreaterOrEqual(t, c, 0.1)
		assert.LessOrEqual(t, c, 10.0)
		depth := p.Int("depth", -1)
		assert.GreaterOrEqual(t, depth, 2)
		assert.LessOrEqual(t, depth, 8)
		assert.Contains(t, []string{"uniform", "distance"}, p.String("weights", ""))
	}
}

func TestSpaceValidateRejectsBadRanges(t *testing.T) {
	require.Error(t, Space{{Name: "a", Min: 2, Max: 1}}.Validate())
	require.Error(t, Space{{Name: "a", Min: 0, Max: 1, Log: true}}.Validate())
	require.Error(t, Space{{Name: "a", Choices: []any{1}}, {Name: "a", Choices: []any{2}}}.Validate())
	require.Error(t, Space{{Choices: []any{1}}}.Validate())
}

func TestParamsKeyIsSorted(t *testing.T) {
	assert.Equal(t, "a=1,b=x", Params{"b": "x", "a": 1}.Key())
}
