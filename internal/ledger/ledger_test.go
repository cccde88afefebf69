package ledger

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl/internal/estimator"
)

func trial(algo string, features []string, score float64) Trial {
	return Trial{
		Algorithm:  algo,
		Capability: estimator.Regressor,
		Features:   features,
		Scores:     map[string]float64{"r2": score},
	}
}

func TestInsertAndLookup(t *testing.T) {
	l := New("price", "r2")
	stored, err := l.Insert(trial("ridge", []string{"a", "b"}, 0.5))
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Sequence)
	assert.Equal(t, "r2", stored.PrimaryMetric)

	got, ok := l.Lookup("ridge", []string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, 0.5, got.Primary())

	_, ok = l.Lookup("ridge", []string{"b", "a"})
	assert.False(t, ok, "feature order is part of the key")
	_, ok = l.Lookup("knn_regressor", []string{"a", "b"})
	assert.False(t, ok)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	l := New("price", "r2")
	_, err := l.Insert(trial("ridge", []string{"a"}, 0.5))
	require.NoError(t, err)

	_, err = l.Insert(trial("ridge", []string{"a"}, 0.9))
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, NewKey("ridge", []string{"a"}), dup.Key)
	assert.Equal(t, 1, l.Len())
}

func TestKeyDoesNotCollideAcrossFeatureBoundaries(t *testing.T) {
	assert.NotEqual(t, NewKey("m", []string{"a,b"}), NewKey("m", []string{"a", "b"}))
}

func TestTopDistinctOrdersAndFilters(t *testing.T) {
	l := New("price", "r2")
	for _, tr := range []Trial{
		trial("ridge", []string{"a"}, 0.2),
		trial("knn_regressor", []string{"a"}, 0.9),
		trial("ridge", []string{"a", "b"}, 0.7),
		trial("decision_tree_regressor", []string{"b"}, math.NaN()),
		{Algorithm: "voting_regressor", Capability: estimator.Ensemble, Features: []string{"a"}, Scores: map[string]float64{"r2": 0.95}},
	} {
		_, err := l.Insert(tr)
		require.NoError(t, err)
	}

	top := l.TopDistinct(2, true)
	require.Len(t, top, 2)
	assert.Equal(t, "knn_regressor", top[0].Algorithm)
	assert.Equal(t, []string{"a", "b"}, top[1].Features)

	all := l.TopDistinct(10, false)
	require.Len(t, all, 3, "one row per algorithm and NaN rows are never bases")
	assert.Equal(t, "voting_regressor", all[0].Algorithm)
	assert.Equal(t, []string{"a", "b"}, all[2].Features, "best ridge row represents ridge")

	assert.Empty(t, l.TopDistinct(0, true))
}

func TestSortedBreaksTiesOnPredictTimeAndPutsNaNLast(t *testing.T) {
	l := New("price", "r2")
	slow := trial("ridge", []string{"a"}, 0.5)
	slow.PredictTime = 3 * time.Millisecond
	fast := trial("knn_regressor", []string{"a"}, 0.5)
	fast.PredictTime = time.Millisecond
	broken := trial("decision_tree_regressor", []string{"a"}, math.NaN())
	best := trial("ridge", []string{"b"}, 0.8)

	for _, tr := range []Trial{broken, slow, fast, best} {
		_, err := l.Insert(tr)
		require.NoError(t, err)
	}
	sorted := l.Sorted()
	require.Len(t, sorted, 4)
	assert.Equal(t, []string{"b"}, sorted[0].Features)
	assert.Equal(t, "knn_regressor", sorted[1].Algorithm)
	assert.Equal(t, "ridge", sorted[2].Algorithm)
	assert.True(t, math.IsNaN(sorted[3].Primary()))

	top, ok := l.Best()
	require.True(t, ok)
	assert.Equal(t, 0.8, top.Primary())
}

func TestRecordsDropUndefinedScores(t *testing.T) {
	l := New("price", "r2")
	tr := trial("ridge", []string{"a"}, math.NaN())
	tr.CVScore = math.NaN()
	_, err := l.Insert(tr)
	require.NoError(t, err)

	records := l.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "price", records[0].Target)
	assert.NotContains(t, records[0].Scores, "r2")
	assert.Nil(t, records[0].CVScore)
	assert.True(t, math.IsNaN(records[0].Primary()))
}

func TestConcurrentInsertsOfSameKeyKeepOne(t *testing.T) {
	l := New("price", "r2")
	var wg sync.WaitGroup
	var mu sync.Mutex
	dups := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Insert(trial("ridge", []string{"a"}, 0.1)); err != nil {
				mu.Lock()
				dups++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 15, dups)
}
