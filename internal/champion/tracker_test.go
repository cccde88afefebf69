package champion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl/internal/ledger"
)

type recordingSnapshotter struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (r *recordingSnapshotter) SnapshotChampion(_ context.Context, target string, trial ledger.Trial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, target+":"+trial.Algorithm)
	return r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scored(algo string, score float64) ledger.Trial {
	return ledger.Trial{Algorithm: algo, PrimaryMetric: "r2", Scores: map[string]float64{"r2": score}}
}

func TestOfferRequiresStrictImprovement(t *testing.T) {
	snap := &recordingSnapshotter{}
	tr := NewTracker(Config{Targets: []string{"y"}, Snapshotter: snap, Logger: quietLogger()})

	assert.True(t, tr.Offer(context.Background(), "y", scored("ridge", 0.5)))
	assert.False(t, tr.Offer(context.Background(), "y", scored("knn_regressor", 0.5)), "ties keep the incumbent")
	assert.False(t, tr.Offer(context.Background(), "y", scored("knn_regressor", 0.4)))
	assert.False(t, tr.Offer(context.Background(), "y", scored("knn_regressor", math.NaN())))
	assert.True(t, tr.Offer(context.Background(), "y", scored("decision_tree_regressor", 0.7)))

	champ, ok := tr.Champion("y")
	require.True(t, ok)
	assert.Equal(t, "decision_tree_regressor", champ.Algorithm)
	assert.Equal(t, []string{"y:ridge", "y:decision_tree_regressor"}, snap.saved)
	assert.Len(t, tr.History("y"), 2)
}

func TestOfferIgnoresUnknownTarget(t *testing.T) {
	tr := NewTracker(Config{Targets: []string{"y"}, Logger: quietLogger()})
	assert.False(t, tr.Offer(context.Background(), "z", scored("ridge", 1)))
	assert.Empty(t, tr.Champions())
}

func TestCompletionFiresOnceWhenAllTargetsHaveChampions(t *testing.T) {
	calls := 0
	var got map[string]ledger.Trial
	tr := NewTracker(Config{
		Targets: []string{"a", "b"},
		Logger:  quietLogger(),
		OnComplete: func(_ context.Context, champions map[string]ledger.Trial) {
			calls++
			got = champions
		},
	})

	tr.Offer(context.Background(), "a", scored("ridge", 0.1))
	assert.Equal(t, 0, calls)
	assert.False(t, tr.Complete())

	tr.Offer(context.Background(), "b", scored("ridge", 0.2))
	assert.Equal(t, 1, calls)
	assert.True(t, tr.Complete())
	require.Len(t, got, 2)

	tr.Offer(context.Background(), "a", scored("knn_regressor", 0.9))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "ridge", got["a"].Algorithm, "completion receives a copy")
}

func TestSnapshotFailureDoesNotUndoUpdate(t *testing.T) {
	snap := &recordingSnapshotter{err: errors.New("disk full")}
	tr := NewTracker(Config{Targets: []string{"y"}, Snapshotter: snap, Logger: quietLogger()})
	assert.True(t, tr.Offer(context.Background(), "y", scored("ridge", 0.3)))
	_, ok := tr.Champion("y")
	assert.True(t, ok)
}

func TestConcurrentOffersKeepMaximum(t *testing.T) {
	tr := NewTracker(Config{Targets: []string{"y"}, Logger: quietLogger()})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Offer(context.Background(), "y", scored("ridge", float64(i)))
		}(i)
	}
	wg.Wait()
	champ, ok := tr.Champion("y")
	require.True(t, ok)
	assert.Equal(t, 49.0, champ.Primary())
}
