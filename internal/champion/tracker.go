// Package champion keeps the best trial per target while searches run.
package champion

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"automl/internal/ledger"
)

// Snapshotter persists a champion whenever it changes.
type Snapshotter interface {
	SnapshotChampion(ctx context.Context, target string, trial ledger.Trial) error
}

// CompletionFunc receives a copy of the champions once every target has one.
type CompletionFunc func(ctx context.Context, champions map[string]ledger.Trial)

type Config struct {
	Targets     []string
	Snapshotter Snapshotter
	OnComplete  CompletionFunc
	Logger      *slog.Logger
	Now         func() time.Time
}

type Update struct {
	Target string
	Trial  ledger.Trial
	At     time.Time
}

type Tracker struct {
	mu        sync.Mutex
	targets   map[string]struct{}
	champions map[string]ledger.Trial
	history   map[string][]Update
	completed bool

	snapshotter Snapshotter
	onComplete  CompletionFunc
	logger      *slog.Logger
	now         func() time.Time
}

func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		targets:     make(map[string]struct{}, len(cfg.Targets)),
		champions:   make(map[string]ledger.Trial, len(cfg.Targets)),
		history:     make(map[string][]Update, len(cfg.Targets)),
		snapshotter: cfg.Snapshotter,
		onComplete:  cfg.OnComplete,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	for _, name := range cfg.Targets {
		t.targets[name] = struct{}{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Offer makes trial the champion of target when its primary score is strictly
// greater than the current champion's. It reports whether the champion
// changed. Snapshot failures are logged and do not undo the update.
func (t *Tracker) Offer(ctx context.Context, target string, trial ledger.Trial) bool {
	score := trial.Primary()
	if math.IsNaN(score) {
		return false
	}

	t.mu.Lock()
	if _, known := t.targets[target]; !known {
		t.mu.Unlock()
		t.logger.Warn("champion offered for unknown target", "target", target)
		return false
	}
	if current, ok := t.champions[target]; ok && !(score > current.Primary()) {
		t.mu.Unlock()
		return false
	}
	t.champions[target] = trial
	t.history[target] = append(t.history[target], Update{Target: target, Trial: trial, At: t.now()})

	if t.snapshotter != nil {
		if err := t.snapshotter.SnapshotChampion(ctx, target, trial); err != nil {
			t.logger.Error("champion snapshot failed", "target", target, "algorithm", trial.Algorithm, "error", err)
		}
	}

	var done map[string]ledger.Trial
	if !t.completed && len(t.champions) == len(t.targets) {
		t.completed = true
		done = t.copyLocked()
	}
	t.mu.Unlock()

	t.logger.Info("new champion",
		"target", target,
		"algorithm", trial.Algorithm,
		"features", len(trial.Features),
		trial.PrimaryMetric, score,
	)
	if done != nil && t.onComplete != nil {
		t.onComplete(ctx, done)
	}
	return true
}

func (t *Tracker) copyLocked() map[string]ledger.Trial {
	out := make(map[string]ledger.Trial, len(t.champions))
	for k, v := range t.champions {
		out[k] = v
	}
	return out
}

func (t *Tracker) Champion(target string) (ledger.Trial, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.champions[target]
	return tr, ok
}

func (t *Tracker) Champions() map[string]ledger.Trial {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

// History returns every champion change of target in order.
func (t *Tracker) History(target string) []Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Update(nil), t.history[target]...)
}

// Complete reports whether every target has a champion.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}
