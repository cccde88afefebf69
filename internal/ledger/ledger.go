// Package ledger records every evaluated (algorithm, feature subset) trial of
// one target.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"automl/internal/estimator"
	"automl/internal/model"
)

// Key identifies a trial: the estimator name plus the ordered feature list.
type Key struct {
	Algorithm string
	Features  string
}

func NewKey(algorithm string, features []string) Key {
	return Key{Algorithm: algorithm, Features: strings.Join(features, "\x1f")}
}

func (k Key) String() string {
	return k.Algorithm + "|" + strings.ReplaceAll(k.Features, "\x1f", ",")
}

type DuplicateKeyError struct {
	Key Key
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("trial already recorded: %s", e.Key)
}

// Trial is one evaluated configuration. Estimator is the tuned model fitted on
// the full training split.
type Trial struct {
	Algorithm     string
	Capability    estimator.Capability
	Features      []string
	Params        estimator.Params
	Scores        map[string]float64
	PrimaryMetric string
	Confusion     [][]int
	ClassLabels   []float64
	CVScore       float64
	TrainTime     time.Duration
	PredictTime   time.Duration
	Candidates    int
	Sequence      int
	Estimator     estimator.Estimator
}

func (t Trial) Key() Key {
	return NewKey(t.Algorithm, t.Features)
}

// Primary returns the primary metric score, NaN when missing.
func (t Trial) Primary() float64 {
	v, ok := t.Scores[t.PrimaryMetric]
	if !ok {
		return math.NaN()
	}
	return v
}

func (t Trial) Record(target string) model.TrialRecord {
	scores := make(map[string]float64, len(t.Scores))
	for k, v := range t.Scores {
		if !math.IsNaN(v) {
			scores[k] = v
		}
	}
	var cv *float64
	if !math.IsNaN(t.CVScore) {
		v := t.CVScore
		cv = &v
	}
	params := make(map[string]any, len(t.Params))
	for k, v := range t.Params {
		params[k] = v
	}
	var confusion [][]int
	for _, row := range t.Confusion {
		confusion = append(confusion, append([]int(nil), row...))
	}
	return model.TrialRecord{
		Target:          target,
		Algorithm:       t.Algorithm,
		Capability:      string(t.Capability),
		Features:        append([]string(nil), t.Features...),
		Params:          params,
		Scores:          scores,
		PrimaryMetric:   t.PrimaryMetric,
		Confusion:       confusion,
		ClassLabels:     append([]float64(nil), t.ClassLabels...),
		CVScore:         cv,
		TrainTime:       t.TrainTime,
		PredictTime:     t.PredictTime,
		Sequence:        t.Sequence,
		CandidatesTried: t.Candidates,
	}
}

// Ledger is safe for concurrent use. Rows are append-only.
type Ledger struct {
	mu      sync.RWMutex
	target  string
	primary string
	rows    []Trial
	index   map[Key]int
}

func New(target, primaryMetric string) *Ledger {
	return &Ledger{target: target, primary: primaryMetric, index: make(map[Key]int)}
}

func (l *Ledger) Target() string        { return l.target }
func (l *Ledger) PrimaryMetric() string { return l.primary }

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

func (l *Ledger) Lookup(algorithm string, features []string) (Trial, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[NewKey(algorithm, features)]
	if !ok {
		return Trial{}, false
	}
	return l.rows[i], true
}

// Insert appends t and assigns its sequence number. An empty PrimaryMetric
// takes the ledger's.
func (l *Ledger) Insert(t Trial) (Trial, error) {
	if t.PrimaryMetric == "" {
		t.PrimaryMetric = l.primary
	}
	t.Features = append([]string(nil), t.Features...)
	key := t.Key()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.index[key]; exists {
		return Trial{}, &DuplicateKeyError{Key: key}
	}
	t.Sequence = len(l.rows)
	l.index[key] = len(l.rows)
	l.rows = append(l.rows, t)
	return t, nil
}

func (l *Ledger) snapshot() []Trial {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Trial(nil), l.rows...)
}

// scoreDesc orders by primary score descending with NaN last.
func scoreDesc(a, b float64) (less bool, decided bool) {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return false, false
	case aNaN:
		return false, true
	case bNaN:
		return true, true
	case a != b:
		return a > b, true
	default:
		return false, false
	}
}

// TopDistinct returns up to n rows with distinct algorithms, ordered by
// primary score descending: the best row of each algorithm competes. NaN
// scores are skipped, as are ensemble rows when excludeEnsembles is set. Ties
// keep insertion order.
func (l *Ledger) TopDistinct(n int, excludeEnsembles bool) []Trial {
	if n <= 0 {
		return nil
	}
	rows := l.snapshot()
	eligible := rows[:0]
	for _, r := range rows {
		if math.IsNaN(r.Primary()) {
			continue
		}
		if excludeEnsembles && r.Capability == estimator.Ensemble {
			continue
		}
		eligible = append(eligible, r)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		less, _ := scoreDesc(eligible[i].Primary(), eligible[j].Primary())
		return less
	})

	seen := make(map[string]struct{}, n)
	out := make([]Trial, 0, n)
	for _, r := range eligible {
		if _, dup := seen[r.Algorithm]; dup {
			continue
		}
		seen[r.Algorithm] = struct{}{}
		out = append(out, r)
		if len(out) == n {
			break
		}
	}
	return out
}

// Sorted returns every row ordered by primary score descending, then by
// prediction time ascending.
func (l *Ledger) Sorted() []Trial {
	rows := l.snapshot()
	sort.SliceStable(rows, func(i, j int) bool {
		if less, decided := scoreDesc(rows[i].Primary(), rows[j].Primary()); decided {
			return less
		}
		return rows[i].PredictTime < rows[j].PredictTime
	})
	return rows
}

// Best returns the top row of Sorted.
func (l *Ledger) Best() (Trial, bool) {
	rows := l.Sorted()
	if len(rows) == 0 {
		return Trial{}, false
	}
	return rows[0], true
}

// Records renders Sorted for persistence.
func (l *Ledger) Records() []model.TrialRecord {
	rows := l.Sorted()
	out := make([]model.TrialRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record(l.target)
	}
	return out
}
