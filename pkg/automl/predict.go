package automl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"automl/internal/dataset"
	"automl/internal/ledger"
	"automl/internal/stats"
	"automl/internal/tuning"
)

// predictor runs every target's champion over one input table.
type predictor struct {
	input   *dataset.Frame
	targets []*dataset.Target
	path    string
	logger  *slog.Logger

	mu sync.Mutex
}

// onComplete is the champion tracker's completion hook. Failures are logged;
// the run itself is not affected.
func (p *predictor) onComplete(_ context.Context, champions map[string]ledger.Trial) {
	if err := p.write(champions); err != nil {
		p.logger.Error("batch prediction failed", "path", p.path, "error", err)
		return
	}
	p.logger.Info("batch predictions written", "path", p.path, "rows", p.input.Len())
}

func (p *predictor) write(champions map[string]ledger.Trial) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.targets))
	predicted := make(map[string][]string, len(p.targets))
	for _, target := range p.targets {
		champion, ok := champions[target.Name]
		if !ok {
			return fmt.Errorf("no champion for target %s", target.Name)
		}
		values, err := Predict(target, champion, p.input)
		if err != nil {
			return fmt.Errorf("predict %s: %w", target.Name, err)
		}
		names = append(names, target.Name)
		predicted[target.Name] = values
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	return stats.WritePredictions(p.path, p.input.Columns(), p.input.Rows(), names, predicted)
}

// Predict applies trial's fitted estimator to input, scaled the way target
// was, and renders each prediction as a label of the original column.
func Predict(target *dataset.Target, trial ledger.Trial, input *dataset.Frame) ([]string, error) {
	if trial.Estimator == nil {
		return nil, fmt.Errorf("trial %s has no fitted estimator", trial.Algorithm)
	}
	X, err := target.Project(input)
	if err != nil {
		return nil, err
	}
	X, err = target.Slice(X, trial.Features)
	if err != nil {
		return nil, err
	}
	var raw []float64
	err = tuning.Safely(func() error {
		var predictErr error
		raw, predictErr = trial.Estimator.Predict(X)
		return predictErr
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = target.Label(v)
	}
	return out, nil
}
