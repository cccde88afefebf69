// Package fitness scores genomes by tuning and testing the (feature subset,
// algorithm) pair they decode to, memoizing every result in the target's
// ledger.
package fitness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"automl/internal/champion"
	"automl/internal/dataset"
	"automl/internal/ensemble"
	"automl/internal/estimator"
	"automl/internal/genome"
	"automl/internal/ledger"
	"automl/internal/metrics"
	"automl/internal/model"
	"automl/internal/telemetry"
	"automl/internal/tuning"
)

// Scale is the fitness multiplier applied to the primary metric.
const Scale = 100000

// DefaultTrialTimeout bounds one trial's tuning and testing.
const DefaultTrialTimeout = 5 * time.Minute

type Config struct {
	Target    *dataset.Target
	Roster    []estimator.Entry
	Codec     *genome.Codec
	Ledger    *ledger.Ledger
	Tuner     tuning.Tuner
	Assembler *ensemble.Assembler
	// Tracker is optional. New trials are offered to it after insertion.
	Tracker *champion.Tracker
	// TrialTimeout of zero disables the per-trial deadline.
	TrialTimeout time.Duration
	Logger       *slog.Logger
}

type Evaluator struct {
	target    *dataset.Target
	roster    []estimator.Entry
	codec     *genome.Codec
	ledger    *ledger.Ledger
	tuner     tuning.Tuner
	assembler *ensemble.Assembler
	tracker   *champion.Tracker
	timeout   time.Duration
	metrics   []metrics.Metric
	logger    *slog.Logger

	flights  singleflight.Group
	searches atomic.Int64
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Target.Validate(); err != nil {
		return nil, err
	}
	name := cfg.Target.Name
	if len(cfg.Roster) == 0 {
		return nil, model.NewConfigurationError("fitness", "%s: algorithm roster is empty", name)
	}
	if cfg.Codec == nil {
		return nil, model.NewConfigurationError("fitness", "%s: codec is required", name)
	}
	if cfg.Codec.RosterSize() != len(cfg.Roster) {
		return nil, model.NewConfigurationError("fitness", "%s: codec roster size %d, roster has %d entries", name, cfg.Codec.RosterSize(), len(cfg.Roster))
	}
	features := cfg.Codec.Features()
	if len(features) != len(cfg.Target.Features) {
		return nil, model.NewConfigurationError("fitness", "%s: codec has %d features, target has %d", name, len(features), len(cfg.Target.Features))
	}
	for i := range features {
		if features[i] != cfg.Target.Features[i] {
			return nil, model.NewConfigurationError("fitness", "%s: codec feature %d is %q, target has %q", name, i, features[i], cfg.Target.Features[i])
		}
	}
	if cfg.Ledger == nil {
		return nil, model.NewConfigurationError("fitness", "%s: ledger is required", name)
	}
	if cfg.Tuner == nil {
		return nil, model.NewConfigurationError("fitness", "%s: tuner is required", name)
	}
	for _, entry := range cfg.Roster {
		if !entry.Compatible(cfg.Target.Task) {
			return nil, model.NewConfigurationError("fitness", "%s: algorithm %s does not serve %s", name, entry.Name, cfg.Target.Task)
		}
		if entry.New == nil {
			return nil, model.NewConfigurationError("fitness", "%s: algorithm %s has no constructor", name, entry.Name)
		}
		if got := entry.New().Name(); got != entry.Name {
			return nil, model.NewConfigurationError("fitness", "%s: algorithm %s constructs %s", name, entry.Name, got)
		}
		if entry.IsEnsemble() && cfg.Assembler == nil {
			return nil, model.NewConfigurationError("fitness", "%s: ensemble %s needs an assembler", name, entry.Name)
		}
	}
	resolved, err := metrics.Resolve(cfg.Target.Task, cfg.Target.Metrics)
	if err != nil {
		return nil, model.NewConfigurationError("fitness", "%s: %v", name, err)
	}
	if cfg.Target.Task == estimator.Classification {
		for i := range resolved {
			resolved[i] = resolved[i].WithClasses(cfg.Target.Classes)
		}
	}

	timeout := cfg.TrialTimeout
	if timeout < 0 {
		timeout = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		target:    cfg.Target,
		roster:    append([]estimator.Entry(nil), cfg.Roster...),
		codec:     cfg.Codec,
		ledger:    cfg.Ledger,
		tuner:     cfg.Tuner,
		assembler: cfg.Assembler,
		tracker:   cfg.Tracker,
		timeout:   timeout,
		metrics:   resolved,
		logger:    logger.With("target", cfg.Target.Name),
	}, nil
}

// ScaleScore converts a primary metric value to integer fitness. Undefined
// scores map to model.InvalidFitness.
func ScaleScore(primary float64) int {
	if math.IsNaN(primary) || math.IsInf(primary, 0) {
		return model.InvalidFitness
	}
	return int(math.Round(primary * Scale))
}

// Searches counts hyperparameter searches started so far.
func (e *Evaluator) Searches() int64 {
	return e.searches.Load()
}

func (e *Evaluator) Target() string {
	return e.target.Name
}

// Evaluate returns the fitness of g. Invalid and failed trials score
// model.InvalidFitness with a nil error. Errors are reserved for malformed
// genomes, ledger contract violations and cancellation of ctx.
func (e *Evaluator) Evaluate(ctx context.Context, g genome.Genome) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fitness.evaluate",
		trace.WithAttributes(attribute.String("target", e.target.Name), attribute.String("genome", g.String())))
	defer span.End()

	features, algo, err := e.codec.Decode(g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return model.InvalidFitness, err
	}
	entry := e.roster[algo]
	span.SetAttributes(attribute.String("algorithm", entry.Name), attribute.Int("features", len(features)))

	if len(features) == 0 {
		e.count(telemetry.OutcomeEmptySubset)
		return model.InvalidFitness, nil
	}
	if tr, ok := e.ledger.Lookup(entry.Name, features); ok {
		e.count(telemetry.OutcomeCached)
		return ScaleScore(tr.Primary()), nil
	}

	key := ledger.NewKey(entry.Name, features).String()
	v, err, _ := e.flights.Do(key, func() (any, error) {
		// A flight for this key may have finished after the lookup above.
		if tr, ok := e.ledger.Lookup(entry.Name, features); ok {
			e.count(telemetry.OutcomeCached)
			return ScaleScore(tr.Primary()), nil
		}
		return e.run(ctx, entry, features)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.InvalidFitness, err
	}
	fitness := v.(int)
	span.SetAttributes(attribute.Int("fitness", fitness))
	return fitness, nil
}

func (e *Evaluator) run(ctx context.Context, entry estimator.Entry, features []string) (int, error) {
	est := entry.New()
	if entry.IsEnsemble() {
		err := e.assembler.Attach(est, e.ledger)
		switch {
		case errors.Is(err, ensemble.ErrTooFewBases):
			e.count(telemetry.OutcomeTooFewBases)
			e.logger.Debug("ensemble skipped", "algorithm", entry.Name, "error", err)
			return model.InvalidFitness, nil
		case errors.Is(err, ensemble.ErrNotComposite):
			return model.InvalidFitness, model.NewConfigurationError("fitness", "ensemble %s: %v", entry.Name, err)
		case err != nil:
			return model.InvalidFitness, fmt.Errorf("assemble %s: %w", entry.Name, err)
		}
	}

	trial, err := e.trial(ctx, est, entry, features)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.InvalidFitness, ctxErr
		}
		outcome := telemetry.OutcomeFailed
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = telemetry.OutcomeTimeout
		}
		e.count(outcome)
		e.logger.Warn("trial failed", "algorithm", entry.Name, "features", len(features), "outcome", outcome, "error", err)
		return model.InvalidFitness, nil
	}

	stored, err := e.ledger.Insert(trial)
	if err != nil {
		return model.InvalidFitness, err
	}
	e.count(telemetry.OutcomeEvaluated)
	telemetry.TrialDuration.WithLabelValues(e.target.Name, entry.Name).Observe((stored.TrainTime + stored.PredictTime).Seconds())
	e.logger.Debug("trial recorded",
		"algorithm", entry.Name,
		"features", len(features),
		stored.PrimaryMetric, stored.Primary(),
		"cv_score", stored.CVScore,
		"train_time", stored.TrainTime,
	)

	if e.tracker != nil && e.tracker.Offer(ctx, e.target.Name, stored) {
		telemetry.ChampionScore.WithLabelValues(e.target.Name).Set(stored.Primary())
	}
	return ScaleScore(stored.Primary()), nil
}

// trial tunes est on the training slice and scores it on the test slice.
func (e *Evaluator) trial(ctx context.Context, est estimator.Estimator, entry estimator.Entry, features []string) (ledger.Trial, error) {
	trialCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		trialCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	XTrain, err := e.target.Slice(e.target.XTrain, features)
	if err != nil {
		return ledger.Trial{}, err
	}
	XTest, err := e.target.Slice(e.target.XTest, features)
	if err != nil {
		return ledger.Trial{}, err
	}

	e.searches.Add(1)
	start := time.Now()
	res, err := e.tuner.Tune(trialCtx, tuning.Problem{
		Prototype: est,
		Space:     entry.Space,
		X:         XTrain,
		Y:         e.target.YTrain,
		Metric:    e.metrics[0],
	})
	if err != nil {
		return ledger.Trial{}, fmt.Errorf("tune %s: %w", entry.Name, err)
	}
	trainTime := time.Since(start)
	if err := trialCtx.Err(); err != nil {
		return ledger.Trial{}, err
	}

	var pred []float64
	start = time.Now()
	err = tuning.Safely(func() error {
		var err error
		pred, err = res.Estimator.Predict(XTest)
		return err
	})
	if err != nil {
		return ledger.Trial{}, fmt.Errorf("predict %s: %w", entry.Name, err)
	}
	predictTime := time.Since(start)

	scores := make(map[string]float64, len(e.metrics))
	for _, m := range e.metrics {
		scores[m.Name] = m.Score(e.target.YTest, pred)
	}
	trial := ledger.Trial{
		Algorithm:     entry.Name,
		Capability:    entry.Capability,
		Features:      features,
		Params:        res.Params,
		Scores:        scores,
		PrimaryMetric: e.metrics[0].Name,
		CVScore:       res.CVScore,
		TrainTime:     trainTime,
		PredictTime:   predictTime,
		Candidates:    res.Report.CandidatesEvaluated,
		Estimator:     res.Estimator,
	}
	if e.target.Task == estimator.Classification {
		labels := metrics.Labels(e.target.Classes, e.target.YTest, pred)
		trial.Confusion = metrics.Confusion(e.target.YTest, pred, labels)
		trial.ClassLabels = labels
	}
	return trial, nil
}

func (e *Evaluator) count(outcome string) {
	telemetry.TrialsTotal.WithLabelValues(e.target.Name, outcome).Inc()
}
