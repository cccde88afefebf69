// Package platform runs one evolutionary search per target column and
// persists what each search produces.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"automl/internal/budget"
	"automl/internal/champion"
	"automl/internal/config"
	"automl/internal/dataset"
	"automl/internal/ensemble"
	"automl/internal/estimator"
	"automl/internal/evo"
	"automl/internal/fitness"
	"automl/internal/genome"
	"automl/internal/ledger"
	"automl/internal/model"
	"automl/internal/storage"
	"automl/internal/tuning"
)

type Config struct {
	Store    storage.Store
	Registry *estimator.Registry
	Frame    *dataset.Frame
	Settings config.Config
	// OnComplete fires once, when every target has a champion.
	OnComplete champion.CompletionFunc
	Logger     *slog.Logger
	Now        func() time.Time
}

// TargetResult is what one target's search left behind.
type TargetResult struct {
	Target    *dataset.Target
	Roster    []string
	Ledger    *ledger.Ledger
	Evolution evo.RunResult
	// ChampionHistory lists every champion change of the target, oldest first.
	ChampionHistory []champion.Update
}

type RunResult struct {
	RunID     string
	Targets   []TargetResult
	Champions map[string]ledger.Trial
}

type Engine struct {
	store      storage.Store
	registry   *estimator.Registry
	settings   config.Config
	targets    []*dataset.Target
	onComplete champion.CompletionFunc
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	started bool
	running bool
}

// NewEngine validates the settings and builds every configured target from
// the frame. A target column missing from the frame, or a target with no
// compatible algorithm, is a ConfigurationError.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Frame == nil {
		return nil, fmt.Errorf("input frame is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Settings.Targets) == 0 {
		return nil, model.NewConfigurationError("engine", "at least one target column is required")
	}
	if _, err := genome.ParseMode(cfg.Settings.Decoding); err != nil {
		return nil, err
	}

	names := cfg.Settings.TargetColumns()
	targets := make([]*dataset.Target, 0, len(names))
	for _, tc := range cfg.Settings.Targets {
		target, err := dataset.BuildTarget(cfg.Frame, tc.Column, dataset.Options{
			Metrics:       tc.Metrics,
			UniqueLimit:   cfg.Settings.Data.UniqueCategoricLimit,
			TrainFraction: cfg.Settings.Data.TrainFraction,
			SplitSeed:     cfg.Settings.Data.SplitSeed,
			Exclude:       names,
		})
		if err != nil {
			return nil, err
		}
		if len(cfg.Registry.Roster(target.Task)) == 0 {
			return nil, model.NewConfigurationError("engine", "no %s algorithm registered for target %s", target.Task, target.Name)
		}
		targets = append(targets, target)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:      cfg.Store,
		registry:   cfg.Registry,
		settings:   cfg.Settings,
		targets:    targets,
		onComplete: cfg.OnComplete,
		logger:     logger,
		now:        now,
	}, nil
}

func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if err := e.store.Init(ctx); err != nil {
		return err
	}
	e.started = true
	return nil
}

// Targets returns the prepared targets in configuration order.
func (e *Engine) Targets() []*dataset.Target {
	return append([]*dataset.Target(nil), e.targets...)
}

// Run searches every target concurrently under one shared worker budget. The
// first target to fail cancels the others. The run record is saved before
// the search starts and marked completed at the end.
func (e *Engine) Run(ctx context.Context, runID string) (RunResult, error) {
	if runID == "" {
		return RunResult{}, fmt.Errorf("run id is required")
	}
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return RunResult{}, fmt.Errorf("engine is not initialized")
	}
	if e.running {
		e.mu.Unlock()
		return RunResult{}, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	names := e.settings.TargetColumns()
	run := model.RunRecord{
		ID:          runID,
		CreatedAt:   e.now().UTC(),
		Targets:     names,
		Generations: e.settings.Generations,
		Seed:        e.settings.Seed,
		Workers:     e.settings.Workers,
		SearchMode:  tuning.NormalizeModeName(e.settings.Search.Mode),
		Decoding:    e.settings.Decoding,
	}
	storage.Stamp(&run.VersionedRecord)
	if err := e.store.SaveRun(ctx, run); err != nil {
		return RunResult{}, fmt.Errorf("save run: %w", err)
	}

	logger := e.logger.With("run_id", runID)
	shared := budget.New(e.settings.Workers)
	tracker := champion.NewTracker(champion.Config{
		Targets:     names,
		Snapshotter: storeSnapshotter{store: e.store, runID: runID, now: e.now},
		OnComplete:  e.onComplete,
		Logger:      logger,
		Now:         e.now,
	})

	logger.Info("run started", "targets", len(e.targets), "generations", e.settings.Generations, "workers", shared.Size())
	results := make([]TargetResult, len(e.targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range e.targets {
		g.Go(func() error {
			res, err := e.runTarget(gctx, runID, i, target, shared, tracker, logger)
			if err != nil {
				return fmt.Errorf("target %s: %w", target.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunResult{}, err
	}

	for i := range results {
		results[i].ChampionHistory = tracker.History(results[i].Target.Name)
	}

	run.Completed = true
	if err := e.store.SaveRun(ctx, run); err != nil {
		return RunResult{}, fmt.Errorf("save run: %w", err)
	}
	logger.Info("run complete", "peak_workers", shared.Peak(), "champions_complete", tracker.Complete())
	return RunResult{RunID: runID, Targets: results, Champions: tracker.Champions()}, nil
}

func (e *Engine) runTarget(ctx context.Context, runID string, index int, target *dataset.Target, shared *budget.Budget, tracker *champion.Tracker, logger *slog.Logger) (TargetResult, error) {
	s := e.settings
	seed := s.Seed + int64(index)
	roster := e.registry.Roster(target.Task)
	mode, err := genome.ParseMode(s.Decoding)
	if err != nil {
		return TargetResult{}, err
	}
	codec, err := genome.NewCodec(target.Features, len(roster), mode)
	if err != nil {
		return TargetResult{}, err
	}
	tuner, err := tuning.NewTuner(tuning.Options{
		Mode:            s.Search.Mode,
		Folds:           s.Search.Folds,
		Iterations:      s.Search.Iterations,
		IterationPolicy: s.Search.IterationPolicy,
		PolicyParam:     s.Search.PolicyParam,
		Seed:            seed,
		Budget:          shared,
	})
	if err != nil {
		return TargetResult{}, err
	}
	l := ledger.New(target.Name, target.Primary())
	eval, err := fitness.NewEvaluator(fitness.Config{
		Target:       target,
		Roster:       roster,
		Codec:        codec,
		Ledger:       l,
		Tuner:        tuner,
		Assembler:    ensemble.NewAssembler(e.registry, s.MaxEnsembleBases),
		Tracker:      tracker,
		TrialTimeout: s.TrialTimeout,
		Logger:       logger,
	})
	if err != nil {
		return TargetResult{}, err
	}
	selector, err := evo.SelectorFromName(s.Selector, s.TournamentSize)
	if err != nil {
		return TargetResult{}, err
	}
	postprocessor, err := evo.PostprocessorFromName(s.FitnessPostprocessor, len(target.Features))
	if err != nil {
		return TargetResult{}, err
	}
	species, err := evo.SpecieIdentifierFromName(s.Species, codec)
	if err != nil {
		return TargetResult{}, err
	}
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Target:        target.Name,
		Codec:         codec,
		Evaluator:     eval,
		Ledger:        l,
		Selector:      selector,
		Postprocessor: postprocessor,
		Species:       species,
		Generations:   s.Generations,
		CrossoverProb: s.CrossoverProb,
		MutationProb:  s.MutationProb,
		BitFlipProb:   s.BitFlipProb,
		Workers:       shared.Size(),
		Seed:          seed,
		Logger:        logger,
	})
	if err != nil {
		return TargetResult{}, err
	}

	names := make([]string, len(roster))
	for i, entry := range roster {
		names[i] = entry.Name
	}
	logger.Info("target search started",
		"target", target.Name,
		"task", target.Task,
		"features", len(target.Features),
		"roster", names,
		"primary_metric", target.Primary(),
	)
	out, runErr := monitor.Run(ctx)

	// Whatever the ledger holds is persisted even when the search failed.
	persistErr := e.persistTarget(context.WithoutCancel(ctx), runID, target.Name, l, out)
	if runErr != nil {
		return TargetResult{}, errors.Join(runErr, persistErr)
	}
	if persistErr != nil {
		return TargetResult{}, persistErr
	}
	return TargetResult{Target: target, Roster: names, Ledger: l, Evolution: out}, nil
}

func (e *Engine) persistTarget(ctx context.Context, runID, target string, l *ledger.Ledger, out evo.RunResult) error {
	records := l.Records()
	for i := range records {
		storage.Stamp(&records[i].VersionedRecord)
	}
	if err := e.store.SaveTrials(ctx, runID, target, records); err != nil {
		return fmt.Errorf("save trials: %w", err)
	}
	if len(out.GenerationDiagnostics) > 0 {
		if err := e.store.SaveGenerationDiagnostics(ctx, runID, target, out.GenerationDiagnostics); err != nil {
			return fmt.Errorf("save generation diagnostics: %w", err)
		}
	}
	if len(out.BestByGeneration) > 0 {
		if err := e.store.SaveFitnessHistory(ctx, runID, target, out.BestByGeneration); err != nil {
			return fmt.Errorf("save fitness history: %w", err)
		}
	}
	return nil
}

// storeSnapshotter persists every champion change under the run.
type storeSnapshotter struct {
	store storage.Store
	runID string
	now   func() time.Time
}

func (s storeSnapshotter) SnapshotChampion(ctx context.Context, target string, trial ledger.Trial) error {
	rec := model.ChampionRecord{
		RunID:     s.runID,
		Target:    target,
		Trial:     trial.Record(target),
		UpdatedAt: s.now().UTC(),
	}
	storage.Stamp(&rec.VersionedRecord)
	storage.Stamp(&rec.Trial.VersionedRecord)
	return s.store.SaveChampion(ctx, rec)
}
