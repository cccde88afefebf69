// Package automl is the public entry point: it loads data, runs the
// per-target searches and reads back what earlier runs stored.
package automl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"automl/internal/config"
	"automl/internal/dataset"
	"automl/internal/estimator"
	"automl/internal/learners"
	"automl/internal/ledger"
	"automl/internal/model"
	"automl/internal/platform"
	"automl/internal/stats"
	"automl/internal/storage"
	"automl/internal/tuning"
)

const (
	defaultExportsDir = "exports"
	predictionsFile   = "predictions.csv"
)

// Options configures a Client. A nil Registry means the built-in learners.
type Options struct {
	Config     config.Config
	Registry   *estimator.Registry
	ExportsDir string
	Logger     *slog.Logger
	Now        func() time.Time
}

type Client struct {
	cfg      config.Config
	store    storage.Store
	registry *estimator.Registry
	logger   *slog.Logger
	now      func() time.Time

	runsDir    string
	exportsDir string

	mu          sync.Mutex
	initialized bool
	champions   map[string]ledger.Trial
}

type RunRequest struct {
	// DataPath overrides the configured input CSV. Frame, when set, is used
	// instead of reading any file.
	DataPath string
	Frame    *dataset.Frame
	RunID    string
}

type TargetSummary struct {
	Target           string             `json:"target"`
	Task             string             `json:"task"`
	Features         []string           `json:"features"`
	PrimaryMetric    string             `json:"primary_metric"`
	Roster           []string           `json:"roster"`
	Trials           int                `json:"trials"`
	BestByGeneration []int              `json:"best_by_generation"`
	Champion         *model.TrialRecord `json:"champion,omitempty"`
}

type RunSummary struct {
	RunID           string          `json:"run_id"`
	ArtifactsDir    string          `json:"artifacts_dir"`
	Targets         []TargetSummary `json:"targets"`
	PredictionsPath string          `json:"predictions_path,omitempty"`
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string             `json:"run_id"`
	CreatedAtUTC string             `json:"created_at_utc"`
	Targets      []string           `json:"targets"`
	Generations  int                `json:"generations"`
	Seed         int64              `json:"seed"`
	Workers      int                `json:"workers"`
	SearchMode   string             `json:"search_mode"`
	Champions    map[string]float64 `json:"champions"`
}

// RunRef names a stored run either by id or as the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
}

type TrialsRequest struct {
	RunRef
	Target string
	Limit  int
}

type DiagnosticsRequest struct {
	RunRef
	Target string
	Limit  int
}

type SummaryRequest struct {
	RunRef
	Target string
}

type ExportRequest struct {
	RunRef
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = learners.DefaultRegistry()
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	runsDir := cfg.Output.Dir
	if runsDir == "" {
		runsDir = config.Default().Output.Dir
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.NewStoreWithLogger(cfg.Store.Kind, cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		logger:     logger,
		now:        now,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Registry is the algorithm roster source. Entries added to it before Run
// take part in the search.
func (c *Client) Registry() *estimator.Registry {
	return c.registry
}

// Run searches every configured target, writes the run's artifacts and, when
// output.predict_path is set, a predictions file produced by the champions.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	frame := req.Frame
	dataPath := req.DataPath
	if dataPath == "" {
		dataPath = c.cfg.Data.Path
	}
	if frame == nil {
		if dataPath == "" {
			return RunSummary{}, model.NewConfigurationError("data", "an input CSV path is required")
		}
		var err error
		frame, err = dataset.ReadCSVFile(dataPath)
		if err != nil {
			return RunSummary{}, fmt.Errorf("read input: %w", err)
		}
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	var batch *predictor
	if c.cfg.Output.PredictPath != "" {
		input, err := dataset.ReadCSVFile(c.cfg.Output.PredictPath)
		if err != nil {
			return RunSummary{}, fmt.Errorf("read prediction input: %w", err)
		}
		batch = &predictor{
			input:  input,
			path:   filepath.Join(c.runsDir, runID, predictionsFile),
			logger: c.logger.With("run_id", runID),
		}
	}

	engineCfg := platform.Config{
		Store:    c.store,
		Registry: c.registry,
		Frame:    frame,
		Settings: c.cfg,
		Logger:   c.logger,
		Now:      c.now,
	}
	if batch != nil {
		engineCfg.OnComplete = batch.onComplete
	}
	engine, err := platform.NewEngine(engineCfg)
	if err != nil {
		return RunSummary{}, err
	}
	if batch != nil {
		batch.targets = engine.Targets()
	}
	if err := engine.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	createdAt := c.now().UTC()
	result, err := engine.Run(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}

	c.mu.Lock()
	c.champions = result.Champions
	c.mu.Unlock()

	artifacts := stats.RunArtifacts{Config: c.runConfig(runID, dataPath)}
	summary := RunSummary{RunID: runID}
	index := stats.RunIndexEntry{
		RunID:        runID,
		Targets:      c.cfg.TargetColumns(),
		Generations:  c.cfg.Generations,
		Seed:         c.cfg.Seed,
		Workers:      c.cfg.Workers,
		SearchMode:   tuning.NormalizeModeName(c.cfg.Search.Mode),
		Champions:    make(map[string]float64),
		CreatedAtUTC: createdAt.Format(time.RFC3339Nano),
	}
	for _, tr := range result.Targets {
		target := tr.Target
		ta := stats.TargetArtifacts{
			Target:                target.Name,
			Task:                  string(target.Task),
			Features:              target.Features,
			Metrics:               target.Metrics,
			Trials:                tr.Ledger.Records(),
			BestByGeneration:      tr.Evolution.BestByGeneration,
			GenerationDiagnostics: tr.Evolution.GenerationDiagnostics,
		}
		for _, u := range tr.ChampionHistory {
			ta.ChampionHistory = append(ta.ChampionHistory, stats.ChampionChange{At: u.At, Trial: u.Trial.Record(target.Name)})
		}
		ts := TargetSummary{
			Target:           target.Name,
			Task:             string(target.Task),
			Features:         append([]string(nil), target.Features...),
			PrimaryMetric:    target.Primary(),
			Roster:           tr.Roster,
			Trials:           tr.Ledger.Len(),
			BestByGeneration: append([]int(nil), tr.Evolution.BestByGeneration...),
		}
		if champion, ok := result.Champions[target.Name]; ok {
			rec := champion.Record(target.Name)
			ta.Champion = &rec
			ts.Champion = &rec
			if primary := champion.Primary(); !math.IsNaN(primary) {
				index.Champions[target.Name] = primary
			}
		}
		artifacts.Targets = append(artifacts.Targets, ta)
		summary.Targets = append(summary.Targets, ts)
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, artifacts)
	if err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.runsDir, index); err != nil {
		return RunSummary{}, fmt.Errorf("update run index: %w", err)
	}
	summary.ArtifactsDir = filepath.Clean(runDir)

	if batch != nil {
		// Champions can still improve after the completion event; the file
		// always ends up reflecting the final ones.
		if err := batch.write(result.Champions); err != nil {
			return RunSummary{}, err
		}
		summary.PredictionsPath = batch.path
	}
	return summary, nil
}

// Champion returns the best trial of target from the most recent Run, with
// its fitted estimator.
func (c *Client) Champion(target string) (ledger.Trial, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trial, ok := c.champions[target]
	return trial, ok
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Targets:      e.Targets,
			Generations:  e.Generations,
			Seed:         e.Seed,
			Workers:      e.Workers,
			SearchMode:   e.SearchMode,
			Champions:    e.Champions,
		})
	}
	return out, nil
}

// Trials returns a target's stored ledger, best first.
func (c *Client) Trials(ctx context.Context, req TrialsRequest) ([]model.TrialRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if req.Target == "" {
		return nil, errors.New("target is required")
	}
	runID, err := c.resolveRun(req.RunRef, "trials")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	trials, ok, err := c.store.GetTrials(ctx, runID, req.Target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("trials not found for run id %s, target %s", runID, req.Target)
	}
	if req.Limit > 0 && len(trials) > req.Limit {
		trials = trials[:req.Limit]
	}
	return trials, nil
}

// Champions lists a run's champions by target. Runs made with a store that did
// not outlive the process fall back to the run's artifacts.
func (c *Client) Champions(ctx context.Context, ref RunRef) ([]model.ChampionRecord, error) {
	runID, err := c.resolveRun(ref, "champions")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	champions, err := c.store.ListChampions(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(champions) > 0 {
		return champions, nil
	}

	stored, ok, err := stats.ReadChampions(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("champions not found for run id: %s", runID)
	}
	targets := make([]string, 0, len(stored))
	for target := range stored {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	out := make([]model.ChampionRecord, 0, len(stored))
	for _, target := range targets {
		out = append(out, model.ChampionRecord{RunID: runID, Target: target, Trial: stored[target]})
	}
	return out, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if req.Target == "" {
		return nil, errors.New("target is required")
	}
	runID, err := c.resolveRun(req.RunRef, "diagnostics")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID, req.Target)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.runsDir, runID, req.Target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("diagnostics not found for run id %s, target %s", runID, req.Target)
		}
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return diagnostics, nil
}

// Summary reads the search summary written with a run's artifacts.
func (c *Client) Summary(_ context.Context, req SummaryRequest) (stats.SearchSummary, error) {
	if req.Target == "" {
		return stats.SearchSummary{}, errors.New("target is required")
	}
	runID, err := c.resolveRun(req.RunRef, "summary")
	if err != nil {
		return stats.SearchSummary{}, err
	}
	summary, ok, err := stats.ReadSummary(c.runsDir, runID, req.Target)
	if err != nil {
		return stats.SearchSummary{}, err
	}
	if !ok {
		return stats.SearchSummary{}, fmt.Errorf("summary not found for run id %s, target %s", runID, req.Target)
	}
	return summary, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRun(req.RunRef, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRun(ref RunRef, what string) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if ref.RunID != "" {
		return ref.RunID, nil
	}
	if !ref.Latest {
		return "", fmt.Errorf("%s requires run id or latest", what)
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) runConfig(runID, dataPath string) stats.RunConfig {
	cfg := c.cfg
	return stats.RunConfig{
		RunID:                runID,
		DataPath:             dataPath,
		Targets:              cfg.TargetColumns(),
		Generations:          cfg.Generations,
		CrossoverProb:        cfg.CrossoverProb,
		MutationProb:         cfg.MutationProb,
		BitFlipProb:          cfg.BitFlipProb,
		TournamentSize:       cfg.TournamentSize,
		Selector:             cfg.Selector,
		FitnessPostprocessor: cfg.FitnessPostprocessor,
		Species:              cfg.Species,
		Decoding:             cfg.Decoding,
		MaxEnsembleBases:     cfg.MaxEnsembleBases,
		Workers:              cfg.Workers,
		TrialTimeout:         cfg.TrialTimeout.String(),
		Seed:                 cfg.Seed,
		SearchMode:           tuning.NormalizeModeName(cfg.Search.Mode),
		CVFolds:              cfg.Search.Folds,
		Iterations:           cfg.Search.Iterations,
		IterationPolicy:      cfg.Search.IterationPolicy,
		TrainFraction:        cfg.Data.TrainFraction,
		SplitSeed:            cfg.Data.SplitSeed,
		Store:                cfg.Store.Kind,
	}
}
