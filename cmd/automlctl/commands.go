package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"automl/internal/config"
	"automl/internal/telemetry"
	"automl/pkg/automl"
)

type globalFlags struct {
	configPath  string
	storeKind   string
	dbPath      string
	outputDir   string
	logLevel    string
	metricsAddr string
}

type runFlags struct {
	data        string
	runID       string
	targets     []string
	generations int
	workers     int
	seed        int64
	searchMode  string
	folds       int
	predict     string
	jsonOut     bool
}

type queryFlags struct {
	runID   string
	latest  bool
	target  string
	limit   int
	jsonOut bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "automlctl",
		Short:         "Evolutionary feature subset and algorithm search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML or JSON config file")
	pf.StringVar(&g.storeKind, "store", "", "store backend: memory|sqlite|badger")
	pf.StringVar(&g.dbPath, "db-path", "", "database path for sqlite or badger")
	pf.StringVar(&g.outputDir, "out-dir", "", "directory holding run artifacts")
	pf.StringVar(&g.logLevel, "log-level", "", "debug|info|warn|error")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(
		newRunCmd(g, stdout, stderr),
		newRunsCmd(g, stdout, stderr),
		newTrialsCmd(g, stdout, stderr),
		newChampionsCmd(g, stdout, stderr),
		newDiagnosticsCmd(g, stdout, stderr),
		newSummaryCmd(g, stdout, stderr),
		newExportCmd(g, stdout, stderr),
	)
	return root
}

// loadConfig reads the config file and applies only the flags the user set.
func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Kind = g.storeKind
	}
	if flags.Changed("db-path") {
		cfg.Store.Path = g.dbPath
	}
	if flags.Changed("out-dir") {
		cfg.Output.Dir = g.outputDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = strings.ToLower(g.logLevel)
	}
	return cfg, nil
}

func newClient(cfg config.Config, stderr io.Writer) (*automl.Client, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := config.NewLogger(cfg.Log, stderr)
	client, err := automl.New(automl.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

func newRunCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search every target column of a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("data") {
				cfg.Data.Path = f.data
			}
			if flags.Changed("target") {
				cfg.Targets = cfg.Targets[:0]
				for _, column := range f.targets {
					cfg.Targets = append(cfg.Targets, config.TargetConfig{Column: column})
				}
			}
			if flags.Changed("gens") {
				cfg.Generations = f.generations
			}
			if flags.Changed("workers") {
				cfg.Workers = f.workers
			}
			if flags.Changed("seed") {
				cfg.Seed = f.seed
			}
			if flags.Changed("search") {
				cfg.Search.Mode = f.searchMode
			}
			if flags.Changed("cv-folds") {
				cfg.Search.Folds = f.folds
			}
			if flags.Changed("predict") {
				cfg.Output.PredictPath = f.predict
			}
			if len(cfg.Targets) == 0 {
				return errors.New("run requires at least one --target or a targets section in the config")
			}

			client, logger, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			ctx := cmd.Context()
			if g.metricsAddr != "" {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				defer cancel()
				go func() {
					if err := telemetry.Serve(ctx, g.metricsAddr, logger); err != nil {
						logger.Error("metrics endpoint stopped", "error", err)
					}
				}()
			}

			summary, err := client.Run(ctx, automl.RunRequest{RunID: f.runID})
			if err != nil {
				return err
			}
			if f.jsonOut {
				return writeJSON(stdout, summary)
			}

			fmt.Fprintf(stdout, "run completed run_id=%s artifacts=%s\n", summary.RunID, summary.ArtifactsDir)
			for _, t := range summary.Targets {
				if t.Champion == nil {
					fmt.Fprintf(stdout, "target=%s task=%s trials=%d champion=none\n", t.Target, t.Task, t.Trials)
					continue
				}
				fmt.Fprintf(stdout, "target=%s task=%s trials=%d champion=%s features=%d %s=%.6f\n",
					t.Target,
					t.Task,
					t.Trials,
					t.Champion.Algorithm,
					len(t.Champion.Features),
					t.PrimaryMetric,
					t.Champion.Primary(),
				)
			}
			if summary.PredictionsPath != "" {
				fmt.Fprintf(stdout, "predictions=%s\n", summary.PredictionsPath)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.data, "data", "", "input CSV file")
	flags.StringVar(&f.runID, "run-id", "", "run id (generated when empty)")
	flags.StringSliceVar(&f.targets, "target", nil, "target column, repeatable")
	flags.IntVar(&f.generations, "gens", 0, "generations")
	flags.IntVar(&f.workers, "workers", 0, "parallel trial workers (0 = CPU count)")
	flags.Int64Var(&f.seed, "seed", 0, "random seed")
	flags.StringVar(&f.searchMode, "search", "", "hyperparameter search: grid|random|hillclimb")
	flags.IntVar(&f.folds, "cv-folds", 0, "cross-validation folds")
	flags.StringVar(&f.predict, "predict", "", "CSV file the champions predict on")
	flags.BoolVar(&f.jsonOut, "json", false, "emit the run summary as JSON")
	return cmd
}

func newRunsCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			client, _, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			items, err := client.Runs(cmd.Context(), automl.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(stdout, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(stdout, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(stdout, "run_id=%s created_at=%s targets=%s gens=%d seed=%d search=%s champions=%s\n",
					item.RunID,
					item.CreatedAtUTC,
					strings.Join(item.Targets, ","),
					item.Generations,
					item.Seed,
					item.SearchMode,
					formatChampionScores(item.Champions),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func addQueryFlags(cmd *cobra.Command, q *queryFlags, withTarget bool, defaultLimit int) {
	flags := cmd.Flags()
	flags.StringVar(&q.runID, "run-id", "", "run id")
	flags.BoolVar(&q.latest, "latest", false, "use the most recent run from the run index")
	flags.BoolVar(&q.jsonOut, "json", false, "emit JSON")
	if withTarget {
		flags.StringVar(&q.target, "target", "", "target column")
		flags.IntVar(&q.limit, "limit", defaultLimit, "max rows to print (0 for all)")
	}
}

func newTrialsCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "trials",
		Short: "Show a target's trial ledger, best first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			client, _, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			trials, err := client.Trials(cmd.Context(), automl.TrialsRequest{
				RunRef: automl.RunRef{RunID: q.runID, Latest: q.latest},
				Target: q.target,
				Limit:  q.limit,
			})
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(stdout, trials)
			}
			for i, trial := range trials {
				cv := "n/a"
				if trial.CVScore != nil {
					cv = fmt.Sprintf("%.6f", *trial.CVScore)
				}
				fmt.Fprintf(stdout, "rank=%d algorithm=%s features=%d %s=%.6f cv=%s train=%s predict=%s\n",
					i+1,
					trial.Algorithm,
					len(trial.Features),
					trial.PrimaryMetric,
					trial.Primary(),
					cv,
					trial.TrainTime,
					trial.PredictTime,
				)
			}
			return nil
		},
	}
	addQueryFlags(cmd, q, true, 20)
	return cmd
}

func newChampionsCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "champions",
		Short: "Show the champion of every target of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			client, _, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			champions, err := client.Champions(cmd.Context(), automl.RunRef{RunID: q.runID, Latest: q.latest})
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(stdout, champions)
			}
			for _, c := range champions {
				fmt.Fprintf(stdout, "target=%s algorithm=%s %s=%.6f features=%s\n",
					c.Target,
					c.Trial.Algorithm,
					c.Trial.PrimaryMetric,
					c.Trial.Primary(),
					strings.Join(c.Trial.Features, ","),
				)
			}
			return nil
		},
	}
	addQueryFlags(cmd, q, false, 0)
	return cmd
}

func newDiagnosticsCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-generation diagnostics of a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			client, _, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			diagnostics, err := client.Diagnostics(cmd.Context(), automl.DiagnosticsRequest{
				RunRef: automl.RunRef{RunID: q.runID, Latest: q.latest},
				Target: q.target,
				Limit:  q.limit,
			})
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(stdout, diagnostics)
			}
			if len(diagnostics) == 0 {
				fmt.Fprintln(stdout, "no diagnostics")
				return nil
			}
			for _, d := range diagnostics {
				fmt.Fprintf(stdout, "generation=%d best=%d mean=%.2f min=%d invalid=%d distinct=%d species=%d largest_species=%d evaluated=%d ledger=%d\n",
					d.Generation,
					d.BestFitness,
					d.MeanFitness,
					d.MinFitness,
					d.InvalidCount,
					d.DistinctGenomes,
					d.SpeciesCount,
					d.LargestSpeciesSize,
					d.Evaluated,
					d.LedgerSize,
				)
			}
			return nil
		},
	}
	addQueryFlags(cmd, q, true, 50)
	return cmd
}

func newSummaryCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show how a target's search progressed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			client, _, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			summary, err := client.Summary(cmd.Context(), automl.SummaryRequest{
				RunRef: automl.RunRef{RunID: q.runID, Latest: q.latest},
				Target: q.target,
			})
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(stdout, summary)
			}
			best := "n/a"
			if summary.BestPrimary != nil {
				best = fmt.Sprintf("%.6f", *summary.BestPrimary)
			}
			fmt.Fprintf(stdout, "target=%s gens=%d initial_best=%d final_best=%d improvement=%d first_best_gen=%d best_mean=%.2f best_std=%.2f trials=%d best_algorithm=%s best_primary=%s\n",
				summary.Target,
				summary.Generations,
				summary.InitialBest,
				summary.FinalBest,
				summary.Improvement,
				summary.FirstBestGeneration,
				summary.BestMean,
				summary.BestStd,
				summary.Trials,
				summary.BestAlgorithm,
				best,
			)
			return nil
		},
	}
	addQueryFlags(cmd, q, true, 0)
	return cmd
}

func newExportCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	q := &queryFlags{}
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to another directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			client, _, err := newClient(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			exported, err := client.Export(cmd.Context(), automl.ExportRequest{
				RunRef: automl.RunRef{RunID: q.runID, Latest: q.latest},
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	addQueryFlags(cmd, q, false, 0)
	cmd.Flags().StringVar(&outDir, "out", "exports", "export output directory")
	return cmd
}

func formatChampionScores(scores map[string]float64) string {
	if len(scores) == 0 {
		return "none"
	}
	targets := make([]string, 0, len(scores))
	for target := range scores {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	parts := make([]string, len(targets))
	for i, target := range targets {
		parts[i] = fmt.Sprintf("%s:%.6f", target, scores[target])
	}
	return strings.Join(parts, ",")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
