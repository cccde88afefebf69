// Package stats writes run artifacts to disk: per-target results tables,
// champions, fitness history and a run index shared by every run.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"automl/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	targetsDir     = "targets"
	configFile     = "config.json"
	championsFile  = "champions.json"
	resultsFile    = "results.csv"
	historyFile    = "fitness_history.json"
	seriesFile     = "fitness_series.csv"
	diagnosticFile = "generation_diagnostics.json"
	summaryFile    = "summary.json"
	championsLog   = "champion_history.json"
)

// RunConfig is the settings snapshot stored next to a run's results.
type RunConfig struct {
	RunID                string   `json:"run_id"`
	DataPath             string   `json:"data_path,omitempty"`
	Targets              []string `json:"targets"`
	Generations          int      `json:"generations"`
	CrossoverProb        float64  `json:"crossover_prob"`
	MutationProb         float64  `json:"mutation_prob"`
	BitFlipProb          float64  `json:"bitflip_prob"`
	TournamentSize       int      `json:"tournament_size"`
	Selector             string   `json:"selector"`
	FitnessPostprocessor string   `json:"fitness_postprocessor"`
	Species              string   `json:"species"`
	Decoding             string   `json:"algorithm_decoding"`
	MaxEnsembleBases     int      `json:"max_ensemble_bases"`
	Workers              int      `json:"workers"`
	TrialTimeout         string   `json:"trial_timeout"`
	Seed                 int64    `json:"seed"`
	SearchMode           string   `json:"search_mode"`
	CVFolds              int      `json:"cv_folds"`
	Iterations           int      `json:"iterations"`
	IterationPolicy      string   `json:"iteration_policy"`
	TrainFraction        float64  `json:"train_fraction"`
	SplitSeed            int64    `json:"split_seed"`
	Store                string   `json:"store"`
}

// TargetArtifacts is one target's share of a run. Trials are expected in
// ledger order, best first.
type TargetArtifacts struct {
	Target                string
	Task                  string
	Features              []string
	Metrics               []string
	Trials                []model.TrialRecord
	BestByGeneration      []int
	GenerationDiagnostics []model.GenerationDiagnostics
	Champion              *model.TrialRecord
	// ChampionHistory lists every champion change of the target, oldest first.
	ChampionHistory []ChampionChange
}

type ChampionChange struct {
	At    time.Time         `json:"at"`
	Trial model.TrialRecord `json:"trial"`
}

type RunArtifacts struct {
	Config  RunConfig
	Targets []TargetArtifacts
}

type RunIndexEntry struct {
	RunID        string             `json:"run_id"`
	Targets      []string           `json:"targets"`
	Generations  int                `json:"generations"`
	Seed         int64              `json:"seed"`
	Workers      int                `json:"workers"`
	SearchMode   string             `json:"search_mode"`
	Champions    map[string]float64 `json:"champions,omitempty"`
	CreatedAtUTC string             `json:"created_at_utc"`
}

// WriteRunArtifacts writes everything for one run under baseDir/<run id> and
// returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}

	champions := make(map[string]model.TrialRecord, len(artifacts.Targets))
	for _, target := range artifacts.Targets {
		if target.Champion != nil {
			champions[target.Target] = *target.Champion
		}
		dir := filepath.Join(runDir, targetsDir, safeName(target.Target))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		if err := WriteResultsCSV(filepath.Join(dir, resultsFile), target.Metrics, target.Trials); err != nil {
			return "", err
		}
		if err := writeJSON(filepath.Join(dir, historyFile), map[string]any{
			"target":             target.Target,
			"task":               target.Task,
			"features":           target.Features,
			"best_by_generation": target.BestByGeneration,
		}); err != nil {
			return "", err
		}
		if err := WriteFitnessSeries(filepath.Join(dir, seriesFile), target.BestByGeneration); err != nil {
			return "", err
		}
		if err := writeJSON(filepath.Join(dir, diagnosticFile), target.GenerationDiagnostics); err != nil {
			return "", err
		}
		if err := writeJSON(filepath.Join(dir, summaryFile), Summarize(target.Target, target.BestByGeneration, target.Trials)); err != nil {
			return "", err
		}
		changes := target.ChampionHistory
		if changes == nil {
			changes = []ChampionChange{}
		}
		if err := writeJSON(filepath.Join(dir, championsLog), changes); err != nil {
			return "", err
		}
	}
	if err := writeJSON(filepath.Join(runDir, championsFile), champions); err != nil {
		return "", err
	}
	return runDir, nil
}

// WriteResultsCSV writes one row per trial in the given order. Metric columns
// follow metricNames; a metric a trial lacks is left empty.
func WriteResultsCSV(path string, metricNames []string, trials []model.TrialRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := writeResults(file, metricNames, trials); err != nil {
		return err
	}
	return file.Sync()
}

func writeResults(w io.Writer, metricNames []string, trials []model.TrialRecord) error {
	writer := csv.NewWriter(w)
	header := []string{"rank", "algorithm", "capability", "n_features", "features"}
	header = append(header, metricNames...)
	header = append(header, "cv_score", "train_seconds", "predict_seconds", "candidates_tried", "params")
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, trial := range trials {
		row := []string{
			strconv.Itoa(i + 1),
			trial.Algorithm,
			trial.Capability,
			strconv.Itoa(len(trial.Features)),
			strings.Join(trial.Features, ";"),
		}
		for _, name := range metricNames {
			if v, ok := trial.Scores[name]; ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		cv := ""
		if trial.CVScore != nil {
			cv = formatFloat(*trial.CVScore)
		}
		params := ""
		if len(trial.Params) > 0 {
			data, err := json.Marshal(trial.Params)
			if err != nil {
				return fmt.Errorf("encode params of %s: %w", trial.Algorithm, err)
			}
			params = string(data)
		}
		row = append(row,
			cv,
			formatFloat(trial.TrainTime.Seconds()),
			formatFloat(trial.PredictTime.Seconds()),
			strconv.Itoa(trial.CandidatesTried),
			params,
		)
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory tree to outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadChampions(baseDir, runID string) (map[string]model.TrialRecord, bool, error) {
	var champions map[string]model.TrialRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, championsFile), &champions)
	return champions, ok, err
}

func ReadGenerationDiagnostics(baseDir, runID, target string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, targetsDir, safeName(target), diagnosticFile), &diagnostics)
	return diagnostics, ok, err
}

func ReadChampionHistory(baseDir, runID, target string) ([]ChampionChange, bool, error) {
	var changes []ChampionChange
	ok, err := readJSON(filepath.Join(baseDir, runID, targetsDir, safeName(target), championsLog), &changes)
	return changes, ok, err
}

func ReadSummary(baseDir, runID, target string) (SearchSummary, bool, error) {
	var summary SearchSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, targetsDir, safeName(target), summaryFile), &summary)
	return summary, ok, err
}

// ResultsPath is where WriteRunArtifacts puts target's results table.
func ResultsPath(baseDir, runID, target string) string {
	return filepath.Join(baseDir, runID, targetsDir, safeName(target), resultsFile)
}

func WriteFitnessSeries(path string, bestByGeneration []int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{strconv.Itoa(i), strconv.Itoa(best)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID, target string) ([]int, bool, error) {
	path := filepath.Join(baseDir, runID, targetsDir, safeName(target), seriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []int{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]int, 0, 32)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

// safeName keeps a column name usable as a single path element.
func safeName(name string) string {
	replacer := strings.NewReplacer("/", "_", `\`, "_", "..", "_")
	out := replacer.Replace(strings.TrimSpace(name))
	if out == "" || out == "." {
		return "_"
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
