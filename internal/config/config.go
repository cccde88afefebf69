// Package config loads and validates the search configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full run configuration. The zero value is not usable; start
// from Default.
type Config struct {
	Generations          int           `json:"generations" yaml:"generations" validate:"gt=0"`
	CrossoverProb        float64       `json:"crossover_prob" yaml:"crossover_prob" validate:"gte=0,lte=1"`
	MutationProb         float64       `json:"mutation_prob" yaml:"mutation_prob" validate:"gte=0,lte=1"`
	BitFlipProb          float64       `json:"bitflip_prob" yaml:"bitflip_prob" validate:"gte=0,lte=1"`
	TournamentSize       int           `json:"tournament_size" yaml:"tournament_size" validate:"gt=0"`
	Selector             string        `json:"selector" yaml:"selector" validate:"oneof=tournament elite"`
	FitnessPostprocessor string        `json:"fitness_postprocessor" yaml:"fitness_postprocessor" validate:"oneof=none size_proportional"`
	Species              string        `json:"species" yaml:"species" validate:"oneof=algorithm subset_size"`
	Decoding             string        `json:"algorithm_decoding" yaml:"algorithm_decoding" validate:"oneof=modulo bounded"`
	MaxEnsembleBases     int           `json:"max_ensemble_bases" yaml:"max_ensemble_bases" validate:"gte=2"`
	Workers              int           `json:"workers" yaml:"workers" validate:"gte=0"`
	TrialTimeout         time.Duration `json:"trial_timeout" yaml:"trial_timeout" validate:"gte=0"`
	Seed                 int64         `json:"seed" yaml:"seed"`

	Search  SearchConfig   `json:"search" yaml:"search"`
	Data    DataConfig     `json:"data" yaml:"data"`
	Targets []TargetConfig `json:"targets" yaml:"targets" validate:"dive"`
	Store   StoreConfig    `json:"store" yaml:"store"`
	Output  OutputConfig   `json:"output" yaml:"output"`
	Log     LogConfig      `json:"log" yaml:"log"`
}

// SearchConfig controls the nested hyperparameter search run for every trial.
type SearchConfig struct {
	Mode            string  `json:"mode" yaml:"mode" validate:"oneof=grid random hillclimb"`
	Folds           int     `json:"cv_folds" yaml:"cv_folds" validate:"gte=2"`
	Iterations      int     `json:"iterations" yaml:"iterations" validate:"gte=0"`
	IterationPolicy string  `json:"iteration_policy" yaml:"iteration_policy" validate:"oneof=fixed grid_capped dimension_scaled"`
	PolicyParam     float64 `json:"policy_param" yaml:"policy_param" validate:"gte=0"`
}

// DataConfig controls how the input table becomes per-target matrices.
type DataConfig struct {
	Path                 string  `json:"path" yaml:"path"`
	UniqueCategoricLimit int     `json:"unique_categoric_limit" yaml:"unique_categoric_limit" validate:"gt=0"`
	TrainFraction        float64 `json:"train_fraction" yaml:"train_fraction" validate:"gt=0,lt=1"`
	SplitSeed            int64   `json:"split_seed" yaml:"split_seed"`
}

type TargetConfig struct {
	Column string `json:"column" yaml:"column" validate:"required"`
	// Metrics lists the metrics to report, primary first. Empty means the
	// defaults for the target's task.
	Metrics []string `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

type StoreConfig struct {
	Kind string `json:"kind" yaml:"kind" validate:"oneof=memory sqlite badger"`
	Path string `json:"path" yaml:"path" validate:"required_unless=Kind memory"`
}

// OutputConfig names where artifacts go. PredictPath, when set, is a CSV the
// champions predict on once every target has one.
type OutputConfig struct {
	Dir         string `json:"dir" yaml:"dir"`
	PredictPath string `json:"predict_path" yaml:"predict_path"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file or flag overrides it.
func Default() Config {
	return Config{
		Generations:          10,
		CrossoverProb:        0.8,
		MutationProb:         0.3,
		BitFlipProb:          0.1,
		TournamentSize:       3,
		Selector:             "tournament",
		FitnessPostprocessor: "none",
		Species:              "algorithm",
		Decoding:             "modulo",
		MaxEnsembleBases:     3,
		Workers:              0,
		TrialTimeout:         5 * time.Minute,
		Seed:                 1,
		Search: SearchConfig{
			Mode:            "grid",
			Folds:           5,
			Iterations:      10,
			IterationPolicy: "fixed",
		},
		Data: DataConfig{
			UniqueCategoricLimit: 15,
			TrainFraction:        0.8,
			SplitSeed:            1102,
		},
		Store: StoreConfig{Kind: "memory"},
		Output: OutputConfig{
			Dir: "automl_runs",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for _, t := range c.Targets {
		if _, dup := seen[t.Column]; dup {
			return fmt.Errorf("invalid config: duplicate target column %q", t.Column)
		}
		seen[t.Column] = struct{}{}
	}
	return nil
}

// TargetColumns lists the configured target columns in order.
func (c Config) TargetColumns() []string {
	out := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = t.Column
	}
	return out
}

// Load starts from Default, overlays the file at path (YAML or JSON) and then
// AUTOML_* environment variables, and validates the result. An empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("AUTOML_GENERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTOML_GENERATIONS: %w", err)
		}
		cfg.Generations = n
	}
	if v := os.Getenv("AUTOML_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTOML_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("AUTOML_TRIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AUTOML_TRIAL_TIMEOUT: %w", err)
		}
		cfg.TrialTimeout = d
	}
	if v := os.Getenv("AUTOML_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("AUTOML_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AUTOML_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	return nil
}
