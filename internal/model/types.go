package model

import (
	"math"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// InvalidFitness is the fitness reported for trials that could not be scored:
// an empty feature subset, too few ensemble bases, or an estimator failure.
const InvalidFitness = -1

// TrialRecord is the persisted form of one ledger row. The fitted estimator is
// not part of it. Undefined (NaN) scores are omitted since JSON cannot carry
// them.
type TrialRecord struct {
	VersionedRecord
	Target          string             `json:"target"`
	Algorithm       string             `json:"algorithm"`
	Capability      string             `json:"capability"`
	Features        []string           `json:"features"`
	Params          map[string]any     `json:"params,omitempty"`
	Scores          map[string]float64 `json:"scores"`
	PrimaryMetric   string             `json:"primary_metric"`
	Confusion       [][]int            `json:"confusion,omitempty"`
	ClassLabels     []float64          `json:"class_labels,omitempty"`
	CVScore         *float64           `json:"cv_score,omitempty"`
	TrainTime       time.Duration      `json:"train_time"`
	PredictTime     time.Duration      `json:"predict_time"`
	Sequence        int                `json:"sequence"`
	CandidatesTried int                `json:"candidates_tried"`
}

// Primary returns the value of the record's primary metric, NaN if undefined.
func (r TrialRecord) Primary() float64 {
	v, ok := r.Scores[r.PrimaryMetric]
	if !ok {
		return math.NaN()
	}
	return v
}

type ChampionRecord struct {
	VersionedRecord
	RunID     string      `json:"run_id"`
	Target    string      `json:"target"`
	Trial     TrialRecord `json:"trial"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type RunRecord struct {
	VersionedRecord
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Targets     []string  `json:"targets"`
	Generations int       `json:"generations"`
	Seed        int64     `json:"seed"`
	Workers     int       `json:"workers"`
	SearchMode  string    `json:"search_mode"`
	Decoding    string    `json:"decoding"`
	Completed   bool      `json:"completed"`
}

// GenerationDiagnostics summarizes one generation of a target's search.
// SpeciesCount is the number of distinct species in the population, grouped
// by algorithm or by subset size.
type GenerationDiagnostics struct {
	Generation         int     `json:"generation"`
	BestFitness        int     `json:"best_fitness"`
	MeanFitness        float64 `json:"mean_fitness"`
	MinFitness         int     `json:"min_fitness"`
	InvalidCount       int     `json:"invalid_count"`
	DistinctGenomes    int     `json:"distinct_genomes"`
	SpeciesCount       int     `json:"species_count"`
	LargestSpeciesSize int     `json:"largest_species_size"`
	Evaluated          int     `json:"evaluated"`
	LedgerSize         int     `json:"ledger_size"`
}
