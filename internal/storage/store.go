// Package storage persists run records, ledgers, champions and per-generation
// diagnostics behind a single Store interface.
package storage

import (
	"context"

	"automl/internal/model"
)

// Store is implemented by every backend. Trials, diagnostics and fitness
// history are keyed by run and target; saving again replaces the previous
// value.
type Store interface {
	Init(ctx context.Context) error

	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)

	SaveTrials(ctx context.Context, runID, target string, trials []model.TrialRecord) error
	GetTrials(ctx context.Context, runID, target string) ([]model.TrialRecord, bool, error)

	SaveChampion(ctx context.Context, champion model.ChampionRecord) error
	GetChampion(ctx context.Context, runID, target string) (model.ChampionRecord, bool, error)
	ListChampions(ctx context.Context, runID string) ([]model.ChampionRecord, error)

	SaveGenerationDiagnostics(ctx context.Context, runID, target string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID, target string) ([]model.GenerationDiagnostics, bool, error)

	SaveFitnessHistory(ctx context.Context, runID, target string, history []int) error
	GetFitnessHistory(ctx context.Context, runID, target string) ([]int, bool, error)
}
