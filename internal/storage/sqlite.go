//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"automl/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.CreatedAt.UnixNano(), run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveTrials(ctx context.Context, runID, target string, trials []model.TrialRecord) error {
	payload, err := EncodeTrials(trials)
	if err != nil {
		return err
	}
	return s.putTargetPayload(ctx, "trials", runID, target, payload)
}

func (s *SQLiteStore) GetTrials(ctx context.Context, runID, target string) ([]model.TrialRecord, bool, error) {
	payload, ok, err := s.getTargetPayload(ctx, "trials", runID, target)
	if err != nil || !ok {
		return nil, ok, err
	}
	trials, err := DecodeTrials(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode trials %s/%s: %w", runID, target, err)
	}
	return trials, true, nil
}

func (s *SQLiteStore) SaveChampion(ctx context.Context, champion model.ChampionRecord) error {
	payload, err := EncodeChampion(champion)
	if err != nil {
		return err
	}
	return s.putTargetPayload(ctx, "champions", champion.RunID, champion.Target, payload)
}

func (s *SQLiteStore) GetChampion(ctx context.Context, runID, target string) (model.ChampionRecord, bool, error) {
	payload, ok, err := s.getTargetPayload(ctx, "champions", runID, target)
	if err != nil || !ok {
		return model.ChampionRecord{}, ok, err
	}
	champion, err := DecodeChampion(payload)
	if err != nil {
		return model.ChampionRecord{}, false, fmt.Errorf("decode champion %s/%s: %w", runID, target, err)
	}
	return champion, true, nil
}

func (s *SQLiteStore) ListChampions(ctx context.Context, runID string) ([]model.ChampionRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT target, payload FROM champions WHERE run_id = ? ORDER BY target`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChampionRecord
	for rows.Next() {
		var (
			target  string
			payload []byte
		)
		if err := rows.Scan(&target, &payload); err != nil {
			return nil, err
		}
		champion, err := DecodeChampion(payload)
		if err != nil {
			return nil, fmt.Errorf("decode champion %s/%s: %w", runID, target, err)
		}
		out = append(out, champion)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveGenerationDiagnostics(ctx context.Context, runID, target string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.putTargetPayload(ctx, "generation_diagnostics", runID, target, payload)
}

func (s *SQLiteStore) GetGenerationDiagnostics(ctx context.Context, runID, target string) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getTargetPayload(ctx, "generation_diagnostics", runID, target)
	if err != nil || !ok {
		return nil, ok, err
	}
	diagnostics, err := DecodeGenerationDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s/%s: %w", runID, target, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID, target string, history []int) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.putTargetPayload(ctx, "fitness_history", runID, target, payload)
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID, target string) ([]int, bool, error) {
	payload, ok, err := s.getTargetPayload(ctx, "fitness_history", runID, target)
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s/%s: %w", runID, target, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

// putTargetPayload upserts into one of the (run_id, target) keyed tables.
// table is always a constant from this file.
func (s *SQLiteStore) putTargetPayload(ctx context.Context, table, runID, target string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, target, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, target) DO UPDATE SET
			payload = excluded.payload
	`, runID, target, payload)
	return err
}

func (s *SQLiteStore) getTargetPayload(ctx context.Context, table, runID, target string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE run_id = ? AND target = ?`, runID, target).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trials (
			run_id TEXT NOT NULL,
			target TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, target)
		);
		CREATE TABLE IF NOT EXISTS champions (
			run_id TEXT NOT NULL,
			target TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, target)
		);
		CREATE TABLE IF NOT EXISTS generation_diagnostics (
			run_id TEXT NOT NULL,
			target TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, target)
		);
		CREATE TABLE IF NOT EXISTS fitness_history (
			run_id TEXT NOT NULL,
			target TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, target)
		);
	`)
	return err
}
