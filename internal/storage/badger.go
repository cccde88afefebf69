package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"automl/internal/model"
)

const (
	runPrefix         = "run/"
	trialsPrefix      = "trials/"
	championPrefix    = "champion/"
	diagnosticsPrefix = "diagnostics/"
	historyPrefix     = "history/"
)

// BadgerConfig configures the embedded key-value backend. Path is a
// directory; InMemory ignores it.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// BadgerStore keeps every record as a JSON value under a prefixed key:
// run/<id>, trials/<run>/<target> and so on.
type BadgerStore struct {
	cfg BadgerConfig

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(cfg BadgerConfig) *BadgerStore {
	return &BadgerStore{cfg: cfg}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if s.cfg.Path == "" {
			return errors.New("badger path is required")
		}
		if err := os.MkdirAll(s.cfg.Path, 0o750); err != nil {
			return fmt.Errorf("create database directory %s: %w", s.cfg.Path, err)
		}
		opts = badger.DefaultOptions(s.cfg.Path)
	}
	opts = opts.WithSyncWrites(s.cfg.SyncWrites).WithNumVersionsToKeep(1)
	if s.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) SaveRun(_ context.Context, run model.RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.put(runPrefix+run.ID, payload)
}

func (s *BadgerStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	payload, ok, err := s.get(runPrefix + id)
	if err != nil || !ok {
		return model.RunRecord{}, ok, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *BadgerStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	var out []model.RunRecord
	err := s.scan(runPrefix, func(key string, payload []byte) error {
		run, err := DecodeRun(payload)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, run)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(out)
	return out, nil
}

func (s *BadgerStore) SaveTrials(_ context.Context, runID, target string, trials []model.TrialRecord) error {
	payload, err := EncodeTrials(trials)
	if err != nil {
		return err
	}
	return s.put(targetKey(trialsPrefix, runID, target), payload)
}

func (s *BadgerStore) GetTrials(_ context.Context, runID, target string) ([]model.TrialRecord, bool, error) {
	payload, ok, err := s.get(targetKey(trialsPrefix, runID, target))
	if err != nil || !ok {
		return nil, ok, err
	}
	trials, err := DecodeTrials(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode trials %s/%s: %w", runID, target, err)
	}
	return trials, true, nil
}

func (s *BadgerStore) SaveChampion(_ context.Context, champion model.ChampionRecord) error {
	payload, err := EncodeChampion(champion)
	if err != nil {
		return err
	}
	return s.put(targetKey(championPrefix, champion.RunID, champion.Target), payload)
}

func (s *BadgerStore) GetChampion(_ context.Context, runID, target string) (model.ChampionRecord, bool, error) {
	payload, ok, err := s.get(targetKey(championPrefix, runID, target))
	if err != nil || !ok {
		return model.ChampionRecord{}, ok, err
	}
	champion, err := DecodeChampion(payload)
	if err != nil {
		return model.ChampionRecord{}, false, fmt.Errorf("decode champion %s/%s: %w", runID, target, err)
	}
	return champion, true, nil
}

func (s *BadgerStore) ListChampions(_ context.Context, runID string) ([]model.ChampionRecord, error) {
	var out []model.ChampionRecord
	err := s.scan(championPrefix+runID+"/", func(key string, payload []byte) error {
		champion, err := DecodeChampion(payload)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, champion)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortChampions(out)
	return out, nil
}

func (s *BadgerStore) SaveGenerationDiagnostics(_ context.Context, runID, target string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.put(targetKey(diagnosticsPrefix, runID, target), payload)
}

func (s *BadgerStore) GetGenerationDiagnostics(_ context.Context, runID, target string) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.get(targetKey(diagnosticsPrefix, runID, target))
	if err != nil || !ok {
		return nil, ok, err
	}
	diagnostics, err := DecodeGenerationDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s/%s: %w", runID, target, err)
	}
	return diagnostics, true, nil
}

func (s *BadgerStore) SaveFitnessHistory(_ context.Context, runID, target string, history []int) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.put(targetKey(historyPrefix, runID, target), payload)
}

func (s *BadgerStore) GetFitnessHistory(_ context.Context, runID, target string) ([]int, bool, error) {
	payload, ok, err := s.get(targetKey(historyPrefix, runID, target))
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s/%s: %w", runID, target, err)
	}
	return history, true, nil
}

func targetKey(prefix, runID, target string) string {
	return prefix + runID + "/" + target
}

func (s *BadgerStore) getDB() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func (s *BadgerStore) put(key string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
}

func (s *BadgerStore) get(key string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *BadgerStore) scan(prefix string, fn func(key string, payload []byte) error) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), payload); err != nil {
				return err
			}
		}
		return nil
	})
}
