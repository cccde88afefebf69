package storage

import (
	"context"
	"errors"
	"maps"
	"sync"

	"automl/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type runTarget struct {
	run    string
	target string
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	trials      map[runTarget][]model.TrialRecord
	champions   map[runTarget]model.ChampionRecord
	diagnostics map[runTarget][]model.GenerationDiagnostics
	history     map[runTarget][]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.trials = make(map[runTarget][]model.TrialRecord)
	s.champions = make(map[runTarget]model.ChampionRecord)
	s.diagnostics = make(map[runTarget][]model.GenerationDiagnostics)
	s.history = make(map[runTarget][]int)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	run.Targets = append([]string(nil), run.Targets...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.Targets = append([]string(nil), run.Targets...)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.Targets = append([]string(nil), run.Targets...)
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveTrials(_ context.Context, runID, target string, trials []model.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.trials[runTarget{runID, target}] = cloneTrials(trials)
	return nil
}

func (s *MemoryStore) GetTrials(_ context.Context, runID, target string) ([]model.TrialRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trials, ok := s.trials[runTarget{runID, target}]
	if !ok {
		return nil, false, nil
	}
	return cloneTrials(trials), true, nil
}

func (s *MemoryStore) SaveChampion(_ context.Context, champion model.ChampionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	champion.Trial = cloneTrial(champion.Trial)
	s.champions[runTarget{champion.RunID, champion.Target}] = champion
	return nil
}

func (s *MemoryStore) GetChampion(_ context.Context, runID, target string) (model.ChampionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	champion, ok := s.champions[runTarget{runID, target}]
	if !ok {
		return model.ChampionRecord{}, false, nil
	}
	champion.Trial = cloneTrial(champion.Trial)
	return champion, true, nil
}

func (s *MemoryStore) ListChampions(_ context.Context, runID string) ([]model.ChampionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ChampionRecord
	for key, champion := range s.champions {
		if key.run != runID {
			continue
		}
		champion.Trial = cloneTrial(champion.Trial)
		out = append(out, champion)
	}
	sortChampions(out)
	return out, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID, target string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.diagnostics[runTarget{runID, target}] = append([]model.GenerationDiagnostics(nil), diagnostics...)
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID, target string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runTarget{runID, target}]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationDiagnostics(nil), diagnostics...), true, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID, target string, history []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.history[runTarget{runID, target}] = append([]int(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID, target string) ([]int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runTarget{runID, target}]
	if !ok {
		return nil, false, nil
	}
	return append([]int(nil), history...), true, nil
}

func cloneTrials(trials []model.TrialRecord) []model.TrialRecord {
	out := make([]model.TrialRecord, len(trials))
	for i, trial := range trials {
		out[i] = cloneTrial(trial)
	}
	return out
}

func cloneTrial(t model.TrialRecord) model.TrialRecord {
	t.Features = append([]string(nil), t.Features...)
	t.Params = maps.Clone(t.Params)
	t.Scores = maps.Clone(t.Scores)
	t.ClassLabels = append([]float64(nil), t.ClassLabels...)
	if t.Confusion != nil {
		confusion := make([][]int, len(t.Confusion))
		for i, row := range t.Confusion {
			confusion[i] = append([]int(nil), row...)
		}
		t.Confusion = confusion
	}
	if t.CVScore != nil {
		cv := *t.CVScore
		t.CVScore = &cv
	}
	return t
}
