// Package evo runs the generational search over genomes for one target.
package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"automl/internal/genome"
	"automl/internal/ledger"
	"automl/internal/model"
	"automl/internal/telemetry"
)

const (
	DefaultGenerations   = 10
	DefaultCrossoverProb = 0.8
	DefaultMutationProb  = 0.3
	DefaultBitFlipProb   = 0.1
)

// Evaluator scores one genome. Invalid trials are reported as
// model.InvalidFitness; errors abort the run.
type Evaluator interface {
	Evaluate(ctx context.Context, g genome.Genome) (int, error)
}

// Individual is a genome with its fitness. Valid is false until the genome
// has been evaluated, and again after crossover or mutation.
type Individual struct {
	Genome  genome.Genome
	Fitness int
	Valid   bool
}

type RunResult struct {
	BestByGeneration      []int
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []Individual
	// Results is the ledger ordered by primary score, then prediction time.
	Results []ledger.Trial
}

type MonitorConfig struct {
	Target        string
	Codec         *genome.Codec
	Evaluator     Evaluator
	Ledger        *ledger.Ledger
	Selector      Selector
	Postprocessor FitnessPostprocessor
	// Species groups the population for diagnostics. Defaults to grouping by
	// decoded algorithm.
	Species       SpecieIdentifier
	Generations   int
	CrossoverProb float64
	MutationProb  float64
	BitFlipProb   float64
	Workers       int
	Seed          int64
	Logger        *slog.Logger
}

// PopulationMonitor owns one target's population for the whole run.
type PopulationMonitor struct {
	cfg    MonitorConfig
	rng    *rand.Rand
	logger *slog.Logger
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	for name, p := range map[string]float64{
		"crossover": cfg.CrossoverProb,
		"mutation":  cfg.MutationProb,
		"bit flip":  cfg.BitFlipProb,
	} {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%s probability must be in [0, 1]: %f", name, p)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{TournamentSize: DefaultTournamentSize}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	if cfg.Species == nil {
		cfg.Species = AlgorithmSpecieIdentifier{Codec: cfg.Codec}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PopulationMonitor{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger.With("target", cfg.Target),
	}, nil
}

// Run seeds the population and runs exactly Generations generations. There is
// no early stopping and no elitism. On error the result still holds every
// generation that completed, so callers can persist it.
func (m *PopulationMonitor) Run(ctx context.Context) (RunResult, error) {
	seeded := Seed(m.cfg.Codec)
	population := make([]Individual, len(seeded))
	for i, g := range seeded {
		population[i] = Individual{Genome: g}
	}

	bestHistory := make([]int, 0, m.cfg.Generations)
	diagnostics := make([]model.GenerationDiagnostics, 0, m.cfg.Generations)
	result := func() RunResult {
		out := RunResult{
			BestByGeneration:      bestHistory,
			GenerationDiagnostics: diagnostics,
			FinalPopulation:       cloneIndividuals(population),
		}
		if m.cfg.Ledger != nil {
			out.Results = m.cfg.Ledger.Sorted()
		}
		return out
	}

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return result(), err
		}

		genCtx, span := telemetry.Tracer().Start(ctx, "evo.generation")
		span.SetAttributes(attribute.String("target", m.cfg.Target), attribute.Int("generation", gen))
		evaluated, err := m.evaluatePopulation(genCtx, population)
		if err != nil {
			span.RecordError(err)
			span.End()
			return result(), err
		}

		summary := m.summarizeGeneration(population, gen, evaluated)
		span.SetAttributes(attribute.Int("best_fitness", summary.BestFitness))
		span.End()

		bestHistory = append(bestHistory, summary.BestFitness)
		diagnostics = append(diagnostics, summary)
		telemetry.GenerationBestFitness.WithLabelValues(m.cfg.Target).Set(float64(summary.BestFitness))
		m.logger.Info("generation complete",
			"generation", gen,
			"best_fitness", summary.BestFitness,
			"mean_fitness", summary.MeanFitness,
			"invalid", summary.InvalidCount,
			"species", summary.SpeciesCount,
			"evaluated", summary.Evaluated,
			"ledger_size", summary.LedgerSize,
		)

		if gen == m.cfg.Generations-1 {
			break
		}
		next, err := m.nextGeneration(population)
		if err != nil {
			return result(), err
		}
		population = next
	}
	return result(), nil
}

// evaluatePopulation scores every individual without a valid fitness in place
// and reports how many were scored. It returns once all of them are done.
func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []Individual) (int, error) {
	type job struct {
		idx    int
		genome genome.Genome
	}
	type result struct {
		idx     int
		fitness int
		err     error
	}

	pending := make([]int, 0, len(population))
	for i, ind := range population {
		if !ind.Valid {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	jobs := make(chan job)
	results := make(chan result, len(pending))

	workerCount := m.cfg.Workers
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				fitness, err := m.cfg.Evaluator.Evaluate(ctx, j.genome)
				results <- result{idx: j.idx, fitness: fitness, err: err}
			}
		}()
	}

	for _, i := range pending {
		jobs <- job{idx: i, genome: population[i].Genome}
	}
	close(jobs)

	wg.Wait()
	close(results)

	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		population[res.idx].Fitness = res.fitness
		population[res.idx].Valid = true
	}
	if firstErr != nil {
		return 0, firstErr
	}
	return len(pending), nil
}

func (m *PopulationMonitor) summarizeGeneration(population []Individual, generation, evaluated int) model.GenerationDiagnostics {
	out := model.GenerationDiagnostics{Generation: generation, Evaluated: evaluated}
	if m.cfg.Ledger != nil {
		out.LedgerSize = m.cfg.Ledger.Len()
	}
	if len(population) == 0 {
		return out
	}

	total := 0
	out.BestFitness = population[0].Fitness
	out.MinFitness = population[0].Fitness
	distinct := make(map[string]struct{}, len(population))
	species := make(map[string]int, len(population))
	for _, ind := range population {
		total += ind.Fitness
		if ind.Fitness > out.BestFitness {
			out.BestFitness = ind.Fitness
		}
		if ind.Fitness < out.MinFitness {
			out.MinFitness = ind.Fitness
		}
		if ind.Fitness == model.InvalidFitness {
			out.InvalidCount++
		}
		distinct[genomeKey(ind.Genome)] = struct{}{}
		species[m.cfg.Species.Identify(ind.Genome)]++
	}
	out.MeanFitness = float64(total) / float64(len(population))
	out.DistinctGenomes = len(distinct)
	out.SpeciesCount = len(species)
	for _, size := range species {
		if size > out.LargestSpeciesSize {
			out.LargestSpeciesSize = size
		}
	}
	return out
}

// nextGeneration selects len(population) parents, pairs neighbours for
// crossover and then mutates. Any individual touched by either operator
// loses its fitness.
func (m *PopulationMonitor) nextGeneration(population []Individual) ([]Individual, error) {
	ranked := m.cfg.Postprocessor.Process(population)
	offspring := make([]Individual, len(population))
	for i := range offspring {
		parent, err := m.cfg.Selector.PickParent(m.rng, ranked)
		if err != nil {
			return nil, err
		}
		// Selection sees adjusted fitness; offspring keep the raw score.
		parent.Fitness = rawFitness(population, parent)
		parent.Genome = parent.Genome.Clone()
		offspring[i] = parent
	}

	for i := 1; i < len(offspring); i += 2 {
		if m.rng.Float64() < m.cfg.CrossoverProb {
			a, b := m.cfg.Codec.Crossover(m.rng, offspring[i-1].Genome, offspring[i].Genome)
			offspring[i-1] = Individual{Genome: a}
			offspring[i] = Individual{Genome: b}
		}
	}
	for i := range offspring {
		if m.rng.Float64() < m.cfg.MutationProb {
			offspring[i] = Individual{Genome: m.cfg.Codec.Mutate(m.rng, offspring[i].Genome, m.cfg.BitFlipProb)}
		}
	}
	return offspring, nil
}

func rawFitness(population []Individual, picked Individual) int {
	key := genomeKey(picked.Genome)
	for _, ind := range population {
		if genomeKey(ind.Genome) == key {
			return ind.Fitness
		}
	}
	return picked.Fitness
}

func genomeKey(g genome.Genome) string {
	return fmt.Sprintf("%s/%d", g.String(), g.Algo)
}

func rankByFitness(population []Individual) []Individual {
	ranked := append([]Individual(nil), population...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}
