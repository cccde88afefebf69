package evo

import (
	"fmt"
	"math/rand"
	"strings"
)

const DefaultTournamentSize = 3

// Selector chooses a parent from an evaluated population.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, population []Individual) (Individual, error)
}

// TournamentSelector draws TournamentSize individuals with replacement and
// returns the fittest. Ties go to the earliest draw.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, population []Individual) (Individual, error) {
	if rng == nil {
		return Individual{}, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return Individual{}, fmt.Errorf("population is empty")
	}
	size := s.TournamentSize
	if size <= 0 {
		size = DefaultTournamentSize
	}

	best := population[rng.Intn(len(population))]
	for i := 1; i < size; i++ {
		candidate := population[rng.Intn(len(population))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

// EliteSelector picks uniformly among the Count fittest individuals.
type EliteSelector struct {
	Count int
}

func (EliteSelector) Name() string {
	return "elite"
}

func (s EliteSelector) PickParent(rng *rand.Rand, population []Individual) (Individual, error) {
	if rng == nil {
		return Individual{}, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return Individual{}, fmt.Errorf("population is empty")
	}
	ranked := rankByFitness(population)
	count := s.Count
	if count <= 0 || count > len(ranked) {
		count = len(ranked)
	}
	return ranked[rng.Intn(count)], nil
}

func SelectorFromName(name string, tournamentSize int) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tournament":
		return TournamentSelector{TournamentSize: tournamentSize}, nil
	case "elite":
		return EliteSelector{Count: tournamentSize}, nil
	default:
		return nil, fmt.Errorf("unsupported selector: %s", name)
	}
}
