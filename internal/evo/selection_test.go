package evo

import (
	"math/rand"
	"testing"

	"automl/internal/genome"
)

func scoredPopulation(fitness ...int) []Individual {
	out := make([]Individual, len(fitness))
	for i, f := range fitness {
		out[i] = Individual{Genome: genome.Genome{Bits: []bool{i%2 == 0, i%3 == 0}}, Fitness: f, Valid: true}
	}
	return out
}

func TestTournamentSelectorFavorsFitterIndividuals(t *testing.T) {
	population := scoredPopulation(1, 2, 3, 4, 5, 6)
	rng := rand.New(rand.NewSource(42))
	selector := TournamentSelector{TournamentSize: 3}

	total := 0
	const draws = 600
	for i := 0; i < draws; i++ {
		parent, err := selector.PickParent(rng, population)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		total += parent.Fitness
	}
	if mean := float64(total) / draws; mean <= 4.5 {
		t.Fatalf("expected tournament mean above 4.5, got %f", mean)
	}
}

func TestTournamentOfOneIsUniform(t *testing.T) {
	population := scoredPopulation(10, 20)
	rng := rand.New(rand.NewSource(3))
	selector := TournamentSelector{TournamentSize: 1}
	seen := map[int]int{}
	for i := 0; i < 200; i++ {
		parent, err := selector.PickParent(rng, population)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		seen[parent.Fitness]++
	}
	if seen[10] == 0 || seen[20] == 0 {
		t.Fatalf("expected both individuals to be drawn, got %v", seen)
	}
}

func TestSelectorsRejectBadInput(t *testing.T) {
	for _, selector := range []Selector{TournamentSelector{}, EliteSelector{}} {
		if _, err := selector.PickParent(nil, scoredPopulation(1)); err == nil {
			t.Fatalf("%s: expected error for nil rng", selector.Name())
		}
		if _, err := selector.PickParent(rand.New(rand.NewSource(1)), nil); err == nil {
			t.Fatalf("%s: expected error for empty population", selector.Name())
		}
	}
}

func TestEliteSelectorOnlyPicksTopCount(t *testing.T) {
	population := scoredPopulation(5, 50, 1, 40)
	rng := rand.New(rand.NewSource(9))
	selector := EliteSelector{Count: 2}
	for i := 0; i < 100; i++ {
		parent, err := selector.PickParent(rng, population)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if parent.Fitness < 40 {
			t.Fatalf("picked individual outside the elite: %d", parent.Fitness)
		}
	}
}

func TestSelectorFromName(t *testing.T) {
	s, err := SelectorFromName("", 4)
	if err != nil || s.Name() != "tournament" {
		t.Fatalf("expected default tournament selector, got %v %v", s, err)
	}
	if _, err := SelectorFromName("roulette", 3); err == nil {
		t.Fatal("expected unsupported selector error")
	}
}

func TestSizeProportionalPostprocessorPenalizesWiderSubsets(t *testing.T) {
	population := []Individual{
		{Genome: genome.Genome{Bits: []bool{true, false, false, false, true}}, Fitness: 90000},
		{Genome: genome.Genome{Bits: []bool{true, true, true, true, false}}, Fitness: 90000},
		{Genome: genome.Genome{Bits: []bool{false, false, false, false, false}}, Fitness: -1},
	}
	p, err := PostprocessorFromName("size_proportional", 4)
	if err != nil {
		t.Fatalf("postprocessor: %v", err)
	}
	out := p.Process(population)
	if out[0].Fitness != 90000 {
		t.Fatalf("single feature should keep its fitness, got %d", out[0].Fitness)
	}
	if out[1].Fitness >= out[0].Fitness {
		t.Fatalf("expected wider subset to be penalized: %d vs %d", out[1].Fitness, out[0].Fitness)
	}
	if out[2].Fitness != -1 {
		t.Fatalf("invalid fitness must be untouched, got %d", out[2].Fitness)
	}
	if population[1].Fitness != 90000 {
		t.Fatal("input population must not be modified")
	}

	noop, err := PostprocessorFromName("none", 4)
	if err != nil {
		t.Fatalf("postprocessor: %v", err)
	}
	if got := noop.Process(population); got[1].Fitness != 90000 {
		t.Fatalf("noop changed fitness: %d", got[1].Fitness)
	}
}
