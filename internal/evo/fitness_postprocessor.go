package evo

import (
	"fmt"
	"math"
	"strings"
)

const sizeProportionalEfficiency = 0.05

// FitnessPostprocessor adjusts fitness values after evaluation and before
// selection. Recorded trial scores are never touched.
type FitnessPostprocessor interface {
	Name() string
	Process(population []Individual) []Individual
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(population []Individual) []Individual {
	return cloneIndividuals(population)
}

// SizeProportionalPostprocessor penalizes genomes that select more features.
// Invalid individuals keep their sentinel fitness.
type SizeProportionalPostprocessor struct {
	FeatureCount int
}

func (SizeProportionalPostprocessor) Name() string {
	return "size_proportional"
}

func (p SizeProportionalPostprocessor) Process(population []Individual) []Individual {
	out := cloneIndividuals(population)
	for i := range out {
		if out[i].Fitness <= 0 {
			continue
		}
		selected := 0
		for j, bit := range out[i].Genome.Bits {
			if bit && (p.FeatureCount <= 0 || j < p.FeatureCount) {
				selected++
			}
		}
		if selected < 1 {
			selected = 1
		}
		out[i].Fitness = int(math.Round(float64(out[i].Fitness) / math.Pow(float64(selected), sizeProportionalEfficiency)))
	}
	return out
}

func PostprocessorFromName(name string, featureCount int) (FitnessPostprocessor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return NoopFitnessPostprocessor{}, nil
	case "size_proportional":
		return SizeProportionalPostprocessor{FeatureCount: featureCount}, nil
	default:
		return nil, fmt.Errorf("unsupported fitness postprocessor: %s", name)
	}
}

func cloneIndividuals(population []Individual) []Individual {
	out := make([]Individual, len(population))
	for i, ind := range population {
		out[i] = ind
		out[i].Genome = ind.Genome.Clone()
	}
	return out
}
