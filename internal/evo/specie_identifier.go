package evo

import (
	"fmt"
	"strings"

	"automl/internal/genome"
)

// SpecieIdentifier assigns a stable species key to a genome.
type SpecieIdentifier interface {
	Name() string
	Identify(g genome.Genome) string
}

// AlgorithmSpecieIdentifier groups genomes by the algorithm they decode to.
type AlgorithmSpecieIdentifier struct {
	Codec *genome.Codec
}

func (AlgorithmSpecieIdentifier) Name() string {
	return "algorithm"
}

func (s AlgorithmSpecieIdentifier) Identify(g genome.Genome) string {
	_, algo, err := s.Codec.Decode(g)
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("algo:%d", algo)
}

// SubsetSizeSpecieIdentifier groups genomes by how many features they select.
type SubsetSizeSpecieIdentifier struct {
	Codec *genome.Codec
}

func (SubsetSizeSpecieIdentifier) Name() string {
	return "subset_size"
}

func (s SubsetSizeSpecieIdentifier) Identify(g genome.Genome) string {
	subset, _, err := s.Codec.Decode(g)
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("features:%d", len(subset))
}

func SpecieIdentifierFromName(name string, codec *genome.Codec) (SpecieIdentifier, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "algorithm":
		return AlgorithmSpecieIdentifier{Codec: codec}, nil
	case "subset_size":
		return SubsetSizeSpecieIdentifier{Codec: codec}, nil
	default:
		return nil, fmt.Errorf("unsupported species: %s", name)
	}
}
