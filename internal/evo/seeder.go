package evo

import "automl/internal/genome"

// Seed returns one full-width genome per roster index, in roster order, so
// every algorithm is tried on all features before any subset is explored.
func Seed(codec *genome.Codec) []genome.Genome {
	out := make([]genome.Genome, codec.RosterSize())
	for i := range out {
		out[i] = codec.Full(i)
	}
	return out
}
