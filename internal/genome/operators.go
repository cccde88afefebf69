package genome

import "math/rand"

// TwoPointCrossover swaps the bit segment between two random cut points.
// Children are copies; the parents are left untouched.
func TwoPointCrossover(rng *rand.Rand, a, b Genome) (Genome, Genome) {
	childA, childB := a.Clone(), b.Clone()
	size := min(len(childA.Bits), len(childB.Bits))
	if size < 2 {
		return childA, childB
	}

	p1 := 1 + rng.Intn(size)
	p2 := 1 + rng.Intn(size-1)
	if p2 >= p1 {
		p2++
	} else {
		p1, p2 = p2, p1
	}
	for i := p1; i < p2; i++ {
		childA.Bits[i], childB.Bits[i] = childB.Bits[i], childA.Bits[i]
	}
	return childA, childB
}

// FlipBits flips each bit independently with probability indpb.
func FlipBits(rng *rand.Rand, g Genome, indpb float64) Genome {
	out := g.Clone()
	for i := range out.Bits {
		if rng.Float64() < indpb {
			out.Bits[i] = !out.Bits[i]
		}
	}
	return out
}

// Crossover applies two-point crossover to the bit vector. In ModeBounded the
// algorithm genes are swapped with probability one half.
func (c *Codec) Crossover(rng *rand.Rand, a, b Genome) (Genome, Genome) {
	childA, childB := TwoPointCrossover(rng, a, b)
	if c.mode == ModeBounded && rng.Float64() < 0.5 {
		childA.Algo, childB.Algo = childB.Algo, childA.Algo
	}
	return childA, childB
}

// Mutate flips bits with probability indpb. In ModeBounded the algorithm gene is
// redrawn uniformly with the same probability.
func (c *Codec) Mutate(rng *rand.Rand, g Genome, indpb float64) Genome {
	out := FlipBits(rng, g, indpb)
	if c.mode == ModeBounded && rng.Float64() < indpb {
		out.Algo = rng.Intn(c.roster)
	}
	return out
}
