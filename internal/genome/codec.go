// Package genome maps fixed-length bit vectors to (feature subset, algorithm)
// pairs and provides the variation operators applied to them.
package genome

import (
	"fmt"
	"math/bits"
	"strings"

	"automl/internal/model"
)

// Mode selects how the algorithm choice is carried by a genome.
type Mode string

const (
	// ModeModulo stores the algorithm as trailing selector bits read as an
	// unsigned integer modulo the roster size. When the roster size is not a
	// power of two, low indexes are selected more often than high ones.
	ModeModulo Mode = "modulo"
	// ModeBounded drops the selector bits and keeps the algorithm as an explicit
	// gene drawn uniformly from [0, roster size).
	ModeBounded Mode = "bounded"
)

func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case "", ModeModulo:
		return ModeModulo, nil
	case ModeBounded:
		return ModeBounded, nil
	default:
		return "", fmt.Errorf("unsupported algorithm decoding mode: %s", name)
	}
}

// Genome is a feature-inclusion mask followed by the algorithm selector bits.
// Algo is only meaningful in ModeBounded.
type Genome struct {
	Bits []bool
	Algo int
}

func (g Genome) Clone() Genome {
	return Genome{Bits: append([]bool(nil), g.Bits...), Algo: g.Algo}
}

// String renders the bit vector, e.g. "11111|01".
func (g Genome) String() string {
	var b strings.Builder
	for _, bit := range g.Bits {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Codec converts between genomes and (feature subset, algorithm index) pairs
// for one target's feature ordering and roster.
type Codec struct {
	features []string
	index    map[string]int
	roster   int
	algoBits int
	mode     Mode
}

func NewCodec(features []string, rosterSize int, mode Mode) (*Codec, error) {
	if len(features) == 0 {
		return nil, model.NewConfigurationError("genome codec", "at least one feature is required")
	}
	if rosterSize <= 0 {
		return nil, model.NewConfigurationError("genome codec", "algorithm roster is empty")
	}
	if mode == "" {
		mode = ModeModulo
	}
	if mode != ModeModulo && mode != ModeBounded {
		return nil, model.NewConfigurationError("genome codec", "unsupported mode %q", mode)
	}

	index := make(map[string]int, len(features))
	for i, name := range features {
		if _, exists := index[name]; exists {
			return nil, model.NewConfigurationError("genome codec", "duplicate feature %q", name)
		}
		index[name] = i
	}

	algoBits := 0
	if mode == ModeModulo {
		algoBits = bits.Len(uint(rosterSize - 1))
	}

	return &Codec{
		features: append([]string(nil), features...),
		index:    index,
		roster:   rosterSize,
		algoBits: algoBits,
		mode:     mode,
	}, nil
}

func (c *Codec) Mode() Mode { return c.mode }

func (c *Codec) Features() []string { return append([]string(nil), c.features...) }

func (c *Codec) RosterSize() int { return c.roster }

// AlgoBits is the number of trailing selector bits (zero in ModeBounded).
func (c *Codec) AlgoBits() int { return c.algoBits }

// Length is the genome bit length: features plus selector bits.
func (c *Codec) Length() int { return len(c.features) + c.algoBits }

// Encode sets the mask bits for every feature in subset and stores algo,
// reduced modulo the roster size.
func (c *Codec) Encode(subset []string, algo int) (Genome, error) {
	if algo < 0 {
		return Genome{}, fmt.Errorf("algorithm index must be >= 0: %d", algo)
	}
	g := Genome{Bits: make([]bool, c.Length())}
	for _, name := range subset {
		i, ok := c.index[name]
		if !ok {
			return Genome{}, fmt.Errorf("unknown feature: %s", name)
		}
		g.Bits[i] = true
	}
	c.setAlgo(&g, algo%c.roster)
	return g, nil
}

// Full returns the genome with every feature bit set and the given algorithm.
func (c *Codec) Full(algo int) Genome {
	g := Genome{Bits: make([]bool, c.Length())}
	for i := range c.features {
		g.Bits[i] = true
	}
	c.setAlgo(&g, algo%c.roster)
	return g
}

// Decode reads the mask into an ordered feature tuple and reduces the
// selector to a roster index.
func (c *Codec) Decode(g Genome) ([]string, int, error) {
	if len(g.Bits) != c.Length() {
		return nil, 0, model.NewConfigurationError("genome codec", "genome length %d, want %d (features=%d algo_bits=%d)", len(g.Bits), c.Length(), len(c.features), c.algoBits)
	}

	subset := make([]string, 0, len(c.features))
	for i, name := range c.features {
		if g.Bits[i] {
			subset = append(subset, name)
		}
	}

	if c.mode == ModeBounded {
		if g.Algo < 0 || g.Algo >= c.roster {
			return nil, 0, model.NewConfigurationError("genome codec", "algorithm gene %d outside [0,%d)", g.Algo, c.roster)
		}
		return subset, g.Algo, nil
	}

	value := 0
	for _, bit := range g.Bits[len(c.features):] {
		value <<= 1
		if bit {
			value |= 1
		}
	}
	return subset, value % c.roster, nil
}

func (c *Codec) setAlgo(g *Genome, algo int) {
	if c.mode == ModeBounded {
		g.Algo = algo
		return
	}
	offset := len(c.features)
	for i := 0; i < c.algoBits; i++ {
		shift := c.algoBits - 1 - i
		g.Bits[offset+i] = (algo>>shift)&1 == 1
	}
}
