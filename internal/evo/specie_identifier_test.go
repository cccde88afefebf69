package evo

import (
	"testing"

	"automl/internal/genome"
)

func TestSpecieIdentifiers(t *testing.T) {
	codec, err := genome.NewCodec([]string{"a", "b", "c"}, 3, genome.ModeModulo)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	full0 := codec.Full(0)
	full1 := codec.Full(1)
	narrow0, err := codec.Encode([]string{"b"}, 3)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	byAlgo := AlgorithmSpecieIdentifier{Codec: codec}
	if byAlgo.Identify(full0) != byAlgo.Identify(narrow0) {
		t.Fatal("expected same algorithm species")
	}
	if byAlgo.Identify(full0) == byAlgo.Identify(full1) {
		t.Fatal("expected different algorithm species")
	}

	bySize := SubsetSizeSpecieIdentifier{Codec: codec}
	if bySize.Identify(full0) != bySize.Identify(full1) {
		t.Fatal("expected same subset size species")
	}
	if bySize.Identify(full0) == bySize.Identify(narrow0) {
		t.Fatal("expected different subset size species")
	}
	if got := byAlgo.Identify(genome.Genome{Bits: []bool{true}}); got != "invalid" {
		t.Fatalf("expected invalid species for malformed genome, got %s", got)
	}
}

func TestSpecieIdentifierFromName(t *testing.T) {
	codec, err := genome.NewCodec([]string{"a", "b"}, 2, genome.ModeModulo)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	for name, want := range map[string]string{"": "algorithm", "algorithm": "algorithm", " Subset_Size ": "subset_size"} {
		got, err := SpecieIdentifierFromName(name, codec)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if got.Name() != want {
			t.Fatalf("%q: expected %s, got %s", name, want, got.Name())
		}
	}
	if _, err := SpecieIdentifierFromName("lineage", codec); err == nil {
		t.Fatal("expected unsupported species error")
	}
	if _, err := SpecieIdentifierFromName("algorithm", nil); err == nil {
		t.Fatal("expected missing codec error")
	}
}
