package genotype

import (
	"fmt"
	"math/rand"
	"time"

	"lark/internal/model"
)

// GeneRange bounds the initial gene distribution: genes start uniform in
// [-GeneRange, GeneRange].
const GeneRange = 1.0

// CreateRandom draws a genome for topology with every gene uniform in [-1, 1].
// Given the same rng state it always yields the same genes.
func CreateRandom(id string, topology model.Topology, rng *rand.Rand) model.Genome {
	rng = ensureRNG(rng)
	genes := make([]float64, topology.GeneCount())
	for i := range genes {
		genes[i] = randomCentered(rng)
	}
	return model.Genome{ID: id, Genes: genes}
}

// CreatePopulation draws size genomes in index order, named by SeedID.
func CreatePopulation(topology model.Topology, size int, rng *rand.Rand) []model.Genome {
	rng = ensureRNG(rng)
	out := make([]model.Genome, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, CreateRandom(SeedID(i), topology, rng))
	}
	return out
}

// FromGenes wraps an existing weight vector, copying it.
func FromGenes(id string, genes []float64) model.Genome {
	return model.Genome{ID: id, Genes: append([]float64(nil), genes...)}
}

func CloneGenome(g model.Genome) model.Genome {
	return FromGenes(g.ID, g.Genes)
}

// CheckTopology reports whether g has the length topology requires.
func CheckTopology(g model.Genome, topology model.Topology) error {
	if want := topology.GeneCount(); g.Len() != want {
		return fmt.Errorf("%w: genome %s has %d genes, topology %s needs %d", model.ErrDimensionMismatch, g.ID, g.Len(), topology, want)
	}
	return nil
}

func SeedID(index int) string {
	return ChildID(1, index)
}

func ChildID(generation, index int) string {
	return fmt.Sprintf("g%d-i%d", generation, index)
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func randomCentered(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * GeneRange
}
