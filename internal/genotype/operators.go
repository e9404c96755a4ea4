package genotype

import (
	"fmt"
	"math/rand"

	"lark/internal/model"
	"lark/internal/opname"
)

// CrossoverFunc builds one child gene vector from two equal-length parents.
type CrossoverFunc func(a, b model.Genome, rng *rand.Rand) ([]float64, error)

const (
	CrossoverUniform     = "uniform"
	CrossoverSinglePoint = "single_point"
)

// CrossoverByName resolves a crossover strategy. The empty name selects
// uniform crossover.
func CrossoverByName(name string) (CrossoverFunc, error) {
	switch opname.Normalize(name) {
	case "", CrossoverUniform:
		return UniformCrossover, nil
	case CrossoverSinglePoint:
		return SinglePointCrossover, nil
	default:
		return nil, fmt.Errorf("%w: unsupported crossover %q", model.ErrConfiguration, name)
	}
}

// Crossover is the default operator: uniform crossover producing a genome
// named id.
func Crossover(id string, a, b model.Genome, rng *rand.Rand) (model.Genome, error) {
	genes, err := UniformCrossover(a, b, rng)
	if err != nil {
		return model.Genome{}, err
	}
	return model.Genome{ID: id, Genes: genes}, nil
}

// UniformCrossover takes every gene from a or b with equal probability. One
// draw is consumed per gene.
func UniformCrossover(a, b model.Genome, rng *rand.Rand) ([]float64, error) {
	if err := sameLength(a, b); err != nil {
		return nil, err
	}
	rng = ensureRNG(rng)
	child := make([]float64, a.Len())
	for i := range child {
		if rng.Float64() < 0.5 {
			child[i] = a.Genes[i]
		} else {
			child[i] = b.Genes[i]
		}
	}
	return child, nil
}

// SinglePointCrossover copies a up to a random split point and b after it.
func SinglePointCrossover(a, b model.Genome, rng *rand.Rand) ([]float64, error) {
	if err := sameLength(a, b); err != nil {
		return nil, err
	}
	rng = ensureRNG(rng)
	child := make([]float64, a.Len())
	if len(child) == 0 {
		return child, nil
	}
	point := rng.Intn(len(child) + 1)
	copy(child[:point], a.Genes[:point])
	copy(child[point:], b.Genes[point:])
	return child, nil
}

// Mutate returns a copy of g where each gene, with probability rate, is moved
// by ±strength*U[0,1). The sign and the selection draw are taken for every gene
// so the stream advances the same way whatever the outcome. A non-positive rate
// returns an unchanged copy without drawing.
func Mutate(g model.Genome, rate, strength float64, rng *rand.Rand) model.Genome {
	out := CloneGenome(g)
	if rate <= 0 {
		return out
	}
	rng = ensureRNG(rng)
	for i := range out.Genes {
		sign := 1.0
		if rng.Float64() < 0.5 {
			sign = -1.0
		}
		if rng.Float64() < rate {
			out.Genes[i] += sign * strength * rng.Float64()
		}
	}
	return out
}

func sameLength(a, b model.Genome) error {
	if a.Len() != b.Len() {
		return fmt.Errorf("%w: crossover parents %s and %s have %d and %d genes", model.ErrDimensionMismatch, a.ID, b.ID, a.Len(), b.Len())
	}
	return nil
}
