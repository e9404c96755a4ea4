package evo

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lark/internal/model"
)

// Summarize computes per-generation statistics over ranked records. BestEver
// is set to the generation best; callers tracking a run fold in history.
func Summarize(generation int, ranked []model.FitnessRecord) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:   generation,
		Terminations: map[model.Termination]int{},
	}
	if len(ranked) == 0 {
		return diag
	}

	fitness := make([]float64, len(ranked))
	for i, record := range ranked {
		fitness[i] = record.Fitness
		diag.Terminations[record.Termination]++
		if record.NumericFault {
			diag.NumericFaults++
		}
	}

	diag.BestFitness = floats.Max(fitness)
	diag.MinFitness = floats.Min(fitness)
	diag.MeanFitness = stat.Mean(fitness, nil)
	diag.StdDevFitness = stat.PopStdDev(fitness, nil)
	diag.BestEver = diag.BestFitness
	diag.BestGenomeID = ranked[floats.MaxIdx(fitness)].Genome.ID
	return diag
}
