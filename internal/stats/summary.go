package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lark/internal/model"
)

type RunSummary struct {
	RunID       string  `json:"run_id"`
	Generations int     `json:"generations"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestEver    float64 `json:"best_ever"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	InitialMean float64 `json:"initial_mean"`
	FinalMean   float64 `json:"final_mean"`
	Improvement float64 `json:"improvement"`
	Faults      int     `json:"numeric_faults"`
}

// Summarize reduces a run history to its headline numbers.
func Summarize(runID string, history []model.GenerationDiagnostics) RunSummary {
	summary := RunSummary{RunID: runID, Generations: len(history)}
	if len(history) == 0 {
		return summary
	}

	bests := make([]float64, len(history))
	for i, diag := range history {
		bests[i] = diag.BestFitness
		summary.Faults += diag.NumericFaults
	}
	first, last := history[0], history[len(history)-1]

	summary.InitialBest = first.BestFitness
	summary.FinalBest = last.BestFitness
	summary.BestEver = floats.Max(bests)
	summary.BestMean = stat.Mean(bests, nil)
	summary.BestStd = stat.PopStdDev(bests, nil)
	summary.InitialMean = first.MeanFitness
	summary.FinalMean = last.MeanFitness
	summary.Improvement = summary.FinalBest - summary.InitialBest
	return summary
}
