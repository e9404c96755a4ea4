package storage

import (
	"context"
	"reflect"
	"testing"

	"lark/internal/model"
)

func sampleCheckpoint(runID string) model.Checkpoint {
	best := model.FitnessRecord{
		Genome:      model.Genome{ID: "g2-i3", Genes: []float64{0.5, -0.25}},
		Fitness:     1.75,
		Termination: model.TerminationTimeLimit,
		Eaten:       1,
		Ticks:       300,
	}
	return model.Checkpoint{
		VersionedRecord: CurrentVersion(),
		RunID:           runID,
		Generation:      3,
		Population: []model.Genome{
			{ID: "g2-i3", Genes: []float64{0.5, -0.25}},
			{ID: "g3-i1", Genes: []float64{0.1, 0.2}},
		},
		BestEver: &best,
		RNG:      model.RNGState{Seed: 42, Draws: 3},
	}
}

// exerciseStore checks the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetCheckpoint(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing checkpoint, got ok=%v err=%v", ok, err)
	}

	checkpoint := sampleCheckpoint("run-b")
	if err := store.SaveCheckpoint(ctx, checkpoint); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, sampleCheckpoint("run-a")); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	checkpoint.Population[0].Genes[0] = 99

	loaded, ok, err := store.GetCheckpoint(ctx, "run-b")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted checkpoint")
	}
	if !reflect.DeepEqual(loaded, sampleCheckpoint("run-b")) {
		t.Fatalf("unexpected checkpoint: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if !reflect.DeepEqual(runs, []string{"run-a", "run-b"}) {
		t.Fatalf("unexpected runs: %v", runs)
	}

	history := []float64{0.5, 1.25, 1.25}
	if err := store.SaveFitnessHistory(ctx, "run-b", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-b")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotHistory, history) {
		t.Fatalf("unexpected history: %v", gotHistory)
	}

	diagnostics := []model.GenerationDiagnostics{{
		Generation:   1,
		BestFitness:  1.25,
		MeanFitness:  0.5,
		BestGenomeID: "g1-i0",
		Terminations: map[model.Termination]int{model.TerminationStalled: 2},
	}}
	if err := store.SaveGenerationDiagnostics(ctx, "run-b", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-b")
	if err != nil || !ok {
		t.Fatalf("get diagnostics: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotDiagnostics, diagnostics) {
		t.Fatalf("unexpected diagnostics: %+v", gotDiagnostics)
	}

	lineage := []model.LineageRecord{{
		VersionedRecord: CurrentVersion(),
		GenomeID:        "g2-i1",
		ParentIDs:       []string{"g1-i0", "g1-i4"},
		Generation:      2,
		Operation:       "crossover+mutate",
	}}
	if err := store.SaveLineage(ctx, "run-b", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	gotLineage, ok, err := store.GetLineage(ctx, "run-b")
	if err != nil || !ok {
		t.Fatalf("get lineage: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotLineage, lineage) {
		t.Fatalf("unexpected lineage: %+v", gotLineage)
	}
}
