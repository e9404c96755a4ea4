package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"lark/internal/model"
	"lark/internal/scape"
	"lark/internal/storage"
)

func testSessionConfig() SessionConfig {
	topo := model.NewTopology("tanh", 4, 6, 2)
	return SessionConfig{
		RunID:            "run-test",
		Seed:             42,
		Topology:         topo,
		PopulationSize:   12,
		EliteCount:       2,
		MutationRate:     0.1,
		MutationStrength: 0.5,
		Workers:          4,
		Forager:          scape.DefaultForagerConfig(topo),
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestSession(t *testing.T, cfg SessionConfig) *Session {
	t.Helper()
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func advance(t *testing.T, s *Session, n int) Snapshot {
	t.Helper()
	snap, err := s.Advance(context.Background(), n, nil)
	if err != nil {
		t.Fatalf("advance %d: %v", n, err)
	}
	return snap
}

func TestSessionDeterministicAcrossRuns(t *testing.T) {
	a := newTestSession(t, testSessionConfig())
	b := newTestSession(t, testSessionConfig())
	advance(t, a, 4)
	advance(t, b, 4)

	if !reflect.DeepEqual(a.History(), b.History()) {
		t.Fatalf("histories differ:\n%+v\n%+v", a.History(), b.History())
	}
	if !reflect.DeepEqual(a.Population(), b.Population()) {
		t.Fatal("final populations differ")
	}
}

func TestSessionWorkerCountDoesNotChangeResults(t *testing.T) {
	sequentialCfg := testSessionConfig()
	sequentialCfg.Workers = 1
	parallelCfg := testSessionConfig()
	parallelCfg.Workers = 8

	sequential := newTestSession(t, sequentialCfg)
	parallel := newTestSession(t, parallelCfg)
	advance(t, sequential, 3)
	advance(t, parallel, 3)

	if !reflect.DeepEqual(sequential.History(), parallel.History()) {
		t.Fatal("sequential and parallel histories differ")
	}
	if !reflect.DeepEqual(sequential.Checkpoint(), parallel.Checkpoint()) {
		t.Fatal("sequential and parallel checkpoints differ")
	}
}

func TestSessionForagingScenario(t *testing.T) {
	cfg := testSessionConfig()
	cfg.PopulationSize = 40
	cfg.EliteCount = 2
	cfg.MutationRate = 0.1
	cfg.MutationStrength = 0.5
	cfg.Seed = 42
	s := newTestSession(t, cfg)

	var snapshots []Snapshot
	if _, err := s.Advance(context.Background(), 10, func(snap Snapshot) {
		snapshots = append(snapshots, snap)
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(snapshots) != 10 {
		t.Fatalf("expected 10 snapshots, got %d", len(snapshots))
	}

	history := s.History()
	for i := 1; i < len(history); i++ {
		if history[i].BestFitness < history[i-1].BestFitness {
			t.Fatalf("best fitness regressed at generation %d: %f -> %f", history[i].Generation, history[i-1].BestFitness, history[i].BestFitness)
		}
		if snapshots[i].BestFitness < snapshots[i-1].BestFitness {
			t.Fatalf("published best regressed at %d", i)
		}
	}
	if last, first := history[len(history)-1].MeanFitness, history[0].MeanFitness; last < first {
		t.Fatalf("average fitness regressed: first=%f last=%f", first, last)
	}
	if s.Generation() != 11 {
		t.Fatalf("expected generation 11, got %d", s.Generation())
	}
}

func TestSessionPopulationSizeInvariant(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	if _, err := s.Advance(context.Background(), 3, func(snap Snapshot) {
		if snap.PopulationSize != 12 {
			t.Errorf("snapshot population size %d", snap.PopulationSize)
		}
		if got := len(s.Population()); got != 12 {
			t.Errorf("population size %d", got)
		}
		latest := s.Latest()
		if got := len(latest.Records); got != 12 {
			t.Errorf("record count %d", got)
		}
		if latest.Generation != snap.Generation-1 {
			t.Errorf("latest generation %d, snapshot generation %d", latest.Generation, snap.Generation)
		}
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func TestSessionAdvanceZeroIsNoop(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	advance(t, s, 1)
	before := s.Population()
	beforeGen := s.Generation()

	snap := advance(t, s, 0)
	if snap.Generation != beforeGen || s.Generation() != beforeGen {
		t.Fatalf("generation changed: %d -> %d", beforeGen, s.Generation())
	}
	if !reflect.DeepEqual(before, s.Population()) {
		t.Fatal("population changed")
	}
}

func TestSessionAdvanceNegative(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	if _, err := s.Advance(context.Background(), -1, nil); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSessionConcurrentAdvanceIsBusy(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	reference := newTestSession(t, testSessionConfig())
	want := advance(t, reference, 3)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	type outcome struct {
		snap Snapshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		snap, err := s.Advance(context.Background(), 3, func(Snapshot) {
			once.Do(func() {
				close(entered)
				<-release
			})
		})
		done <- outcome{snap: snap, err: err}
	}()

	<-entered
	if _, err := s.Advance(context.Background(), 1, nil); !errors.Is(err, model.ErrSessionBusy) {
		t.Fatalf("expected busy advance, got %v", err)
	}
	if _, err := s.Reset(context.Background()); !errors.Is(err, model.ErrSessionBusy) {
		t.Fatalf("expected busy reset, got %v", err)
	}
	if _, err := s.StartOrResume(context.Background()); !errors.Is(err, model.ErrSessionBusy) {
		t.Fatalf("expected busy start, got %v", err)
	}
	// reads stay available while busy
	_ = s.Snapshot()
	close(release)

	got := <-done
	if got.err != nil {
		t.Fatalf("in-flight advance: %v", got.err)
	}
	if !reflect.DeepEqual(got.snap, want) {
		t.Fatalf("in-flight result affected:\n got=%+v\nwant=%+v", got.snap, want)
	}
}

func TestSessionStopBetweenGenerations(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	snap, err := s.Advance(context.Background(), 5, func(Snapshot) {
		s.Stop()
	})
	if !errors.Is(err, model.ErrStopped) {
		t.Fatalf("expected stopped, got %v", err)
	}
	if snap.Generation != 2 || len(s.History()) != 1 {
		t.Fatalf("expected one completed generation, got generation=%d history=%d", snap.Generation, len(s.History()))
	}

	// a later advance is not affected by the earlier stop
	advance(t, s, 1)
	if s.Generation() != 3 {
		t.Fatalf("expected generation 3, got %d", s.Generation())
	}
}

func TestSessionContextCancellation(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Advance(ctx, 5, func(Snapshot) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if s.Generation() != 2 {
		t.Fatalf("expected generation 2 after cancellation, got %d", s.Generation())
	}
}

func TestSessionCheckpointRestoreReproduces(t *testing.T) {
	original := newTestSession(t, testSessionConfig())
	advance(t, original, 2)
	checkpoint := original.Checkpoint()
	advance(t, original, 3)

	restored, err := RestoreSession(context.Background(), testSessionConfig(), checkpoint)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Generation() != 3 {
		t.Fatalf("expected restored generation 3, got %d", restored.Generation())
	}
	advance(t, restored, 3)

	if !reflect.DeepEqual(original.History()[2:], restored.History()) {
		t.Fatalf("restored run diverged:\n%+v\n%+v", original.History()[2:], restored.History())
	}
	if !reflect.DeepEqual(original.Checkpoint(), restored.Checkpoint()) {
		t.Fatal("restored checkpoint diverged")
	}
}

func TestRestoreSessionRejectsMismatchedCheckpoint(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	advance(t, s, 1)
	checkpoint := s.Checkpoint()

	short := checkpoint
	short.Population = checkpoint.Population[:3]
	if _, err := RestoreSession(context.Background(), testSessionConfig(), short); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	bad := s.Checkpoint()
	bad.Population[0].Genes = bad.Population[0].Genes[:1]
	if _, err := RestoreSession(context.Background(), testSessionConfig(), bad); !errors.Is(err, model.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestSessionReset(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	fresh := newTestSession(t, testSessionConfig())
	if _, err := fresh.StartOrResume(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	advance(t, s, 2)

	snap, err := s.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if snap.Generation != 1 || snap.BestFitness != 0 || snap.AverageFitness != 0 {
		t.Fatalf("unexpected snapshot after reset: %+v", snap)
	}
	if len(s.History()) != 0 {
		t.Fatal("expected history cleared")
	}
	if !reflect.DeepEqual(s.Population(), fresh.Population()) {
		t.Fatal("expected reset population to match a fresh start")
	}
}

func TestSessionSnapshotBeforeEvaluation(t *testing.T) {
	s := newTestSession(t, testSessionConfig())
	snap, err := s.StartOrResume(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Generation != 1 || snap.AverageFitness != 0 || snap.PopulationSize != 12 || snap.RunID != "run-test" {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	if len(s.Lineage()) != 12 {
		t.Fatalf("expected seed lineage for every genome, got %d", len(s.Lineage()))
	}
}

func TestSessionGeneratesRunID(t *testing.T) {
	cfg := testSessionConfig()
	cfg.RunID = ""
	s := newTestSession(t, cfg)
	first, err := s.StartOrResume(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.RunID == "" {
		t.Fatal("expected generated run id")
	}
	second, err := s.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if second.RunID == first.RunID {
		t.Fatal("expected reset to start a new run id")
	}
}

func TestSessionTraceBest(t *testing.T) {
	cfg := testSessionConfig()
	cfg.TraceBest = true
	s := newTestSession(t, cfg)
	snap := advance(t, s, 1)
	if len(snap.Trace) == 0 {
		t.Fatal("expected trace of the best agent")
	}
	if snap.Trace[0].X != 0.5 || snap.Trace[0].Y != 0.5 {
		t.Fatalf("unexpected trace start: %+v", snap.Trace[0])
	}
}

func TestSessionPersistsAndResumes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}

	cfg := testSessionConfig()
	cfg.Store = store
	s := newTestSession(t, cfg)
	advance(t, s, 2)

	checkpoint, ok, err := store.GetCheckpoint(ctx, "run-test")
	if err != nil || !ok {
		t.Fatalf("get checkpoint: ok=%v err=%v", ok, err)
	}
	if checkpoint.Generation != 3 {
		t.Fatalf("expected stored generation 3, got %d", checkpoint.Generation)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-test")
	if err != nil || !ok || len(history) != 2 {
		t.Fatalf("unexpected stored history: %v ok=%v err=%v", history, ok, err)
	}

	cfg.Resume = true
	resumed := newTestSession(t, cfg)
	snap, err := resumed.StartOrResume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.Generation != 3 || len(resumed.History()) != 2 {
		t.Fatalf("unexpected resumed state: generation=%d history=%d", snap.Generation, len(resumed.History()))
	}

	advance(t, s, 1)
	advance(t, resumed, 1)
	if !reflect.DeepEqual(s.History(), resumed.History()) {
		t.Fatal("resumed run diverged from original")
	}
}

func TestRestoreSessionWithStoreKeepsStoredHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}

	cfg := testSessionConfig()
	cfg.Store = store
	original := newTestSession(t, cfg)
	advance(t, original, 2)
	checkpoint := original.Checkpoint()
	advance(t, original, 2)

	restored, err := RestoreSession(ctx, cfg, checkpoint)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(restored.History()) != 2 {
		t.Fatalf("expected 2 restored generations, got %d", len(restored.History()))
	}
	for _, l := range restored.Lineage() {
		if l.Generation > checkpoint.Generation {
			t.Fatalf("lineage beyond checkpoint generation: %+v", l)
		}
	}

	advance(t, restored, 1)
	stored, ok, err := store.GetFitnessHistory(ctx, "run-test")
	if err != nil || !ok {
		t.Fatalf("get fitness history: ok=%v err=%v", ok, err)
	}
	want := make([]float64, 3)
	for i, d := range original.History()[:3] {
		want[i] = d.BestFitness
	}
	if !reflect.DeepEqual(stored, want) {
		t.Fatalf("stored history %v, want %v", stored, want)
	}
}

func TestNewSessionValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{name: "elites fill population", mutate: func(c *SessionConfig) { c.EliteCount = c.PopulationSize }},
		{name: "empty population", mutate: func(c *SessionConfig) { c.PopulationSize = 0 }},
		{name: "rate", mutate: func(c *SessionConfig) { c.MutationRate = 2 }},
		{name: "topology", mutate: func(c *SessionConfig) { c.Topology = model.NewTopology("tanh", 4) }},
		{name: "activation", mutate: func(c *SessionConfig) { c.Topology = model.NewTopology("softsign", 4, 2) }},
		{name: "selection", mutate: func(c *SessionConfig) { c.Selection = "lottery" }},
		{name: "crossover", mutate: func(c *SessionConfig) { c.Crossover = "two_point" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testSessionConfig()
			tc.mutate(&cfg)
			if _, err := NewSession(cfg); !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

// flakyScape fails every evaluation once armed.
type flakyScape struct {
	armed atomic.Bool
}

func (*flakyScape) Name() string { return "flaky" }

func (s *flakyScape) Evaluate(_ context.Context, genome model.Genome, _ *rand.Rand) (model.FitnessRecord, error) {
	if s.armed.Load() {
		return model.FitnessRecord{}, errors.New("sensor offline")
	}
	return model.FitnessRecord{Genome: genome, Fitness: genome.Genes[0] + 1}, nil
}

func TestSessionFailedGenerationKeepsState(t *testing.T) {
	sc := &flakyScape{}
	cfg := testSessionConfig()
	cfg.Scape = sc
	s := newTestSession(t, cfg)
	advance(t, s, 1)

	before := s.Checkpoint()
	sc.armed.Store(true)
	if _, err := s.Advance(context.Background(), 2, nil); err == nil {
		t.Fatal("expected evaluation failure")
	}
	if !reflect.DeepEqual(before, s.Checkpoint()) {
		t.Fatal("failed generation changed session state")
	}

	sc.armed.Store(false)
	advance(t, s, 1)
	if s.Generation() != 3 {
		t.Fatalf("expected recovery to generation 3, got %d", s.Generation())
	}
}
