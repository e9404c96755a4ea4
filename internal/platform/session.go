package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"lark/internal/evo"
	"lark/internal/genotype"
	"lark/internal/model"
	"lark/internal/scape"
	"lark/internal/storage"
)

// populationStream keys the sub-stream that seeds a fresh population, apart
// from the per-generation seeds drawn from the session stream.
const populationStream = -1

type SessionConfig struct {
	// RunID names the run in the store. Empty means a fresh UUID per run.
	RunID            string
	Seed             int64
	Topology         model.Topology
	PopulationSize   int
	EliteCount       int
	MutationRate     float64
	MutationStrength float64
	Selection        string
	TournamentSize   int
	Crossover        string
	Workers          int
	// Forager configures the default scape; its Topology is replaced by the
	// session topology.
	Forager scape.ForagerConfig
	// Scape overrides the forager scape when set.
	Scape scape.Scape
	// TraceBest re-runs the best agent of each generation with tracing on.
	TraceBest bool
	// Resume makes StartOrResume load RunID from Store when present.
	Resume bool
	Store  storage.Store
	Logger *slog.Logger
}

// Snapshot is the read model published after every generation.
type Snapshot struct {
	RunID          string             `json:"run_id"`
	Generation     int                `json:"generation"`
	BestFitness    float64            `json:"best_fitness"`
	CurrentBest    float64            `json:"current_best"`
	AverageFitness float64            `json:"average_fitness"`
	MinFitness     float64            `json:"min_fitness"`
	PopulationSize int                `json:"population_size"`
	Trace          []model.TracePoint `json:"trace,omitempty"`
}

// Session owns one training run. Advance and Reset are single-writer: a call
// that finds another in flight fails with model.ErrSessionBusy. Snapshot,
// History and Checkpoint are safe to call at any time.
type Session struct {
	cfg    SessionConfig
	driver *evo.Driver
	tracer scape.Scape
	store  storage.Store
	log    *slog.Logger

	busy atomic.Bool
	stop atomic.Bool

	mu         sync.RWMutex
	started    bool
	runID      string
	generation int
	population []model.Genome
	latest     []model.FitnessRecord
	trace      []model.TracePoint
	bestEver   *model.FitnessRecord
	history    []model.GenerationDiagnostics
	lineage    []model.LineageRecord
	rngState   model.RNGState
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Topology.Validate(); err != nil {
		return nil, err
	}
	if cfg.PopulationSize < 1 {
		return nil, fmt.Errorf("%w: population size must be >= 1, got %d", model.ErrConfiguration, cfg.PopulationSize)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("%w: elite count must be in [0, %d), got %d", model.ErrConfiguration, cfg.PopulationSize, cfg.EliteCount)
	}

	var tracer scape.Scape
	sc := cfg.Scape
	if sc == nil {
		forager := cfg.Forager
		forager.Topology = cfg.Topology
		forager.RecordTrace = false
		fs, err := scape.NewForagerScape(forager)
		if err != nil {
			return nil, err
		}
		sc = fs
		if cfg.TraceBest {
			forager.RecordTrace = true
			if tracer, err = scape.NewForagerScape(forager); err != nil {
				return nil, err
			}
		}
	}

	selector, err := evo.SelectorByName(cfg.Selection, cfg.TournamentSize)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := evo.NewDriver(evo.DriverConfig{
		Scape:            sc,
		Selector:         selector,
		CrossoverName:    cfg.Crossover,
		PopulationSize:   cfg.PopulationSize,
		EliteCount:       cfg.EliteCount,
		MutationRate:     cfg.MutationRate,
		MutationStrength: cfg.MutationStrength,
		Workers:          cfg.Workers,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:        cfg,
		driver:     driver,
		tracer:     tracer,
		store:      cfg.Store,
		log:        logger.With("component", "platform"),
		generation: 1,
		rngState:   model.RNGState{Seed: cfg.Seed},
	}, nil
}

// RestoreSession rebuilds a session from a checkpoint. Advancing the restored
// session gives the same results the original would have produced. With a
// store configured, the run's stored history and lineage up to the checkpoint
// generation are loaded so later saves extend them.
func RestoreSession(ctx context.Context, cfg SessionConfig, checkpoint model.Checkpoint) (*Session, error) {
	s, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.applyCheckpoint(checkpoint); err != nil {
		return nil, err
	}
	if s.store != nil && checkpoint.RunID != "" {
		if err := s.loadRecords(ctx, checkpoint.RunID, checkpoint.Generation); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) applyCheckpoint(checkpoint model.Checkpoint) error {
	if checkpoint.Generation < 1 {
		return fmt.Errorf("%w: checkpoint generation must be >= 1, got %d", model.ErrConfiguration, checkpoint.Generation)
	}
	if len(checkpoint.Population) != s.cfg.PopulationSize {
		return fmt.Errorf("%w: checkpoint has %d genomes, session needs %d", model.ErrConfiguration, len(checkpoint.Population), s.cfg.PopulationSize)
	}
	population := make([]model.Genome, len(checkpoint.Population))
	for i, genome := range checkpoint.Population {
		if err := genotype.CheckTopology(genome, s.cfg.Topology); err != nil {
			return err
		}
		population[i] = genotype.CloneGenome(genome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.runID = checkpoint.RunID
	s.generation = checkpoint.Generation
	s.population = population
	s.latest = nil
	s.trace = nil
	s.bestEver = cloneRecord(checkpoint.BestEver)
	s.history = nil
	s.lineage = nil
	s.rngState = checkpoint.RNG
	return nil
}

// StartOrResume creates the initial population on first use. With Resume set
// and a stored checkpoint under RunID, the stored run continues instead.
func (s *Session) StartOrResume(ctx context.Context) (Snapshot, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Snapshot{}, model.ErrSessionBusy
	}
	defer s.busy.Store(false)

	if err := s.ensureStarted(ctx); err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

func (s *Session) ensureStarted(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if started {
		return nil
	}

	if s.cfg.Resume && s.store != nil && s.cfg.RunID != "" {
		resumed, err := s.resume(ctx)
		if err != nil || resumed {
			return err
		}
	}
	s.startFresh()
	return nil
}

func (s *Session) resume(ctx context.Context) (bool, error) {
	checkpoint, ok, err := s.store.GetCheckpoint(ctx, s.cfg.RunID)
	if err != nil {
		return false, fmt.Errorf("load checkpoint %s: %w", s.cfg.RunID, err)
	}
	if !ok {
		return false, nil
	}
	if err := s.applyCheckpoint(checkpoint); err != nil {
		return false, fmt.Errorf("restore checkpoint %s: %w", s.cfg.RunID, err)
	}

	if err := s.loadRecords(ctx, s.cfg.RunID, checkpoint.Generation); err != nil {
		return false, err
	}

	s.log.Info("resumed run", "run_id", checkpoint.RunID, "generation", checkpoint.Generation)
	return true, nil
}

// loadRecords reads the stored diagnostics and lineage of runID, keeping only
// what precedes a checkpoint taken at generation.
func (s *Session) loadRecords(ctx context.Context, runID string, generation int) error {
	history, _, err := s.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return fmt.Errorf("load diagnostics %s: %w", runID, err)
	}
	lineage, _, err := s.store.GetLineage(ctx, runID)
	if err != nil {
		return fmt.Errorf("load lineage %s: %w", runID, err)
	}

	kept := make([]model.GenerationDiagnostics, 0, len(history))
	for _, d := range history {
		if d.Generation < generation {
			kept = append(kept, d)
		}
	}
	keptLineage := make([]model.LineageRecord, 0, len(lineage))
	for _, l := range lineage {
		if l.Generation <= generation {
			keptLineage = append(keptLineage, l)
		}
	}

	s.mu.Lock()
	s.history = kept
	s.lineage = keptLineage
	s.mu.Unlock()
	return nil
}

func (s *Session) startFresh() {
	rng := rand.New(rand.NewSource(evo.SubSeed(s.cfg.Seed, populationStream)))
	population := genotype.CreatePopulation(s.cfg.Topology, s.cfg.PopulationSize, rng)

	runID := s.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	s.mu.Lock()
	s.started = true
	s.runID = runID
	s.generation = 1
	s.population = population
	s.latest = nil
	s.trace = nil
	s.bestEver = nil
	s.history = nil
	s.lineage = stampLineage(evo.SeedLineage(population, 1))
	s.rngState = model.RNGState{Seed: s.cfg.Seed}
	s.mu.Unlock()

	s.log.Info("started run",
		"run_id", runID,
		"population", s.cfg.PopulationSize,
		"topology", s.cfg.Topology.String(),
		"seed", s.cfg.Seed,
	)
}

// Advance runs n generations, calling onGeneration with a snapshot after each.
// Stop or a cancelled ctx ends the run between generations; the generations
// already completed are kept. A failed generation leaves the session as it
// was before that generation.
func (s *Session) Advance(ctx context.Context, n int, onGeneration func(Snapshot)) (Snapshot, error) {
	if n < 0 {
		return Snapshot{}, fmt.Errorf("%w: generations must be >= 0, got %d", model.ErrConfiguration, n)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Snapshot{}, model.ErrSessionBusy
	}
	defer s.busy.Store(false)
	s.stop.Store(false)

	if n == 0 {
		return s.Snapshot(), nil
	}
	if err := s.ensureStarted(ctx); err != nil {
		return s.Snapshot(), err
	}

	for i := 0; i < n; i++ {
		if s.stop.Load() {
			return s.Snapshot(), model.ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return s.Snapshot(), err
		}
		if err := s.step(ctx); err != nil {
			return s.Snapshot(), err
		}
		if onGeneration != nil {
			onGeneration(s.Snapshot())
		}
	}
	return s.Snapshot(), nil
}

// Stop asks an in-flight Advance to return after its current generation.
func (s *Session) Stop() {
	s.stop.Store(true)
}

func (s *Session) step(ctx context.Context) error {
	s.mu.RLock()
	generation := s.generation
	population := s.population
	state := s.rngState
	s.mu.RUnlock()

	rng, src := evo.NewCountingRand(state)
	seed := rng.Int63()

	result, err := s.driver.Step(ctx, generation, population, seed)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("generation %d: %w", generation, err)
	}

	var trace []model.TracePoint
	if s.tracer != nil {
		best := result.Best()
		record, err := s.tracer.Evaluate(ctx, best.Genome, rand.New(rand.NewSource(evo.SubSeed(seed, best.Index))))
		if err != nil {
			return fmt.Errorf("trace generation %d: %w", generation, err)
		}
		trace = record.Trace
	}

	s.mu.Lock()
	best := result.Best()
	if s.bestEver == nil || best.Fitness > s.bestEver.Fitness {
		s.bestEver = cloneRecord(&best)
	}
	diagnostics := result.Diagnostics
	diagnostics.BestEver = s.bestEver.Fitness
	s.history = append(s.history, diagnostics)
	s.lineage = append(s.lineage, stampLineage(result.Lineage)...)
	s.latest = result.Ranked
	s.trace = trace
	s.population = result.Next
	s.generation = generation + 1
	s.rngState = src.State()
	s.mu.Unlock()

	s.log.Debug("generation advanced",
		"run_id", s.RunID(),
		"generation", generation,
		"best", diagnostics.BestFitness,
		"mean", diagnostics.MeanFitness,
		"best_ever", diagnostics.BestEver,
	)
	s.persist(ctx)
	return nil
}

// persist writes the run to the store. Failures are logged; the in-memory
// session stays authoritative.
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	checkpoint := s.Checkpoint()
	history := s.History()
	lineage := s.Lineage()

	best := make([]float64, len(history))
	for i, d := range history {
		best[i] = d.BestFitness
	}

	runID := checkpoint.RunID
	if err := s.store.SaveCheckpoint(ctx, checkpoint); err != nil {
		s.log.Error("save checkpoint", "run_id", runID, "err", err)
	}
	if err := s.store.SaveFitnessHistory(ctx, runID, best); err != nil {
		s.log.Error("save fitness history", "run_id", runID, "err", err)
	}
	if err := s.store.SaveGenerationDiagnostics(ctx, runID, history); err != nil {
		s.log.Error("save diagnostics", "run_id", runID, "err", err)
	}
	if err := s.store.SaveLineage(ctx, runID, lineage); err != nil {
		s.log.Error("save lineage", "run_id", runID, "err", err)
	}
}

// Reset discards the run and starts again from the session seed.
func (s *Session) Reset(ctx context.Context) (Snapshot, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Snapshot{}, model.ErrSessionBusy
	}
	defer s.busy.Store(false)

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.startFresh()
	return s.Snapshot(), nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RunID:          s.runID,
		Generation:     s.generation,
		PopulationSize: s.cfg.PopulationSize,
	}
	if s.bestEver != nil {
		snap.BestFitness = s.bestEver.Fitness
	}
	if len(s.latest) > 0 {
		total := 0.0
		for _, record := range s.latest {
			total += record.Fitness
		}
		snap.CurrentBest = s.latest[0].Fitness
		snap.MinFitness = s.latest[len(s.latest)-1].Fitness
		snap.AverageFitness = total / float64(len(s.latest))
	}
	if s.trace != nil {
		snap.Trace = append([]model.TracePoint(nil), s.trace...)
	}
	return snap
}

func (s *Session) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

func (s *Session) Generation() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Population returns a copy of the genomes awaiting evaluation.
func (s *Session) Population() []model.Genome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Genome, len(s.population))
	for i, genome := range s.population {
		out[i] = genotype.CloneGenome(genome)
	}
	return out
}

// Latest returns the most recently evaluated generation, ranked best first.
// Before any evaluation it is empty.
func (s *Session) Latest() model.Population {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.latest) == 0 {
		return model.Population{}
	}
	records := make([]model.FitnessRecord, len(s.latest))
	copy(records, s.latest)
	return model.Population{Generation: s.generation - 1, Records: records}
}

func (s *Session) History() []model.GenerationDiagnostics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.GenerationDiagnostics, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Lineage() []model.LineageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LineageRecord, len(s.lineage))
	copy(out, s.lineage)
	return out
}

func (s *Session) Checkpoint() model.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	population := make([]model.Genome, len(s.population))
	for i, genome := range s.population {
		population[i] = genotype.CloneGenome(genome)
	}
	return model.Checkpoint{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           s.runID,
		Generation:      s.generation,
		Population:      population,
		BestEver:        cloneRecord(s.bestEver),
		RNG:             s.rngState,
	}
}

func cloneRecord(record *model.FitnessRecord) *model.FitnessRecord {
	if record == nil {
		return nil
	}
	out := *record
	out.Genome = genotype.CloneGenome(record.Genome)
	out.Trace = nil
	return &out
}

func stampLineage(lineage []model.LineageRecord) []model.LineageRecord {
	for i := range lineage {
		lineage[i].VersionedRecord = storage.CurrentVersion()
	}
	return lineage
}
