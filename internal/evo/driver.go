package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"lark/internal/genotype"
	"lark/internal/model"
	"lark/internal/scape"
)

const (
	OperationSeed      = "seed"
	OperationElite     = "elite_clone"
	OperationCrossover = "crossover+mutate"
)

type DriverConfig struct {
	Scape            scape.Scape
	Selector         Selector
	Crossover        genotype.CrossoverFunc
	CrossoverName    string
	PopulationSize   int
	EliteCount       int
	MutationRate     float64
	MutationStrength float64
	Workers          int
	Logger           *slog.Logger
}

// StepResult is everything one generation produces. Ranked is ordered best
// first; Next is the population for the following generation.
type StepResult struct {
	Generation  int
	Ranked      []model.FitnessRecord
	Next        []model.Genome
	Diagnostics model.GenerationDiagnostics
	Lineage     []model.LineageRecord
}

func (r StepResult) Best() model.FitnessRecord {
	return r.Ranked[0]
}

// Driver runs one generation at a time: evaluate, rank, keep elites, breed.
// It holds no population state between steps.
type Driver struct {
	cfg DriverConfig
	log *slog.Logger
}

func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Scape == nil {
		return nil, fmt.Errorf("%w: scape is required", model.ErrConfiguration)
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0, got %d", model.ErrConfiguration, cfg.PopulationSize)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("%w: elite count must be in [0, %d), got %d", model.ErrConfiguration, cfg.PopulationSize, cfg.EliteCount)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("%w: mutation rate must be in [0, 1], got %v", model.ErrConfiguration, cfg.MutationRate)
	}
	if cfg.MutationStrength < 0 {
		return nil, fmt.Errorf("%w: mutation strength must be >= 0, got %v", model.ErrConfiguration, cfg.MutationStrength)
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{TournamentSize: 3}
	}
	if cfg.Crossover == nil {
		fn, err := genotype.CrossoverByName(cfg.CrossoverName)
		if err != nil {
			return nil, err
		}
		cfg.Crossover = fn
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cfg: cfg, log: logger.With("component", "evo")}, nil
}

func (d *Driver) Config() DriverConfig {
	return d.cfg
}

// Step evaluates genomes as generation and breeds the next population. All
// randomness derives from seed, so equal inputs give equal results for any
// worker count. genomes is not modified.
func (d *Driver) Step(ctx context.Context, generation int, genomes []model.Genome, seed int64) (StepResult, error) {
	if len(genomes) != d.cfg.PopulationSize {
		return StepResult{}, fmt.Errorf("%w: population has %d genomes, want %d", model.ErrConfiguration, len(genomes), d.cfg.PopulationSize)
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	records, err := d.evaluate(ctx, genomes, seed)
	if err != nil {
		return StepResult{}, err
	}
	ranked := rank(records)

	diagnostics := Summarize(generation, ranked)
	if diagnostics.NumericFaults > 0 {
		d.log.Warn("numeric faults during evaluation",
			"generation", generation,
			"count", diagnostics.NumericFaults,
			"err", model.ErrNumericFault,
		)
	}

	next, lineage, err := d.breed(ctx, generation, ranked, seed)
	if err != nil {
		return StepResult{}, err
	}
	d.log.Debug("generation complete",
		"generation", generation,
		"best", diagnostics.BestFitness,
		"mean", diagnostics.MeanFitness,
	)
	return StepResult{
		Generation:  generation,
		Ranked:      ranked,
		Next:        next,
		Diagnostics: diagnostics,
		Lineage:     lineage,
	}, nil
}

func (d *Driver) evaluate(ctx context.Context, genomes []model.Genome, seed int64) ([]model.FitnessRecord, error) {
	records := make([]model.FitnessRecord, len(genomes))
	errs := make([]error, len(genomes))

	p := pool.New().WithMaxGoroutines(d.cfg.Workers)
	for i := range genomes {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			rng := rand.New(rand.NewSource(SubSeed(seed, i)))
			record, err := d.cfg.Scape.Evaluate(ctx, genomes[i], rng)
			if err != nil {
				errs[i] = fmt.Errorf("evaluate genome %s: %w", genomes[i].ID, err)
				return
			}
			record.Genome = genomes[i]
			record.Index = i
			records[i] = record
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	failed := 0
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if first == nil {
			first = err
		}
	}
	switch {
	case failed == len(genomes):
		if errors.Is(first, model.ErrConfiguration) {
			return nil, fmt.Errorf("all %d evaluations failed: %w", failed, first)
		}
		return nil, fmt.Errorf("%w: all %d evaluations failed: %w", model.ErrConfiguration, failed, first)
	case failed > 0:
		return nil, fmt.Errorf("%d of %d evaluations failed: %w", failed, len(genomes), first)
	}
	return records, nil
}

// rank orders records by fitness, best first. Equal fitness keeps the
// evaluation order.
func rank(records []model.FitnessRecord) []model.FitnessRecord {
	ranked := make([]model.FitnessRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

func (d *Driver) breed(ctx context.Context, generation int, ranked []model.FitnessRecord, seed int64) ([]model.Genome, []model.LineageRecord, error) {
	size := d.cfg.PopulationSize
	next := make([]model.Genome, 0, size)
	lineage := make([]model.LineageRecord, 0, size)
	nextGeneration := generation + 1

	for i := 0; i < d.cfg.EliteCount; i++ {
		elite := genotype.CloneGenome(ranked[i].Genome)
		next = append(next, elite)
		lineage = append(lineage, model.LineageRecord{
			GenomeID:   elite.ID,
			ParentIDs:  []string{elite.ID},
			Generation: nextGeneration,
			Operation:  OperationElite,
		})
	}

	rng := rand.New(rand.NewSource(seed))
	for len(next) < size {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		a, err := d.cfg.Selector.PickParent(rng, ranked)
		if err != nil {
			return nil, nil, fmt.Errorf("select parent: %w", err)
		}
		b, err := d.cfg.Selector.PickParent(rng, ranked)
		if err != nil {
			return nil, nil, fmt.Errorf("select parent: %w", err)
		}
		genes, err := d.cfg.Crossover(a, b, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("crossover %s x %s: %w", a.ID, b.ID, err)
		}
		id := genotype.ChildID(nextGeneration, len(next))
		child := genotype.Mutate(genotype.FromGenes(id, genes), d.cfg.MutationRate, d.cfg.MutationStrength, rng)
		next = append(next, child)
		lineage = append(lineage, model.LineageRecord{
			GenomeID:   child.ID,
			ParentIDs:  []string{a.ID, b.ID},
			Generation: nextGeneration,
			Operation:  OperationCrossover,
		})
	}
	return next, lineage, nil
}

// SeedLineage records the origin of a freshly created population.
func SeedLineage(genomes []model.Genome, generation int) []model.LineageRecord {
	lineage := make([]model.LineageRecord, 0, len(genomes))
	for _, genome := range genomes {
		lineage = append(lineage, model.LineageRecord{
			GenomeID:   genome.ID,
			Generation: generation,
			Operation:  OperationSeed,
		})
	}
	return lineage
}
