package evo

import (
	"fmt"
	"math/rand"

	"lark/internal/model"
	"lark/internal/opname"
)

const (
	SelectionTournament = "tournament"
	SelectionRoulette   = "roulette"
	SelectionElite      = "elite"
)

// Selector chooses a parent from records ranked best first.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []model.FitnessRecord) (model.Genome, error)
}

// TournamentSelector samples candidates uniformly and keeps the fittest.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return SelectionTournament
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []model.FitnessRecord) (model.Genome, error) {
	if err := checkSelectionInput(rng, ranked); err != nil {
		return model.Genome{}, err
	}

	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}
	best := rng.Intn(len(ranked))
	for i := 1; i < size; i++ {
		candidate := rng.Intn(len(ranked))
		// ranked order breaks fitness ties
		if ranked[candidate].Fitness > ranked[best].Fitness ||
			(ranked[candidate].Fitness == ranked[best].Fitness && candidate < best) {
			best = candidate
		}
	}
	return ranked[best].Genome, nil
}

// RouletteSelector picks with probability proportional to fitness. When the
// total fitness is not positive every record is equally likely.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return SelectionRoulette
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []model.FitnessRecord) (model.Genome, error) {
	if err := checkSelectionInput(rng, ranked); err != nil {
		return model.Genome{}, err
	}

	total := 0.0
	for _, record := range ranked {
		if record.Fitness > 0 {
			total += record.Fitness
		}
	}
	if !(total > 0) {
		return ranked[rng.Intn(len(ranked))].Genome, nil
	}

	target := rng.Float64() * total
	for _, record := range ranked {
		if record.Fitness <= 0 {
			continue
		}
		target -= record.Fitness
		if target < 0 {
			return record.Genome, nil
		}
	}
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Fitness > 0 {
			return ranked[i].Genome, nil
		}
	}
	return ranked[0].Genome, nil
}

// EliteSelector picks uniformly from the top Count records.
type EliteSelector struct {
	Count int
}

func (EliteSelector) Name() string {
	return SelectionElite
}

func (s EliteSelector) PickParent(rng *rand.Rand, ranked []model.FitnessRecord) (model.Genome, error) {
	if err := checkSelectionInput(rng, ranked); err != nil {
		return model.Genome{}, err
	}
	count := s.Count
	if count <= 0 || count > len(ranked) {
		count = len(ranked)
	}
	return ranked[rng.Intn(count)].Genome, nil
}

// SelectorByName resolves a configured selection strategy. The empty name
// selects a size-3 tournament.
func SelectorByName(name string, tournamentSize int) (Selector, error) {
	switch opname.Normalize(name) {
	case "", SelectionTournament:
		if tournamentSize < 0 {
			return nil, fmt.Errorf("%w: tournament size must be >= 0, got %d", model.ErrConfiguration, tournamentSize)
		}
		return TournamentSelector{TournamentSize: tournamentSize}, nil
	case SelectionRoulette:
		return RouletteSelector{}, nil
	case SelectionElite:
		return EliteSelector{Count: tournamentSize}, nil
	default:
		return nil, fmt.Errorf("%w: unknown selection %q", model.ErrConfiguration, name)
	}
}

func checkSelectionInput(rng *rand.Rand, ranked []model.FitnessRecord) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return fmt.Errorf("no candidates to select from")
	}
	return nil
}
