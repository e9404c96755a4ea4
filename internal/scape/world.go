package scape

import (
	"fmt"
	"math"
	"math/rand"

	"lark/internal/model"
)

// foodMargin keeps food away from the walls so it is reachable without
// leaving the arena.
const foodMargin = 0.05

type Food struct {
	X float64
	Y float64
}

type WorldConfig struct {
	Seed      int64
	FoodCount int
	EatRadius float64
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Seed:      1,
		FoodCount: 40,
		EatRadius: 0.02,
	}
}

func (c WorldConfig) Validate() error {
	if c.FoodCount <= 0 {
		return fmt.Errorf("%w: food count must be > 0, got %d", model.ErrConfiguration, c.FoodCount)
	}
	if !(c.EatRadius > 0) || c.EatRadius >= 1 {
		return fmt.Errorf("%w: eat radius must be in (0, 1), got %v", model.ErrConfiguration, c.EatRadius)
	}
	return nil
}

// World is the unit-square arena. Every world built from the same config
// places food identically and respawns eaten food in the same sequence.
type World struct {
	cfg    WorldConfig
	layout *rand.Rand
	foods  []Food
}

func NewWorld(cfg WorldConfig) *World {
	w := &World{
		cfg:    cfg,
		layout: rand.New(rand.NewSource(cfg.Seed)),
		foods:  make([]Food, cfg.FoodCount),
	}
	for i := range w.foods {
		w.foods[i] = w.nextFood()
	}
	return w
}

func (w *World) Foods() []Food {
	return w.foods
}

// Eat consumes every food within the eat radius of (x, y) and respawns it.
func (w *World) Eat(x, y float64) int {
	eaten := 0
	for i, food := range w.foods {
		if math.Hypot(food.X-x, food.Y-y) <= w.cfg.EatRadius {
			w.foods[i] = w.nextFood()
			eaten++
		}
	}
	return eaten
}

// NearestDistance returns the distance from (x, y) to the closest food.
func (w *World) NearestDistance(x, y float64) float64 {
	nearest := math.Inf(1)
	for _, food := range w.foods {
		if d := math.Hypot(food.X-x, food.Y-y); d < nearest {
			nearest = d
		}
	}
	return nearest
}

func (w *World) nextFood() Food {
	span := 1 - 2*foodMargin
	return Food{
		X: foodMargin + w.layout.Float64()*span,
		Y: foodMargin + w.layout.Float64()*span,
	}
}

func inBounds(x, y float64) bool {
	return x >= 0 && x <= 1 && y >= 0 && y <= 1
}
