package scape

import (
	"fmt"
	"math"

	"lark/internal/model"
	"lark/internal/nn"
)

// BodyConfig holds the motion limits and termination thresholds of an agent.
type BodyConfig struct {
	SpeedMin      float64
	SpeedMax      float64
	SpeedAccel    float64
	RotationAccel float64
	MaxTicks      int
	StallWindow   int
	StallDistance float64
	FoodGoal      int
}

func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		SpeedMin:      0.001,
		SpeedMax:      0.005,
		SpeedAccel:    0.2,
		RotationAccel: math.Pi / 2,
		MaxTicks:      300,
		StallWindow:   60,
		StallDistance: 0.01,
		FoodGoal:      10,
	}
}

func (c BodyConfig) Validate() error {
	switch {
	case c.SpeedMin < 0 || c.SpeedMax < c.SpeedMin:
		return fmt.Errorf("%w: speed range [%v, %v] is invalid", model.ErrConfiguration, c.SpeedMin, c.SpeedMax)
	case c.SpeedAccel < 0 || c.RotationAccel < 0:
		return fmt.Errorf("%w: accelerations must be >= 0", model.ErrConfiguration)
	case c.MaxTicks <= 0:
		return fmt.Errorf("%w: max ticks must be > 0, got %d", model.ErrConfiguration, c.MaxTicks)
	case c.StallWindow < 0 || c.StallDistance < 0:
		return fmt.Errorf("%w: stall window and distance must be >= 0", model.ErrConfiguration)
	case c.FoodGoal < 0:
		return fmt.Errorf("%w: food goal must be >= 0, got %d", model.ErrConfiguration, c.FoodGoal)
	}
	return nil
}

// Body is the per-evaluation agent state. It starts running and moves to a
// terminal status exactly once.
type Body struct {
	cfg BodyConfig

	X       float64
	Y       float64
	Heading float64
	Speed   float64
	Eaten   int
	Tick    int
	Status  model.Termination

	windowX     float64
	windowY     float64
	windowEaten int
}

func NewBody(cfg BodyConfig, x, y, heading float64) *Body {
	return &Body{
		cfg:     cfg,
		X:       x,
		Y:       y,
		Heading: heading,
		Speed:   cfg.SpeedMin,
		windowX: x,
		windowY: y,
	}
}

func (b *Body) Running() bool {
	return b.Status == model.TerminationNone
}

// Act applies one tick of network output: o0 changes speed, o1 turns.
func (b *Body) Act(speedDelta, rotationDelta float64) {
	speedDelta = nn.SaturationWithSpread(speedDelta, 1)
	rotationDelta = nn.SaturationWithSpread(rotationDelta, 1)

	b.Speed = nn.Sat(b.Speed+b.cfg.SpeedAccel*speedDelta, b.cfg.SpeedMax, b.cfg.SpeedMin)
	b.Heading = normalizeAngle(b.Heading + b.cfg.RotationAccel*rotationDelta)
	b.X += b.Speed * math.Cos(b.Heading)
	b.Y += b.Speed * math.Sin(b.Heading)
	b.Tick++
}

func (b *Body) Finite() bool {
	return nn.AllFinite([]float64{b.X, b.Y, b.Heading, b.Speed})
}

// CheckTermination evaluates the stop conditions in fixed priority order:
// out of bounds, stalled, goal reached, time limit.
func (b *Body) CheckTermination() model.Termination {
	if !b.Running() {
		return b.Status
	}
	switch {
	case !inBounds(b.X, b.Y):
		b.Status = model.TerminationOutOfBnds
	case b.stalled():
		b.Status = model.TerminationStalled
	case b.cfg.FoodGoal > 0 && b.Eaten >= b.cfg.FoodGoal:
		b.Status = model.TerminationGoal
	case b.Tick >= b.cfg.MaxTicks:
		b.Status = model.TerminationTimeLimit
	}
	return b.Status
}

func (b *Body) Fault() {
	b.Status = model.TerminationFault
}

func (b *Body) stalled() bool {
	if b.cfg.StallWindow <= 0 || b.Tick == 0 || b.Tick%b.cfg.StallWindow != 0 {
		return false
	}
	moved := math.Hypot(b.X-b.windowX, b.Y-b.windowY)
	ate := b.Eaten > b.windowEaten
	b.windowX, b.windowY, b.windowEaten = b.X, b.Y, b.Eaten
	return moved < b.cfg.StallDistance && !ate
}

func (b *Body) TracePoint() model.TracePoint {
	return model.TracePoint{
		Tick:    b.Tick,
		X:       b.X,
		Y:       b.Y,
		Heading: b.Heading,
		Speed:   b.Speed,
		Eaten:   b.Eaten,
	}
}
