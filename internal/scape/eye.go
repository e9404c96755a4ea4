package scape

import (
	"fmt"
	"math"

	"lark/internal/model"
)

// Eye splits its field of view into equal angular cells. Each cell senses the
// food inside its sector, nearer food contributing more.
type Eye struct {
	Cells    int
	FOVRange float64
	FOVAngle float64
}

func (e Eye) Validate() error {
	if e.Cells <= 0 {
		return fmt.Errorf("%w: eye needs at least one cell, got %d", model.ErrConfiguration, e.Cells)
	}
	if !(e.FOVRange > 0) {
		return fmt.Errorf("%w: fov range must be > 0, got %v", model.ErrConfiguration, e.FOVRange)
	}
	if !(e.FOVAngle > 0) || e.FOVAngle > 2*math.Pi {
		return fmt.Errorf("%w: fov angle must be in (0, 2pi], got %v", model.ErrConfiguration, e.FOVAngle)
	}
	return nil
}

// Sense returns one activation per cell, ordered from the right edge of the
// field of view to the left.
func (e Eye) Sense(x, y, heading float64, foods []Food) []float64 {
	cells := make([]float64, e.Cells)
	half := e.FOVAngle / 2
	for _, food := range foods {
		dx := food.X - x
		dy := food.Y - y
		dist := math.Hypot(dx, dy)
		if dist >= e.FOVRange {
			continue
		}
		angle := normalizeAngle(math.Atan2(dy, dx) - heading)
		if angle < -half || angle > half {
			continue
		}
		cell := int((angle + half) / e.FOVAngle * float64(e.Cells))
		if cell >= e.Cells {
			cell = e.Cells - 1
		}
		cells[cell] += (e.FOVRange - dist) / e.FOVRange
	}
	return cells
}

// normalizeAngle maps a to [-pi, pi].
func normalizeAngle(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}
