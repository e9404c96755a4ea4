package scape

import (
	"context"
	"math/rand"

	"lark/internal/model"
)

// Scape scores one genome by simulating the agent it encodes. rng is the
// agent's private sub-stream; implementations must not share it.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, genome model.Genome, rng *rand.Rand) (model.FitnessRecord, error)
}
