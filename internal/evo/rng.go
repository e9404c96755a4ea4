package evo

import (
	"math/rand"

	"lark/internal/model"
)

// CountingSource is a seeded rand.Source that records how many values it has
// produced, so the stream position can be checkpointed and restored.
type CountingSource struct {
	seed  int64
	draws uint64
	src   rand.Source64
}

func NewCountingSource(state model.RNGState) *CountingSource {
	s := &CountingSource{
		seed: state.Seed,
		src:  rand.NewSource(state.Seed).(rand.Source64),
	}
	for s.draws < state.Draws {
		s.Uint64()
	}
	return s
}

// NewCountingRand returns a Rand over a CountingSource positioned at state.
func NewCountingRand(state model.RNGState) (*rand.Rand, *CountingSource) {
	src := NewCountingSource(state)
	return rand.New(src), src
}

func (s *CountingSource) Int63() int64 {
	s.draws++
	return s.src.Int63()
}

func (s *CountingSource) Uint64() uint64 {
	s.draws++
	return s.src.Uint64()
}

func (s *CountingSource) Seed(seed int64) {
	s.seed = seed
	s.draws = 0
	s.src.Seed(seed)
}

func (s *CountingSource) State() model.RNGState {
	return model.RNGState{Seed: s.seed, Draws: s.draws}
}

// SubSeed derives an independent seed for one agent from the generation seed
// and the agent's index, so results do not depend on scheduling order.
func SubSeed(seed int64, index int) int64 {
	return int64(splitmix64(uint64(seed) ^ splitmix64(uint64(index)+1)))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
