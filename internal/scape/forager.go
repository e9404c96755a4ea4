package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"lark/internal/genotype"
	"lark/internal/model"
	"lark/internal/nn"
)

const foragerOutputs = 2

// FitnessWeights shape the forager score:
//
//	Food*eaten + Approach*closeness + Goal*(MaxTicks-ticks)/MaxTicks
//
// closeness is the per-tick proximity 1-min(1, nearest/FOVRange) summed and
// divided by MaxTicks, so it also rewards staying alive near food. The goal
// term applies only when the food goal was reached.
type FitnessWeights struct {
	Food     float64
	Approach float64
	Goal     float64
}

type ForagerConfig struct {
	Topology       model.Topology
	World          WorldConfig
	Body           BodyConfig
	FOVRange       float64
	FOVAngle       float64
	Fitness        FitnessWeights
	RandomizeStart bool
	RecordTrace    bool
}

func DefaultForagerConfig(topology model.Topology) ForagerConfig {
	return ForagerConfig{
		Topology: topology,
		World:    DefaultWorldConfig(),
		Body:     DefaultBodyConfig(),
		FOVRange: 0.25,
		FOVAngle: math.Pi + math.Pi/4,
		Fitness: FitnessWeights{
			Food:     1,
			Approach: 1,
			Goal:     1,
		},
	}
}

// ForagerScape scores a genome by how well its agent finds food in a bounded
// arena. Safe for concurrent use.
type ForagerScape struct {
	cfg ForagerConfig
	net *nn.Network
	eye Eye
}

func NewForagerScape(cfg ForagerConfig) (*ForagerScape, error) {
	net, err := nn.Compile(cfg.Topology)
	if err != nil {
		return nil, err
	}
	if cfg.Topology.Outputs() != foragerOutputs {
		return nil, fmt.Errorf("%w: forager needs %d outputs, topology %s has %d", model.ErrConfiguration, foragerOutputs, cfg.Topology, cfg.Topology.Outputs())
	}
	eye := Eye{Cells: cfg.Topology.Inputs(), FOVRange: cfg.FOVRange, FOVAngle: cfg.FOVAngle}
	if err := eye.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.World.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Body.Validate(); err != nil {
		return nil, err
	}
	w := cfg.Fitness
	if w.Food < 0 || w.Approach < 0 || w.Goal < 0 {
		return nil, fmt.Errorf("%w: fitness weights must be >= 0", model.ErrConfiguration)
	}
	return &ForagerScape{cfg: cfg, net: net, eye: eye}, nil
}

func (*ForagerScape) Name() string {
	return "forager"
}

func (s *ForagerScape) Config() ForagerConfig {
	return s.cfg
}

// Evaluate runs one agent until it terminates. Non-finite state yields a
// numeric-fault record with the worst fitness rather than an error.
func (s *ForagerScape) Evaluate(ctx context.Context, genome model.Genome, rng *rand.Rand) (model.FitnessRecord, error) {
	if err := genotype.CheckTopology(genome, s.cfg.Topology); err != nil {
		return model.FitnessRecord{}, err
	}
	record := model.FitnessRecord{Genome: genome}
	if !nn.AllFinite(genome.Genes) {
		return faulted(record, nil), nil
	}

	heading := 0.0
	if s.cfg.RandomizeStart && rng != nil {
		heading = normalizeAngle(rng.Float64() * 2 * math.Pi)
	}
	world := NewWorld(s.cfg.World)
	body := NewBody(s.cfg.Body, 0.5, 0.5, heading)

	var trace []model.TracePoint
	if s.cfg.RecordTrace {
		trace = make([]model.TracePoint, 0, s.cfg.Body.MaxTicks+1)
		trace = append(trace, body.TracePoint())
	}

	closeness := 0.0
	for body.Running() {
		if err := ctx.Err(); err != nil {
			return model.FitnessRecord{}, err
		}

		vision := s.eye.Sense(body.X, body.Y, body.Heading, world.Foods())
		out, err := s.net.Evaluate(genome, vision)
		if err != nil {
			return model.FitnessRecord{}, fmt.Errorf("evaluate network for genome %s: %w", genome.ID, err)
		}
		if !nn.AllFinite(out) {
			body.Fault()
			break
		}
		body.Act(out[0], out[1])
		if !body.Finite() {
			body.Fault()
			break
		}
		if inBounds(body.X, body.Y) {
			body.Eaten += world.Eat(body.X, body.Y)
			closeness += 1 - math.Min(1, world.NearestDistance(body.X, body.Y)/s.cfg.FOVRange)
		}
		if trace != nil {
			trace = append(trace, body.TracePoint())
		}
		body.CheckTermination()
	}

	record.Eaten = body.Eaten
	record.Ticks = body.Tick
	record.Termination = body.Status
	record.Trace = trace
	if body.Status == model.TerminationFault {
		return faulted(record, trace), nil
	}

	fitness := s.score(body, closeness)
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return faulted(record, trace), nil
	}
	record.Fitness = fitness
	return record, nil
}

func (s *ForagerScape) score(body *Body, closeness float64) float64 {
	maxTicks := float64(s.cfg.Body.MaxTicks)
	w := s.cfg.Fitness
	fitness := w.Food*float64(body.Eaten) + w.Approach*closeness/maxTicks
	if body.Status == model.TerminationGoal {
		fitness += w.Goal * (maxTicks - float64(body.Tick)) / maxTicks
	}
	return math.Max(model.WorstFitness, fitness)
}

func faulted(record model.FitnessRecord, trace []model.TracePoint) model.FitnessRecord {
	record.Fitness = model.WorstFitness
	record.NumericFault = true
	record.Termination = model.TerminationFault
	record.Trace = trace
	return record
}
