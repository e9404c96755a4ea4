package model

import "fmt"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// WorstFitness is assigned to agents whose evaluation hit a numeric fault.
// It is also the floor of every fitness score.
const WorstFitness = 0.0

// Genome is the flat weight vector of one network. Genes are never modified
// after construction; operators return fresh genomes.
type Genome struct {
	ID    string    `json:"id"`
	Genes []float64 `json:"genes"`
}

func (g Genome) Len() int {
	return len(g.Genes)
}

// Layer describes one network layer. The activation of the input layer is ignored.
type Layer struct {
	Neurons    int    `json:"neurons"`
	Activation string `json:"activation,omitempty"`
}

// Topology is the fixed, shared network shape. Layer 0 is the sensor layer and
// the last layer drives the actuators.
type Topology struct {
	Layers []Layer `json:"layers"`
}

// NewTopology builds a topology from neuron counts, applying activation to
// every non-input layer.
func NewTopology(activation string, neurons ...int) Topology {
	layers := make([]Layer, len(neurons))
	for i, n := range neurons {
		layers[i] = Layer{Neurons: n}
		if i > 0 {
			layers[i].Activation = activation
		}
	}
	return Topology{Layers: layers}
}

func (t Topology) Inputs() int {
	if len(t.Layers) == 0 {
		return 0
	}
	return t.Layers[0].Neurons
}

func (t Topology) Outputs() int {
	if len(t.Layers) == 0 {
		return 0
	}
	return t.Layers[len(t.Layers)-1].Neurons
}

// GeneCount returns the genome length implied by the topology: for every
// layer after the first, one weight per (input, output) pair plus one bias per
// output.
func (t Topology) GeneCount() int {
	total := 0
	for i := 1; i < len(t.Layers); i++ {
		in := t.Layers[i-1].Neurons
		out := t.Layers[i].Neurons
		total += in*out + out
	}
	return total
}

// Validate checks the structural shape only; activation names are resolved
// by the network evaluator.
func (t Topology) Validate() error {
	if len(t.Layers) < 2 {
		return fmt.Errorf("%w: topology needs at least 2 layers, got %d", ErrConfiguration, len(t.Layers))
	}
	for i, layer := range t.Layers {
		if layer.Neurons <= 0 {
			return fmt.Errorf("%w: layer %d has %d neurons", ErrConfiguration, i, layer.Neurons)
		}
		if i > 0 && layer.Activation == "" {
			return fmt.Errorf("%w: layer %d has no activation", ErrConfiguration, i)
		}
	}
	return nil
}

func (t Topology) String() string {
	s := "["
	for i, layer := range t.Layers {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d", layer.Neurons)
		if i > 0 {
			s += ":" + layer.Activation
		}
	}
	return s + "]"
}

// Termination is the reason an agent stopped running.
type Termination string

const (
	TerminationNone      Termination = ""
	TerminationTimeLimit Termination = "time_limit"
	TerminationOutOfBnds Termination = "out_of_bounds"
	TerminationGoal      Termination = "goal_reached"
	TerminationStalled   Termination = "stalled"
	TerminationFault     Termination = "numeric_fault"
)

// TracePoint is one tick of an agent's trajectory, kept for rendering only.
type TracePoint struct {
	Tick    int     `json:"tick"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
	Speed   float64 `json:"speed"`
	Eaten   int     `json:"eaten"`
}

// FitnessRecord is the outcome of one agent evaluation.
type FitnessRecord struct {
	Genome       Genome       `json:"genome"`
	Index        int          `json:"index"`
	Fitness      float64      `json:"fitness"`
	Termination  Termination  `json:"termination"`
	Eaten        int          `json:"eaten"`
	Ticks        int          `json:"ticks"`
	NumericFault bool         `json:"numeric_fault,omitempty"`
	Trace        []TracePoint `json:"trace,omitempty"`
}

// Population is one evaluated generation.
type Population struct {
	Generation int             `json:"generation"`
	Records    []FitnessRecord `json:"records"`
}

type GenerationDiagnostics struct {
	Generation    int                 `json:"generation"`
	BestFitness   float64             `json:"best_fitness"`
	MeanFitness   float64             `json:"mean_fitness"`
	MinFitness    float64             `json:"min_fitness"`
	StdDevFitness float64             `json:"stddev_fitness"`
	BestEver      float64             `json:"best_ever"`
	BestGenomeID  string              `json:"best_genome_id"`
	NumericFaults int                 `json:"numeric_faults"`
	Terminations  map[Termination]int `json:"terminations,omitempty"`
}

type LineageRecord struct {
	VersionedRecord
	GenomeID   string   `json:"genome_id"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
	Generation int      `json:"generation"`
	Operation  string   `json:"operation"`
}

// RNGState is enough to rebuild the session random stream: the seed and the
// number of values drawn from it so far.
type RNGState struct {
	Seed  int64  `json:"seed"`
	Draws uint64 `json:"draws"`
}

// Checkpoint is the persisted session state. Restoring it reproduces future
// generations exactly.
type Checkpoint struct {
	VersionedRecord
	RunID      string         `json:"run_id"`
	Generation int            `json:"generation"`
	Population []Genome       `json:"population"`
	BestEver   *FitnessRecord `json:"best_ever,omitempty"`
	RNG        RNGState       `json:"rng_state"`
}
