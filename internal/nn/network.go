package nn

import (
	"fmt"

	"lark/internal/model"
)

// Network is a topology with its activations resolved. It holds no per-call
// state, so one Network can evaluate many genomes concurrently.
//
// Gene layout, per layer l = 1..n in order: the in*out weights row-major by
// output neuron (weight from input i to output o at o*in+i), then the out
// biases.
type Network struct {
	topology    model.Topology
	activations []ActivationFunc
	geneCount   int
}

func Compile(topology model.Topology) (*Network, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	activations := make([]ActivationFunc, len(topology.Layers))
	for i := 1; i < len(topology.Layers); i++ {
		fn, err := GetActivation(topology.Layers[i].Activation)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", model.ErrConfiguration, i, err)
		}
		activations[i] = fn
	}
	return &Network{
		topology:    topology,
		activations: activations,
		geneCount:   topology.GeneCount(),
	}, nil
}

func (n *Network) Topology() model.Topology {
	return n.topology
}

// Evaluate runs one feed-forward pass. Non-finite values entering any layer
// are treated as zero.
func (n *Network) Evaluate(genome model.Genome, input []float64) ([]float64, error) {
	if genome.Len() != n.geneCount {
		return nil, fmt.Errorf("%w: genome %s has %d genes, network needs %d", model.ErrDimensionMismatch, genome.ID, genome.Len(), n.geneCount)
	}
	if len(input) != n.topology.Inputs() {
		return nil, fmt.Errorf("%w: got %d inputs, network needs %d", model.ErrDimensionMismatch, len(input), n.topology.Inputs())
	}

	current := Sanitize(make([]float64, len(input)), input)
	offset := 0
	for l := 1; l < len(n.topology.Layers); l++ {
		in := n.topology.Layers[l-1].Neurons
		out := n.topology.Layers[l].Neurons
		weights := genome.Genes[offset : offset+in*out]
		biases := genome.Genes[offset+in*out : offset+in*out+out]
		offset += in*out + out

		next := make([]float64, out)
		for o := 0; o < out; o++ {
			total := biases[o]
			row := weights[o*in : (o+1)*in]
			for i, x := range current {
				total += row[i] * x
			}
			next[o] = n.activations[l](total)
		}
		current = Sanitize(next, next)
	}
	return current, nil
}

// Evaluate compiles topology and runs a single pass. Callers evaluating many
// ticks should Compile once instead.
func Evaluate(genome model.Genome, topology model.Topology, input []float64) ([]float64, error) {
	net, err := Compile(topology)
	if err != nil {
		return nil, err
	}
	return net.Evaluate(genome, input)
}
