package model

import (
	"errors"
	"testing"
)

func TestTopologyGeneCount(t *testing.T) {
	tests := []struct {
		name string
		topo Topology
		want int
	}{
		{name: "single-hidden", topo: NewTopology("tanh", 4, 6, 2), want: 4*6 + 6 + 6*2 + 2},
		{name: "no-hidden", topo: NewTopology("tanh", 3, 1), want: 3 + 1},
		{name: "two-hidden", topo: NewTopology("sigmoid", 2, 3, 3, 1), want: 2*3 + 3 + 3*3 + 3 + 3 + 1},
		{name: "empty", topo: Topology{}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.topo.GeneCount(); got != tc.want {
				t.Fatalf("unexpected gene count: got=%d want=%d", got, tc.want)
			}
		})
	}
}

func TestTopologyValidate(t *testing.T) {
	if err := NewTopology("tanh", 4, 6, 2).Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	invalid := []Topology{
		{},
		NewTopology("tanh", 4),
		NewTopology("tanh", 4, 0, 2),
		{Layers: []Layer{{Neurons: 2}, {Neurons: 1}}},
	}
	for i, topo := range invalid {
		if err := topo.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("case %d: expected configuration error, got %v", i, err)
		}
	}
}

func TestTopologyInputsOutputs(t *testing.T) {
	topo := NewTopology("tanh", 9, 18, 2)
	if topo.Inputs() != 9 || topo.Outputs() != 2 {
		t.Fatalf("unexpected io sizes: in=%d out=%d", topo.Inputs(), topo.Outputs())
	}
	if topo.String() != "[9 18:tanh 2:tanh]" {
		t.Fatalf("unexpected string: %s", topo.String())
	}
}
