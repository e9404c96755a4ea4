package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"lark/internal/model"
	"lark/internal/platform"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate default: %v", err)
	}
	if got := cfg.TopologySpec().String(); got != "[9 18:tanh 2:tanh]" {
		t.Fatalf("unexpected default topology: %s", got)
	}
	if _, err := platform.NewSession(cfg.SessionConfig(nil, nil)); err != nil {
		t.Fatalf("new session from defaults: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[session]
seed = 42
population_size = 40
elite_count = 2
workers = 8

[topology]
neurons = 4 6 2
activation = sigmoid

[mutation]
rate = 0.1
strength = 0.5
crossover = single_point

[selection]
strategy = roulette

[world]
fov_angle_deg = 180
food_goal = 0

[storage]
kind = sqlite
path = runs.db
resume = true
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Session.Seed != 42 || cfg.Session.PopulationSize != 40 || cfg.Session.EliteCount != 2 {
		t.Fatalf("unexpected session section: %+v", cfg.Session)
	}
	if !reflect.DeepEqual(cfg.Topology.Neurons, []int{4, 6, 2}) || cfg.Topology.Activation != "sigmoid" {
		t.Fatalf("unexpected topology section: %+v", cfg.Topology)
	}
	if cfg.Mutation.Rate != 0.1 || cfg.Mutation.Strength != 0.5 || cfg.Mutation.Crossover != "single_point" {
		t.Fatalf("unexpected mutation section: %+v", cfg.Mutation)
	}
	if cfg.Selection.Strategy != "roulette" || cfg.Selection.TournamentSize != 3 {
		t.Fatalf("unexpected selection section: %+v", cfg.Selection)
	}
	if cfg.Storage.Kind != "sqlite" || cfg.Storage.Path != "runs.db" || !cfg.Storage.Resume {
		t.Fatalf("unexpected storage section: %+v", cfg.Storage)
	}

	forager := cfg.Forager()
	if math.Abs(forager.FOVAngle-math.Pi) > 1e-12 {
		t.Fatalf("expected fov angle pi, got %f", forager.FOVAngle)
	}
	if forager.Body.FoodGoal != 0 || forager.Body.MaxTicks != Default().World.MaxTicks {
		t.Fatalf("unexpected body config: %+v", forager.Body)
	}

	session := cfg.SessionConfig(nil, nil)
	if session.Seed != 42 || session.Selection != "roulette" || session.Topology.Inputs() != 4 || !session.Resume {
		t.Fatalf("unexpected session config: %+v", session)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lark.ini")
	if err := os.WriteFile(path, []byte("[session]\ngenerations = 25\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Generations != 25 || cfg.Session.PopulationSize != Default().Session.PopulationSize {
		t.Fatalf("unexpected config: %+v", cfg.Session)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "single layer", data: "[topology]\nneurons = 4\n"},
		{name: "zero neurons", data: "[topology]\nneurons = 4 0 2\n"},
		{name: "bad int", data: "[session]\nseed = lots\n"},
		{name: "rate", data: "[mutation]\nrate = 1.5\n"},
		{name: "storage", data: "[storage]\nkind = redis\n"},
		{name: "generations", data: "[session]\ngenerations = -1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
}
