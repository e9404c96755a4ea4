package config

import (
	"fmt"
	"log/slog"
	"math"

	"gopkg.in/ini.v1"

	"lark/internal/model"
	"lark/internal/platform"
	"lark/internal/scape"
	"lark/internal/storage"
)

// Config is the INI-backed settings file. Keys absent from the file keep
// their Default values.
type Config struct {
	Session   SessionConfig
	Topology  TopologyConfig
	Mutation  MutationConfig
	Selection SelectionConfig
	World     WorldConfig
	Storage   StorageConfig
}

type SessionConfig struct {
	RunID          string `ini:"run_id"`
	Seed           int64  `ini:"seed"`
	PopulationSize int    `ini:"population_size"`
	EliteCount     int    `ini:"elite_count"`
	Generations    int    `ini:"generations"`
	Workers        int    `ini:"workers"`
	TraceBest      bool   `ini:"trace_best"`
}

type TopologyConfig struct {
	// Neurons lists layer sizes, sensor layer first.
	Neurons    []int  `ini:"neurons" delim:" "`
	Activation string `ini:"activation"`
}

type MutationConfig struct {
	Rate      float64 `ini:"rate"`
	Strength  float64 `ini:"strength"`
	Crossover string  `ini:"crossover"`
}

type SelectionConfig struct {
	Strategy       string `ini:"strategy"`
	TournamentSize int    `ini:"tournament_size"`
}

type WorldConfig struct {
	Seed           int64   `ini:"seed"`
	FoodCount      int     `ini:"food_count"`
	EatRadius      float64 `ini:"eat_radius"`
	FOVRange       float64 `ini:"fov_range"`
	FOVAngleDeg    float64 `ini:"fov_angle_deg"`
	SpeedMin       float64 `ini:"speed_min"`
	SpeedMax       float64 `ini:"speed_max"`
	SpeedAccel     float64 `ini:"speed_accel"`
	RotationAccel  float64 `ini:"rotation_accel"`
	MaxTicks       int     `ini:"max_ticks"`
	StallWindow    int     `ini:"stall_window"`
	StallDistance  float64 `ini:"stall_distance"`
	FoodGoal       int     `ini:"food_goal"`
	FoodReward     float64 `ini:"food_reward"`
	ApproachReward float64 `ini:"approach_reward"`
	GoalReward     float64 `ini:"goal_reward"`
	RandomizeStart bool    `ini:"randomize_start"`
}

type StorageConfig struct {
	Kind   string `ini:"kind"`
	Path   string `ini:"path"`
	Resume bool   `ini:"resume"`
}

// Default returns the canonical settings: a nine-cell eye feeding an
// [eye, 2*eye, 2] tanh network, forty agents and two elites.
func Default() Config {
	forager := scape.DefaultForagerConfig(model.Topology{})
	return Config{
		Session: SessionConfig{
			Seed:           1,
			PopulationSize: 40,
			EliteCount:     2,
			Generations:    10,
			Workers:        4,
		},
		Topology: TopologyConfig{
			Neurons:    []int{9, 18, 2},
			Activation: "tanh",
		},
		Mutation: MutationConfig{
			Rate:      0.01,
			Strength:  0.3,
			Crossover: "uniform",
		},
		Selection: SelectionConfig{
			Strategy:       "tournament",
			TournamentSize: 3,
		},
		World: WorldConfig{
			Seed:           forager.World.Seed,
			FoodCount:      forager.World.FoodCount,
			EatRadius:      forager.World.EatRadius,
			FOVRange:       forager.FOVRange,
			FOVAngleDeg:    forager.FOVAngle * 180 / math.Pi,
			SpeedMin:       forager.Body.SpeedMin,
			SpeedMax:       forager.Body.SpeedMax,
			SpeedAccel:     forager.Body.SpeedAccel,
			RotationAccel:  forager.Body.RotationAccel,
			MaxTicks:       forager.Body.MaxTicks,
			StallWindow:    forager.Body.StallWindow,
			StallDistance:  forager.Body.StallDistance,
			FoodGoal:       forager.Body.FoodGoal,
			FoodReward:     forager.Fitness.Food,
			ApproachReward: forager.Fitness.Approach,
			GoalReward:     forager.Fitness.Goal,
		},
		Storage: StorageConfig{
			Kind: storage.KindMemory,
			Path: "lark.db",
		},
	}
}

// Load reads an INI file over the defaults and validates the result.
func Load(path string) (Config, error) {
	return load(path)
}

// Parse is Load for in-memory INI data.
func Parse(data []byte) (Config, error) {
	return load(data)
}

func load(source any) (Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, source)
	if err != nil {
		return Config{}, fmt.Errorf("%w: load config: %v", model.ErrConfiguration, err)
	}

	cfg := Default()
	sections := []struct {
		name   string
		target any
	}{
		{name: "session", target: &cfg.Session},
		{name: "topology", target: &cfg.Topology},
		{name: "mutation", target: &cfg.Mutation},
		{name: "selection", target: &cfg.Selection},
		{name: "world", target: &cfg.World},
		{name: "storage", target: &cfg.Storage},
	}
	for _, section := range sections {
		if err := file.Section(section.name).StrictMapTo(section.target); err != nil {
			return Config{}, fmt.Errorf("%w: map [%s] section: %v", model.ErrConfiguration, section.name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that the session does not check itself.
func (c Config) Validate() error {
	if err := c.TopologySpec().Validate(); err != nil {
		return err
	}
	if c.Session.Generations < 0 {
		return fmt.Errorf("%w: generations must be >= 0, got %d", model.ErrConfiguration, c.Session.Generations)
	}
	if c.Session.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", model.ErrConfiguration, c.Session.Workers)
	}
	if c.Mutation.Rate < 0 || c.Mutation.Rate > 1 {
		return fmt.Errorf("%w: mutation rate must be in [0, 1], got %v", model.ErrConfiguration, c.Mutation.Rate)
	}
	switch c.Storage.Kind {
	case "", storage.KindMemory, storage.KindSQLite:
	default:
		return fmt.Errorf("%w: unsupported storage kind %q", model.ErrConfiguration, c.Storage.Kind)
	}
	return nil
}

func (c Config) TopologySpec() model.Topology {
	return model.NewTopology(c.Topology.Activation, c.Topology.Neurons...)
}

func (c Config) Forager() scape.ForagerConfig {
	w := c.World
	return scape.ForagerConfig{
		Topology: c.TopologySpec(),
		World: scape.WorldConfig{
			Seed:      w.Seed,
			FoodCount: w.FoodCount,
			EatRadius: w.EatRadius,
		},
		Body: scape.BodyConfig{
			SpeedMin:      w.SpeedMin,
			SpeedMax:      w.SpeedMax,
			SpeedAccel:    w.SpeedAccel,
			RotationAccel: w.RotationAccel,
			MaxTicks:      w.MaxTicks,
			StallWindow:   w.StallWindow,
			StallDistance: w.StallDistance,
			FoodGoal:      w.FoodGoal,
		},
		FOVRange: w.FOVRange,
		FOVAngle: w.FOVAngleDeg * math.Pi / 180,
		Fitness: scape.FitnessWeights{
			Food:     w.FoodReward,
			Approach: w.ApproachReward,
			Goal:     w.GoalReward,
		},
		RandomizeStart: w.RandomizeStart,
	}
}

// SessionConfig assembles the training session described by c.
func (c Config) SessionConfig(store storage.Store, logger *slog.Logger) platform.SessionConfig {
	return platform.SessionConfig{
		RunID:            c.Session.RunID,
		Seed:             c.Session.Seed,
		Topology:         c.TopologySpec(),
		PopulationSize:   c.Session.PopulationSize,
		EliteCount:       c.Session.EliteCount,
		MutationRate:     c.Mutation.Rate,
		MutationStrength: c.Mutation.Strength,
		Selection:        c.Selection.Strategy,
		TournamentSize:   c.Selection.TournamentSize,
		Crossover:        c.Mutation.Crossover,
		Workers:          c.Session.Workers,
		Forager:          c.Forager(),
		TraceBest:        c.Session.TraceBest,
		Resume:           c.Storage.Resume,
		Store:            store,
		Logger:           logger,
	}
}
