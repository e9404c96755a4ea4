package lark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lark/internal/config"
	"lark/internal/model"
	"lark/internal/platform"
	"lark/internal/stats"
	"lark/internal/storage"
)

const defaultExportsDir = "exports"

type Snapshot = platform.Snapshot

// Options configures a Client. Config wins over ConfigPath; with neither the
// built-in defaults are used. StoreKind and DBPath override the storage
// section of the configuration.
type Options struct {
	ConfigPath string
	Config     *config.Config
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *slog.Logger
}

// Client drives one training session and reads runs back from its store.
type Client struct {
	cfg        config.Config
	store      storage.Store
	session    *platform.Session
	exportsDir string
	log        *slog.Logger
}

type ExportRequest struct {
	// RunID selects a stored run. Empty exports the current session.
	RunID  string
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.StoreKind != "" {
		cfg.Storage.Kind = opts.StoreKind
	}
	if opts.DBPath != "" {
		cfg.Storage.Path = opts.DBPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(cfg.Storage.Kind, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	session, err := platform.NewSession(cfg.SessionConfig(store, logger))
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}

	return &Client{
		cfg:        cfg,
		store:      store,
		session:    session,
		exportsDir: exportsDir,
		log:        logger,
	}, nil
}

func resolveConfig(opts Options) (config.Config, error) {
	switch {
	case opts.Config != nil:
		return *opts.Config, nil
	case opts.ConfigPath != "":
		return config.Load(opts.ConfigPath)
	default:
		return config.Default(), nil
	}
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Config() config.Config {
	return c.cfg
}

// Start initializes the store and creates or resumes the run.
func (c *Client) Start(ctx context.Context) (Snapshot, error) {
	if err := c.store.Init(ctx); err != nil {
		return Snapshot{}, err
	}
	return c.session.StartOrResume(ctx)
}

// Train advances the session by generations; zero leaves it unchanged.
// Progress is called after every generation.
func (c *Client) Train(ctx context.Context, generations int, progress func(Snapshot)) (Snapshot, error) {
	if _, err := c.Start(ctx); err != nil {
		return Snapshot{}, err
	}
	return c.session.Advance(ctx, generations, progress)
}

func (c *Client) Stop() {
	c.session.Stop()
}

func (c *Client) Reset(ctx context.Context) (Snapshot, error) {
	return c.session.Reset(ctx)
}

func (c *Client) Snapshot() Snapshot {
	return c.session.Snapshot()
}

func (c *Client) History() []model.GenerationDiagnostics {
	return c.session.History()
}

func (c *Client) Lineage() []model.LineageRecord {
	return c.session.Lineage()
}

func (c *Client) Checkpoint() model.Checkpoint {
	return c.session.Checkpoint()
}

func (c *Client) Runs(ctx context.Context) ([]string, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

// FitnessHistory returns best fitness per generation of a stored run.
func (c *Client) FitnessHistory(ctx context.Context, runID string) ([]float64, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return history, nil
}

// Diagnostics returns the per-generation diagnostics of a stored run.
func (c *Client) Diagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return diagnostics, nil
}

// Export writes the history, lineage, best genome and fitness plot of a run.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}

	var artifacts stats.RunArtifacts
	if req.RunID == "" {
		checkpoint := c.session.Checkpoint()
		if checkpoint.RunID == "" {
			return ExportSummary{}, errors.New("no run to export")
		}
		artifacts = stats.RunArtifacts{
			RunID:   checkpoint.RunID,
			History: c.session.History(),
			Lineage: c.session.Lineage(),
			Best:    checkpoint.BestEver,
		}
	} else {
		stored, err := c.storedArtifacts(ctx, req.RunID)
		if err != nil {
			return ExportSummary{}, err
		}
		artifacts = stored
	}

	dir, err := stats.WriteRunArtifacts(outDir, artifacts)
	if err != nil {
		return ExportSummary{}, err
	}
	c.log.Info("exported run", "run_id", artifacts.RunID, "dir", dir)
	return ExportSummary{RunID: artifacts.RunID, Directory: dir}, nil
}

func (c *Client) storedArtifacts(ctx context.Context, runID string) (stats.RunArtifacts, error) {
	if err := c.store.Init(ctx); err != nil {
		return stats.RunArtifacts{}, err
	}
	checkpoint, ok, err := c.store.GetCheckpoint(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	if !ok {
		return stats.RunArtifacts{}, fmt.Errorf("run not found: %s", runID)
	}
	history, _, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	lineage, _, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	return stats.RunArtifacts{
		RunID:   runID,
		History: history,
		Lineage: lineage,
		Best:    checkpoint.BestEver,
	}, nil
}
