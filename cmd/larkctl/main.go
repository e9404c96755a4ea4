package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"lark/internal/config"
	"lark/internal/stats"
	larkapi "lark/pkg/lark"
)

const exportsDir = "exports"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// storeFlags are shared by every command that opens the run store.
type storeFlags struct {
	configPath *string
	storeKind  *string
	dbPath     *string
	logLevel   *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "", "INI configuration file"),
		storeKind:  fs.String("store", "", "store backend: memory|sqlite (default from config)"),
		dbPath:     fs.String("db-path", "", "sqlite database path (default from config)"),
		logLevel:   fs.String("log-level", "info", "log level: debug|info|warn|error"),
	}
}

func (f storeFlags) loadConfig() (config.Config, error) {
	if *f.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(*f.configPath)
}

func (f storeFlags) client(cfg config.Config) (*larkapi.Client, error) {
	logger, err := newLogger(*f.logLevel)
	if err != nil {
		return nil, err
	}
	return larkapi.New(larkapi.Options{
		Config:     &cfg,
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id (default from config, random when empty)")
	seed := fs.Int64("seed", 0, "random seed")
	pop := fs.Int("pop", 0, "population size")
	gens := fs.Int("gens", 0, "generations to train")
	workers := fs.Int("workers", 0, "parallel evaluation workers")
	resume := fs.Bool("resume", false, "continue the stored run with the same run id")
	trace := fs.Bool("trace", false, "record the best agent's trajectory each generation")
	exportDir := fs.String("export", "", "write run artifacts to this directory when done")
	jsonOut := fs.Bool("json", false, "emit generation snapshots as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sf.loadConfig()
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "run-id":
			cfg.Session.RunID = *runID
		case "seed":
			cfg.Session.Seed = *seed
		case "pop":
			cfg.Session.PopulationSize = *pop
		case "gens":
			cfg.Session.Generations = *gens
		case "workers":
			cfg.Session.Workers = *workers
		case "resume":
			cfg.Storage.Resume = *resume
		case "trace":
			cfg.Session.TraceBest = *trace
		}
	})

	client, err := sf.client(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	enc := json.NewEncoder(os.Stdout)
	progress := func(snap larkapi.Snapshot) {
		if *jsonOut {
			_ = enc.Encode(snap)
			return
		}
		fmt.Printf("generation=%d best=%.2f current=%.2f mean=%.2f min=%.2f\n",
			snap.Generation-1, snap.BestFitness, snap.CurrentBest, snap.AverageFitness, snap.MinFitness)
	}

	snap, err := client.Train(ctx, cfg.Session.Generations, progress)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !*jsonOut {
		fmt.Printf("run_id=%s generations=%d best_fitness=%.2f\n", snap.RunID, snap.Generation-1, snap.BestFitness)
	}

	if *exportDir != "" {
		summary, err := client.Export(ctx, larkapi.ExportRequest{OutDir: *exportDir})
		if err != nil {
			return err
		}
		fmt.Printf("exported run_id=%s to=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := openClient(sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, runID := range runs {
		fmt.Println(runID)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	from := fs.String("from", "", "read an exported history.csv instead of the store")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var history []float64
	var err error
	switch {
	case *from != "":
		history, err = readBestSeries(*from)
	case *runID != "":
		history, err = storedFitness(ctx, sf, *runID)
	default:
		return errors.New("fitness requires --run-id or --from")
	}
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.2f\n", i+1, best)
	}
	return nil
}

func readBestSeries(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return stats.ReadBestSeries(f)
}

func storedFitness(ctx context.Context, sf storeFlags, runID string) ([]float64, error) {
	client, err := openClient(sf)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Close()
	}()
	return client.FitnessHistory(ctx, runID)
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	csvOut := fs.Bool("csv", false, "emit diagnostics as CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("diagnostics requires --run-id")
	}
	client, err := openClient(sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, *runID)
	if err != nil {
		return err
	}
	if *csvOut {
		return stats.WriteHistoryCSV(os.Stdout, diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.2f mean=%.2f min=%.2f std=%.2f best_ever=%.2f faults=%d\n",
			d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.StdDevFitness, d.BestEver, d.NumericFaults)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("export requires --run-id")
	}
	client, err := openClient(sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, larkapi.ExportRequest{RunID: *runID, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	out := fs.String("out", "fitness.png", "image path; the extension selects the format")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("plot requires --run-id")
	}
	client, err := openClient(sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, *runID)
	if err != nil {
		return err
	}
	if err := stats.PlotFitness(diagnostics, *runID, *out); err != nil {
		return err
	}
	fmt.Printf("plotted run_id=%s to=%s\n", *runID, filepath.Clean(*out))
	return nil
}

func openClient(sf storeFlags) (*larkapi.Client, error) {
	cfg, err := sf.loadConfig()
	if err != nil {
		return nil, err
	}
	return sf.client(cfg)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: larkctl <train|runs|fitness|diagnostics|export|plot> [flags]", msg)
}
