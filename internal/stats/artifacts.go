package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"lark/internal/model"
)

const (
	historyJSONFile = "history.json"
	historyCSVFile  = "history.csv"
	lineageFile     = "lineage.json"
	bestFile        = "best.json"
	summaryFile     = "summary.json"
	plotFile        = "fitness.png"
)

var historyHeader = []string{
	"generation",
	"best_fitness",
	"mean_fitness",
	"min_fitness",
	"stddev_fitness",
	"best_ever",
	"numeric_faults",
}

// RunArtifacts is everything exported for one run.
type RunArtifacts struct {
	RunID   string                        `json:"run_id"`
	History []model.GenerationDiagnostics `json:"history"`
	Lineage []model.LineageRecord         `json:"lineage,omitempty"`
	Best    *model.FitnessRecord          `json:"best,omitempty"`
}

// WriteRunArtifacts writes the run into baseDir/<run id> and returns that
// directory. The fitness plot is skipped for runs with no history.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, historyJSONFile), artifacts.History); err != nil {
		return "", err
	}
	if err := writeHistoryCSVFile(filepath.Join(runDir, historyCSVFile), artifacts.History); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, lineageFile), artifacts.Lineage); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.RunID, artifacts.History)); err != nil {
		return "", err
	}
	if artifacts.Best != nil {
		if err := writeJSON(filepath.Join(runDir, bestFile), artifacts.Best); err != nil {
			return "", err
		}
	}
	if len(artifacts.History) > 0 {
		if err := PlotFitness(artifacts.History, artifacts.RunID, filepath.Join(runDir, plotFile)); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

// WriteHistoryCSV writes one row per generation.
func WriteHistoryCSV(w io.Writer, history []model.GenerationDiagnostics) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(historyHeader); err != nil {
		return err
	}
	for _, diag := range history {
		if err := writer.Write([]string{
			strconv.Itoa(diag.Generation),
			formatFloat(diag.BestFitness),
			formatFloat(diag.MeanFitness),
			formatFloat(diag.MinFitness),
			formatFloat(diag.StdDevFitness),
			formatFloat(diag.BestEver),
			strconv.Itoa(diag.NumericFaults),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBestSeries reads the best_fitness column of a history CSV.
func ReadBestSeries(r io.Reader) ([]float64, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, nil
		}
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("history header must have at least 2 columns")
	}

	series := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, err
		}
		series = append(series, value)
	}
	return series, nil
}

func writeHistoryCSVFile(path string, history []model.GenerationDiagnostics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteHistoryCSV(file, history)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
