package stats

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"lark/internal/model"
)

// PlotFitness renders best and mean fitness per generation to an image
// whose format follows the path extension.
func PlotFitness(history []model.GenerationDiagnostics, title, path string) error {
	if len(history) == 0 {
		return fmt.Errorf("no generations to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	best := make(plotter.XYs, len(history))
	mean := make(plotter.XYs, len(history))
	for i, diag := range history {
		best[i].X = float64(diag.Generation)
		best[i].Y = diag.BestFitness
		mean[i].X = float64(diag.Generation)
		mean[i].Y = diag.MeanFitness
	}

	bestLine, err := plotter.NewLine(best)
	if err != nil {
		return err
	}
	meanLine, err := plotter.NewLine(mean)
	if err != nil {
		return err
	}
	meanLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
