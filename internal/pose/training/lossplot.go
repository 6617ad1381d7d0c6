package training

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/physio.track/internal/pose/l4model"
)

var (
	lossColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor     = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	typeColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	phaseColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	qualityColor = color.RGBA{R: 148, G: 103, B: 189, A: 255}
)

// WriteLossPlot renders per-epoch losses to path and head accuracies to
// accPath. The image format follows each file's extension. An empty accPath
// skips the accuracy plot.
func WriteLossPlot(history l4model.History, title, path, accPath string) error {
	if len(history) == 0 {
		return fmt.Errorf("no epochs to plot")
	}

	pLoss := plot.New()
	pLoss.Title.Text = fmt.Sprintf("%s - Loss", title)
	pLoss.X.Label.Text = "Epoch"
	pLoss.Y.Label.Text = "Loss"

	series := []struct {
		label string
		c     color.Color
		val   func(l4model.EpochStats) float64
		skip  bool
	}{
		{"total", lossColor, func(s l4model.EpochStats) float64 { return s.Loss }, false},
		{"exercise type", typeColor, func(s l4model.EpochStats) float64 { return s.TypeLoss }, false},
		{"rep phase", phaseColor, func(s l4model.EpochStats) float64 { return s.PhaseLoss }, false},
		{"form quality", qualityColor, func(s l4model.EpochStats) float64 { return s.QualityLoss }, false},
		{"validation", valColor, func(s l4model.EpochStats) float64 { return s.ValLoss }, history.Final().ValSamples == 0},
	}
	for _, s := range series {
		if s.skip {
			continue
		}
		if err := addLine(pLoss, history, s.label, s.c, s.val); err != nil {
			return err
		}
	}
	pLoss.Legend.Top = true
	pLoss.Legend.Left = false
	pLoss.Legend.XOffs = -10
	pLoss.Legend.YOffs = -10

	if err := pLoss.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save loss plot: %w", err)
	}
	if accPath == "" {
		return nil
	}

	pAcc := plot.New()
	pAcc.Title.Text = fmt.Sprintf("%s - Accuracy", title)
	pAcc.X.Label.Text = "Epoch"
	pAcc.Y.Label.Text = "Accuracy"
	pAcc.Y.Min, pAcc.Y.Max = 0, 1
	if err := addLine(pAcc, history, "exercise type", typeColor, func(s l4model.EpochStats) float64 { return s.TypeAccuracy }); err != nil {
		return err
	}
	if err := addLine(pAcc, history, "rep phase", phaseColor, func(s l4model.EpochStats) float64 { return s.PhaseAccuracy }); err != nil {
		return err
	}
	pAcc.Legend.Top = false
	pAcc.Legend.Left = false
	pAcc.Legend.XOffs = -10
	pAcc.Legend.YOffs = 10

	if err := pAcc.Save(14*vg.Inch, 6*vg.Inch, accPath); err != nil {
		return fmt.Errorf("save accuracy plot: %w", err)
	}
	return nil
}

func addLine(p *plot.Plot, history l4model.History, label string, c color.Color, val func(l4model.EpochStats) float64) error {
	pts := make(plotter.XYs, 0, len(history))
	for _, st := range history {
		pts = append(pts, plotter.XY{X: float64(st.Epoch), Y: val(st)})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}
