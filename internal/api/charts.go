package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsHost serves the echarts JavaScript for debug pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleFormChart renders the session's form-score history as a line chart.
func (s *Server) handleFormChart(w http.ResponseWriter, r *http.Request) {
	m := s.analyzer.GetMetrics()
	if len(m.FormHistory) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no form scores recorded in this session")
		return
	}

	x := make([]string, len(m.FormHistory))
	scores := make([]opts.LineData, len(m.FormHistory))
	for i, v := range m.FormHistory {
		x[i] = strconv.Itoa(i + 1)
		scores[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Form Score", Width: "100%", Height: "540px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Form score (%s)", m.ExerciseType),
			Subtitle: fmt.Sprintf("session %s, %d reps, average %.1f", m.SessionID, m.RepCount, m.AverageFormScore),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", Min: 0, Max: 100}),
		charts.WithXAxisOpts(opts.XAxis{Name: "classification"}),
	)
	line.SetXAxis(x).AddSeries("form", scores)

	s.renderPage(w, line)
}

// handleTrainingChart renders per-epoch losses and accuracies of one run.
func (s *Server) handleTrainingChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if len(run.History) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "run has no epoch history")
		return
	}

	n := len(run.History)
	x := make([]string, n)
	loss := make([]opts.LineData, n)
	valLoss := make([]opts.LineData, n)
	typeAcc := make([]opts.LineData, n)
	phaseAcc := make([]opts.LineData, n)
	hasVal := false
	for i, st := range run.History {
		x[i] = strconv.Itoa(st.Epoch)
		loss[i] = opts.LineData{Value: st.Loss}
		valLoss[i] = opts.LineData{Value: st.ValLoss}
		typeAcc[i] = opts.LineData{Value: st.TypeAccuracy}
		phaseAcc[i] = opts.LineData{Value: st.PhaseAccuracy}
		hasVal = hasVal || st.ValSamples > 0
	}

	started := time.Unix(0, run.StartedAt).UTC().Format(time.RFC3339)
	lossChart := charts.NewLine()
	lossChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training Run", Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Loss", Subtitle: fmt.Sprintf("run %s (%s), %s", run.RunID, run.Status, started)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	lossChart.SetXAxis(x).AddSeries("train", loss)
	if hasVal {
		lossChart.AddSeries("validation", valLoss)
	}

	accChart := charts.NewLine()
	accChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Head accuracy"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	accChart.SetXAxis(x).
		AddSeries("exercise type", typeAcc).
		AddSeries("rep phase", phaseAcc)

	s.renderPage(w, lossChart, accChart)
}

func (s *Server) renderPage(w http.ResponseWriter, cs ...components.Charter) {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(cs...)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
