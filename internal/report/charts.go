package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cwbudde/goldenspiral/internal/cluster"
)

// ConvergenceChart renders the best-ever score per generation as an HTML line chart.
// Generations without a finite score are left as gaps.
func ConvergenceChart(w io.Writer, title string, history []float64) error {
	gens := make([]int, len(history))
	data := make([]opts.LineData, len(history))
	for i, v := range history {
		gens[i] = i
		if math.IsInf(v, 0) || math.IsNaN(v) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("generations=%d", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Generation", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Best score", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(gens).AddSeries("best score", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render convergence chart: %w", err)
	}
	return nil
}

// ElbowChart renders the inertia curve as an HTML line chart with a marker at the chosen k.
func ElbowChart(w io.Writer, sel *cluster.Selection) error {
	if sel == nil || len(sel.Curve) == 0 {
		return fmt.Errorf("no inertia curve to chart")
	}

	ks := make([]string, len(sel.Curve))
	data := make([]opts.LineData, len(sel.Curve))
	for i, c := range sel.Curve {
		ks[i] = fmt.Sprintf("%d", c.K)
		data[i] = opts.LineData{Name: ks[i], Value: c.Inertia}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Elbow method", Width: "700px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{Title: "Elbow method", Subtitle: fmt.Sprintf("k=%d", sel.K)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "k"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Inertia"}),
	)
	line.SetXAxis(ks).AddSeries("inertia", data,
		charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: "k", XAxis: fmt.Sprintf("%d", sel.K)}),
	)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render elbow chart: %w", err)
	}
	return nil
}
