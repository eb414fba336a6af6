package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/cwbudde/goldenspiral/internal/cluster"
)

// ElbowPlot draws the inertia curve with the selected k highlighted.
func ElbowPlot(sel *cluster.Selection) (*plot.Plot, error) {
	if sel == nil || len(sel.Curve) == 0 {
		return nil, fmt.Errorf("no inertia curve to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Elbow method (k = %d)", sel.K)
	p.X.Label.Text = "k"
	p.Y.Label.Text = "Inertia"

	pts := make(plotter.XYs, len(sel.Curve))
	var chosen plotter.XYs
	for i, c := range sel.Curve {
		pts[i] = plotter.XY{X: float64(c.K), Y: c.Inertia}
		if c.K == sel.K {
			chosen = append(chosen, pts[i])
		}
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build inertia line: %w", err)
	}
	line.Width = vg.Points(1.5)
	points.Shape = draw.CircleGlyph{}
	p.Add(line, points)

	if len(chosen) > 0 {
		if err := addDots(p, chosen, centerColor, 6); err != nil {
			return nil, err
		}
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// WriteElbowPNG renders ElbowPlot as a 6x4 inch PNG.
func WriteElbowPNG(w io.Writer, sel *cluster.Selection) error {
	p, err := ElbowPlot(sel)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write elbow png: %w", err)
	}
	return nil
}
