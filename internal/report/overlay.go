// Package report renders analysis results as images and HTML charts.
package report

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/geom"
)

var (
	initialColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	centerColor  = color.RGBA{R: 220, G: 20, B: 20, A: 255}
	spiralColor  = color.RGBA{R: 20, G: 60, B: 230, A: 255}
)

// Spiral overlay sampling: five turns either side of θ=0.
const (
	overlayThetaMax = 5 * math.Pi
	overlaySamples  = 500
)

// Overlay describes what to draw on top of an analysed image.
type Overlay struct {
	Image   image.Image
	Initial []geom.Point
	Centers []geom.Point
	Spiral  *fit.SpiralParams
}

// pixelLength converts a pixel count to a vg length at the default PNG resolution.
func pixelLength(px int) vg.Length {
	return vg.Length(float64(px)/96) * vg.Inch
}

// flip converts image coordinates (y down) to plot coordinates (y up).
func flip(pts []geom.Point, height int) plotter.XYs {
	xys := make(plotter.XYs, 0, len(pts))
	for _, p := range pts {
		if !p.IsFinite() {
			continue
		}
		xys = append(xys, plotter.XY{X: p.X, Y: float64(height) - p.Y})
	}
	return xys
}

// Plot builds the overlay plot in image pixel coordinates.
func (o Overlay) Plot() (*plot.Plot, error) {
	if o.Image == nil {
		return nil, fmt.Errorf("overlay needs an image")
	}
	b := o.Image.Bounds()
	w, h := b.Dx(), b.Dy()

	p := plot.New()
	p.HideAxes()
	p.Add(plotter.NewImage(o.Image, 0, 0, float64(w), float64(h)))

	if o.Spiral != nil {
		line, err := plotter.NewLine(flip(o.Spiral.Sample(-overlayThetaMax, overlayThetaMax, overlaySamples), h))
		if err != nil {
			return nil, fmt.Errorf("failed to build spiral line: %w", err)
		}
		line.Color = spiralColor
		line.Width = vg.Points(3)
		p.Add(line)
	}

	if err := addDots(p, flip(o.Initial, h), initialColor, 2); err != nil {
		return nil, err
	}
	if err := addDots(p, flip(o.Centers, h), centerColor, 8); err != nil {
		return nil, err
	}

	p.X.Min, p.X.Max = 0, float64(w)
	p.Y.Min, p.Y.Max = 0, float64(h)
	return p, nil
}

func addDots(p *plot.Plot, xys plotter.XYs, c color.Color, radius float64) error {
	if len(xys) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(radius)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)
	return nil
}

// WritePNG renders the overlay at the image's own pixel size.
func (o Overlay) WritePNG(w io.Writer) error {
	p, err := o.Plot()
	if err != nil {
		return err
	}
	b := o.Image.Bounds()
	wt, err := p.WriterTo(pixelLength(b.Dx()), pixelLength(b.Dy()), "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write overlay png: %w", err)
	}
	return nil
}
