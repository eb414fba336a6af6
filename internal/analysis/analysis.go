// Package analysis runs the full image pipeline: object extraction, cluster
// count selection, clustering and the golden spiral search.
package analysis

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cwbudde/goldenspiral/internal/cluster"
	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/geom"
	"github.com/cwbudde/goldenspiral/internal/imaging"
	"github.com/cwbudde/goldenspiral/internal/report"
)

// MinObjects is the fewest detected objects an image needs to be analysed.
const MinObjects = 3

// DefaultBWeight is the golden penalty weight used when none is given.
const DefaultBWeight = 20000.0

// ErrTooFewObjects is returned when extraction finds fewer than MinObjects objects.
var ErrTooFewObjects = errors.New("too few objects detected")

// Options configures Analyze and Preview.
type Options struct {
	// MaxDim caps the longer image side. Zero keeps the original size.
	MaxDim  int                    `json:"maxDim"`
	Extract imaging.ExtractOptions `json:"extract"`

	// K fixes the cluster count. Zero selects it with the elbow method.
	K    int `json:"k"`
	MaxK int `json:"maxK"`
	MinK int `json:"minK"`

	BWeight     float64 `json:"bWeight"`
	ClusterSeed uint64  `json:"clusterSeed"`

	Fit fit.Config `json:"fit"`
	// Restarts above 1 repeat the search until the score plateaus.
	Restarts    int                   `json:"restarts"`
	Convergence fit.ConvergenceConfig `json:"convergence"`
}

// DefaultOptions mirrors the analysis service defaults.
func DefaultOptions() Options {
	return Options{
		MaxDim:      imaging.DefaultMaxDim,
		Extract:     imaging.DefaultExtractOptions(),
		MaxK:        cluster.DefaultMaxK,
		MinK:        2,
		BWeight:     DefaultBWeight,
		Fit:         fit.DefaultConfig(),
		Restarts:    1,
		Convergence: fit.DefaultConvergenceConfig(),
	}
}

// Report is the outcome of Analyze.
type Report struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	Objects []geom.Point `json:"objects"`
	// Selection is nil when the cluster count was fixed by the caller.
	Selection *cluster.Selection `json:"selection,omitempty"`
	K         int                `json:"k"`
	Centers   []geom.Point       `json:"centers"`

	Fit     *fit.Result `json:"fit"`
	Rating  float64     `json:"rating"`
	B       float64     `json:"b"`
	GoldenB float64     `json:"goldenB"`

	Duration time.Duration `json:"duration"`

	// Image is the resized image all coordinates refer to.
	Image *image.NRGBA `json:"-"`
}

// Overlay returns the drawing of the report: objects, centres and the spiral.
func (r *Report) Overlay() report.Overlay {
	var spiral *fit.SpiralParams
	if r.Fit != nil {
		p := r.Fit.Params
		spiral = &p
	}
	return report.Overlay{
		Image:   r.Image,
		Initial: r.Objects,
		Centers: r.Centers,
		Spiral:  spiral,
	}
}

// Analyze resizes img, extracts object centroids, clusters them and fits a
// golden spiral through the cluster centres.
func Analyze(img image.Image, opts Options) (*Report, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", fit.ErrInvalidInput)
	}
	start := time.Now()

	resized := imaging.SmartResize(img, opts.MaxDim)
	objects := imaging.ExtractCentroids(resized, opts.Extract)
	slog.Debug("objects extracted", "count", len(objects), "width", resized.Bounds().Dx(), "height", resized.Bounds().Dy())

	if len(objects) < MinObjects {
		return nil, fmt.Errorf("%w: found %d, need at least %d", ErrTooFewObjects, len(objects), MinObjects)
	}

	rep := &Report{
		Width:   resized.Bounds().Dx(),
		Height:  resized.Bounds().Dy(),
		Objects: objects,
		GoldenB: opts.Fit.Score.GoldenGrowthRate,
		Image:   resized,
	}

	k, sel, err := chooseK(objects, opts)
	if err != nil {
		return nil, err
	}
	rep.K = k
	rep.Selection = sel

	centers, err := cluster.Centers(objects, k, opts.ClusterSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster objects: %w", err)
	}
	rep.Centers = centers

	bounds := geom.ImageBounds{Width: rep.Width, Height: rep.Height}
	var res *fit.Result
	if opts.Restarts > 1 {
		res, err = fit.OptimizeRestarts(centers, bounds, opts.BWeight, opts.Fit, fit.RestartConfig{
			MaxRuns:     opts.Restarts,
			Convergence: opts.Convergence,
		})
	} else {
		res, err = fit.Optimize(centers, bounds, opts.BWeight, opts.Fit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fit spiral: %w", err)
	}

	rep.Fit = res
	rep.Rating = fit.Rating(res.FitDistance, res.Params.B, rep.GoldenB)
	rep.B = fit.RoundB(res.Params.B)
	rep.Duration = time.Since(start)

	slog.Info("analysis complete",
		"objects", len(objects),
		"k", k,
		"rating", rep.Rating,
		"b", rep.B,
		"duration", rep.Duration,
	)
	return rep, nil
}

// chooseK caps a fixed k at the object count, or runs the elbow selector.
// The result is never below 2.
func chooseK(objects []geom.Point, opts Options) (int, *cluster.Selection, error) {
	if opts.K > 0 {
		return max(min(opts.K, len(objects)), 2), nil, nil
	}

	selector := &cluster.ElbowSelector{
		Clusterer: cluster.NewKMeans(opts.ClusterSeed),
		MaxK:      opts.MaxK,
		MinK:      opts.MinK,
	}
	sel, err := selector.Select(objects)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to select cluster count: %w", err)
	}
	return max(sel.K, 2), sel, nil
}

// PreviewResult is the outcome of Preview: extraction and clustering only.
type PreviewResult struct {
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Objects []geom.Point `json:"objects"`
	Centers []geom.Point `json:"centers"`

	Image *image.NRGBA `json:"-"`
}

// Overlay returns the drawing of the preview without a spiral.
func (p *PreviewResult) Overlay() report.Overlay {
	return report.Overlay{Image: p.Image, Initial: p.Objects, Centers: p.Centers}
}

// Preview extracts objects and clusters them into k groups without fitting.
// Fewer than two objects are used as centres directly, k == 1 yields their
// mean and k <= 0 yields no centres.
func Preview(img image.Image, k int, opts Options) (*PreviewResult, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", fit.ErrInvalidInput)
	}

	resized := imaging.SmartResize(img, opts.MaxDim)
	objects := imaging.ExtractCentroids(resized, opts.Extract)

	res := &PreviewResult{
		Width:   resized.Bounds().Dx(),
		Height:  resized.Bounds().Dy(),
		Objects: objects,
		Image:   resized,
	}

	switch {
	case len(objects) < 2:
		res.Centers = objects
	case k == 1:
		res.Centers = []geom.Point{geom.Centroid(objects)}
	case k >= 2:
		centers, err := cluster.Centers(objects, min(k, len(objects)), opts.ClusterSeed)
		if err != nil {
			return nil, fmt.Errorf("failed to cluster objects: %w", err)
		}
		res.Centers = centers
	}
	return res, nil
}
