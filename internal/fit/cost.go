package fit

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// ScoreConfig controls how a candidate spiral is scored against a point set.
type ScoreConfig struct {
	// MinScale rejects spirals with A below it without sampling.
	MinScale float64 `json:"minScale"`
	// GoldenGrowthRate is the b the penalty pulls towards.
	GoldenGrowthRate float64 `json:"goldenGrowthRate"`
	ThetaMin         float64 `json:"thetaMin"`
	ThetaMax         float64 `json:"thetaMax"`
	Samples          int     `json:"samples"`
	// MinInBounds is the fewest on-canvas samples a usable spiral may have.
	MinInBounds int `json:"minInBounds"`
	// IndexThreshold switches nearest-sample lookup to a k-d tree once the
	// point set has at least this many points. Zero disables the index.
	IndexThreshold int `json:"indexThreshold"`
}

// DefaultScoreConfig samples 200 angles over [-4π, 4π].
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		MinScale:         15,
		GoldenGrowthRate: GoldenGrowthRate,
		ThetaMin:         -4 * math.Pi,
		ThetaMax:         4 * math.Pi,
		Samples:          200,
		MinInBounds:      10,
		IndexThreshold:   64,
	}
}

// GoldenPenalty is the squared distance of b from the golden growth rate.
func GoldenPenalty(b, golden float64) float64 {
	d := b - golden
	return d * d
}

// FitDistance is the mean distance from each point to its nearest on-canvas
// spiral sample. It returns +Inf when points is empty or fewer than
// cfg.MinInBounds samples land on the canvas.
func FitDistance(p SpiralParams, points []geom.Point, bounds geom.ImageBounds, cfg ScoreConfig) float64 {
	return newScorer(points, bounds, 0, cfg).fitDistance(p)
}

// Score is FitDistance plus weight times GoldenPenalty. Spirals with A below
// cfg.MinScale, and spirals that are mostly off-canvas, score +Inf.
func Score(p SpiralParams, points []geom.Point, bounds geom.ImageBounds, weight float64, cfg ScoreConfig) float64 {
	return newScorer(points, bounds, weight, cfg).score(p)
}

// scorer caches the angular grid so repeated scoring only pays for exp and
// the distance search. It is safe for concurrent use.
type scorer struct {
	cfg    ScoreConfig
	points []geom.Point
	bounds geom.ImageBounds
	weight float64

	thetas []float64
	cos    []float64
	sin    []float64
}

func newScorer(points []geom.Point, bounds geom.ImageBounds, weight float64, cfg ScoreConfig) *scorer {
	s := &scorer{cfg: cfg, points: points, bounds: bounds, weight: weight}
	s.thetas = thetaGrid(cfg.ThetaMin, cfg.ThetaMax, cfg.Samples)
	s.cos = make([]float64, len(s.thetas))
	s.sin = make([]float64, len(s.thetas))
	for i, th := range s.thetas {
		s.cos[i] = math.Cos(th)
		s.sin[i] = math.Sin(th)
	}
	return s
}

// vector adapts score to the optimizer's objective signature.
func (s *scorer) vector(v []float64) float64 {
	return s.score(ParamsFromVector(v))
}

func (s *scorer) score(p SpiralParams) float64 {
	if !(p.A >= s.cfg.MinScale) || math.IsNaN(p.B) {
		return math.Inf(1)
	}
	d := s.fitDistance(p)
	if math.IsInf(d, 1) {
		return d
	}
	return d + s.weight*GoldenPenalty(p.B, s.cfg.GoldenGrowthRate)
}

func (s *scorer) fitDistance(p SpiralParams) float64 {
	if len(s.points) == 0 {
		return math.Inf(1)
	}
	samples := s.inBounds(p)
	if len(samples) < s.cfg.MinInBounds || len(samples) == 0 {
		return math.Inf(1)
	}

	var sum float64
	if s.cfg.IndexThreshold > 0 && len(s.points) >= s.cfg.IndexThreshold {
		tree := kdtree.New(samples, false)
		for _, pt := range s.points {
			_, d2 := tree.Nearest(kdtree.Point{pt.X, pt.Y})
			sum += math.Sqrt(d2)
		}
	} else {
		for _, pt := range s.points {
			best := math.Inf(1)
			for _, q := range samples {
				dx := pt.X - q[0]
				dy := pt.Y - q[1]
				if d2 := dx*dx + dy*dy; d2 < best {
					best = d2
				}
			}
			sum += math.Sqrt(best)
		}
	}
	return sum / float64(len(s.points))
}

// inBounds samples the spiral and keeps only on-canvas points.
func (s *scorer) inBounds(p SpiralParams) kdtree.Points {
	out := make(kdtree.Points, 0, len(s.thetas))
	for i, th := range s.thetas {
		r := p.Radius(th)
		pt := geom.Point{X: p.CX + r*s.cos[i], Y: p.CY + r*s.sin[i]}
		if s.bounds.Contains(pt) {
			out = append(out, kdtree.Point{pt.X, pt.Y})
		}
	}
	return out
}
