// Package geom holds the small value types shared by the clustering, fitting
// and rendering packages.
package geom

import "math"

// Point is a position in image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist2 returns the squared Euclidean distance between p and q.
func (p Point) Dist2(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Sqrt(p.Dist2(q))
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// ImageBounds is the canvas a point set lives on. Valid coordinates satisfy
// 0 <= x < Width and 0 <= y < Height.
type ImageBounds struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies on the canvas.
func (b ImageBounds) Contains(p Point) bool {
	return p.X >= 0 && p.X < float64(b.Width) && p.Y >= 0 && p.Y < float64(b.Height)
}

// Area returns Width*Height, or zero for degenerate bounds.
func (b ImageBounds) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Centroid returns the arithmetic mean of points. It returns the zero Point
// for an empty slice.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return Point{X: sx / n, Y: sy / n}
}
