package imaging

import (
	"image"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// Blob is one 8-connected group of marked mask pixels.
type Blob struct {
	Area     int
	Centroid geom.Point
	Bounds   image.Rectangle
}

// Components labels the non-zero pixels of mask into 8-connected blobs and
// returns those with more than minArea pixels, in scan order of their first pixel.
func Components(mask *image.Gray, minArea int) []Blob {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()

	seen := make([]bool, w*h)
	dx := [8]int{-1, 0, 1, -1, 1, -1, 0, 1}
	dy := [8]int{-1, -1, -1, 0, 0, 1, 1, 1}

	var blobs []Blob
	queue := make([]int, 0, 1024)

	for start := 0; start < w*h; start++ {
		sx, sy := start%w, start/w
		if seen[start] || mask.Pix[sy*mask.Stride+sx] == 0 {
			continue
		}

		seen[start] = true
		queue = append(queue[:0], start)
		var sumX, sumY float64
		area := 0
		rect := image.Rect(sx, sy, sx+1, sy+1)

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%w, idx/w

			area++
			sumX += float64(x)
			sumY += float64(y)
			rect = rect.Union(image.Rect(x, y, x+1, y+1))

			for d := 0; d < 8; d++ {
				nx, ny := x+dx[d], y+dy[d]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				n := ny*w + nx
				if seen[n] || mask.Pix[ny*mask.Stride+nx] == 0 {
					continue
				}
				seen[n] = true
				queue = append(queue, n)
			}
		}

		if area > minArea {
			blobs = append(blobs, Blob{
				Area:     area,
				Centroid: geom.Point{X: sumX / float64(area), Y: sumY / float64(area)},
				Bounds:   rect,
			})
		}
	}
	return blobs
}
