//go:build !gocv

package imaging

import (
	"image"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

func extractCentroids(gray *image.Gray, opts ExtractOptions) []geom.Point {
	blurred := GaussianBlur(gray, opts.BlurSize, opts.BlurSigma)
	mask := AdaptiveThresholdInv(blurred, opts.BlockSize, opts.C)

	blobs := Components(mask, opts.MinArea)
	pts := make([]geom.Point, len(blobs))
	for i, bl := range blobs {
		pts[i] = bl.Centroid
	}
	return pts
}
