package imaging

import (
	"image"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// ExtractOptions tunes ExtractCentroids.
type ExtractOptions struct {
	BlurSize  int
	BlurSigma float64
	BlockSize int
	C         float64
	MinArea   int
}

// DefaultExtractOptions: 5x5 blur, 11px Gaussian adaptive block, C=2, objects above 50px.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		BlurSize:  5,
		BlurSigma: 0,
		BlockSize: 11,
		C:         2,
		MinArea:   50,
	}
}

// ExtractCentroids finds dark objects on a lighter background and returns
// the centroid of each in pixel coordinates of img.
//
// Built with the gocv tag it runs on OpenCV: contours are retrieved as a
// flat list, so the boundary of a hole inside an object counts as an object
// of its own. Otherwise the marked mask is split into 8-connected regions.
func ExtractCentroids(img image.Image, opts ExtractOptions) []geom.Point {
	return extractCentroids(Grayscale(img), opts)
}
