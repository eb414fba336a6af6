//go:build gocv

package imaging

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

func extractCentroids(gray *image.Gray, opts ExtractOptions) []geom.Point {
	b := gray.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, gray.Pix)
	if err != nil {
		slog.Error("failed to wrap image for OpenCV", "error", err)
		return nil
	}
	defer src.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	ksize := oddSize(opts.BlurSize)
	gocv.GaussianBlur(src, &blurred, image.Point{X: ksize, Y: ksize}, opts.BlurSigma, opts.BlurSigma, gocv.BorderDefault)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.AdaptiveThreshold(blurred, &mask, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinaryInv,
		max(oddSize(opts.BlockSize), 3), float32(opts.C))

	contours := gocv.FindContours(mask, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	var pts []geom.Point
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) <= float64(opts.MinArea) {
			continue
		}
		if c, ok := contourCentroid(contour); ok {
			pts = append(pts, c)
		}
	}
	return pts
}

// contourCentroid is the centroid of the polygon a contour encloses, from its
// first order moments.
func contourCentroid(contour gocv.PointVector) (geom.Point, bool) {
	m := gocv.NewMatFromPointVector(contour, true)
	defer m.Close()

	mo := gocv.Moments(m, false)
	if mo["m00"] == 0 {
		return geom.Point{}, false
	}
	return geom.Point{X: mo["m10"] / mo["m00"], Y: mo["m01"] / mo["m00"]}, true
}

// oddSize rounds a kernel size up to the next odd value, as OpenCV requires.
func oddSize(n int) int {
	if n < 1 {
		return 1
	}
	if n%2 == 0 {
		return n + 1
	}
	return n
}
