package imaging

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// DefaultMaxDim caps the longer image side before analysis.
const DefaultMaxDim = 1024

// SmartResize scales img down so that its longer side equals maxDim,
// keeping the aspect ratio. Images already within maxDim are returned as
// NRGBA without resampling.
func SmartResize(img image.Image, maxDim int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return ToNRGBA(img)
	}

	var nw, nh int
	if w > h {
		nw = maxDim
		nh = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		nh = maxDim
		nw = int(float64(w) * float64(maxDim) / float64(h))
	}
	nw = max(nw, 1)
	nh = max(nh, 1)

	out := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}
