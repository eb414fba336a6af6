package imaging

import (
	"image"
	"math"
)

// Grayscale converts img to 8-bit luma with the BT.601 weights.
func Grayscale(img image.Image) *image.Gray {
	src := ToNRGBA(img)
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			bl := float64(row[x*4+2])
			a := float64(row[x*4+3]) / 255
			// Transparent pixels read as white paper.
			l := (0.299*r+0.587*g+0.114*bl)*a + 255*(1-a)
			out.Pix[y*out.Stride+x] = uint8(math.Round(l))
		}
	}
	return out
}

// GaussianKernel returns a normalised kernel of odd size. A non-positive
// sigma is derived from the size as 0.3·((size-1)/2 - 1) + 0.8.
func GaussianKernel(size int, sigma float64) []float64 {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// GaussianBlur smooths g with a separable Gaussian; borders are mirrored
// without repeating the edge pixel.
func GaussianBlur(g *image.Gray, size int, sigma float64) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	smoothed := blurPlane(grayPlane(g), w, h, GaussianKernel(size, sigma))
	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range smoothed {
		out.Pix[(i/w)*out.Stride+i%w] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
	return out
}

// AdaptiveThresholdInv marks pixels darker than their Gaussian-weighted
// neighbourhood mean minus c. Marked pixels are 255, the rest 0.
func AdaptiveThresholdInv(g *image.Gray, blockSize int, c float64) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	src := grayPlane(g)
	mean := blurPlane(src, w, h, GaussianKernel(blockSize, 0))

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range src {
		if v <= mean[i]-c {
			out.Pix[(i/w)*out.Stride+i%w] = 255
		}
	}
	return out
}

func grayPlane(g *image.Gray) []float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	p := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p[y*w+x] = float64(g.Pix[y*g.Stride+x])
		}
	}
	return p
}

func blurPlane(src []float64, w, h int, k []float64) []float64 {
	half := len(k) / 2
	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for i, kv := range k {
				s += kv * src[y*w+reflect101(x+i-half, w)]
			}
			tmp[y*w+x] = s
		}
	}
	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for i, kv := range k {
				s += kv * tmp[reflect101(y+i-half, h)*w+x]
			}
			out[y*w+x] = s
		}
	}
	return out
}

// reflect101 maps i into [0, n) by mirroring around the edge pixels (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
