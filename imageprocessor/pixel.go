package imageprocessor

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ToGrayLuminance returns round(0.299R + 0.587G + 0.114B) for every pixel in row-major order
func ToGrayLuminance(img image.Image) []int {
	nrgba := toNRGBA(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()

	lums := make([]int, 0, w*h)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			lum := 0.299*float64(row[x]) + 0.587*float64(row[x+1]) + 0.114*float64(row[x+2])
			lums = append(lums, int(math.Round(lum)))
		}
	}
	return lums
}

// ScaleToSquare resizes img to exactly targetDim x targetDim with bilinear steps.
// Each axis above the target is halved per pass and any axis that would fall below
// it is clamped, so large downscales take log2(size/targetDim) passes.
func ScaleToSquare(img image.Image, targetDim int) *image.NRGBA {
	current := toNRGBA(img)
	w, h := current.Rect.Dx(), current.Rect.Dy()

	for {
		w = nextScaleStep(w, targetDim)
		h = nextScaleStep(h, targetDim)
		current = imaging.Resize(current, w, h, imaging.Linear)
		if w == targetDim && h == targetDim {
			return current
		}
	}
}

func nextScaleStep(size, target int) int {
	if size > target {
		size /= 2
	}
	if size < target {
		size = target
	}
	return size
}

// SquareThumbnail box-filters img to exactly dim x dim. Sums are exact integers and
// each channel is rounded once, so the thumbnail of a rotated or mirrored image is
// the rotated or mirrored thumbnail, bit for bit.
func SquareThumbnail(img image.Image, dim int) *image.NRGBA {
	src := toNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, dim, dim))
	if w == 0 || h == 0 {
		return out
	}

	cols := areaTaps(w, dim)
	rows := areaTaps(h, dim)

	// horizontal pass: dim weighted sums per source row and channel
	partial := make([]int64, h*dim*4)
	for y := 0; y < h; y++ {
		line := src.Pix[y*src.Stride : y*src.Stride+w*4]
		acc := partial[y*dim*4 : (y+1)*dim*4]
		for i, taps := range cols {
			for _, t := range taps {
				px := line[t.index*4 : t.index*4+4]
				for c := 0; c < 4; c++ {
					acc[i*4+c] += t.weight * int64(px[c])
				}
			}
		}
	}

	area := int64(w) * int64(h)
	for j, taps := range rows {
		for i := 0; i < dim; i++ {
			var sum [4]int64
			for _, t := range taps {
				base := (t.index*dim + i) * 4
				for c := 0; c < 4; c++ {
					sum[c] += t.weight * partial[base+c]
				}
			}
			o := out.PixOffset(i, j)
			for c := 0; c < 4; c++ {
				out.Pix[o+c] = uint8((sum[c] + area/2) / area)
			}
		}
	}
	return out
}

type areaTap struct {
	index  int
	weight int64
}

// areaTaps lists, for each of dim output cells, the source cells it overlaps and by
// how much. A source cell spans dim units and an output cell spans n units, so the
// weights of one output cell sum to n.
func areaTaps(n, dim int) [][]areaTap {
	taps := make([][]areaTap, dim)
	for i := range taps {
		lo, hi := i*n, (i+1)*n
		for x := lo / dim; x*dim < hi; x++ {
			if overlap := min(hi, (x+1)*dim) - max(lo, x*dim); overlap > 0 {
				taps[i] = append(taps[i], areaTap{index: x, weight: int64(overlap)})
			}
		}
	}
	return taps
}

// Rotate90 rotates img by 90 degrees counter-clockwise. Width and height swap.
func Rotate90(img image.Image) *image.NRGBA {
	return imaging.Rotate90(img)
}

// RGBBytes returns the R, G and B bytes of every pixel in row-major order, alpha dropped
func RGBBytes(img image.Image) []byte {
	nrgba := toNRGBA(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()

	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}

// toNRGBA returns img as a zero-origin *image.NRGBA, copying only when needed
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}
