package imageprocessor

import (
	"image"
	"math"
)

const (
	// PerceptualSize is the side of the grayscale thumbnail fed to the DCT
	PerceptualSize = 32
	// PerceptualBlock is the side of the low-frequency block kept from the DCT
	PerceptualBlock = 8
	// PerceptualBits is the number of bits in a perceptual hash
	PerceptualBits = (PerceptualBlock - 1) * (PerceptualBlock - 1)

	// AC coefficients below this are treated as zero
	flatThreshold = 1e-6
)

var (
	dctScale [PerceptualSize]float64
	// dctCos[u][i] = cos((2i+1) * u * pi / 2N)
	dctCos [PerceptualBlock][PerceptualSize]float64
)

func init() {
	for i := range dctScale {
		dctScale[i] = 1
	}
	dctScale[0] = 1 / math.Sqrt2

	for u := 0; u < PerceptualBlock; u++ {
		for i := 0; i < PerceptualSize; i++ {
			dctCos[u][i] = math.Cos(float64(2*i+1) * float64(u) * math.Pi / float64(2*PerceptualSize))
		}
	}
}

// PerceptualHash computes a DCT hash of img. The second result reports a flat image,
// one with no AC energy in the low-frequency block, whose hash is 0 and carries no
// structural information.
func PerceptualHash(img image.Image) (uint64, bool) {
	lums := ToGrayLuminance(ScaleToSquare(img, PerceptualSize))
	return perceptualHashFromLuminance(lums)
}

func perceptualHashFromLuminance(lums []int) (uint64, bool) {
	coeffs := lowFrequencyDCT(lums)

	var total, maxAC float64
	for u := 0; u < PerceptualBlock; u++ {
		for v := 0; v < PerceptualBlock; v++ {
			if u == 0 && v == 0 {
				continue
			}
			total += coeffs[u][v]
			maxAC = math.Max(maxAC, math.Abs(coeffs[u][v]))
		}
	}
	if maxAC < flatThreshold {
		return 0, true
	}
	mean := total / float64(PerceptualBlock*PerceptualBlock-1)

	var hash uint64
	for u := 1; u < PerceptualBlock; u++ {
		for v := 1; v < PerceptualBlock; v++ {
			hash <<= 1
			if coeffs[u][v] > mean {
				hash |= 1
			}
		}
	}
	return hash, false
}

// lowFrequencyDCT applies a separable 2-D DCT-II to an N x N luminance matrix and
// returns only the top-left block, with orthonormal scaling 2*c[u]*c[v]/N.
func lowFrequencyDCT(lums []int) [PerceptualBlock][PerceptualBlock]float64 {
	const n = PerceptualSize

	// Transform along each row first
	var rows [n][PerceptualBlock]float64
	for i := 0; i < n; i++ {
		for v := 0; v < PerceptualBlock; v++ {
			var sum float64
			for j := 0; j < n; j++ {
				sum += dctCos[v][j] * float64(lums[i*n+j])
			}
			rows[i][v] = sum
		}
	}

	var out [PerceptualBlock][PerceptualBlock]float64
	for u := 0; u < PerceptualBlock; u++ {
		for v := 0; v < PerceptualBlock; v++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += dctCos[u][i] * rows[i][v]
			}
			out[u][v] = sum * 2 * dctScale[u] * dctScale[v] / n
		}
	}
	return out
}
