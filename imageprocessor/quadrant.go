package imageprocessor

import "image"

const (
	QuadrantMaxDim    = 64
	QuadrantMaxDepth  = 5
	QuadrantMaxPrints = 4

	// Bits per fingerprint word; the top bit stays clear so words fit a signed 64-bit value
	quadrantWordBits = 63
)

// QuadrantFingerprint describes img as nested left/right and top/bottom brightness deltas.
// Word i of the result holds coarser structure than word i+1.
func QuadrantFingerprint(img image.Image) []uint64 {
	lums := ToGrayLuminance(ScaleToSquare(img, QuadrantMaxDim))
	return quadrantFingerprintFromLuminance(lums, QuadrantMaxDim, QuadrantMaxDepth, QuadrantMaxPrints)
}

func quadrantFingerprintFromLuminance(lums []int, dim, maxDepth, maxPrints int) []uint64 {
	q := &quadrantWalker{
		lums:     lums,
		stride:   dim,
		maxDepth: maxDepth,
		deltas:   make([][]bool, maxDepth),
	}
	q.walk(0, 0, dim, 0)
	return packDeltaBits(q.deltas, maxPrints)
}

type quadrantWalker struct {
	lums     []int
	stride   int
	maxDepth int
	deltas   [][]bool
}

// walk returns the rounded average luminance of the dim x dim square at (x0, y0) and
// appends that square's two delta bits to its depth. Children are visited first, so
// bits within a depth follow depth-first order over quadrants UL, UR, LL, LR.
func (q *quadrantWalker) walk(x0, y0, dim, depth int) int {
	if dim > 1 && depth < q.maxDepth {
		half := dim / 2
		var avgs [4]int
		for quadY := 0; quadY <= 1; quadY++ {
			for quadX := 0; quadX <= 1; quadX++ {
				avgs[quadY*2+quadX] = q.walk(x0+quadX*half, y0+quadY*half, half, depth+1)
			}
		}
		q.deltas[depth] = append(q.deltas[depth],
			avgs[0]+avgs[2] < avgs[1]+avgs[3],
			avgs[0]+avgs[1] < avgs[2]+avgs[3],
		)
	}
	return q.average(x0, y0, dim)
}

func (q *quadrantWalker) average(x0, y0, dim int) int {
	var sum int
	for y := y0; y < y0+dim; y++ {
		row := q.lums[y*q.stride+x0 : y*q.stride+x0+dim]
		for _, lum := range row {
			sum += lum
		}
	}
	n := dim * dim
	// round half up, as luminance is never negative
	return (2*sum + n) / (2 * n)
}

// packDeltaBits packs bits depth by depth into 63-bit words, first bit most significant.
// A word is flushed when full and at the end of every depth.
func packDeltaBits(deltas [][]bool, maxPrints int) []uint64 {
	var words []uint64
	var word uint64
	var n int

	flush := func() {
		words = append(words, word)
		word, n = 0, 0
	}

	for _, level := range deltas {
		for _, bit := range level {
			word <<= 1
			if bit {
				word |= 1
			}
			n++
			if n == quadrantWordBits {
				flush()
			}
		}
		if n > 0 {
			flush()
		}
		if len(words) >= maxPrints {
			break
		}
	}

	if len(words) > maxPrints {
		words = words[:maxPrints]
	}
	return words
}
