package matcher

import (
	"math"

	"imagedupes/imageprocessor"
	"imagedupes/types"
)

// QuadrantDistance is the weighted sum of per-word Hamming distances between two
// quadrant fingerprints. Words past the configured weights are ignored. ok is
// false when the fingerprints have different word counts and cannot be compared.
func (m *Matcher) QuadrantDistance(a, b []uint64) (distance int64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	for i := 0; i < len(a) && i < len(m.cfg.WordWeights); i++ {
		distance += m.cfg.WordWeights[i] * int64(imageprocessor.HammingDistance(a[i], b[i]))
	}
	return distance, true
}

func ratioPercent(r types.FingerprintRecord) int64 {
	return int64(math.Round(100 * r.AspectRatio))
}

// comparable reports whether the optional aspect ratio gate lets a and b be paired
func (m *Matcher) comparable(a, b types.FingerprintRecord) bool {
	if !m.cfg.AspectRatioFilter {
		return true
	}
	return ratioPercent(a) == ratioPercent(b)
}
