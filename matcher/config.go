package matcher

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Config holds every threshold the matcher applies
type Config struct {
	// MinDimension filters out thumbnails and icons: width and height must both reach it
	MinDimension int `yaml:"min_dimension"`

	// AspectRatioFilter only pairs records whose aspect ratios agree to the nearest percent
	AspectRatioFilter bool `yaml:"aspect_ratio_filter"`

	// IncludeUndecoded lets records without pixel data join clusters through file-exact edges
	IncludeUndecoded bool `yaml:"include_undecoded"`

	// WordWeights multiply the Hamming distance of each quadrant fingerprint word, coarsest first
	WordWeights []int64 `yaml:"word_weights"`

	// DistanceCeiling is the exclusive upper bound for a reported nearest neighbour
	DistanceCeiling int64 `yaml:"distance_ceiling"`

	// PerceptualThreshold is the exclusive upper bound on perceptual hash Hamming distance for an edge
	PerceptualThreshold int `yaml:"perceptual_threshold"`
}

// DefaultConfig returns the thresholds used when nothing is configured
func DefaultConfig() Config {
	return Config{
		MinDimension:        64,
		WordWeights:         []int64{1_000_000, 10_000, 100, 1},
		DistanceCeiling:     20_000,
		PerceptualThreshold: 3,
	}
}

// Validate reports every rule the configuration breaks
func (c Config) Validate() error {
	var result *multierror.Error

	if c.MinDimension < 1 {
		result = multierror.Append(result, errors.Errorf("min_dimension must be at least 1, got %d", c.MinDimension))
	}
	if n := len(c.WordWeights); n < 1 || n > 4 {
		result = multierror.Append(result, errors.Errorf("word_weights must have 1 to 4 entries, got %d", n))
	}
	for i, w := range c.WordWeights {
		if w < 0 {
			result = multierror.Append(result, errors.Errorf("word_weights[%d] is negative", i))
		}
		if i > 0 && w > c.WordWeights[i-1] {
			result = multierror.Append(result, errors.Errorf("word_weights[%d] exceeds the coarser weight before it", i))
		}
	}
	if c.DistanceCeiling <= 0 {
		result = multierror.Append(result, errors.Errorf("distance_ceiling must be positive, got %d", c.DistanceCeiling))
	}
	if c.PerceptualThreshold < 0 || c.PerceptualThreshold > 63 {
		result = multierror.Append(result, errors.Errorf("perceptual_threshold must be within 0..63, got %d", c.PerceptualThreshold))
	}

	return result.ErrorOrNil()
}
