package types

// FingerprintRecord holds everything computed for one source file.
// Records are written once by the feature extractor and only read afterwards.
type FingerprintRecord struct {
	Key             string `json:"key" msgpack:"key"`
	FileName        string `json:"file_name" msgpack:"file_name"`
	FileSize        int64  `json:"file_size" msgpack:"file_size"`
	FileContentHash uint64 `json:"file_content_hash" msgpack:"file_content_hash"`

	// Image-derived fields, zero when decoding failed
	Width                 int       `json:"width" msgpack:"width"`
	Height                int       `json:"height" msgpack:"height"`
	AspectRatio           float64   `json:"aspect_ratio" msgpack:"aspect_ratio"`
	FullImageHash         uint64    `json:"full_image_hash" msgpack:"full_image_hash"`
	PerceptualHash        uint64    `json:"perceptual_hash" msgpack:"perceptual_hash"`
	PerceptualFlat        bool      `json:"perceptual_flat" msgpack:"perceptual_flat"`
	QuadrantFingerprint   []uint64  `json:"quadrant_fingerprint" msgpack:"quadrant_fingerprint"`
	RotationHashes        [4]uint64 `json:"rotation_hashes" msgpack:"rotation_hashes"`
	RotationInvariantHash uint64    `json:"rotation_invariant_hash" msgpack:"rotation_invariant_hash"`

	// DecodeError is the reason the image fields are missing, if any
	DecodeError string `json:"decode_error,omitempty" msgpack:"decode_error,omitempty"`
}

// HasImage reports whether the record carries decoded pixel data
func (r FingerprintRecord) HasImage() bool {
	return r.Width > 0 && r.Height > 0
}

// MatchReason names the signal that connected two records
type MatchReason string

const (
	ReasonFileExact     MatchReason = "file-exact"
	ReasonImageExact    MatchReason = "image-exact"
	ReasonRotationExact MatchReason = "rotation-exact"
	ReasonPerceptual    MatchReason = "perceptual"
	ReasonNearest       MatchReason = "nearest"
)

// Match is one reported pairing
type Match struct {
	Key        string      `json:"key"`
	MatchedKey string      `json:"matched_key"`
	Distance   int64       `json:"distance"`
	Reason     MatchReason `json:"reason"`
}

// DuplicateGroup is a connected component of at least two keys
type DuplicateGroup struct {
	Keys  []string `json:"keys"`
	Edges []Match  `json:"edges"`
}

// Violation describes an integrity inconsistency found while matching
type Violation struct {
	Key      string `json:"key"`
	OtherKey string `json:"other_key"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// Report is what the matcher hands to a report sink
type Report struct {
	Groups     []DuplicateGroup `json:"groups,omitempty"`
	Matches    []Match          `json:"matches,omitempty"`
	Violations []Violation      `json:"violations,omitempty"`
	Considered int              `json:"considered"`
	Skipped    int              `json:"skipped"`
}
