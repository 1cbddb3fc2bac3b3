package imageprocessor

import "github.com/pkg/errors"

var (
	// ErrUnreadableImage means the bytes could not be parsed as a supported raster format
	ErrUnreadableImage = errors.New("unreadable image")

	// ErrStructuralDecodeAnomaly means a codec failed mid-decode on malformed or truncated data
	ErrStructuralDecodeAnomaly = errors.New("structural decode anomaly")
)
