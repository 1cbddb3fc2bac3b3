package imageprocessor

import (
	"bytes"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Decoders beyond the standard library's jpeg/png/gif
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// BaseImageLoader provides common functionality for all image loaders
type BaseImageLoader struct {
	// Formats this loader can handle
	SupportedFormats []FormatType
}

// CanLoad checks if this loader supports the file's format
func (l *BaseImageLoader) CanLoad(path string) bool {
	format := GetFileFormat(path)
	for _, supported := range l.SupportedFormats {
		if format == supported {
			return true
		}
	}
	return false
}

// StandardImageLoader decodes the formats registered with the image package
type StandardImageLoader struct {
	BaseImageLoader
	AutoOrient bool
}

// NewStandardImageLoader creates a loader for jpeg, png, gif, bmp, tiff and webp
func NewStandardImageLoader(autoOrient bool) *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF, FormatWEBP},
		},
		AutoOrient: autoOrient,
	}
}

// LoadImage decodes data, reading path only when data is nil
func (l *StandardImageLoader) LoadImage(path string, data []byte) (image.Image, error) {
	if data == nil {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(l.AutoOrient))
	if err != nil {
		return nil, newImageLoadError(err, path)
	}
	return img, nil
}

// newImageLoadError wraps a codec error as an unreadable image
func newImageLoadError(cause error, path string) error {
	return errors.Wrapf(ErrUnreadableImage, "%s: %v", path, cause)
}
