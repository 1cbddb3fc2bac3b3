//go:build gocv

package imageprocessor

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"imagedupes/logging"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// OpenCVLoader decodes formats the Go codecs do not cover
type OpenCVLoader struct{}

var errEmptyMat = errors.New("decoded matrix is empty")

var openCVExtensions = []string{".jp2", ".pbm", ".pgm", ".ppm", ".pnm", ".sr", ".ras", ".exr", ".hdr"}

func registerOptionalLoaders(r *ImageLoaderRegistry) {
	loader := &OpenCVLoader{}
	for _, ext := range openCVExtensions {
		r.RegisterLoader(ext, loader)
	}
	logging.DebugLog("Registered OpenCV loader for %v", openCVExtensions)
}

// CanLoad reports whether the extension is one OpenCV was registered for
func (l *OpenCVLoader) CanLoad(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, known := range openCVExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// LoadImage decodes data with OpenCV and converts the result to an image.Image
func (l *OpenCVLoader) LoadImage(path string, data []byte) (image.Image, error) {
	if data == nil {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, newImageLoadError(err, path)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, newImageLoadError(errEmptyMat, path)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, newImageLoadError(err, path)
	}
	return img, nil
}
