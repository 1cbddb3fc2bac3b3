package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"image"
	"os/exec"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Preview tags in order of preference, largest first
var previewTags = []string{
	"JpgFromRaw",
	"LargestImagePreview",
	"PreviewImage",
	"OtherImage",
	"ThumbnailImage",
}

const base64Prefix = "base64:"

// RawPreviewLoader decodes RAW files through the JPEG preview embedded by the camera
type RawPreviewLoader struct {
	BaseImageLoader

	// exiftool runs as one long-lived process; requests are serialised
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewRawPreviewLoader starts an exiftool process with binary extraction enabled
func NewRawPreviewLoader() (*RawPreviewLoader, error) {
	et, err := exiftool.NewExiftool(exiftool.ExtractAllBinaryMetadata())
	if err != nil {
		return nil, errors.Wrap(err, "start exiftool")
	}
	return &RawPreviewLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatRAW, FormatCR2, FormatCR3, FormatNEF, FormatARW, FormatDNG},
		},
		et: et,
	}, nil
}

// LoadImage extracts the best embedded preview; data is unused since exiftool reads the path
func (l *RawPreviewLoader) LoadImage(path string, _ []byte) (image.Image, error) {
	l.mu.Lock()
	fileInfos := l.et.ExtractMetadata(path)
	l.mu.Unlock()

	if len(fileInfos) == 0 {
		return nil, errors.Wrapf(ErrUnreadableImage, "no metadata extracted: %s", path)
	}
	fileInfo := fileInfos[0]
	if fileInfo.Err != nil {
		return nil, newImageLoadError(fileInfo.Err, path)
	}

	for _, tag := range previewTags {
		raw, ok := decodePreviewField(fileInfo, tag)
		if !ok {
			continue
		}
		img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
		if err == nil {
			return img, nil
		}
	}

	return nil, errors.Wrapf(ErrUnreadableImage, "no decodable preview in %s", path)
}

// Close stops the exiftool process
func (l *RawPreviewLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.et.Close()
}

func decodePreviewField(fileInfo exiftool.FileMetadata, tag string) ([]byte, bool) {
	value, err := fileInfo.GetString(tag)
	if err != nil || !strings.HasPrefix(value, base64Prefix) {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, base64Prefix))
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

// hasExiftool checks if exiftool is available on the system
func hasExiftool() bool {
	_, err := exec.LookPath("exiftool")
	return err == nil
}
