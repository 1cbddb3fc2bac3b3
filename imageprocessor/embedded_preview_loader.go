package imageprocessor

import (
	"bytes"
	"encoding/binary"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// maxPreviewCandidates bounds how many JPEG start markers are inspected per file
const maxPreviewCandidates = 64

var jpegSOI = []byte{0xFF, 0xD8, 0xFF}

// EmbeddedPreviewLoader decodes RAW files without external tools by locating the
// JPEG previews cameras embed in the file and decoding the largest one
type EmbeddedPreviewLoader struct {
	BaseImageLoader
}

// NewEmbeddedPreviewLoader creates a loader for every RAW extension
func NewEmbeddedPreviewLoader() *EmbeddedPreviewLoader {
	return &EmbeddedPreviewLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatRAW, FormatCR2, FormatCR3, FormatNEF, FormatARW, FormatDNG},
		},
	}
}

// LoadImage finds and decodes the largest embedded JPEG preview
func (l *EmbeddedPreviewLoader) LoadImage(path string, data []byte) (image.Image, error) {
	if data == nil {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, newImageLoadError(err, path)
		}
	}

	if GetFileFormat(path) == FormatCR3 {
		if err := checkISOBMFF(data); err != nil {
			return nil, newImageLoadError(err, path)
		}
	}

	start, ok := largestPreview(data)
	if !ok {
		return nil, errors.Wrapf(ErrUnreadableImage, "no embedded JPEG preview: %s", path)
	}

	img, err := imaging.Decode(bytes.NewReader(data[start:]))
	if err != nil {
		return nil, newImageLoadError(err, path)
	}
	return img, nil
}

// largestPreview returns the offset of the embedded JPEG with the most pixels.
// Only headers are parsed here, so small EXIF thumbnails cost almost nothing.
func largestPreview(data []byte) (int, bool) {
	best, bestArea := -1, 0
	offset := 0

	for n := 0; n < maxPreviewCandidates; n++ {
		i := bytes.Index(data[offset:], jpegSOI)
		if i < 0 {
			break
		}
		start := offset + i
		offset = start + len(jpegSOI)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(data[start:]))
		if err != nil || format != "jpeg" {
			continue
		}
		if area := cfg.Width * cfg.Height; area > bestArea {
			best, bestArea = start, area
		}
	}
	return best, best >= 0
}

// isoBox is an ISO base media file format box header
type isoBox struct {
	size       uint64
	boxType    string
	headerSize int
}

func readISOBox(data []byte) (isoBox, error) {
	if len(data) < 8 {
		return isoBox{}, errors.New("truncated box header")
	}
	box := isoBox{
		size:       uint64(binary.BigEndian.Uint32(data[:4])),
		boxType:    string(data[4:8]),
		headerSize: 8,
	}
	if box.size == 1 {
		if len(data) < 16 {
			return isoBox{}, errors.New("truncated extended box header")
		}
		box.size = binary.BigEndian.Uint64(data[8:16])
		box.headerSize = 16
	}
	return box, nil
}

// checkISOBMFF verifies the file opens with an ftyp box, as every CR3 file does
func checkISOBMFF(data []byte) error {
	box, err := readISOBox(data)
	if err != nil {
		return err
	}
	if box.boxType != "ftyp" {
		return errors.Errorf("first box is %q, not ftyp", box.boxType)
	}
	if box.size < uint64(box.headerSize) || box.size > uint64(len(data)) {
		return errors.Errorf("ftyp box size %d out of range", box.size)
	}
	return nil
}
