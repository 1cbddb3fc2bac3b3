package imageprocessor

import (
	"bytes"
	"context"
	"image"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const dcrawTimeout = 30 * time.Second

// DcrawLoader extracts the camera thumbnail with dcraw. Only used when dcraw is installed.
type DcrawLoader struct {
	BaseImageLoader
	binary string
}

// NewDcrawLoader returns a loader using the dcraw found on PATH
func NewDcrawLoader() (*DcrawLoader, error) {
	bin, err := exec.LookPath("dcraw")
	if err != nil {
		return nil, errors.Wrap(err, "dcraw not found")
	}
	return &DcrawLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatRAW, FormatCR2, FormatNEF, FormatARW, FormatDNG},
		},
		binary: bin,
	}, nil
}

// LoadImage runs dcraw -e -c and decodes the thumbnail it writes to stdout
func (l *DcrawLoader) LoadImage(path string, _ []byte) (image.Image, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dcrawTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.binary, "-e", "-c", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, newImageLoadError(errors.Wrapf(err, "dcraw: %s", bytes.TrimSpace(stderr.Bytes())), path)
	}

	img, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, newImageLoadError(err, path)
	}
	return img, nil
}
