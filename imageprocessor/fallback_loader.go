package imageprocessor

import (
	"image"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// FallbackLoader tries each loader in turn and returns the first image decoded
type FallbackLoader struct {
	loaders []ImageLoader
}

// NewFallbackLoader chains loaders, most preferred first
func NewFallbackLoader(loaders ...ImageLoader) *FallbackLoader {
	return &FallbackLoader{loaders: loaders}
}

func (l *FallbackLoader) CanLoad(path string) bool {
	for _, loader := range l.loaders {
		if loader.CanLoad(path) {
			return true
		}
	}
	return false
}

func (l *FallbackLoader) LoadImage(path string, data []byte) (image.Image, error) {
	var result *multierror.Error
	for _, loader := range l.loaders {
		if !loader.CanLoad(path) {
			continue
		}
		img, err := loader.LoadImage(path, data)
		if err == nil && img != nil {
			return img, nil
		}
		result = multierror.Append(result, err)
	}
	if result == nil {
		return nil, errors.Wrapf(ErrUnreadableImage, "no loader accepts %s", path)
	}
	return nil, errors.Wrapf(ErrUnreadableImage, "all loaders failed for %s: %v", path, result)
}

// Close closes every chained loader that holds resources
func (l *FallbackLoader) Close() error {
	var result *multierror.Error
	for _, loader := range l.loaders {
		if c, ok := loader.(io.Closer); ok {
			result = multierror.Append(result, c.Close())
		}
	}
	return result.ErrorOrNil()
}
