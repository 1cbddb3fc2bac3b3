// Package imageprocessor decodes image files and derives the fingerprints used for duplicate detection.
package imageprocessor

import "image"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage decodes the file. data holds the file bytes already read by the caller;
	// loaders that need the file on disk may ignore it and read path instead.
	LoadImage(path string, data []byte) (image.Image, error)
}
