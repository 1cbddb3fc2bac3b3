//go:build !gocv

package imageprocessor

// OpenCV decoding is only compiled in with the gocv build tag
func registerOptionalLoaders(*ImageLoaderRegistry) {}
