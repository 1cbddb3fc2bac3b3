package imageprocessor

import (
	"image"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"imagedupes/logging"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// RegistryOptions controls which loaders a registry starts with
type RegistryOptions struct {
	AutoOrient bool
	// EnableRaw registers the RAW preview loaders: exiftool and dcraw when installed,
	// then the built-in embedded JPEG scanner
	EnableRaw bool
}

// DefaultRegistryOptions returns the options used by the CLI
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{AutoOrient: true, EnableRaw: true}
}

// ImageLoaderRegistry maintains a registry of image loaders keyed by extension
type ImageLoaderRegistry struct {
	loaders map[string]ImageLoader
	mutex   sync.RWMutex
}

// NewImageLoaderRegistry creates a new image loader registry
func NewImageLoaderRegistry(opts RegistryOptions) *ImageLoaderRegistry {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	registry.registerStandardLoaders(opts)
	if opts.EnableRaw {
		registry.registerRawLoaders()
	}
	registerOptionalLoaders(registry)

	return registry
}

func (r *ImageLoaderRegistry) registerStandardLoaders(opts RegistryOptions) {
	standardLoader := NewStandardImageLoader(opts.AutoOrient)
	for _, ext := range StandardExtensions() {
		r.RegisterLoader(ext, standardLoader)
	}
}

// registerRawLoaders chains the exiftool and dcraw loaders, when installed, in front
// of the built-in embedded preview scanner
func (r *ImageLoaderRegistry) registerRawLoaders() {
	var chain []ImageLoader

	if hasExiftool() {
		rawLoader, err := NewRawPreviewLoader()
		if err != nil {
			logging.LogWarning("Failed to start exiftool: %v", err)
		} else {
			chain = append(chain, rawLoader)
		}
	} else {
		logging.LogInfo("exiftool not found, using built-in RAW preview extraction")
	}

	if dcraw, err := NewDcrawLoader(); err == nil {
		chain = append(chain, dcraw)
	}
	chain = append(chain, NewEmbeddedPreviewLoader())

	loader := NewFallbackLoader(chain...)
	for _, ext := range RawExtensions() {
		r.RegisterLoader(ext, loader)
	}
	logging.DebugLog("Registered %d RAW loaders for %d extensions", len(chain), len(RawExtensions()))
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the loader for the given path, or nil
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.loaders[strings.ToLower(filepath.Ext(path))]
}

// CanLoadFile checks if any registered loader can handle the given file
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	return r.GetLoader(path) != nil
}

// Extensions lists the registered extensions, sorted
func (r *ImageLoaderRegistry) Extensions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// LoadImage decodes an image using the appropriate registered loader
func (r *ImageLoaderRegistry) LoadImage(path string, data []byte) (image.Image, error) {
	loader := r.GetLoader(path)
	if loader == nil {
		return nil, errors.Wrapf(ErrUnreadableImage, "no suitable loader found for: %s", path)
	}

	img, err := loader.LoadImage(path, data)
	if err != nil {
		if errors.Is(err, ErrUnreadableImage) {
			return nil, err
		}
		return nil, newImageLoadError(err, path)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.Wrapf(ErrUnreadableImage, "image is empty after loading: %s", path)
	}
	return img, nil
}

// Close releases loaders that hold external processes
func (r *ImageLoaderRegistry) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result *multierror.Error
	closed := make(map[ImageLoader]bool)
	for _, loader := range r.loaders {
		c, ok := loader.(io.Closer)
		if !ok || closed[loader] {
			continue
		}
		closed[loader] = true
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
