package processor

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"

	"imagedupes/imageprocessor"
	"imagedupes/logging"
	"imagedupes/types"

	"github.com/pkg/errors"
)

// ErrUnexpectedIO marks a failure to read a file that was expected to be readable
var ErrUnexpectedIO = errors.New("unexpected i/o failure")

// FeatureExtractor turns one file into a FingerprintRecord
type FeatureExtractor struct {
	DebugMode bool
	registry  *imageprocessor.ImageLoaderRegistry
}

// NewFeatureExtractor creates an extractor that decodes through registry
func NewFeatureExtractor(registry *imageprocessor.ImageLoaderRegistry, debugMode bool) *FeatureExtractor {
	return &FeatureExtractor{
		DebugMode: debugMode,
		registry:  registry,
	}
}

// Extract reads key from disk and computes its record. Undecodable images yield a
// partial record with only file-level fields and a nil error; read failures return
// ErrUnexpectedIO.
func (p *FeatureExtractor) Extract(ctx context.Context, key string) (types.FingerprintRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.FingerprintRecord{}, err
	}

	info, err := os.Stat(key)
	if err != nil {
		return types.FingerprintRecord{}, errors.Wrapf(ErrUnexpectedIO, "cannot stat file %s: %v", key, err)
	}
	if !info.Mode().IsRegular() {
		return types.FingerprintRecord{}, errors.Wrapf(ErrUnexpectedIO, "not a regular file: %s", key)
	}

	data, err := os.ReadFile(key)
	if err != nil {
		return types.FingerprintRecord{}, errors.Wrapf(ErrUnexpectedIO, "cannot read file %s: %v", key, err)
	}

	record := types.FingerprintRecord{
		Key:             key,
		FileName:        filepath.Base(key),
		FileSize:        int64(len(data)),
		FileContentHash: imageprocessor.ContentHash(data),
	}

	full, err := p.computeImageFields(key, data, record)
	if err != nil {
		record.DecodeError = err.Error()
		logging.LogImageProcessed(key, false, record.DecodeError)
		return record, nil
	}

	if p.DebugMode {
		logging.DebugLog("Image hashes - %s - %dx%d pHash: %016x fingerprint: %v",
			key, full.Width, full.Height, full.PerceptualHash, full.QuadrantFingerprint)
	}
	return full, nil
}

// computeImageFields decodes data and fills in the image-derived fields on a copy of record.
// Panics inside codecs or transforms are reported as structural decode anomalies.
func (p *FeatureExtractor) computeImageFields(path string, data []byte, record types.FingerprintRecord) (result types.FingerprintRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			stackTrace := debug.Stack()
			logging.LogError("Panic during image decoding: %v, file: %s\nStack trace: %s", r, path, string(stackTrace))
			result = types.FingerprintRecord{}
			err = errors.Wrapf(imageprocessor.ErrStructuralDecodeAnomaly, "%s: %v", path, r)
		}
	}()

	img, err := p.registry.LoadImage(path, data)
	if err != nil {
		return types.FingerprintRecord{}, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	record.Width = w
	record.Height = h
	record.AspectRatio = aspectRatio(w, h)
	record.FullImageHash = imageprocessor.PixelHash(img)
	record.PerceptualHash, record.PerceptualFlat = imageprocessor.PerceptualHash(img)
	record.QuadrantFingerprint = imageprocessor.QuadrantFingerprint(img)
	record.RotationHashes = imageprocessor.RotationHashes(img)
	record.RotationInvariantHash = imageprocessor.RotationInvariantHash(record.RotationHashes)

	return record, nil
}

// aspectRatio returns min(w/h, h/w)
func aspectRatio(w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	if w < h {
		return float64(w) / float64(h)
	}
	return float64(h) / float64(w)
}
