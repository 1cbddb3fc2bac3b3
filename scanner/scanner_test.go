package scanner

import (
	"bytes"
	"context"
	"testing"

	"imagedupes/pcache"
	"imagedupes/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, loader pcache.Loader, opts ...pcache.Option) *pcache.Cache {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := pcache.New(context.Background(), loader, append(opts, pcache.WithLogger(logger))...)
	require.NoError(t, err)
	return c
}

func fakeExtract(ctx context.Context, key string) (types.FingerprintRecord, error) {
	switch key {
	case "/p/gone.jpg":
		return types.FingerprintRecord{}, errors.New("permission denied")
	case "/p/broken.nef":
		return types.FingerprintRecord{Key: key, FileSize: 3, DecodeError: "no preview"}, nil
	}
	return types.FingerprintRecord{Key: key, FileSize: 10, Width: 100, Height: 100}, nil
}

func TestRun(t *testing.T) {
	cache := newCache(t, fakeExtract)
	keys := []string{"/p/a.jpg", "/p/broken.nef", "/p/gone.jpg", "/p/scan.tif"}

	var out bytes.Buffer
	result, err := Run(context.Background(), cache, keys, ScanOptions{Output: &out, ShowProgress: true})
	require.NoError(t, err)

	assert.Equal(t, FileStats{TotalFiles: 4, RawFiles: 1, TifFiles: 1}, result.Stats)
	assert.Equal(t, 3, result.Resolved)
	assert.Equal(t, 1, result.Partial)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int64(4), result.Extracted)
	assert.Contains(t, result.Failures, "/p/gone.jpg")

	assert.Contains(t, out.String(), "Total image files to process: 4")
	assert.Contains(t, out.String(), "Encountered 1 errors")
	assert.Len(t, cache.Records(), 3)
}

func TestRunAgainUsesCache(t *testing.T) {
	store := pcache.NewMemoryStore()
	keys := []string{"/p/a.jpg", "/p/b.jpg"}

	first := newCache(t, fakeExtract, pcache.WithStore(store))
	_, err := Run(context.Background(), first, keys, ScanOptions{Output: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NoError(t, first.Close(context.Background()))

	second := newCache(t, fakeExtract, pcache.WithStore(store))
	result, err := Run(context.Background(), second, keys, ScanOptions{Output: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Extracted)
	assert.Equal(t, 2, result.Resolved)
}

func TestRunCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cache := newCache(t, func(ctx context.Context, key string) (types.FingerprintRecord, error) {
		<-release
		return types.FingerprintRecord{Key: key}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, cache, []string{"/p/a.jpg"}, ScanOptions{Output: &bytes.Buffer{}})
	assert.ErrorIs(t, err, context.Canceled)
}
