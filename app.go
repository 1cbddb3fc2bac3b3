package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"imagedupes/config"
	"imagedupes/imageprocessor"
	"imagedupes/logging"
	"imagedupes/pcache"
	"imagedupes/scanner"
	"imagedupes/scanner/processor"
	"imagedupes/types"
	"imagedupes/utils"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app holds what every command that touches images needs
type app struct {
	registry  *imageprocessor.ImageLoaderRegistry
	extractor *processor.FeatureExtractor
	cache     *pcache.Cache
	metrics   *http.Server
}

func newStore(c config.CacheConfig) (pcache.SnapshotStore, error) {
	switch c.Store {
	case config.StoreFile:
		return pcache.NewFileStore(c.Dir)
	case config.StoreBolt:
		return pcache.NewBoltStore(c.BoltPath)
	case config.StoreS3:
		return pcache.NewS3Store(c.S3, logging.Logger())
	case config.StoreMemory:
		return pcache.NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown cache store %q", c.Store)
	}
}

// openApp builds the loader registry, restores the cache and starts the metrics endpoint
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	reg := prometheus.NewRegistry()
	metrics, err := pcache.NewMetrics(reg, cfg.Cache.Name)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg.Cache)
	if err != nil {
		return nil, errors.Wrap(err, "open cache store")
	}

	registry := imageprocessor.NewImageLoaderRegistry(imageprocessor.RegistryOptions{
		AutoOrient: cfg.Scan.AutoOrient,
		EnableRaw:  cfg.Scan.EnableRaw,
	})
	extractor := processor.NewFeatureExtractor(registry, debugMode)

	cache, err := pcache.New(ctx, extractor.Extract,
		pcache.WithName(cfg.Cache.Name),
		pcache.WithWorkers(cfg.Cache.Workers),
		pcache.WithStore(store),
		pcache.WithLogger(logging.Logger()),
		pcache.WithMetrics(metrics),
		pcache.WithResetOnCorruption(cfg.Cache.ResetOnCorruption),
	)
	if err != nil {
		return nil, abandon(err, registry, store)
	}

	a := &app{registry: registry, extractor: extractor, cache: cache}
	if cfg.Metrics.Listen != "" {
		a.metrics = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.LogError("metrics endpoint stopped: %v", err)
			}
		}()
	}
	return a, nil
}

// abandon releases resources acquired before a failed step. Close errors are
// appended to err.
func abandon(err error, closers ...io.Closer) error {
	var result *multierror.Error
	for _, c := range closers {
		if cerr := c.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
	}
	if result == nil {
		return err
	}
	return multierror.Append(err, result.Errors...)
}

// Close snapshots the cache and releases everything openApp acquired
func (a *app) Close() error {
	var result *multierror.Error

	// The snapshot must be written even when the command context was cancelled
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := a.cache.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.registry.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// scanRoots enumerates roots and fingerprints every image found, returning all cached records
func (a *app) scanRoots(ctx context.Context, roots []string) ([]types.FingerprintRecord, scanner.RunResult, error) {
	abs, err := utils.AbsPaths(roots)
	if err != nil {
		return nil, scanner.RunResult{}, err
	}

	keys, err := scanner.Enumerate(scanner.EnumerateOptions{
		Roots:    abs,
		CanLoad:  a.registry.CanLoadFile,
		Excludes: cfg.Scan.Excludes,
	})
	if err != nil {
		// Unreadable directories are reported but do not stop the scan
		logging.LogWarning("Some paths could not be listed: %v", err)
	}

	result, err := scanner.Run(ctx, a.cache, keys, scanner.ScanOptions{
		DebugMode:    debugMode,
		ShowProgress: true,
	})
	if err != nil {
		return nil, result, err
	}
	for key, ferr := range result.Failures {
		logging.LogError("Failed to fingerprint %s: %v", key, ferr)
	}

	records := make([]types.FingerprintRecord, 0, len(keys))
	all := a.cache.All()
	for _, k := range keys {
		if r, ok := all[k]; ok {
			records = append(records, r)
		}
	}
	return records, result, nil
}
