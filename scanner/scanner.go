// Package scanner enumerates image files and drives them through the fingerprint cache.
package scanner

import (
	"context"
	"os"
	"time"

	"imagedupes/logging"
	"imagedupes/pcache"
)

// Run submits every key to cache without blocking, then waits for all of them to
// resolve. Per-key failures are collected in the result and never abort the run.
// A cancelled ctx stops waiting early; submitted computations still finish in the
// cache and are kept by its next snapshot.
func Run(ctx context.Context, cache Cache, keys []string, options ScanOptions) (RunResult, error) {
	out := options.Output
	if out == nil {
		out = os.Stdout
	}

	stats := CountFiles(keys)
	PrintStartupInfo(out, stats, options)

	tracker := NewProgressTracker(stats, out, options.ShowProgress)
	defer tracker.Stop()

	startTime := time.Now()
	loadsBefore := cache.Stats().Loads

	handles := make([]*pcache.Handle, 0, len(keys))
	for _, key := range keys {
		handles = append(handles, cache.Submit(key))
	}
	if options.DebugMode {
		logging.DebugLog("Submitted %d keys", len(handles))
	}

	result := RunResult{Stats: stats, Failures: make(map[string]error)}
	for _, h := range handles {
		record, err := h.Wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Duration = time.Since(startTime)
			return result, ctxErr
		}
		tracker.Record(h.Key(), record, err)

		switch {
		case err != nil:
			result.Failed++
			result.Failures[h.Key()] = err
		case record.DecodeError != "":
			result.Resolved++
			result.Partial++
		default:
			result.Resolved++
		}
	}

	// Every handle has resolved; this is the barrier before any comparison runs
	cache.AwaitAll()

	result.Extracted = cache.Stats().Loads - loadsBefore
	result.Duration = time.Since(startTime)
	tracker.Stop()
	PrintCompletionStats(out, tracker, result, options)
	return result, nil
}
