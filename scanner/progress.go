package scanner

import (
	"fmt"
	"io"
	"time"

	"imagedupes/imageprocessor"
	"imagedupes/logging"
	"imagedupes/types"

	"github.com/schollz/progressbar/v3"
)

// NewProgressTracker initializes the progress tracker. The bar is only drawn when show is set.
func NewProgressTracker(stats FileStats, out io.Writer, show bool) *ProgressTracker {
	tracker := &ProgressTracker{stats: stats}
	if show {
		tracker.bar = progressbar.NewOptions(stats.TotalFiles,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Fingerprinting images"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
		)
	}
	return tracker
}

// Record updates the tracker with the outcome of one key
func (p *ProgressTracker) Record(key string, record types.FingerprintRecord, err error) {
	isRaw := imageprocessor.IsRawFormat(key)
	isTif := imageprocessor.IsTiffFormat(key)

	p.mu.Lock()
	p.processed++
	if isRaw {
		p.rawProcessed++
	}
	if isTif {
		p.tifProcessed++
	}

	switch {
	case err != nil:
		p.errors++
		if isRaw {
			p.rawErrors++
		}
		if isTif {
			p.tifErrors++
		}
		logging.LogImageProcessed(key, false, err.Error())
	case record.DecodeError != "":
		p.partial++
		logging.LogImageProcessed(key, false, record.DecodeError)
	default:
		logging.LogImageProcessed(key, true, "")
	}
	p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Stop finishes the progress bar
func (p *ProgressTracker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil && !p.stopped {
		_ = p.bar.Finish()
	}
	p.stopped = true
}

// PrintStartupInfo displays information about the scan before starting
func PrintStartupInfo(out io.Writer, stats FileStats, options ScanOptions) {
	fmt.Fprintf(out, "Starting image fingerprinting...\nTotal image files to process: %d (including %d RAW files and %d TIF files)\n",
		stats.TotalFiles, stats.RawFiles, stats.TifFiles)

	if options.DebugMode {
		fmt.Fprintf(out, "Debug mode: enabled\n")
		logging.DebugLog("Found %d image files to process (%d RAW files, %d TIF files)",
			stats.TotalFiles, stats.RawFiles, stats.TifFiles)
	}
}

// PrintCompletionStats displays statistics after scan completion
func PrintCompletionStats(out io.Writer, tracker *ProgressTracker, result RunResult, options ScanOptions) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	if options.DebugMode {
		logging.DebugLog("Scan completed in %v. Processed: %d, Errors: %d, Undecoded: %d, RAW files: %d, RAW errors: %d, TIF files: %d, TIF errors: %d",
			result.Duration, tracker.processed, tracker.errors, tracker.partial, tracker.rawProcessed, tracker.rawErrors,
			tracker.tifProcessed, tracker.tifErrors)
	}

	fmt.Fprintln(out, "Fingerprinting complete.")
	fmt.Fprintf(out, "Processed %d images in %v (%d computed, %d from cache).\n",
		tracker.processed, result.Duration.Round(time.Millisecond), result.Extracted,
		int64(tracker.processed)-result.Extracted)

	if tracker.rawProcessed > 0 {
		fmt.Fprintf(out, "Successfully processed %d/%d RAW image files.\n",
			tracker.rawProcessed-tracker.rawErrors, tracker.stats.RawFiles)
	}
	if tracker.tifProcessed > 0 {
		fmt.Fprintf(out, "Successfully processed %d/%d TIF image files.\n",
			tracker.tifProcessed-tracker.tifErrors, tracker.stats.TifFiles)
	}
	if tracker.partial > 0 {
		fmt.Fprintf(out, "%d files could not be decoded and were kept with file-level fields only.\n", tracker.partial)
	}
	if tracker.errors > 0 {
		fmt.Fprintf(out, "Encountered %d errors during fingerprinting.\n", tracker.errors)
		fmt.Fprintln(out, "Check the log file for details.")
	}
}
