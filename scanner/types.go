package scanner

import (
	"io"
	"sync"
	"time"

	"imagedupes/pcache"

	"github.com/schollz/progressbar/v3"
)

// Cache is the part of pcache.Cache a scan drives
type Cache interface {
	Submit(key string) *pcache.Handle
	AwaitAll()
	Stats() pcache.Stats
}

// ScanOptions defines the options for scanning
type ScanOptions struct {
	DebugMode bool
	// ShowProgress draws a progress bar on Output
	ShowProgress bool
	// Output receives progress and summary text, os.Stdout when nil
	Output io.Writer
}

// RunResult summarises one scan
type RunResult struct {
	Stats FileStats
	// Resolved counts keys that produced a record, Partial those whose image could not be decoded
	Resolved int
	Partial  int
	Failed   int
	// Extracted counts records computed in this run rather than restored or shared
	Extracted int64
	Duration  time.Duration
	// Failures maps each failed key to its error
	Failures map[string]error
}

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	mu           sync.Mutex
	bar          *progressbar.ProgressBar
	stats        FileStats
	processed    int
	errors       int
	partial      int
	rawProcessed int
	rawErrors    int
	tifProcessed int
	tifErrors    int
	stopped      bool
}
