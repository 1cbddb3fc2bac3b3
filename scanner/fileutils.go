package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imagedupes/imageprocessor"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// DefaultExcludes are path fragments skipped by default, matched case-insensitively
var DefaultExcludes = []string{
	"/.",
	"iphoto library",
	"temp",
	"library/developer",
	"library/application support/",
}

// EnumerateOptions selects which files become cache keys
type EnumerateOptions struct {
	// Fs is the filesystem to walk, the OS filesystem when nil
	Fs afero.Fs
	// Roots are directories to walk or individual files
	Roots []string
	// CanLoad reports whether a path has a recognised image extension
	CanLoad func(path string) bool
	// Excludes are path fragments to skip
	Excludes []string
}

// Enumerate returns the deduplicated, sorted image paths under the roots.
// Unreadable entries are skipped and reported together in the returned error,
// alongside every path that could be listed.
func Enumerate(opts EnumerateOptions) ([]string, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	canLoad := opts.CanLoad
	if canLoad == nil {
		canLoad = imageprocessor.IsImageFile
	}
	excludes := make([]string, 0, len(opts.Excludes))
	for _, e := range opts.Excludes {
		if e != "" {
			excludes = append(excludes, strings.ToLower(e))
		}
	}

	seen := make(map[string]struct{})
	var walkErrs *multierror.Error

	for _, root := range opts.Roots {
		root = filepath.Clean(root)
		err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				walkErrs = multierror.Append(walkErrs, errors.Wrapf(err, "walk %s", path))
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if isExcluded(path, excludes) {
				if info.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !info.Mode().IsRegular() || !canLoad(path) {
				return nil
			}
			seen[path] = struct{}{}
			return nil
		})
		if err != nil {
			walkErrs = multierror.Append(walkErrs, errors.Wrapf(err, "walk %s", root))
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, walkErrs.ErrorOrNil()
}

func isExcluded(path string, excludes []string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, e := range excludes {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

// FileStats counts the enumerated files by family
type FileStats struct {
	TotalFiles int
	RawFiles   int
	TifFiles   int
}

// CountFiles classifies keys by format family
func CountFiles(keys []string) FileStats {
	stats := FileStats{TotalFiles: len(keys)}
	for _, k := range keys {
		switch {
		case imageprocessor.IsRawFormat(k):
			stats.RawFiles++
		case imageprocessor.IsTiffFormat(k):
			stats.TifFiles++
		}
	}
	return stats
}
