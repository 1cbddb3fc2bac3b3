package utils

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseWeights parses a comma separated list of quadrant word weights, such as
// "1000000,10000,100,1". Range checks are left to the matcher config.
func ParseWeights(s string) ([]int64, error) {
	fields := strings.Split(s, ",")
	weights := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(strings.ReplaceAll(f, "_", ""))
		if f == "" {
			continue
		}
		w, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid weight %q in %q", f, s)
		}
		weights = append(weights, w)
	}
	if len(weights) == 0 {
		return nil, errors.Errorf("no weights in %q", s)
	}
	return weights, nil
}

// AbsPaths resolves every path against the working directory so cache keys are stable
// no matter where the tool is started from
func AbsPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", p)
		}
		out = append(out, abs)
	}
	return out, nil
}
