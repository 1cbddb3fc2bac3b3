// Package matcher finds duplicate and near-duplicate images among fingerprint records.
//
// It has two modes. Nearest reports, for every eligible record, the closest other
// record by weighted quadrant fingerprint distance. Cluster connects records that
// share a byte-exact, pixel-exact, rotation-exact or perceptual match and reports
// the connected components.
package matcher

import (
	"context"
	"runtime"
	"sort"

	"imagedupes/imageprocessor"
	"imagedupes/types"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrQueryNotDecoded is returned by Query for a record without pixel data
var ErrQueryNotDecoded = errors.New("query image has no decoded pixels")

// Matcher compares records under one configuration. It is safe for concurrent use.
type Matcher struct {
	cfg Config
}

// New validates cfg and returns a Matcher that applies it
func New(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid matcher config")
	}
	return &Matcher{cfg: cfg}, nil
}

// Config returns the configuration in use
func (m *Matcher) Config() Config {
	return m.cfg
}

// IsEligible reports whether r has decoded pixels and clears the minimum dimension
func (m *Matcher) IsEligible(r types.FingerprintRecord) bool {
	return r.HasImage() && r.Width >= m.cfg.MinDimension && r.Height >= m.cfg.MinDimension
}

// Eligible returns the eligible records sorted by key
func (m *Matcher) Eligible(records []types.FingerprintRecord) []types.FingerprintRecord {
	out := make([]types.FingerprintRecord, 0, len(records))
	for _, r := range records {
		if m.IsEligible(r) {
			out = append(out, r)
		}
	}
	sortByKey(out)
	return out
}

// Nearest reports the closest other eligible record for each eligible record,
// when that distance is below the ceiling. One eligible record yields no matches.
func (m *Matcher) Nearest(ctx context.Context, records []types.FingerprintRecord) (types.Report, error) {
	eligible := m.Eligible(records)
	report := types.Report{
		Considered: len(eligible),
		Skipped:    len(records) - len(eligible),
	}

	found := make([]*types.Match, len(eligible))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range eligible {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found[i] = m.closest(eligible[i], eligible)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Report{}, errors.Wrap(err, "nearest neighbour search")
	}

	for _, match := range found {
		if match != nil {
			report.Matches = append(report.Matches, *match)
		}
	}
	return report, nil
}

// closest scans candidates, which must be sorted by key, so the first of equally
// distant candidates wins
func (m *Matcher) closest(r types.FingerprintRecord, candidates []types.FingerprintRecord) *types.Match {
	var best *types.Match
	for _, other := range candidates {
		if other.Key == r.Key || !m.comparable(r, other) {
			continue
		}
		d, ok := m.QuadrantDistance(r.QuadrantFingerprint, other.QuadrantFingerprint)
		if !ok || d >= m.cfg.DistanceCeiling {
			continue
		}
		if best == nil || d < best.Distance {
			best = &types.Match{Key: r.Key, MatchedKey: other.Key, Distance: d, Reason: types.ReasonNearest}
		}
	}
	return best
}

// Query ranks records by quadrant distance to query and returns at most limit
// matches below the ceiling, closest first. A limit below 1 returns every match.
func (m *Matcher) Query(query types.FingerprintRecord, records []types.FingerprintRecord, limit int) ([]types.Match, error) {
	if !query.HasImage() {
		return nil, errors.Wrap(ErrQueryNotDecoded, query.Key)
	}

	var matches []types.Match
	for _, r := range m.Eligible(records) {
		if r.Key == query.Key || !m.comparable(query, r) {
			continue
		}
		d, ok := m.QuadrantDistance(query.QuadrantFingerprint, r.QuadrantFingerprint)
		if !ok || d >= m.cfg.DistanceCeiling {
			continue
		}
		matches = append(matches, types.Match{Key: query.Key, MatchedKey: r.Key, Distance: d, Reason: types.ReasonNearest})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func sortByKey(records []types.FingerprintRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
}

func perceptualDistance(a, b types.FingerprintRecord) int {
	return imageprocessor.HammingDistance(a.PerceptualHash, b.PerceptualHash)
}
