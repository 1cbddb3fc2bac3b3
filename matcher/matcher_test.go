package matcher

import (
	"context"
	"math/rand"
	"testing"

	"imagedupes/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record returns a decoded 100x100 record whose hashes are unique to seed
func record(key string, seed uint64) types.FingerprintRecord {
	return types.FingerprintRecord{
		Key:                   key,
		FileName:              key,
		FileSize:              int64(1000 + seed),
		FileContentHash:       0x1000 + seed,
		Width:                 100,
		Height:                100,
		AspectRatio:           1,
		FullImageHash:         0x2000 + seed,
		PerceptualHash:        seed * 0x0101010101,
		QuadrantFingerprint:   []uint64{seed, seed, seed, seed},
		RotationInvariantHash: 0x3000 + seed,
	}
}

func newMatcher(t *testing.T, mutate func(*Config)) *Matcher {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero min dimension", mutate: func(c *Config) { c.MinDimension = 0 }, wantErr: "min_dimension"},
		{name: "no weights", mutate: func(c *Config) { c.WordWeights = nil }, wantErr: "1 to 4 entries"},
		{name: "five weights", mutate: func(c *Config) { c.WordWeights = []int64{5, 4, 3, 2, 1} }, wantErr: "1 to 4 entries"},
		{name: "negative weight", mutate: func(c *Config) { c.WordWeights = []int64{10, -1} }, wantErr: "negative"},
		{name: "increasing weights", mutate: func(c *Config) { c.WordWeights = []int64{1, 100} }, wantErr: "exceeds"},
		{name: "single weight", mutate: func(c *Config) { c.WordWeights = []int64{1} }},
		{name: "zero ceiling", mutate: func(c *Config) { c.DistanceCeiling = 0 }, wantErr: "distance_ceiling"},
		{name: "threshold too large", mutate: func(c *Config) { c.PerceptualThreshold = 64 }, wantErr: "perceptual_threshold"},
		{name: "threshold zero", mutate: func(c *Config) { c.PerceptualThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestQuadrantDistance(t *testing.T) {
	m := newMatcher(t, nil)

	d, ok := m.QuadrantDistance([]uint64{0b11, 0b1, 0, 0b111}, []uint64{0b00, 0b0, 0, 0b000})
	require.True(t, ok)
	assert.Equal(t, int64(2*1_000_000+1*10_000+3), d)

	_, ok = m.QuadrantDistance([]uint64{1, 2}, []uint64{1, 2, 3})
	assert.False(t, ok)

	_, ok = m.QuadrantDistance(nil, nil)
	assert.False(t, ok)

	short := newMatcher(t, func(c *Config) { c.WordWeights = []int64{7} })
	d, ok = short.QuadrantDistance([]uint64{1, 0xFF}, []uint64{0, 0})
	require.True(t, ok)
	assert.Equal(t, int64(7), d)
}

func TestEligible(t *testing.T) {
	m := newMatcher(t, nil)

	small := record("small.png", 1)
	small.Width, small.Height = 50, 50
	wide := record("wide.png", 2)
	wide.Height = 63
	undecoded := types.FingerprintRecord{Key: "broken.jpg", FileSize: 10, DecodeError: "truncated"}

	got := m.Eligible([]types.FingerprintRecord{record("z.png", 3), small, wide, undecoded, record("a.png", 4)})
	require.Len(t, got, 2)
	assert.Equal(t, "a.png", got[0].Key)
	assert.Equal(t, "z.png", got[1].Key)
}

func TestNearest(t *testing.T) {
	m := newMatcher(t, nil)

	x := record("x.jpg", 1)
	x.QuadrantFingerprint = []uint64{0b10, 0xFF, 0, 0}
	y := record("y.jpg", 2)
	y.QuadrantFingerprint = []uint64{0b10, 0xFE, 0, 0}
	z := record("z.jpg", 3)
	z.QuadrantFingerprint = []uint64{0b01, 0x00, 0, 0}
	odd := record("odd.jpg", 4)
	odd.QuadrantFingerprint = []uint64{0b10, 0xFF}

	report, err := m.Nearest(context.Background(), []types.FingerprintRecord{z, y, odd, x})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Considered)
	assert.Equal(t, []types.Match{
		{Key: "x.jpg", MatchedKey: "y.jpg", Distance: 10_000, Reason: types.ReasonNearest},
		{Key: "y.jpg", MatchedKey: "x.jpg", Distance: 10_000, Reason: types.ReasonNearest},
	}, report.Matches)
}

func TestNearestTieGoesToSmallerKey(t *testing.T) {
	m := newMatcher(t, nil)

	centre := record("m.jpg", 1)
	centre.QuadrantFingerprint = []uint64{0, 0, 0, 0}
	left := record("b.jpg", 2)
	left.QuadrantFingerprint = []uint64{0, 0, 0, 1}
	right := record("a.jpg", 3)
	right.QuadrantFingerprint = []uint64{0, 0, 0, 2}

	report, err := m.Nearest(context.Background(), []types.FingerprintRecord{centre, left, right})
	require.NoError(t, err)

	byKey := make(map[string]types.Match)
	for _, match := range report.Matches {
		byKey[match.Key] = match
	}
	assert.Equal(t, "a.jpg", byKey["m.jpg"].MatchedKey)
	assert.Equal(t, int64(1), byKey["m.jpg"].Distance)
}

func TestNearestSingleRecord(t *testing.T) {
	m := newMatcher(t, nil)

	report, err := m.Nearest(context.Background(), []types.FingerprintRecord{record("only.png", 1)})
	require.NoError(t, err)
	assert.Empty(t, report.Matches)
	assert.Equal(t, 1, report.Considered)

	report, err = m.Nearest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Matches)
}

func TestNearestCancelled(t *testing.T) {
	m := newMatcher(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Nearest(ctx, []types.FingerprintRecord{record("a.png", 1), record("b.png", 2)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClusterTransitivity(t *testing.T) {
	m := newMatcher(t, nil)

	a := record("a.jpg", 1)
	b := record("b.jpg", 2)
	b.FileContentHash, b.FileSize = a.FileContentHash, a.FileSize
	c := record("c.jpg", 3)
	a.PerceptualHash = 0xFFFF_FFFF_FFFF
	b.PerceptualHash = 0b1010
	c.PerceptualHash = 0b1011

	report := m.Cluster([]types.FingerprintRecord{c, a, b})

	require.Len(t, report.Groups, 1)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, report.Groups[0].Keys)
	assert.ElementsMatch(t, []types.Match{
		{Key: "a.jpg", MatchedKey: "b.jpg", Reason: types.ReasonFileExact},
		{Key: "b.jpg", MatchedKey: "c.jpg", Distance: 1, Reason: types.ReasonPerceptual},
	}, report.Groups[0].Edges)
	assert.Empty(t, report.Violations)
}

func TestClusterEdgeReasons(t *testing.T) {
	m := newMatcher(t, nil)

	img1 := record("img1.png", 1)
	img2 := record("img2.png", 2)
	img2.FullImageHash = img1.FullImageHash
	rot1 := record("rot1.png", 3)
	rot2 := record("rot2.png", 4)
	rot2.RotationInvariantHash = rot1.RotationInvariantHash
	loner := record("loner.png", 5)

	report := m.Cluster([]types.FingerprintRecord{rot2, loner, img2, rot1, img1})

	require.Len(t, report.Groups, 2)
	assert.Equal(t, []string{"img1.png", "img2.png"}, report.Groups[0].Keys)
	assert.Equal(t, types.ReasonImageExact, report.Groups[0].Edges[0].Reason)
	assert.Equal(t, []string{"rot1.png", "rot2.png"}, report.Groups[1].Keys)
	assert.Equal(t, types.ReasonRotationExact, report.Groups[1].Edges[0].Reason)
}

func TestClusterViolations(t *testing.T) {
	m := newMatcher(t, nil)

	a := record("a.jpg", 1)
	b := record("b.jpg", 2)
	b.FileContentHash = a.FileContentHash
	c := record("c.jpg", 3)
	d := record("d.jpg", 4)
	d.FullImageHash = c.FullImageHash
	d.Height = 120

	report := m.Cluster([]types.FingerprintRecord{a, b, c, d})

	assert.Empty(t, report.Groups)
	require.Len(t, report.Violations, 2)
	assert.Equal(t, types.Violation{
		Key: "a.jpg", OtherKey: "b.jpg", Field: "file_content_hash",
		Message: "equal content hash but sizes 1001 and 1002",
	}, report.Violations[0])
	assert.Equal(t, "full_image_hash", report.Violations[1].Field)
	assert.Equal(t, "c.jpg", report.Violations[1].Key)
}

func TestClusterViolationStillAllowsOtherEdges(t *testing.T) {
	m := newMatcher(t, nil)

	a := record("a.jpg", 1)
	b := record("b.jpg", 2)
	b.FileContentHash = a.FileContentHash
	b.RotationInvariantHash = a.RotationInvariantHash

	report := m.Cluster([]types.FingerprintRecord{a, b})

	require.Len(t, report.Groups, 1)
	assert.Equal(t, types.ReasonRotationExact, report.Groups[0].Edges[0].Reason)
	assert.Len(t, report.Violations, 1)
}

func TestClusterSkipsFlatPerceptualHashes(t *testing.T) {
	m := newMatcher(t, nil)

	a := record("a.png", 1)
	b := record("b.png", 2)
	a.PerceptualHash, b.PerceptualHash = 0, 0
	a.PerceptualFlat, b.PerceptualFlat = true, true

	report := m.Cluster([]types.FingerprintRecord{a, b})
	assert.Empty(t, report.Groups)
}

func TestClusterAspectRatioFilter(t *testing.T) {
	a := record("a.png", 1)
	b := record("b.png", 2)
	b.RotationInvariantHash = a.RotationInvariantHash
	b.Width, b.AspectRatio = 200, 0.5

	off := newMatcher(t, nil)
	assert.Len(t, off.Cluster([]types.FingerprintRecord{a, b}).Groups, 1)

	on := newMatcher(t, func(c *Config) { c.AspectRatioFilter = true })
	assert.Empty(t, on.Cluster([]types.FingerprintRecord{a, b}).Groups)

	// byte-identical files are grouped regardless of the gate
	b.FileContentHash, b.FileSize = a.FileContentHash, a.FileSize
	assert.Len(t, on.Cluster([]types.FingerprintRecord{a, b}).Groups, 1)
}

func TestClusterUndecodedRecords(t *testing.T) {
	a := types.FingerprintRecord{Key: "a.cr3", FileSize: 500, FileContentHash: 42, DecodeError: "no preview"}
	b := types.FingerprintRecord{Key: "b.cr3", FileSize: 500, FileContentHash: 42, DecodeError: "no preview"}
	c := record("c.jpg", 3)

	report := newMatcher(t, nil).Cluster([]types.FingerprintRecord{a, b, c})
	assert.Empty(t, report.Groups)
	assert.Equal(t, 1, report.Considered)
	assert.Equal(t, 2, report.Skipped)

	m := newMatcher(t, func(cfg *Config) { cfg.IncludeUndecoded = true })
	report = m.Cluster([]types.FingerprintRecord{a, b, c})
	require.Len(t, report.Groups, 1)
	assert.Equal(t, []string{"a.cr3", "b.cr3"}, report.Groups[0].Keys)
	assert.Equal(t, types.ReasonFileExact, report.Groups[0].Edges[0].Reason)
}

func TestClusterIsOrderIndependent(t *testing.T) {
	m := newMatcher(t, nil)

	var records []types.FingerprintRecord
	for i := uint64(0); i < 12; i++ {
		r := record(string(rune('a'+i))+".jpg", i)
		// pair up neighbours through the rotation hash
		r.RotationInvariantHash = i / 2
		records = append(records, r)
	}
	want := m.Cluster(records)
	require.Len(t, want.Groups, 6)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		shuffled := append([]types.FingerprintRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, m.Cluster(shuffled))
	}
}

func TestQuery(t *testing.T) {
	m := newMatcher(t, nil)

	query := record("query.jpg", 1)
	query.QuadrantFingerprint = []uint64{0, 0, 0, 0}
	near := record("near.jpg", 2)
	near.QuadrantFingerprint = []uint64{0, 0, 0, 1}
	nearer := record("nearer.jpg", 3)
	nearer.QuadrantFingerprint = []uint64{0, 0, 0, 0}
	far := record("far.jpg", 4)
	far.QuadrantFingerprint = []uint64{1, 0, 0, 0}

	matches, err := m.Query(query, []types.FingerprintRecord{far, near, query, nearer}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "nearer.jpg", matches[0].MatchedKey)
	assert.Equal(t, "near.jpg", matches[1].MatchedKey)

	matches, err = m.Query(query, []types.FingerprintRecord{far, near, nearer}, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = m.Query(types.FingerprintRecord{Key: "bad.jpg"}, nil, 5)
	assert.ErrorIs(t, err, ErrQueryNotDecoded)
}
