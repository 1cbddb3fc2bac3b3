package matcher

import (
	"fmt"
	"sort"

	"imagedupes/types"
)

// Cluster connects records by exact and perceptual matches and reports every
// connected component with at least two members. Members, groups and violations
// are sorted so the report does not depend on input order.
func (m *Matcher) Cluster(records []types.FingerprintRecord) types.Report {
	nodes := m.clusterNodes(records)
	report := types.Report{
		Considered: len(nodes),
		Skipped:    len(records) - len(nodes),
	}

	uf := newUnionFind(len(nodes))
	var edges []types.Match
	seen := make(map[string]bool)

	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			edge, violations := m.edge(nodes[i], nodes[j])
			for _, v := range violations {
				id := v.Key + "\x00" + v.OtherKey + "\x00" + v.Field
				if !seen[id] {
					seen[id] = true
					report.Violations = append(report.Violations, v.Violation())
				}
			}
			if edge != nil {
				uf.union(i, j)
				edges = append(edges, *edge)
			}
		}
	}

	members := make(map[int][]string)
	for i, r := range nodes {
		root := uf.find(i)
		members[root] = append(members[root], r.Key)
	}
	groupEdges := make(map[int][]types.Match)
	index := make(map[string]int, len(nodes))
	for i, r := range nodes {
		index[r.Key] = i
	}
	for _, e := range edges {
		root := uf.find(index[e.Key])
		groupEdges[root] = append(groupEdges[root], e)
	}

	for root, keys := range members {
		if len(keys) < 2 {
			continue
		}
		sort.Strings(keys)
		report.Groups = append(report.Groups, types.DuplicateGroup{Keys: keys, Edges: groupEdges[root]})
	}
	sort.Slice(report.Groups, func(i, j int) bool {
		return report.Groups[i].Keys[0] < report.Groups[j].Keys[0]
	})
	return report
}

// clusterNodes returns the records taking part in clustering, sorted by key
func (m *Matcher) clusterNodes(records []types.FingerprintRecord) []types.FingerprintRecord {
	nodes := make([]types.FingerprintRecord, 0, len(records))
	for _, r := range records {
		if m.IsEligible(r) || (m.cfg.IncludeUndecoded && !r.HasImage()) {
			nodes = append(nodes, r)
		}
	}
	sortByKey(nodes)
	return nodes
}

// edge returns the strongest match between a and b, if any, together with any
// invariant violations found while checking. a sorts before b.
func (m *Matcher) edge(a, b types.FingerprintRecord) (*types.Match, []*InvariantViolation) {
	var violations []*InvariantViolation
	match := func(reason types.MatchReason, distance int64) *types.Match {
		return &types.Match{Key: a.Key, MatchedKey: b.Key, Distance: distance, Reason: reason}
	}

	if a.FileContentHash == b.FileContentHash {
		if a.FileSize == b.FileSize {
			return match(types.ReasonFileExact, 0), nil
		}
		violations = append(violations, &InvariantViolation{
			Key: a.Key, OtherKey: b.Key, Field: "file_content_hash",
			Detail: fmt.Sprintf("equal content hash but sizes %d and %d", a.FileSize, b.FileSize),
		})
	}

	// Only byte-level evidence applies to records without pixels
	if !a.HasImage() || !b.HasImage() || !m.comparable(a, b) {
		return nil, violations
	}

	if a.FullImageHash == b.FullImageHash {
		if a.Width == b.Width && a.Height == b.Height {
			return match(types.ReasonImageExact, 0), violations
		}
		violations = append(violations, &InvariantViolation{
			Key: a.Key, OtherKey: b.Key, Field: "full_image_hash",
			Detail: fmt.Sprintf("equal pixel hash but dimensions %dx%d and %dx%d", a.Width, a.Height, b.Width, b.Height),
		})
	}

	if a.RotationInvariantHash == b.RotationInvariantHash {
		return match(types.ReasonRotationExact, 0), violations
	}

	if !a.PerceptualFlat && !b.PerceptualFlat {
		if d := perceptualDistance(a, b); d < m.cfg.PerceptualThreshold {
			return match(types.ReasonPerceptual, int64(d)), violations
		}
	}
	return nil, violations
}
