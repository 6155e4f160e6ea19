// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package patch

import (
	"github.com/sycomix/mentat/pkg/types"
)

// Merge records an overlap resolution: Kept retained its full range while
// Shrunk was truncated to end where Kept starts. Shrunk holds the
// post-truncation value; its new lines are never dropped, only its range.
type Merge struct {
	Kept   types.Replacement
	Shrunk types.Replacement
}

// Collision records two insertions proposed at the same point. Both are
// kept. First sorts before Second in application order, so after splicing,
// Second's lines sit above First's in the output buffer.
type Collision struct {
	First  types.Replacement
	Second types.Replacement
}

// ResolveConflicts rewrites one file's proposed replacements into a set the
// applicator accepts: sorted in application order, with no two ranges
// overlapping. It is a single sweep over the sorted sequence. The sweep
// carries the lowest starting line seen so far; any later replacement whose
// range reaches past that bound is truncated to end there, and its start is
// clamped so the range never inverts. Higher-priority replacements (later
// ending lines, and for ties, later starting lines) always keep their full
// range; the earlier, lower-priority side shrinks. Content is never
// dropped by resolution, only ranges.
//
// Insertions colliding at one point are all kept, ordered by emission;
// every colliding pair in the resolved set is reported.
func ResolveConflicts(replacements []types.Replacement) ([]types.Replacement, []Merge, []Collision) {
	resolved := append([]types.Replacement(nil), replacements...)
	types.SortForApplication(resolved)

	var merges []Merge

	// Sweep: truncate any range reaching past the lowest start seen so far.
	bound := -1
	boundOwner := -1
	for i := range resolved {
		r := &resolved[i]
		if boundOwner >= 0 && r.EndingLine > bound {
			r.EndingLine = bound
			if r.StartingLine > r.EndingLine {
				r.StartingLine = r.EndingLine
			}
			merges = append(merges, Merge{Kept: resolved[boundOwner], Shrunk: *r})
		}
		if boundOwner < 0 || r.StartingLine < bound {
			bound = r.StartingLine
			boundOwner = i
		}
	}

	// Report insertion collisions in the resolved set, pairwise in
	// application order.
	var collisions []Collision
	points := make(map[int][]int)
	for i, r := range resolved {
		if !r.IsInsertion() {
			continue
		}
		for _, j := range points[r.StartingLine] {
			collisions = append(collisions, Collision{First: resolved[j], Second: resolved[i]})
		}
		points[r.StartingLine] = append(points[r.StartingLine], i)
	}

	return resolved, merges, collisions
}
