package cv

import (
	"math"
	"sort"
)

// ecdfTracker maintains an empirical distribution over a fixed, rank-
// compressed grid of distance values and answers Kolmogorov–Smirnov
// queries against a fixed target distribution on the same grid.
//
// The NNDM matching loop mutates one held-out distance per accepted
// exclusion; a Fenwick tree gives O(log B) insert/remove over the grid
// instead of re-sorting the whole distribution per candidate.
type ecdfTracker struct {
	grid   []float64 // ascending, deduplicated support of both distributions
	tree   []int     // Fenwick tree over grid positions
	count  int       // number of tracked values
	target []float64 // target CDF evaluated at each grid value
}

// newECDFTracker builds a tracker whose grid is the union of the tracked
// candidate values and the target sample. target is consumed as a raw
// sample; its CDF at each grid value is precomputed.
func newECDFTracker(candidates, target []float64) *ecdfTracker {
	grid := make([]float64, 0, len(candidates)+len(target))
	grid = append(grid, candidates...)
	grid = append(grid, target...)
	sort.Float64s(grid)
	grid = dedupSorted(grid)

	targetSorted := make([]float64, len(target))
	copy(targetSorted, target)
	sort.Float64s(targetSorted)

	cdf := make([]float64, len(grid))
	m := float64(len(targetSorted))
	for i, v := range grid {
		// Number of target values <= v.
		cdf[i] = float64(sort.SearchFloat64s(targetSorted, math.Nextafter(v, math.Inf(1)))) / m
	}

	return &ecdfTracker{
		grid:   grid,
		tree:   make([]int, len(grid)+1),
		target: cdf,
	}
}

func dedupSorted(s []float64) []float64 {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// pos returns the grid position of v. v must be one of the candidate or
// target values the tracker was built with.
func (t *ecdfTracker) pos(v float64) int {
	return sort.SearchFloat64s(t.grid, v)
}

// Insert adds one occurrence of v to the tracked distribution.
func (t *ecdfTracker) Insert(v float64) {
	for i := t.pos(v) + 1; i <= len(t.grid); i += i & (-i) {
		t.tree[i]++
	}
	t.count++
}

// Remove deletes one occurrence of v from the tracked distribution.
func (t *ecdfTracker) Remove(v float64) {
	for i := t.pos(v) + 1; i <= len(t.grid); i += i & (-i) {
		t.tree[i]--
	}
	t.count--
}

// prefix returns the number of tracked values at grid positions <= p.
func (t *ecdfTracker) prefix(p int) int {
	sum := 0
	for i := p + 1; i > 0; i -= i & (-i) {
		sum += t.tree[i]
	}
	return sum
}

// KS returns the Kolmogorov–Smirnov statistic between the tracked
// distribution and the target: the supremum of |F_tracked - F_target|.
// Both CDFs are step functions whose jumps lie on the grid, so evaluating
// at grid points is exact.
func (t *ecdfTracker) KS() float64 {
	if t.count == 0 {
		return 1.0
	}
	n := float64(t.count)
	maxDiff := 0.0
	for p := range t.grid {
		diff := math.Abs(float64(t.prefix(p))/n - t.target[p])
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}
