// Package neighbors implements nearest-neighbour distance queries over
// point sets in either geographic coordinate space or normalized feature
// space.
//
// Both instantiations of the engine are one primitive: Euclidean
// nearest-neighbour search against an immutable KD-tree. Weighted
// Euclidean distance is obtained by pre-scaling the space (see
// preprocessing.FeatureScaler), so the engine itself stays metric-free.
// The tree is built once and is safe for concurrent queries, which the
// per-pixel dissimilarity sweep in package aoa relies on.
package neighbors

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// point is a KD-tree element carrying its row index in the source matrix.
type point struct {
	vec []float64
	row int
}

// Compare implements the kdtree.Comparable interface.
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	return p.vec[d] - q.vec[d]
}

// Dims implements the kdtree.Comparable interface.
func (p point) Dims() int { return len(p.vec) }

// Distance returns the squared Euclidean distance between two points.
// The tree operates in squared space; API boundaries take the root.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	var sum float64
	for i, v := range p.vec {
		d := v - q.vec[i]
		sum += d * d
	}
	return sum
}

// points is a collection of point that satisfies kdtree.Interface.
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{points: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{points: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for points.
type pointPlane struct {
	points
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.points[i].vec[p.Dim] < p.points[j].vec[p.Dim]
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{points: p.points[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// Index is an immutable spatial index over the rows of a point matrix.
type Index struct {
	tree *kdtree.Tree
	dims int
	n    int
}

// NewIndex builds a KD-tree over the rows of X. The matrix is copied, so
// callers may mutate X afterwards without affecting the index.
func NewIndex(X mat.Matrix) (*Index, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewDataError("neighbors.NewIndex", "point matrix", "empty data")
	}

	pts := make(points, r)
	for i := 0; i < r; i++ {
		vec := make([]float64, c)
		for j := 0; j < c; j++ {
			vec[j] = X.At(i, j)
		}
		pts[i] = point{vec: vec, row: i}
	}

	return &Index{
		tree: kdtree.New(pts, true),
		dims: c,
		n:    r,
	}, nil
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.n }

// Dims returns the dimensionality of the indexed space.
func (ix *Index) Dims() int { return ix.dims }

// Nearest returns the row index of the nearest indexed point to q and the
// Euclidean distance to it.
func (ix *Index) Nearest(q []float64) (int, float64) {
	got, dist := ix.tree.Nearest(point{vec: q, row: -1})
	return got.(point).row, math.Sqrt(dist)
}

// KNearest returns the row indices and Euclidean distances of the k
// nearest indexed points to q, in ascending distance order. Fewer than k
// results are returned when the index holds fewer points.
func (ix *Index) KNearest(q []float64, k int) ([]int, []float64) {
	if k <= 0 {
		return nil, nil
	}
	if k > ix.n {
		k = ix.n
	}

	keeper := kdtree.NewNKeeper(k)
	ix.tree.NearestSet(keeper, point{vec: q, row: -1})

	// The keeper is a max-heap on distance: popping yields farthest first.
	idx := make([]int, 0, k)
	dist := make([]float64, 0, k)
	for keeper.Len() > 0 {
		item := heap.Pop(keeper).(kdtree.ComparableDist)
		if item.Comparable == nil {
			// Unfilled keeper slot.
			continue
		}
		idx = append(idx, item.Comparable.(point).row)
		dist = append(dist, math.Sqrt(item.Dist))
	}

	// Reverse into ascending order.
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		idx[i], idx[j] = idx[j], idx[i]
		dist[i], dist[j] = dist[j], dist[i]
	}
	return idx, dist
}

// CrossNearest computes, for each row of Q, the Euclidean distance to the
// nearest indexed point and that point's row index. This is the cross-set
// instantiation of the engine (e.g. prediction locations against the
// training set).
func (ix *Index) CrossNearest(Q mat.Matrix) ([]float64, []int, error) {
	r, c := Q.Dims()
	if c != ix.dims {
		return nil, nil, errors.NewDimensionError("Index.CrossNearest", ix.dims, c, 1)
	}

	dists := make([]float64, r)
	idx := make([]int, r)
	q := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(q, i, Q)
		idx[i], dists[i] = ix.Nearest(q)
	}
	return dists, idx, nil
}

// WithinNearest computes, for each indexed point i of X, the Euclidean
// distance to the nearest *other* row and that row's index. Self-matches
// are excluded by row index, so duplicate rows correctly report distance
// zero to each other. X must be the matrix the index was built from.
func WithinNearest(X mat.Matrix) ([]float64, []int, error) {
	ix, err := NewIndex(X)
	if err != nil {
		return nil, nil, err
	}
	return ix.withinNearest(X)
}

func (ix *Index) withinNearest(X mat.Matrix) ([]float64, []int, error) {
	r, c := X.Dims()
	if r < 2 {
		return nil, nil, errors.NewInsufficientDataError("neighbors.WithinNearest", 2, r, "points")
	}
	if c != ix.dims {
		return nil, nil, errors.NewDimensionError("neighbors.WithinNearest", ix.dims, c, 1)
	}

	dists := make([]float64, r)
	idx := make([]int, r)
	q := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(q, i, X)
		// Two candidates suffice: the query point itself is always one of
		// them, and any further zero-distance duplicate is a valid answer.
		ids, ds := ix.KNearest(q, 2)
		found := false
		for k, id := range ids {
			if id != i {
				idx[i], dists[i] = id, ds[k]
				found = true
				break
			}
		}
		if !found {
			// All candidates were self-matches; take the second regardless
			// (only possible with duplicate zero-distance rows).
			idx[i], dists[i] = ids[len(ids)-1], ds[len(ds)-1]
		}
	}
	return dists, idx, nil
}

// WithinKNearest computes, for each row of X, the distances and indices of
// its k nearest *other* rows in ascending order. Package cv uses k=2 to
// obtain the fallback held-out distance when a point's first neighbour is
// excluded from its training fold.
func WithinKNearest(X mat.Matrix, k int) ([][]float64, [][]int, error) {
	r, c := X.Dims()
	if k < 1 {
		return nil, nil, errors.NewConfigError("neighbors.WithinKNearest", "k", "must be at least 1", k)
	}
	if r < k+1 {
		return nil, nil, errors.NewInsufficientDataError("neighbors.WithinKNearest", k+1, r, "points")
	}

	ix, err := NewIndex(X)
	if err != nil {
		return nil, nil, err
	}

	dists := make([][]float64, r)
	idx := make([][]int, r)
	q := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(q, i, X)
		ids, ds := ix.KNearest(q, k+1)
		di := make([]float64, 0, k)
		ii := make([]int, 0, k)
		for j, id := range ids {
			if id == i {
				continue
			}
			if len(ii) == k {
				break
			}
			ii = append(ii, id)
			di = append(di, ds[j])
		}
		dists[i], idx[i] = di, ii
	}
	return dists, idx, nil
}

// CrossNN is a convenience wrapper: for each row of A, the distance to the
// nearest row of B.
func CrossNN(A, B mat.Matrix) ([]float64, []int, error) {
	ix, err := NewIndex(B)
	if err != nil {
		return nil, nil, err
	}
	return ix.CrossNearest(A)
}
