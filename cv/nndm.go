package cv

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/geoval/neighbors"
	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// defaultMaskCells is the per-axis grid resolution used when the
// study-area mask has to be derived from the training points themselves.
const defaultMaskCells = 50

// DomainMask is a rectangular study-area extent sampled at a fixed
// resolution when no explicit prediction-domain sample is available.
type DomainMask struct {
	MinX, MinY float64
	MaxX, MaxY float64

	// Resolution is the cell edge length in coordinate units.
	Resolution float64
}

// Sample returns the cell-center coordinates of the mask grid.
func (m *DomainMask) Sample() (*mat.Dense, error) {
	if m.Resolution <= 0 {
		return nil, errors.NewConfigError("DomainMask.Sample", "resolution", "must be positive", m.Resolution)
	}
	if m.MaxX <= m.MinX || m.MaxY <= m.MinY {
		return nil, errors.NewConfigError("DomainMask.Sample", "extent", "max must exceed min on both axes", [4]float64{m.MinX, m.MinY, m.MaxX, m.MaxY})
	}

	nx := int((m.MaxX - m.MinX) / m.Resolution)
	ny := int((m.MaxY - m.MinY) / m.Resolution)
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}

	grid := mat.NewDense(nx*ny, 2, nil)
	row := 0
	for iy := 0; iy < ny; iy++ {
		y := m.MinY + (float64(iy)+0.5)*m.Resolution
		for ix := 0; ix < nx; ix++ {
			grid.Set(row, 0, m.MinX+(float64(ix)+0.5)*m.Resolution)
			grid.Set(row, 1, y)
			row++
		}
	}
	return grid, nil
}

// NNDMConfig configures a Nearest-Neighbour Distance Matching run.
type NNDMConfig struct {
	// DomainSample holds coordinates of a dense sample of the prediction
	// domain (raster cells, mask polygon sample). When nil, the builder
	// falls back to sampling Mask, or to a grid over the bounding box of
	// the training points, and records the approximation as a diagnostic.
	DomainSample mat.Matrix

	// Mask is the study-area extent used for the fallback sample.
	Mask *DomainMask
}

// NNDMResult is the outcome of a matching run.
type NNDMResult struct {
	// Folds are near-leave-one-out folds: each point is held out once,
	// with at most its single nearest neighbour additionally removed from
	// its training fold.
	Folds []Fold

	// Excluded[j] is the training index removed from point j's training
	// fold, or -1 when no exclusion was accepted for j.
	Excluded []int

	// Statistic is the achieved Kolmogorov–Smirnov distance between the
	// held-out distance distribution and the prediction-domain target.
	Statistic float64

	// Trace records the statistic after each exclusion decision; it is
	// non-increasing because exclusions are only accepted on improvement.
	Trace []float64

	// Approximate is true when the target distribution was derived from a
	// mask grid rather than a supplied prediction-domain sample.
	Approximate bool

	// TargetDistances is the sorted prediction-domain nearest-neighbour
	// distance sample (G).
	TargetDistances []float64

	// HeldOutDistances is the sorted final held-out distance distribution.
	HeldOutDistances []float64
}

// NumExcluded returns the number of accepted exclusions.
func (r *NNDMResult) NumExcluded() int {
	n := 0
	for _, e := range r.Excluded {
		if e >= 0 {
			n++
		}
	}
	return n
}

// NNDM builds near-leave-one-out folds whose held-out nearest-neighbour
// distance distribution matches the distribution of distances from the
// prediction domain to the training set.
//
// For each training point the builder decides greedily whether to exclude
// the point's nearest training neighbour from its training fold, which
// raises that point's held-out distance to its second-nearest neighbour.
// An exclusion is accepted only when it strictly decreases the KS
// distance to the target. Candidates are visited in increasing order of
// their current held-out distance (index ascending among exact ties), so
// among equal-improvement candidates the nearest one is excluded first.
//
// coords holds training point coordinates (n×d). Matching operates in
// geographic coordinate space.
func NNDM(coords mat.Matrix, cfg NNDMConfig) (*NNDMResult, error) {
	n, d := coords.Dims()
	if n < 3 {
		return nil, errors.NewInsufficientDataError("NNDM", 3, n, "points")
	}

	domain, approximate, err := resolveDomainSample(coords, cfg, d)
	if err != nil {
		return nil, err
	}

	// Target distribution G: prediction domain -> training set.
	target, _, err := neighbors.CrossNN(domain, coords)
	if err != nil {
		return nil, err
	}

	// Per-point first and second nearest-other distances.
	knnDist, knnIdx, err := neighbors.WithinKNearest(coords, 2)
	if err != nil {
		return nil, err
	}

	d1 := make([]float64, n)
	d2 := make([]float64, n)
	nn1 := make([]int, n)
	candidates := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		d1[i], d2[i] = knnDist[i][0], knnDist[i][1]
		nn1[i] = knnIdx[i][0]
		candidates = append(candidates, d1[i], d2[i])
	}

	tracker := newECDFTracker(candidates, target)
	for i := 0; i < n; i++ {
		tracker.Insert(d1[i])
	}

	// Visit points in increasing current held-out distance.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d1[order[a]] < d1[order[b]]
	})

	excluded := make([]int, n)
	heldOut := make([]float64, n)
	copy(heldOut, d1)
	for i := range excluded {
		excluded[i] = -1
	}

	const improveTol = 1e-12
	trace := make([]float64, 0, n+1)
	stat := tracker.KS()
	trace = append(trace, stat)

	for _, j := range order {
		tracker.Remove(d1[j])
		tracker.Insert(d2[j])
		next := tracker.KS()
		if next < stat-improveTol {
			excluded[j] = nn1[j]
			heldOut[j] = d2[j]
			stat = next
		} else {
			tracker.Remove(d2[j])
			tracker.Insert(d1[j])
		}
		trace = append(trace, stat)
	}

	// Assemble near-LOO folds.
	folds := make([]Fold, n)
	for j := 0; j < n; j++ {
		train := make([]int, 0, n-1)
		for i := 0; i < n; i++ {
			if i == j || i == excluded[j] {
				continue
			}
			train = append(train, i)
		}
		folds[j] = Fold{Train: train, Test: []int{j}}
	}

	sort.Float64s(heldOut)
	sort.Float64s(target)

	return &NNDMResult{
		Folds:            folds,
		Excluded:         excluded,
		Statistic:        stat,
		Trace:            trace,
		Approximate:      approximate,
		TargetDistances:  target,
		HeldOutDistances: heldOut,
	}, nil
}

// resolveDomainSample picks the prediction-domain coordinate sample:
// the supplied sample, the supplied mask, or a grid over the training
// bounding box, in that order. Approximations emit a diagnostic warning
// rather than failing.
func resolveDomainSample(coords mat.Matrix, cfg NNDMConfig, d int) (mat.Matrix, bool, error) {
	if cfg.DomainSample != nil {
		r, c := cfg.DomainSample.Dims()
		if c != d {
			return nil, false, errors.NewDimensionError("NNDM", d, c, 1)
		}
		if r == 0 {
			return nil, false, errors.NewInsufficientDataError("NNDM", 1, 0, "domain sample points")
		}
		return cfg.DomainSample, false, nil
	}

	mask := cfg.Mask
	if mask == nil {
		if d != 2 {
			return nil, false, errors.NewInsufficientDataError("NNDM", 1, 0, "domain sample points")
		}
		derived, err := maskFromBounds(coords)
		if err != nil {
			return nil, false, err
		}
		mask = derived
	}

	sample, err := mask.Sample()
	if err != nil {
		return nil, false, err
	}
	r, _ := sample.Dims()
	errors.Warn(errors.NewApproximateDomainWarning(mask.Resolution, r,
		"no prediction-domain sample supplied; using study-area mask grid"))
	return sample, true, nil
}

// maskFromBounds derives a fixed-resolution mask from the bounding box of
// the training points.
func maskFromBounds(coords mat.Matrix) (*DomainMask, error) {
	n, _ := coords.Dims()
	mask := &DomainMask{
		MinX: coords.At(0, 0), MaxX: coords.At(0, 0),
		MinY: coords.At(0, 1), MaxY: coords.At(0, 1),
	}
	for i := 1; i < n; i++ {
		x, y := coords.At(i, 0), coords.At(i, 1)
		if x < mask.MinX {
			mask.MinX = x
		}
		if x > mask.MaxX {
			mask.MaxX = x
		}
		if y < mask.MinY {
			mask.MinY = y
		}
		if y > mask.MaxY {
			mask.MaxY = y
		}
	}

	extent := mask.MaxX - mask.MinX
	if dy := mask.MaxY - mask.MinY; dy > extent {
		extent = dy
	}
	if extent <= 0 {
		return nil, errors.NewInsufficientDataError("NNDM", 2, 1, "distinct training locations")
	}
	mask.Resolution = extent / defaultMaskCells
	// Widen degenerate axes to one cell so the grid is non-empty.
	if mask.MaxX-mask.MinX < mask.Resolution {
		mask.MaxX = mask.MinX + mask.Resolution
	}
	if mask.MaxY-mask.MinY < mask.Resolution {
		mask.MaxY = mask.MinY + mask.Resolution
	}
	return mask, nil
}
