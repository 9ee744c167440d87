package cv

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// clusteredDesign builds a clustered sampling design inside [0,100]² with
// a uniform prediction-domain sample: the situation NNDM exists for.
func clusteredDesign(t *testing.T, nPerCluster int) (*mat.Dense, *mat.Dense) {
	t.Helper()
	rng := rand.New(rand.NewPCG(11, 11))

	centers := [][2]float64{{10, 10}, {15, 80}, {85, 20}}
	n := nPerCluster * len(centers)
	coords := mat.NewDense(n, 2, nil)
	for c, center := range centers {
		for i := 0; i < nPerCluster; i++ {
			row := c*nPerCluster + i
			coords.Set(row, 0, center[0]+rng.NormFloat64()*2)
			coords.Set(row, 1, center[1]+rng.NormFloat64()*2)
		}
	}

	domain := mat.NewDense(400, 2, nil)
	for i := 0; i < 400; i++ {
		domain.Set(i, 0, rng.Float64()*100)
		domain.Set(i, 1, rng.Float64()*100)
	}
	return coords, domain
}

func TestNNDMCoverageAndShape(t *testing.T) {
	coords, domain := clusteredDesign(t, 15)
	n, _ := coords.Dims()

	res, err := NNDM(coords, NNDMConfig{DomainSample: domain})
	require.NoError(t, err)

	require.Len(t, res.Folds, n)
	require.NoError(t, CheckCoverage(res.Folds, n))
	assert.False(t, res.Approximate)

	for j, fold := range res.Folds {
		require.Equal(t, []int{j}, fold.Test, "fold %d is near-LOO", j)
		assert.NotContains(t, fold.Train, j)
		if res.Excluded[j] >= 0 {
			assert.NotContains(t, fold.Train, res.Excluded[j])
			assert.Len(t, fold.Train, n-2)
		} else {
			assert.Len(t, fold.Train, n-1)
		}
	}
}

func TestNNDMExcludesOnlyNearestNeighbour(t *testing.T) {
	coords, domain := clusteredDesign(t, 10)

	res, err := NNDM(coords, NNDMConfig{DomainSample: domain})
	require.NoError(t, err)

	// At least some exclusions must happen for a clustered design with a
	// uniform prediction domain: plain LOO distances are far too short.
	assert.Greater(t, res.NumExcluded(), 0)

	// Any accepted exclusion must target the point's very nearest
	// training neighbour.
	knnDist, knnIdx, err := withinNearestForTest(coords)
	require.NoError(t, err)
	_ = knnDist
	for j, e := range res.Excluded {
		if e >= 0 {
			assert.Equal(t, knnIdx[j], e, "point %d excluded a non-nearest neighbour", j)
		}
	}
}

func TestNNDMStatisticNonIncreasing(t *testing.T) {
	coords, domain := clusteredDesign(t, 12)

	res, err := NNDM(coords, NNDMConfig{DomainSample: domain})
	require.NoError(t, err)

	require.NotEmpty(t, res.Trace)
	for i := 1; i < len(res.Trace); i++ {
		assert.LessOrEqual(t, res.Trace[i], res.Trace[i-1]+1e-12,
			"statistic increased at step %d", i)
	}
	assert.InDelta(t, res.Trace[len(res.Trace)-1], res.Statistic, 1e-12)

	// Matching must not be worse than doing nothing.
	assert.LessOrEqual(t, res.Statistic, res.Trace[0]+1e-12)
}

func TestNNDMStatisticMatchesGonum(t *testing.T) {
	coords, domain := clusteredDesign(t, 10)

	res, err := NNDM(coords, NNDMConfig{DomainSample: domain})
	require.NoError(t, err)

	held := append([]float64{}, res.HeldOutDistances...)
	target := append([]float64{}, res.TargetDistances...)
	sort.Float64s(held)
	sort.Float64s(target)
	want := stat.KolmogorovSmirnov(held, nil, target, nil)
	assert.InDelta(t, want, res.Statistic, 1e-9)
}

func TestNNDMMaskFallback(t *testing.T) {
	coords, _ := clusteredDesign(t, 8)

	var warned error
	errors.SetWarningHandler(func(w error) { warned = w })
	defer errors.SetWarningHandler(nil)

	res, err := NNDM(coords, NNDMConfig{
		Mask: &DomainMask{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100, Resolution: 5},
	})
	require.NoError(t, err)
	assert.True(t, res.Approximate)

	var approx *errors.ApproximateDomainWarning
	require.True(t, errors.As(warned, &approx), "expected ApproximateDomainWarning, got %v", warned)
	assert.Equal(t, 5.0, approx.Resolution)
}

func TestNNDMBoundsFallback(t *testing.T) {
	coords, _ := clusteredDesign(t, 8)

	errors.SetWarningHandler(func(error) {})
	defer errors.SetWarningHandler(nil)

	res, err := NNDM(coords, NNDMConfig{})
	require.NoError(t, err)
	assert.True(t, res.Approximate)
	n, _ := coords.Dims()
	require.NoError(t, CheckCoverage(res.Folds, n))
}

func TestNNDMErrors(t *testing.T) {
	t.Run("too few points", func(t *testing.T) {
		coords := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
		_, err := NNDM(coords, NNDMConfig{})
		var insErr *errors.InsufficientDataError
		assert.True(t, errors.As(err, &insErr))
	})

	t.Run("domain sample dimension mismatch", func(t *testing.T) {
		coords := mat.NewDense(4, 2, []float64{0, 0, 1, 1, 2, 2, 3, 3})
		domain := mat.NewDense(2, 3, []float64{0, 0, 0, 1, 1, 1})
		_, err := NNDM(coords, NNDMConfig{DomainSample: domain})
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr))
	})

	t.Run("coincident points with no domain", func(t *testing.T) {
		coords := mat.NewDense(3, 2, []float64{5, 5, 5, 5, 5, 5})
		_, err := NNDM(coords, NNDMConfig{})
		var insErr *errors.InsufficientDataError
		assert.True(t, errors.As(err, &insErr))
	})
}

func TestDomainMaskSample(t *testing.T) {
	mask := &DomainMask{MinX: 0, MinY: 0, MaxX: 10, MaxY: 20, Resolution: 5}
	grid, err := mask.Sample()
	require.NoError(t, err)

	r, c := grid.Dims()
	assert.Equal(t, 8, r) // 2 × 4 cells
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.5, grid.At(0, 0))
	assert.Equal(t, 2.5, grid.At(0, 1))

	t.Run("invalid resolution", func(t *testing.T) {
		_, err := (&DomainMask{MaxX: 1, MaxY: 1}).Sample()
		assert.Error(t, err)
	})

	t.Run("degenerate extent", func(t *testing.T) {
		_, err := (&DomainMask{MinX: 1, MaxX: 1, MinY: 0, MaxY: 1, Resolution: 0.5}).Sample()
		assert.Error(t, err)
	})
}

// withinNearestForTest recomputes each point's nearest training neighbour
// by brute force, independent of the neighbors package.
func withinNearestForTest(coords mat.Matrix) ([]float64, []int, error) {
	n, d := coords.Dims()
	dists := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		best, bestDist := -1, 0.0
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			var sum float64
			for k := 0; k < d; k++ {
				diff := coords.At(i, k) - coords.At(j, k)
				sum += diff * diff
			}
			if best == -1 || sum < bestDist {
				best, bestDist = j, sum
			}
		}
		idx[i] = best
		dists[i] = bestDist
	}
	return dists, idx, nil
}
