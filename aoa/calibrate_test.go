package aoa

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/geoval/core/model"
	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// meanModel predicts the training-target mean everywhere. Its error on a
// held-out point grows with how unrepresentative the fold's training data
// is, which is exactly the signal calibration has to pick up.
type meanModel struct {
	mean float64
}

func (m *meanModel) Fit(_, y mat.Matrix) error {
	r, _ := y.Dims()
	if r == 0 {
		return errors.ErrEmptyData
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += y.At(i, 0)
	}
	m.mean = sum / float64(r)
	return nil
}

func (m *meanModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.mean)
	}
	return out, nil
}

func newMeanModel() model.Regressor { return &meanModel{} }

// calibrationData builds clustered samples whose target depends on
// location, so held-out clusters are both dissimilar and poorly predicted.
func calibrationData(t *testing.T) (*mat.Dense, *mat.Dense, *mat.Dense) {
	t.Helper()
	rng := rand.New(rand.NewPCG(19, 19))

	centers := [][2]float64{{0, 0}, {20, 5}, {5, 25}, {30, 30}}
	n := 20 * len(centers)
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for c, center := range centers {
		for i := 0; i < 20; i++ {
			row := c*20 + i
			x0 := center[0] + rng.NormFloat64()
			x1 := center[1] + rng.NormFloat64()
			X.Set(row, 0, x0)
			X.Set(row, 1, x1)
			y.Set(row, 0, 2*x0-x1+rng.NormFloat64()*0.1)
		}
	}
	// Predictors double as coordinates: clusters are spatial.
	return X, y, mat.DenseCopyOf(X)
}

func TestCalibrateCurveMonotone(t *testing.T) {
	X, y, coords := calibrationData(t)

	est, err := TrainDI(X)
	require.NoError(t, err)

	curve, err := Calibrate(est, X, y, coords, newMeanModel, CalibrationConfig{Seed: 1})
	require.NoError(t, err)

	require.NotEmpty(t, curve.DI)
	require.Len(t, curve.Err, len(curve.DI))
	assert.True(t, sort.Float64sAreSorted(curve.DI))
	for i := 1; i < len(curve.Err); i++ {
		assert.GreaterOrEqual(t, curve.Err[i], curve.Err[i-1], "support point %d", i)
	}
	assert.Equal(t, curve.DI[len(curve.DI)-1], curve.MaxDI)
	// Every point is held out exactly once per scheme; four default schemes.
	assert.Len(t, curve.Pairs, 4*80)
}

func TestCalibrateDeterministic(t *testing.T) {
	X, y, coords := calibrationData(t)

	est, err := TrainDI(X)
	require.NoError(t, err)

	cfg := CalibrationConfig{ClusterCounts: []int{2, 3}, Seed: 5}
	a, err := Calibrate(est, X, y, coords, newMeanModel, cfg)
	require.NoError(t, err)
	b, err := Calibrate(est, X, y, coords, newMeanModel, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.DI, b.DI)
	assert.Equal(t, a.Err, b.Err)
}

func TestCalibrateBinnedMethod(t *testing.T) {
	X, y, coords := calibrationData(t)

	est, err := TrainDI(X)
	require.NoError(t, err)

	curve, err := Calibrate(est, X, y, coords, newMeanModel, CalibrationConfig{
		Method: MethodBinned,
		Bins:   6,
		Seed:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, MethodBinned, curve.Method)
	assert.LessOrEqual(t, len(curve.DI), 6)
	for i := 1; i < len(curve.Err); i++ {
		assert.GreaterOrEqual(t, curve.Err[i], curve.Err[i-1])
	}
}

func TestCalibrateErrors(t *testing.T) {
	X, y, coords := calibrationData(t)
	est, err := TrainDI(X)
	require.NoError(t, err)

	t.Run("not fitted", func(t *testing.T) {
		_, err := Calibrate(new(Estimator), X, y, coords, newMeanModel, CalibrationConfig{})
		var notFitted *errors.NotFittedError
		assert.True(t, errors.As(err, &notFitted))
	})

	t.Run("nil factory", func(t *testing.T) {
		_, err := Calibrate(est, X, y, coords, nil, CalibrationConfig{})
		var config *errors.ConfigError
		assert.True(t, errors.As(err, &config))
	})

	t.Run("row mismatch", func(t *testing.T) {
		_, err := Calibrate(est, X, y.Slice(0, 10, 0, 1), coords, newMeanModel, CalibrationConfig{})
		var dim *errors.DimensionError
		assert.True(t, errors.As(err, &dim))
	})

	t.Run("too few pairs", func(t *testing.T) {
		_, err := Calibrate(est, X, y, coords, newMeanModel, CalibrationConfig{
			MinObservations: 100000,
			Seed:            3,
		})
		var insufficient *errors.InsufficientDataError
		assert.True(t, errors.As(err, &insufficient))
	})

	t.Run("panicking model backend", func(t *testing.T) {
		boom := func() model.Regressor { panic("backend exploded") }
		_, err := Calibrate(est, X, y, coords, boom, CalibrationConfig{Seed: 6})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend exploded")
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := Calibrate(est, X, y, coords, newMeanModel, CalibrationConfig{
			Method: "spline",
			Seed:   4,
		})
		var config *errors.ConfigError
		assert.True(t, errors.As(err, &config))
	})
}

func TestCurveExpectedError(t *testing.T) {
	curve := &Curve{
		DI:    []float64{1, 3, 5},
		Err:   []float64{2, 4, 4},
		MaxDI: 5,
	}

	tests := []struct {
		name string
		di   float64
		want float64
		ok   bool
	}{
		{"below support", 0.5, 2, true},
		{"at support point", 3, 4, true},
		{"interpolated", 2, 3, true},
		{"at max", 5, 4, true},
		{"beyond max", 5.1, math.NaN(), false},
		{"nan input", math.NaN(), math.NaN(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := curve.ExpectedError(tt.di)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-12)
			} else {
				assert.True(t, math.IsNaN(got))
			}
		})
	}
}

func TestCurveApplyFlagsBeyondRange(t *testing.T) {
	curve := &Curve{
		DI:    []float64{1, 2},
		Err:   []float64{1, 3},
		MaxDI: 2,
	}

	errsOut, flagged := curve.Apply([]float64{1.5, 9, math.NaN(), 2})

	assert.InDelta(t, 2, errsOut[0], 1e-12)
	assert.True(t, math.IsNaN(errsOut[1]))
	assert.True(t, math.IsNaN(errsOut[2]))
	assert.InDelta(t, 3, errsOut[3], 1e-12)
	// Only the out-of-range cell is flagged; nodata passes through silently.
	assert.Equal(t, []int{1}, flagged)
}

func TestFitIsotonicPoolsViolators(t *testing.T) {
	pairs := []Pair{
		{DI: 1, Err: 1},
		{DI: 2, Err: 3},
		{DI: 3, Err: 2},
		{DI: 4, Err: 4},
		{DI: 5, Err: 5},
	}

	curve := fitIsotonic(pairs)

	assert.Equal(t, []float64{1, 2, 3, 4, 5}, curve.DI)
	assert.Equal(t, []float64{1, 2.5, 2.5, 4, 5}, curve.Err)
	assert.Equal(t, 5.0, curve.MaxDI)
}

func TestFitIsotonicTies(t *testing.T) {
	pairs := []Pair{
		{DI: 1, Err: 2},
		{DI: 1, Err: 4},
		{DI: 2, Err: 3},
	}

	curve := fitIsotonic(pairs)

	// The violator at DI=2 pools with the second observation at DI=1, and
	// each distinct DI keeps a single support point.
	assert.Equal(t, []float64{1, 2}, curve.DI)
	assert.Equal(t, []float64{3.5, 3.5}, curve.Err)
}
