// Package aoa estimates the dissimilarity index (DI) and the area of
// applicability (AOA) of a trained spatial prediction model.
//
// The DI of a prediction location is its distance to the nearest training
// point in normalized (optionally importance-weighted) predictor space,
// divided by the mean leave-one-out nearest-neighbour distance of the
// training set. The AOA is the set of locations whose DI does not exceed
// a threshold derived from cross-validated held-out DI values, and it is
// the region within which the model's cross-validation error estimate is
// considered transferable.
package aoa

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/geoval/core/model"
	"github.com/YuminosukeSato/geoval/core/parallel"
	"github.com/YuminosukeSato/geoval/cv"
	"github.com/YuminosukeSato/geoval/neighbors"
	"github.com/YuminosukeSato/geoval/pkg/errors"
	"github.com/YuminosukeSato/geoval/pkg/log"
	"github.com/YuminosukeSato/geoval/preprocessing"
)

// defaultChunkSize bounds per-worker scratch allocation during raster sweeps.
const defaultChunkSize = 4096

// Estimator holds the fitted DI reference state: the training-set
// normalization, the spatial index over scaled training points, the DI
// normalization constant and the AOA threshold.
type Estimator struct {
	model.BaseEstimator

	scaler     *preprocessing.FeatureScaler
	index      *neighbors.Index
	train      *mat.Dense
	names      []string
	folds      []cv.Fold
	weights    []float64
	importance model.ImportanceProvider
	chunkSize  int
	logger     log.Logger

	// NormConst is the mean leave-one-out nearest-neighbour distance of
	// the scaled training points. DI values are distances divided by it.
	NormConst float64

	// Threshold is the DI value separating inside from outside the AOA,
	// derived from HeldOutDI by the upper boxplot outlier rule.
	Threshold float64

	// HeldOutDI holds one cross-validated DI value per training point,
	// indexed by training row.
	HeldOutDI []float64
}

// Option configures TrainDI.
type Option func(*Estimator)

// WithWeights sets explicit variable-importance weights applied to the
// standardized predictor space before distance computation.
func WithWeights(weights []float64) Option {
	return func(e *Estimator) {
		e.weights = append([]float64(nil), weights...)
	}
}

// WithImportance derives distance weights from a fitted model's variable
// importances. Explicit WithWeights takes precedence.
func WithImportance(p model.ImportanceProvider) Option {
	return func(e *Estimator) { e.importance = p }
}

// WithFolds supplies the cross-validation fold structure used to compute
// held-out DI values. The folds must cover every training point exactly
// once; they are typically produced by cv.NNDM or cv.LeaveClusterOut.
// Without this option leave-one-out folds are used.
func WithFolds(folds []cv.Fold) Option {
	return func(e *Estimator) { e.folds = folds }
}

// WithVariableNames records predictor names so that Predict inputs can be
// matched by name via PredictNamed.
func WithVariableNames(names []string) Option {
	return func(e *Estimator) {
		e.names = append([]string(nil), names...)
	}
}

// WithChunkSize sets the number of grid cells processed per worker chunk
// during Predict.
func WithChunkSize(size int) Option {
	return func(e *Estimator) { e.chunkSize = size }
}

// WithLogger attaches a structured logger for progress diagnostics.
func WithLogger(l log.Logger) Option {
	return func(e *Estimator) { e.logger = l }
}

// TrainDI fits the DI reference state on the training predictors X
// (n_samples × n_features) and derives the AOA threshold from
// cross-validated held-out DI values.
func TrainDI(X mat.Matrix, opts ...Option) (*Estimator, error) {
	start := time.Now()

	e := &Estimator{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(e)
	}

	r, c := X.Dims()
	if r < 2 {
		return nil, errors.NewInsufficientDataError("aoa.TrainDI", 2, r, "training points")
	}
	if e.names != nil && len(e.names) != c {
		return nil, errors.NewConfigError("aoa.TrainDI", "variable_names",
			"length must equal number of variables", len(e.names))
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewDataError("aoa.TrainDI", "training matrix",
					fmt.Sprintf("non-finite value at row %d, column %d", i, j))
			}
		}
	}

	weights := e.weights
	if weights == nil && e.importance != nil {
		weights = e.importance.Importance()
	}

	e.scaler = preprocessing.NewFeatureScaler()
	if weights != nil {
		if err := e.scaler.SetWeights(weights); err != nil {
			return nil, err
		}
	}
	scaled, err := e.scaler.FitTransform(X)
	if err != nil {
		return nil, err
	}
	e.train = scaled.(*mat.Dense)

	e.index, err = neighbors.NewIndex(e.train)
	if err != nil {
		return nil, err
	}

	looDists, _, err := neighbors.WithinNearest(e.train)
	if err != nil {
		return nil, err
	}
	e.NormConst = stat.Mean(looDists, nil)
	if e.NormConst <= 0 {
		return nil, errors.NewDataError("aoa.TrainDI", "training matrix",
			"all points coincide in predictor space")
	}

	folds := e.folds
	if folds == nil {
		folds, err = cv.LeaveOneOut(r)
		if err != nil {
			return nil, err
		}
	}
	if err := cv.CheckCoverage(folds, r); err != nil {
		return nil, err
	}
	e.folds = folds

	e.HeldOutDI, err = heldOutDI(e.index, e.train, folds, e.NormConst)
	if err != nil {
		return nil, err
	}

	e.Threshold, err = OutlierThreshold(e.HeldOutDI)
	if err != nil {
		return nil, err
	}

	e.SetFitted()
	if e.logger != nil {
		e.logger.Info("DI reference fitted",
			log.ComponentKey, "aoa",
			log.OperationKey, "train_di",
			log.SamplesKey, r,
			log.FeaturesKey, c,
			log.FoldsKey, len(folds),
			log.NormConstKey, e.NormConst,
			log.ThresholdKey, e.Threshold,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}
	return e, nil
}

// heldOutDI computes the cross-validated DI of every training point: the
// distance to its nearest neighbour within its fold's training subset,
// divided by normConst. Queries run against the global index; since a fold
// excludes at most (n - len(Train)) points, the nearest in-fold point is
// always among the (excluded+1) global nearest.
func heldOutDI(index *neighbors.Index, train *mat.Dense, folds []cv.Fold, normConst float64) ([]float64, error) {
	n, _ := train.Dims()
	di := make([]float64, n)

	inTrain := make([]bool, n)
	for _, fold := range folds {
		for i := range inTrain {
			inTrain[i] = false
		}
		for _, idx := range fold.Train {
			inTrain[idx] = true
		}
		excluded := n - len(fold.Train)

		for _, i := range fold.Test {
			if inTrain[i] {
				return nil, errors.Newf("cv: index %d appears in both train and test of a fold", i)
			}
			ids, dists := index.KNearest(train.RawRowView(i), excluded+1)
			found := false
			for k, id := range ids {
				if inTrain[id] {
					di[i] = dists[k] / normConst
					found = true
					break
				}
			}
			if !found {
				return nil, errors.NewDataError("aoa.TrainDI", "fold structure",
					fmt.Sprintf("fold training subset unreachable for point %d", i))
			}
		}
	}
	return di, nil
}

// Result is the outcome of a DI sweep over prediction locations.
type Result struct {
	// DI holds the dissimilarity index per location. Locations with
	// non-finite predictor values carry NaN.
	DI []float64

	// AOA is 1 where DI does not exceed Threshold, 0 elsewhere.
	AOA []int

	// Threshold is the DI threshold the mask was cut at.
	Threshold float64
}

// InsideRatio returns the fraction of valid (finite-DI) locations inside
// the AOA. It returns NaN when no location is valid.
func (r *Result) InsideRatio() float64 {
	valid, inside := 0, 0
	for i, di := range r.DI {
		if math.IsNaN(di) {
			continue
		}
		valid++
		inside += r.AOA[i]
	}
	if valid == 0 {
		return math.NaN()
	}
	return float64(inside) / float64(valid)
}

// Predict computes the DI and AOA mask for each row of grid. Columns must
// match the training predictors in count and order; use PredictNamed when
// the grid carries named bands in a different order. Rows containing NaN
// or infinite values (nodata cells) yield DI = NaN outside the AOA.
func (e *Estimator) Predict(grid mat.Matrix) (*Result, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("aoa.Estimator", "Predict")
	}
	r, c := grid.Dims()
	if c != e.scaler.NFeatures {
		return nil, errors.NewDimensionError("Estimator.Predict", e.scaler.NFeatures, c, 1)
	}
	return e.sweep(grid, nil, r)
}

// PredictNamed computes the DI and AOA mask for a grid whose columns are
// identified by name. The grid may carry extra columns in any order; it
// must contain every training predictor by name, and the estimator must
// have been trained with WithVariableNames. Missing predictors produce a
// DomainMismatchError listing them.
func (e *Estimator) PredictNamed(grid mat.Matrix, names []string) (*Result, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("aoa.Estimator", "PredictNamed")
	}
	if e.names == nil {
		return nil, errors.NewConfigError("Estimator.PredictNamed", "variable_names",
			"estimator was trained without variable names", nil)
	}
	r, c := grid.Dims()
	if len(names) != c {
		return nil, errors.NewDimensionError("Estimator.PredictNamed", c, len(names), 1)
	}

	colOf := make(map[string]int, len(names))
	for j, name := range names {
		colOf[name] = j
	}

	perm := make([]int, len(e.names))
	var missing []string
	for j, name := range e.names {
		col, ok := colOf[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		perm[j] = col
	}
	if len(missing) > 0 {
		return nil, errors.NewDomainMismatchError("Estimator.PredictNamed", missing)
	}
	return e.sweep(grid, perm, r)
}

// sweep runs the chunked parallel DI computation. perm maps training
// variable j to its grid column; nil means identity.
func (e *Estimator) sweep(grid mat.Matrix, perm []int, rows int) (*Result, error) {
	start := time.Now()
	nf := e.scaler.NFeatures

	res := &Result{
		DI:        make([]float64, rows),
		AOA:       make([]int, rows),
		Threshold: e.Threshold,
	}

	parallel.ParallelizeChunked(rows, e.chunkSize, func(s, end int) {
		buf := make([]float64, nf)
		for i := s; i < end; i++ {
			valid := true
			for j := 0; j < nf; j++ {
				col := j
				if perm != nil {
					col = perm[j]
				}
				v := grid.At(i, col)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					valid = false
					break
				}
				buf[j] = e.scaler.TransformValue(v, j)
			}
			if !valid {
				res.DI[i] = math.NaN()
				continue
			}
			_, d := e.index.Nearest(buf)
			di := d / e.NormConst
			res.DI[i] = di
			if di <= e.Threshold {
				res.AOA[i] = 1
			}
		}
	})

	if e.logger != nil {
		e.logger.Info("DI sweep finished",
			log.ComponentKey, "aoa",
			log.OperationKey, "predict",
			log.GridCellsKey, rows,
			log.ChunkSizeKey, e.chunkSize,
			log.InsideRatioKey, res.InsideRatio(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}
	return res, nil
}

// Folds returns the cross-validation folds the held-out DI values were
// computed with.
func (e *Estimator) Folds() []cv.Fold { return e.folds }

// GetParams returns the estimator's configuration parameters.
func (e *Estimator) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"chunk_size":     e.chunkSize,
		"variable_names": e.names,
	}
}

// String returns a string representation of the estimator.
func (e *Estimator) String() string {
	if !e.IsFitted() {
		return "aoa.Estimator(unfitted)"
	}
	return fmt.Sprintf("aoa.Estimator(threshold=%.4f, norm_const=%.4f, n_features=%d)",
		e.Threshold, e.NormConst, e.scaler.NFeatures)
}
