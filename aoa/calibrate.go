package aoa

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/geoval/core/model"
	"github.com/YuminosukeSato/geoval/cv"
	"github.com/YuminosukeSato/geoval/metrics"
	"github.com/YuminosukeSato/geoval/neighbors"
	"github.com/YuminosukeSato/geoval/pkg/errors"
	"github.com/YuminosukeSato/geoval/pkg/log"
)

// Calibration curve fitting methods.
const (
	MethodIsotonic = "isotonic"
	MethodBinned   = "binned"
)

const (
	defaultMinObservations = 20
	defaultBins            = 10
)

// CalibrationConfig controls the DI-to-error calibration.
type CalibrationConfig struct {
	// ClusterCounts are the leave-cluster-out cluster counts to run as
	// calibration schemes. Varying the count varies how far held-out
	// points sit from their training folds, spreading the DI range the
	// curve is supported on. Defaults to {2, 3, 4, 5}.
	ClusterCounts []int

	// Repeats reruns each cluster count with a perturbed seed. Defaults
	// to 1.
	Repeats int

	// Seed drives cluster assignment. Identical configuration yields an
	// identical curve.
	Seed uint64

	// Method selects the curve model: MethodIsotonic (default) fits a
	// monotone step/interpolation curve by pool-adjacent-violators,
	// MethodBinned averages within equal-frequency DI bins and enforces
	// monotonicity by a running maximum.
	Method string

	// Bins is the bin count for MethodBinned. Defaults to 10.
	Bins int

	// MinObservations is the minimum number of (DI, error) pairs required
	// to fit a curve. Defaults to 20.
	MinObservations int

	// Logger receives per-scheme progress diagnostics.
	Logger log.Logger
}

func (c *CalibrationConfig) withDefaults() CalibrationConfig {
	out := *c
	if len(out.ClusterCounts) == 0 {
		out.ClusterCounts = []int{2, 3, 4, 5}
	}
	if out.Repeats < 1 {
		out.Repeats = 1
	}
	if out.Method == "" {
		out.Method = MethodIsotonic
	}
	if out.Bins < 1 {
		out.Bins = defaultBins
	}
	if out.MinObservations < 1 {
		out.MinObservations = defaultMinObservations
	}
	return out
}

// Pair is one calibration observation: the DI of a held-out point relative
// to its fold's training subset, and the absolute prediction error the
// fold model made on it.
type Pair struct {
	DI  float64
	Err float64
}

// Curve maps DI values to expected absolute prediction error. Within the
// observed DI range the mapping is monotone non-decreasing; beyond it the
// curve refuses to extrapolate.
type Curve struct {
	// DI holds the curve's support points in ascending order.
	DI []float64

	// Err holds the expected absolute error at each support point,
	// non-decreasing.
	Err []float64

	// MaxDI is the largest DI observed during calibration. Queries above
	// it are flagged rather than extrapolated.
	MaxDI float64

	// Method records how the curve was fitted.
	Method string

	// Pairs are the raw calibration observations the curve was fitted on.
	Pairs []Pair
}

// ExpectedError returns the calibrated expected absolute error at di.
// The second return is false when di lies beyond the calibrated range
// (di > MaxDI, or di is not finite); the error value is then NaN.
func (c *Curve) ExpectedError(di float64) (float64, bool) {
	if math.IsNaN(di) || math.IsInf(di, 0) || di > c.MaxDI {
		return math.NaN(), false
	}
	if di <= c.DI[0] {
		return c.Err[0], true
	}
	// First support point with DI >= di.
	k := sort.SearchFloat64s(c.DI, di)
	if k < len(c.DI) && c.DI[k] == di {
		return c.Err[k], true
	}
	lo, hi := k-1, k
	if hi >= len(c.DI) {
		return c.Err[len(c.Err)-1], true
	}
	frac := (di - c.DI[lo]) / (c.DI[hi] - c.DI[lo])
	return c.Err[lo] + frac*(c.Err[hi]-c.Err[lo]), true
}

// Apply evaluates the curve over a DI raster. The returned error surface
// carries NaN wherever the curve cannot answer; indices of cells flagged
// for exceeding the calibrated range are returned separately. NaN inputs
// (nodata cells) yield NaN without being flagged.
func (c *Curve) Apply(di []float64) ([]float64, []int) {
	out := make([]float64, len(di))
	var flagged []int
	for i, v := range di {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		e, ok := c.ExpectedError(v)
		out[i] = e
		if !ok {
			flagged = append(flagged, i)
		}
	}
	return out, flagged
}

// schemeResult collects the outcome of one leave-cluster-out calibration run.
type schemeResult struct {
	pairs []Pair
	err   error
}

// Calibrate fits a DI-to-expected-error curve for the model family
// produced by factory, using the DI geometry of the fitted estimator est.
// For every calibration scheme (leave-cluster-out on coords, one scheme
// per cluster count and repeat) it refits a fresh model per fold, records
// each held-out point's DI relative to the fold's training subset together
// with the model's absolute error on it, and fits a monotone curve to the
// pooled pairs.
//
// X and y must be the data est was trained on, row-aligned with coords.
func Calibrate(est *Estimator, X, y mat.Matrix, coords mat.Matrix, factory model.Factory, cfg CalibrationConfig) (*Curve, error) {
	if !est.IsFitted() {
		return nil, errors.NewNotFittedError("aoa.Estimator", "Calibrate")
	}
	n, _ := X.Dims()
	tr, _ := est.train.Dims()
	if tr != n {
		return nil, errors.NewDimensionError("aoa.Calibrate", tr, n, 0)
	}
	if yr, yc := y.Dims(); yr != n || yc != 1 {
		return nil, errors.NewDimensionError("aoa.Calibrate", n, yr*yc, 0)
	}
	if cr, _ := coords.Dims(); cr != n {
		return nil, errors.NewDimensionError("aoa.Calibrate", n, cr, 0)
	}
	if factory == nil {
		return nil, errors.NewConfigError("aoa.Calibrate", "factory", "must not be nil", nil)
	}

	cfg = cfg.withDefaults()
	start := time.Now()

	type scheme struct {
		clusters int
		seed     uint64
	}
	var schemes []scheme
	for _, k := range cfg.ClusterCounts {
		for rep := 0; rep < cfg.Repeats; rep++ {
			schemes = append(schemes, scheme{clusters: k, seed: cfg.Seed + uint64(rep)*1000003})
		}
	}

	results := make([]schemeResult, len(schemes))
	var wg sync.WaitGroup
	for si, sc := range schemes {
		wg.Add(1)
		go func(si int, sc scheme) {
			defer wg.Done()
			// Caller-supplied model backends may panic; keep the scheme
			// loop alive and surface the panic as an error.
			results[si].err = errors.SafeExecute("aoa.Calibrate", func() error {
				pairs, err := runScheme(est, X, y, coords, factory, sc.clusters, sc.seed, cfg.Logger)
				results[si].pairs = pairs
				return err
			})
		}(si, sc)
	}
	wg.Wait()

	var pairs []Pair
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		pairs = append(pairs, res.pairs...)
	}

	if len(pairs) < cfg.MinObservations {
		return nil, errors.NewInsufficientDataError("aoa.Calibrate",
			cfg.MinObservations, len(pairs), "calibration pairs")
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].DI < pairs[j].DI })

	distinct := 1
	for i := 1; i < len(pairs); i++ {
		if pairs[i].DI != pairs[i-1].DI {
			distinct++
		}
	}
	if distinct < 3 {
		return nil, errors.NewInsufficientDataError("aoa.Calibrate",
			3, distinct, "distinct DI values")
	}

	var curve *Curve
	switch cfg.Method {
	case MethodIsotonic:
		curve = fitIsotonic(pairs)
	case MethodBinned:
		curve = fitBinned(pairs, cfg.Bins)
	default:
		return nil, errors.NewConfigError("aoa.Calibrate", "method",
			"must be \"isotonic\" or \"binned\"", cfg.Method)
	}
	curve.Pairs = pairs

	if cfg.Logger != nil {
		cfg.Logger.Info("calibration curve fitted",
			log.ComponentKey, "aoa",
			log.OperationKey, "calibrate",
			log.PairsKey, len(pairs),
			log.SchemeKey, cfg.Method,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}
	return curve, nil
}

// runScheme executes one leave-cluster-out calibration scheme: refit a
// model per fold and emit (held-out DI, absolute error) pairs. Fold DI is
// measured in est's scaled space against an index over the fold's training
// subset, normalized by est's constant so values match the DI raster.
func runScheme(est *Estimator, X, y mat.Matrix, coords mat.Matrix, factory model.Factory, clusters int, seed uint64, logger log.Logger) ([]Pair, error) {
	n, c := X.Dims()

	splitter := cv.NewLeaveClusterOut(coords, clusters, seed)
	folds, err := splitter.Split(n)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, fold := range folds {
		trainX := pickRows(X, fold.Train, c)
		trainY := pickRows(y, fold.Train, 1)
		testX := pickRows(X, fold.Test, c)
		testY := pickRows(y, fold.Test, 1)

		m := factory()
		if err := m.Fit(trainX, trainY); err != nil {
			return nil, errors.Wrapf(err, "aoa.Calibrate: fold model fit (clusters=%d)", clusters)
		}
		pred, err := m.Predict(testX)
		if err != nil {
			return nil, errors.Wrapf(err, "aoa.Calibrate: fold model predict (clusters=%d)", clusters)
		}

		foldIndex, err := neighbors.NewIndex(pickRows(est.train, fold.Train, est.scaler.NFeatures))
		if err != nil {
			return nil, err
		}

		yTrue := mat.NewVecDense(len(fold.Test), nil)
		yPred := mat.NewVecDense(len(fold.Test), nil)
		for t, i := range fold.Test {
			_, d := foldIndex.Nearest(est.train.RawRowView(i))
			p := pred.At(t, 0)
			pairs = append(pairs, Pair{DI: d / est.NormConst, Err: math.Abs(testY.At(t, 0) - p)})
			yTrue.SetVec(t, testY.At(t, 0))
			yPred.SetVec(t, p)
		}

		if logger != nil {
			rmse, rerr := metrics.RMSE(yTrue, yPred)
			if rerr == nil {
				logger.Debug("calibration fold finished",
					log.ComponentKey, "aoa",
					log.OperationKey, "calibrate",
					log.FoldsKey, clusters,
					log.SamplesKey, len(fold.Test),
					"fold.rmse", rmse,
				)
			}
		}
	}
	return pairs, nil
}

// pickRows materializes the given rows of X as a dense matrix with c columns.
func pickRows(X mat.Matrix, rows []int, c int) *mat.Dense {
	out := mat.NewDense(len(rows), c, nil)
	for t, i := range rows {
		for j := 0; j < c; j++ {
			out.Set(t, j, X.At(i, j))
		}
	}
	return out
}

// fitIsotonic fits a monotone non-decreasing curve to pairs (sorted by DI)
// with the pool-adjacent-violators algorithm, then compresses the fitted
// sequence to one support point per distinct DI value.
func fitIsotonic(pairs []Pair) *Curve {
	type block struct {
		sum float64
		w   float64
	}

	blocks := make([]block, 0, len(pairs))
	size := make([]int, 0, len(pairs))
	for _, p := range pairs {
		blocks = append(blocks, block{sum: p.Err, w: 1})
		size = append(size, 1)
		// Pool while the trailing block mean violates monotonicity.
		for len(blocks) > 1 {
			last := len(blocks) - 1
			if blocks[last].sum/blocks[last].w >= blocks[last-1].sum/blocks[last-1].w {
				break
			}
			blocks[last-1].sum += blocks[last].sum
			blocks[last-1].w += blocks[last].w
			size[last-1] += size[last]
			blocks = blocks[:last]
			size = size[:last]
		}
	}

	// Expand block means back to the per-pair fitted sequence.
	fitted := make([]float64, 0, len(pairs))
	for b, blk := range blocks {
		mean := blk.sum / blk.w
		for k := 0; k < size[b]; k++ {
			fitted = append(fitted, mean)
		}
	}

	// One support point per distinct DI: the last fitted value at that DI.
	curve := &Curve{Method: MethodIsotonic, MaxDI: pairs[len(pairs)-1].DI}
	for i, p := range pairs {
		if i+1 < len(pairs) && pairs[i+1].DI == p.DI {
			continue
		}
		curve.DI = append(curve.DI, p.DI)
		curve.Err = append(curve.Err, fitted[i])
	}
	return curve
}

// fitBinned fits the curve by equal-frequency binning: each bin contributes
// its mean DI and mean error, and a running maximum enforces monotonicity.
func fitBinned(pairs []Pair, bins int) *Curve {
	if bins > len(pairs) {
		bins = len(pairs)
	}

	curve := &Curve{Method: MethodBinned, MaxDI: pairs[len(pairs)-1].DI}
	runMax := math.Inf(-1)
	for b := 0; b < bins; b++ {
		lo := b * len(pairs) / bins
		hi := (b + 1) * len(pairs) / bins
		if lo >= hi {
			continue
		}
		var sumDI, sumErr float64
		for _, p := range pairs[lo:hi] {
			sumDI += p.DI
			sumErr += p.Err
		}
		meanDI := sumDI / float64(hi-lo)
		meanErr := sumErr / float64(hi-lo)
		if meanErr > runMax {
			runMax = meanErr
		}
		// Duplicate support DI can arise from heavy ties; keep the later bin.
		if k := len(curve.DI); k > 0 && curve.DI[k-1] == meanDI {
			curve.Err[k-1] = runMax
			continue
		}
		curve.DI = append(curve.DI, meanDI)
		curve.Err = append(curve.Err, runMax)
	}
	return curve
}
