// Package log defines standard attribute keys for spatial validation operations.
//
// This file contains predefined attribute keys that provide consistency across
// all logging operations in geoval. Using these standard keys enables better
// log analysis, monitoring, and debugging of validation workflows.
//
// The keys follow a hierarchical naming convention (e.g., "data.samples",
// "cv.folds") to enable structured log analysis and filtering.

package log

// Component and Operation Context
// These attributes identify the component and operation being performed.
const (
	// ComponentKey identifies which package is performing the operation.
	// Examples: "neighbors", "cv", "aoa", "preprocessing"
	ComponentKey = "component"

	// OperationKey specifies the validation operation being performed.
	// Standard values: "fit", "predict", "nndm", "train_di", "calibrate"
	OperationKey = "operation"

	// EstimatorKey identifies the type of estimator.
	// Examples: "FeatureScaler", "Estimator", "NNDM"
	EstimatorKey = "estimator"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of predictor variables.
	FeaturesKey = "data.features"

	// GridCellsKey indicates the number of prediction-grid cells swept.
	GridCellsKey = "grid.cells"

	// ChunkSizeKey indicates the bounded chunk size used for raster sweeps.
	ChunkSizeKey = "grid.chunk_size"
)

// Cross-Validation Context
const (
	// FoldsKey indicates the number of cross-validation folds.
	FoldsKey = "cv.folds"

	// SchemeKey names the fold-construction scheme.
	// Examples: "random_kfold", "leave_cluster_out", "nndm"
	SchemeKey = "cv.scheme"

	// ExclusionsKey counts neighbours excluded by the NNDM matching pass.
	ExclusionsKey = "cv.nndm_exclusions"

	// StatisticKey records the achieved distribution-match (KS) statistic.
	StatisticKey = "cv.match_statistic"
)

// Dissimilarity and Applicability Context
const (
	// ThresholdKey records the DI threshold derived from the fold structure.
	ThresholdKey = "di.threshold"

	// NormConstKey records the DI normalization constant
	// (mean leave-one-out nearest-neighbour distance).
	NormConstKey = "di.norm_const"

	// InsideRatioKey records the fraction of grid cells inside the AOA.
	InsideRatioKey = "aoa.inside_ratio"

	// PairsKey counts (DI, error) observations collected for calibration.
	PairsKey = "calibration.pairs"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey records the number of parallel workers used.
	WorkersKey = "perf.workers"
)
