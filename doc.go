// Package geoval provides validation tooling for spatial prediction
// models: distance-aware cross-validation fold construction and
// applicability-domain estimation.
//
// When a model trained on clustered field samples is applied across a
// whole map, random k-fold cross-validation reports error for the
// sampled neighbourhood, not for the far-away pixels the model will
// actually predict. geoval quantifies and narrows this gap.
//
// # Features
//
//   - NNDM: Nearest-Neighbour Distance Matching fold construction,
//     matching held-out distances to the prediction-domain distance
//     distribution
//   - DI/AOA: Dissimilarity Index and Area of Applicability estimation
//     with a leakage-free CV-derived threshold
//   - Calibration: monotone DI to expected-error curves from repeated
//     cross-validation
//   - KD-tree backed nearest-neighbour queries for dense per-pixel work
//   - Explicit random sources everywhere; no process-global state
//
// # Quick Start
//
// Estimate the area of applicability of a trained model:
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/YuminosukeSato/geoval/aoa"
//	)
//
//	func main() {
//	    // X: training features, grid: predictor grid for the map
//	    est, err := aoa.TrainDI(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := est.Predict(grid)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _ = res.AOA // 1 inside the area of applicability, 0 outside
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - preprocessing: training-statistics feature scaling with
//     importance weighting
//   - neighbors: KD-tree nearest-neighbour distance engine
//   - cv: fold types, random k-fold, leave-cluster-out, NNDM
//   - aoa: DI/AOA estimation and error calibration
//   - metrics: regression error metrics
//   - core/model: model capability interfaces and base types
//   - core/parallel: parallel processing utilities
//
// Model fitting itself is out of scope: any backend that implements
// core/model.Regressor plugs into the calibrator, and any predictor
// exposing importances can supply variable weights.
package geoval
