// Package cv constructs cross-validation fold structures for spatial
// model validation: plain random k-fold, spatial leave-cluster-out, and
// Nearest-Neighbour Distance Matching (NNDM).
//
// All schemes emit the same Fold type and satisfy the same invariant:
// concatenated across folds, the test sets cover every training point
// exactly once. Fold structures are built once per configuration and are
// treated as immutable afterwards.
package cv

import (
	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// Fold is one train/test split. Index slices refer to rows of the
// training point set and must not be mutated after construction.
type Fold struct {
	Train []int
	Test  []int
}

// Splitter generates fold structures over n training points.
type Splitter interface {
	// Split returns the folds for a training set of n points.
	Split(n int) ([]Fold, error)

	// NumSplits returns the number of folds Split will produce.
	NumSplits() int
}

// CheckCoverage verifies the fold-coverage invariant: the test sets,
// concatenated across folds, contain every index in [0, n) exactly once.
// It returns a descriptive error naming the first violation found.
func CheckCoverage(folds []Fold, n int) error {
	seen := make([]int, n)
	for f, fold := range folds {
		for _, idx := range fold.Test {
			if idx < 0 || idx >= n {
				return errors.Newf("cv: fold %d test index %d out of range [0, %d)", f, idx, n)
			}
			seen[idx]++
			if seen[idx] > 1 {
				return errors.Newf("cv: index %d appears in more than one test set", idx)
			}
		}
	}
	for idx, count := range seen {
		if count == 0 {
			return errors.Newf("cv: index %d appears in no test set", idx)
		}
	}
	return nil
}

// Summary describes a fold structure.
type Summary struct {
	NumFolds     int
	MinTestSize  int
	MaxTestSize  int
	MeanTestSize float64
}

// Summarize computes fold-count and test-size statistics.
func Summarize(folds []Fold) Summary {
	s := Summary{NumFolds: len(folds)}
	if len(folds) == 0 {
		return s
	}
	s.MinTestSize = len(folds[0].Test)
	total := 0
	for _, fold := range folds {
		size := len(fold.Test)
		total += size
		if size < s.MinTestSize {
			s.MinTestSize = size
		}
		if size > s.MaxTestSize {
			s.MaxTestSize = size
		}
	}
	s.MeanTestSize = float64(total) / float64(len(folds))
	return s
}
