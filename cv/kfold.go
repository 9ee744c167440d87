package cv

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// RandomKFold is a random k-fold splitter. The random source is derived
// from the configured seed, so a given configuration always produces the
// same folds.
type RandomKFold struct {
	K       int
	Shuffle bool
	Seed    uint64
}

// NewRandomKFold creates a new k-fold splitter. k values below 2 fall
// back to the default of 5.
func NewRandomKFold(k int, shuffle bool, seed uint64) *RandomKFold {
	if k < 2 {
		k = 5
	}
	return &RandomKFold{K: k, Shuffle: shuffle, Seed: seed}
}

// NumSplits returns the number of folds.
func (kf *RandomKFold) NumSplits() int { return kf.K }

// Split generates train/test indices for each fold.
func (kf *RandomKFold) Split(n int) ([]Fold, error) {
	if n < kf.K {
		return nil, errors.NewInsufficientDataError("RandomKFold.Split", kf.K, n, "points")
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.Seed, kf.Seed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.K)
	foldSize := n / kf.K
	remainder := n % kf.K

	current := 0
	for f := 0; f < kf.K; f++ {
		testSize := foldSize
		if f < remainder {
			testSize++
		}

		test := make([]int, testSize)
		copy(test, indices[current:current+testSize])

		train := make([]int, 0, n-testSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+testSize:]...)

		folds[f] = Fold{Train: train, Test: test}
		current += testSize
	}

	return folds, nil
}

// LeaveOneOut returns the trivial n-fold structure where every point is
// held out once against all remaining points.
func LeaveOneOut(n int) ([]Fold, error) {
	if n < 2 {
		return nil, errors.NewInsufficientDataError("LeaveOneOut", 2, n, "points")
	}
	folds := make([]Fold, n)
	for j := 0; j < n; j++ {
		train := make([]int, 0, n-1)
		for i := 0; i < n; i++ {
			if i != j {
				train = append(train, i)
			}
		}
		folds[j] = Fold{Train: train, Test: []int{j}}
	}
	return folds, nil
}
