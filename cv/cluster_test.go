package cv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoBlobs places n/2 points around (0,0) and n/2 around (100,100).
func twoBlobs(n int) *mat.Dense {
	coords := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		offset := float64(i%5) * 0.5
		if i < n/2 {
			coords.Set(i, 0, offset)
			coords.Set(i, 1, -offset)
		} else {
			coords.Set(i, 0, 100+offset)
			coords.Set(i, 1, 100-offset)
		}
	}
	return coords
}

func TestLeaveClusterOutCoverage(t *testing.T) {
	coords := twoBlobs(20)
	lc := NewLeaveClusterOut(coords, 2, 1)

	folds, err := lc.Split(20)
	require.NoError(t, err)
	require.NoError(t, CheckCoverage(folds, 20))
	for f, fold := range folds {
		assert.NotEmpty(t, fold.Test, "fold %d has an empty test set", f)
		assert.Equal(t, 20, len(fold.Train)+len(fold.Test))
	}
}

func TestLeaveClusterOutSeparatesBlobs(t *testing.T) {
	coords := twoBlobs(20)
	folds, err := NewLeaveClusterOut(coords, 2, 42).Split(20)
	require.NoError(t, err)
	require.Len(t, folds, 2)

	// With two well-separated blobs, each fold's test set must lie
	// entirely within one blob.
	for _, fold := range folds {
		firstBlob := fold.Test[0] < 10
		for _, idx := range fold.Test {
			assert.Equal(t, firstBlob, idx < 10, "test set mixes the two blobs")
		}
	}
}

func TestLeaveClusterOutDeterministic(t *testing.T) {
	coords := twoBlobs(30)
	a, err := NewLeaveClusterOut(coords, 3, 5).Split(30)
	require.NoError(t, err)
	b, err := NewLeaveClusterOut(coords, 3, 5).Split(30)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed must reproduce folds")
}

func TestLeaveClusterOutErrors(t *testing.T) {
	coords := twoBlobs(4)

	t.Run("row count mismatch", func(t *testing.T) {
		_, err := NewLeaveClusterOut(coords, 2, 0).Split(10)
		assert.Error(t, err)
	})

	t.Run("too few points", func(t *testing.T) {
		_, err := NewLeaveClusterOut(coords, 4, 0).Split(4)
		require.NoError(t, err) // k == n is allowed
		_, err = NewLeaveClusterOut(twoBlobs(2), 3, 0).Split(2)
		assert.Error(t, err)
	})
}
