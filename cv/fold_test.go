package cv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCoverage(t *testing.T) {
	tests := []struct {
		name    string
		folds   []Fold
		n       int
		wantErr bool
	}{
		{
			name: "exact coverage",
			folds: []Fold{
				{Train: []int{2, 3}, Test: []int{0, 1}},
				{Train: []int{0, 1}, Test: []int{2, 3}},
			},
			n:       4,
			wantErr: false,
		},
		{
			name: "missing index",
			folds: []Fold{
				{Train: []int{2, 3}, Test: []int{0, 1}},
				{Train: []int{0, 1, 3}, Test: []int{2}},
			},
			n:       4,
			wantErr: true,
		},
		{
			name: "duplicated index",
			folds: []Fold{
				{Train: []int{2}, Test: []int{0, 1}},
				{Train: []int{0}, Test: []int{1, 2}},
			},
			n:       3,
			wantErr: true,
		},
		{
			name: "out of range index",
			folds: []Fold{
				{Train: nil, Test: []int{0, 5}},
			},
			n:       2,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCoverage(tt.folds, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	folds := []Fold{
		{Test: []int{0, 1, 2}},
		{Test: []int{3}},
		{Test: []int{4, 5}},
	}

	s := Summarize(folds)
	assert.Equal(t, 3, s.NumFolds)
	assert.Equal(t, 1, s.MinTestSize)
	assert.Equal(t, 3, s.MaxTestSize)
	assert.InDelta(t, 2.0, s.MeanTestSize, 1e-12)
}

func TestRandomKFoldCoverage(t *testing.T) {
	for _, tt := range []struct {
		k, n    int
		shuffle bool
	}{
		{5, 100, false},
		{5, 103, true},
		{2, 7, true},
		{10, 10, true},
	} {
		kf := NewRandomKFold(tt.k, tt.shuffle, 99)
		folds, err := kf.Split(tt.n)
		require.NoError(t, err)
		require.Len(t, folds, tt.k)
		require.NoError(t, CheckCoverage(folds, tt.n))

		for f, fold := range folds {
			assert.Equal(t, tt.n, len(fold.Train)+len(fold.Test), "fold %d partitions all points", f)
		}
	}
}

func TestRandomKFoldDeterministic(t *testing.T) {
	a, err := NewRandomKFold(4, true, 7).Split(50)
	require.NoError(t, err)
	b, err := NewRandomKFold(4, true, 7).Split(50)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed must reproduce folds")

	c, err := NewRandomKFold(4, true, 8).Split(50)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different seed should change shuffled folds")
}

func TestRandomKFoldInsufficientData(t *testing.T) {
	_, err := NewRandomKFold(10, false, 0).Split(5)
	assert.Error(t, err)
}

func TestLeaveOneOut(t *testing.T) {
	folds, err := LeaveOneOut(4)
	require.NoError(t, err)
	require.Len(t, folds, 4)
	require.NoError(t, CheckCoverage(folds, 4))
	for j, fold := range folds {
		assert.Equal(t, []int{j}, fold.Test)
		assert.Len(t, fold.Train, 3)
		assert.NotContains(t, fold.Train, j)
	}
}
