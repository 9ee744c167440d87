package aoa

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// quantileType7 computes the p-quantile of sorted values with linear
// interpolation between order statistics (R type-7, the boxplot
// convention). gonum's stat.Quantile cumulant kinds implement different
// interpolation rules, and the DI threshold has to reproduce the boxplot
// rule exactly.
func quantileType7(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// OutlierThreshold derives the DI threshold from a sample of held-out
// dissimilarity values: the upper boxplot outlier bound, third quartile
// plus 1.5 times the interquartile range.
func OutlierThreshold(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.NewInsufficientDataError("OutlierThreshold", 1, 0, "observations")
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := quantileType7(sorted, 0.25)
	q3 := quantileType7(sorted, 0.75)
	return q3 + 1.5*(q3-q1), nil
}
