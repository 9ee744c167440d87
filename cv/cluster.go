package cv

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// LeaveClusterOut は空間クラスタ単位のCV分割。
// 地理座標をk-meansでクラスタリングし、1クラスタを1フォールドとして
// 丸ごとホールドアウトする。クラスタ数を変えることで、ランダム分割より
// 大きな空間外挿をCVに経験させることができる。
type LeaveClusterOut struct {
	// K はクラスタ数（=フォールド数）
	K int

	// MaxIter はk-meansの最大イテレーション数
	MaxIter int

	// Seed は乱数シード。同じ設定は常に同じフォールドを生成する
	Seed uint64

	coords mat.Matrix
}

// NewLeaveClusterOut は座標行列 (n×d) 上のLeaveClusterOut分割器を作成する
func NewLeaveClusterOut(coords mat.Matrix, k int, seed uint64) *LeaveClusterOut {
	if k < 2 {
		k = 2
	}
	return &LeaveClusterOut{
		K:       k,
		MaxIter: 100,
		Seed:    seed,
		coords:  coords,
	}
}

// NumSplits はフォールド数を返す
func (lc *LeaveClusterOut) NumSplits() int { return lc.K }

// Split は各クラスタをテストセットとするフォールドを生成する
func (lc *LeaveClusterOut) Split(n int) ([]Fold, error) {
	rows, _ := lc.coords.Dims()
	if rows != n {
		return nil, errors.NewDimensionError("LeaveClusterOut.Split", n, rows, 0)
	}
	if n < lc.K {
		return nil, errors.NewInsufficientDataError("LeaveClusterOut.Split", lc.K, n, "points")
	}

	rng := rand.New(rand.NewPCG(lc.Seed, lc.Seed))
	labels, err := kMeans(lc.coords, lc.K, lc.MaxIter, rng)
	if err != nil {
		return nil, err
	}

	folds := make([]Fold, lc.K)
	for c := 0; c < lc.K; c++ {
		folds[c] = Fold{}
	}
	for i, label := range labels {
		folds[label].Test = append(folds[label].Test, i)
	}
	out := folds[:0]
	for c := 0; c < lc.K; c++ {
		test := folds[c].Test
		if len(test) == 0 {
			// k-meansが空クラスタを残した場合、空フォールドは除外する
			continue
		}
		train := make([]int, 0, n-len(test))
		for i, label := range labels {
			if label != c {
				train = append(train, i)
			}
		}
		out = append(out, Fold{Train: train, Test: test})
	}

	return out, nil
}

// kMeans はLloyd法によるk-meansクラスタリング。
// 初期センタはk-means++方式（距離二乗に比例した確率）で選択する。
// 空クラスタが生じた場合は最も遠い点を新センタとして再割り当てする。
func kMeans(X mat.Matrix, k, maxIter int, rng *rand.Rand) ([]int, error) {
	n, d := X.Dims()
	if n < k {
		return nil, errors.NewInsufficientDataError("kMeans", k, n, "points")
	}

	rowAt := func(i int) []float64 {
		row := make([]float64, d)
		mat.Row(row, i, X)
		return row
	}
	sqDist := func(a, b []float64) float64 {
		var sum float64
		for j := range a {
			diff := a[j] - b[j]
			sum += diff * diff
		}
		return sum
	}

	// k-means++初期化
	centers := make([][]float64, 0, k)
	centers = append(centers, rowAt(rng.IntN(n)))
	minDist := make([]float64, n)
	for i := 0; i < n; i++ {
		minDist[i] = sqDist(rowAt(i), centers[0])
	}
	for len(centers) < k {
		var total float64
		for _, dd := range minDist {
			total += dd
		}
		var next int
		if total <= 0 {
			// 全点が既存センタと一致している場合は一様に選ぶ
			next = rng.IntN(n)
		} else {
			target := rng.Float64() * total
			acc := 0.0
			next = n - 1
			for i, dd := range minDist {
				acc += dd
				if acc >= target {
					next = i
					break
				}
			}
		}
		center := rowAt(next)
		centers = append(centers, center)
		for i := 0; i < n; i++ {
			if dd := sqDist(rowAt(i), center); dd < minDist[i] {
				minDist[i] = dd
			}
		}
	}

	labels := make([]int, n)
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		// 割り当てステップ
		for i := 0; i < n; i++ {
			row := rowAt(i)
			best, bestDist := 0, math.Inf(1)
			for c := 0; c < k; c++ {
				if dd := sqDist(row, centers[c]); dd < bestDist {
					best, bestDist = c, dd
				}
			}
			if labels[i] != best || iter == 0 {
				changed = changed || labels[i] != best
				labels[i] = best
			}
		}

		// 更新ステップ
		newCenters := make([][]float64, k)
		for c := 0; c < k; c++ {
			newCenters[c] = make([]float64, d)
			counts[c] = 0
		}
		for i := 0; i < n; i++ {
			c := labels[i]
			counts[c]++
			row := rowAt(i)
			for j := 0; j < d; j++ {
				newCenters[c][j] += row[j]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// 空クラスタ: 現在のセンタから最も遠い点を新センタにする
				far, farDist := 0, -1.0
				for i := 0; i < n; i++ {
					if dd := sqDist(rowAt(i), centers[labels[i]]); dd > farDist {
						far, farDist = i, dd
					}
				}
				copy(newCenters[c], rowAt(far))
				labels[far] = c
				changed = true
				continue
			}
			for j := 0; j < d; j++ {
				newCenters[c][j] /= float64(counts[c])
			}
		}
		centers = newCenters

		if !changed && iter > 0 {
			break
		}
	}

	return labels, nil
}
