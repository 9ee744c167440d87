package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/geoval/core/model"
	"github.com/YuminosukeSato/geoval/pkg/errors"
)

// zeroVarianceTol 未満の標本標準偏差はゼロ分散として扱う
const zeroVarianceTol = 1e-12

var _ model.Transformer = (*FeatureScaler)(nil)

// FeatureScaler は訓練統計量に基づく標準化スケーラー。
// 各変数を訓練データの平均0・標準偏差1に変換し、オプションで
// 変数重要度による重み付けを距離計算の前に適用する。
//
// 距離計算の一貫性を保つため、訓練データと予測データは必ず
// 同じFeatureScalerインスタンスで変換しなければならない。
type FeatureScaler struct {
	model.BaseEstimator

	// Mean は各変数の訓練データ平均値
	Mean []float64

	// Scale は各変数の訓練データ標準偏差
	Scale []float64

	// Weights は各変数の重要度重み（nilの場合は重み付けなし）
	Weights []float64

	// NFeatures は変数の数
	NFeatures int
}

// NewFeatureScaler は新しいFeatureScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewFeatureScaler()
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewFeatureScaler() *FeatureScaler {
	return &FeatureScaler{}
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する。
// 分散がゼロの変数が含まれる場合はDataErrorを返す。
// 分散ゼロの変数は距離計算に寄与できず、暗黙の置き換えは
// 特徴量空間を歪めるため、ここでは失敗として扱う。
//
// パラメータ:
//   - X: 訓練データ (n_samples × n_features の行列)
//
// 戻り値:
//   - error: エラーが発生した場合
func (s *FeatureScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewDataError("FeatureScaler.Fit", "training matrix", "empty data")
	}

	mean := make([]float64, c)
	scale := make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, sd := stat.MeanStdDev(col, nil)
		if r == 1 || sd < zeroVarianceTol {
			return errors.NewDataError("FeatureScaler.Fit",
				fmt.Sprintf("variable %d", j), "zero variance in training data")
		}
		mean[j] = m
		scale[j] = sd
	}

	s.NFeatures = c
	s.Mean = mean
	s.Scale = scale

	if s.Weights != nil && len(s.Weights) != c {
		return errors.NewConfigError("FeatureScaler.Fit", "weights",
			"length must equal number of variables", len(s.Weights))
	}

	s.SetFitted()
	return nil
}

// SetWeights は変数重要度による重み付けを設定する。
// 標準化された各変数は距離計算の前にこの重みで拡大縮小される。
// 長さが変数の数と一致しない場合、または負の重みが含まれる場合は
// ConfigErrorを返す。Fitの前後どちらで呼んでもよい。
func (s *FeatureScaler) SetWeights(weights []float64) error {
	if s.IsFitted() && len(weights) != s.NFeatures {
		return errors.NewConfigError("FeatureScaler.SetWeights", "weights",
			"length must equal number of variables", len(weights))
	}
	for i, w := range weights {
		if w < 0 {
			return errors.NewConfigError("FeatureScaler.SetWeights", "weights",
				fmt.Sprintf("weight %d must be non-negative", i), w)
		}
	}
	s.Weights = append([]float64(nil), weights...)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化し、
// 重みが設定されている場合は重み付けを適用する
//
// パラメータ:
//   - X: 変換するデータ
//
// 戻り値:
//   - mat.Matrix: 変換されたデータ
//   - error: エラーが発生した場合
func (s *FeatureScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("FeatureScaler", "Transform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("FeatureScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, s.TransformValue(X.At(i, j), j))
		}
	}

	return result, nil
}

// TransformValue は単一の値を変数jの統計量で変換する。
// ラスタ全体を実体化せずチャンク単位で処理する呼び出し側のための
// 低レベルAPI。jの範囲チェックは行わない。
func (s *FeatureScaler) TransformValue(value float64, j int) float64 {
	v := (value - s.Mean[j]) / s.Scale[j]
	if s.Weights != nil {
		v *= s.Weights[j]
	}
	return v
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *FeatureScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は変換されたデータを元のスケールに戻す
//
// パラメータ:
//   - X: 変換されたデータ
//
// 戻り値:
//   - mat.Matrix: 元のスケールに戻されたデータ
//   - error: エラーが発生した場合
func (s *FeatureScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("FeatureScaler", "InverseTransform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("FeatureScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if s.Weights != nil {
				if s.Weights[j] == 0 {
					// 重みゼロの変数は復元不能なので平均値を返す
					result.Set(i, j, s.Mean[j])
					continue
				}
				v /= s.Weights[j]
			}
			result.Set(i, j, v*s.Scale[j]+s.Mean[j])
		}
	}

	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *FeatureScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"weights": s.Weights,
	}
}

// String はスケーラーの文字列表現を返す
func (s *FeatureScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("FeatureScaler(weighted=%t)", s.Weights != nil)
	}
	return fmt.Sprintf("FeatureScaler(weighted=%t, n_features=%d)", s.Weights != nil, s.NFeatures)
}
