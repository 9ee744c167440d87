package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ImportanceProvider は変数重要度を公開するモデルのインターフェース。
// 重要度は特徴量空間の距離計算の重み付けに使われる。
type ImportanceProvider interface {
	// Importance は変数ごとの重要度（非負の重み）を返す
	Importance() []float64
}

// Regressor は再学習可能な回帰モデルのインターフェース。
// キャリブレーションのCVループはこのインターフェースだけに依存し、
// 具体的なモデル実装（木アンサンブル等）には依存しない。
type Regressor interface {
	Fitter
	Predictor
}

// Factory は独立したRegressorインスタンスを生成する。
// フォールドごとにモデルを再学習するため、共有状態を持ってはならない。
type Factory func() Regressor
