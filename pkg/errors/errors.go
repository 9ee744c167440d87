// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 空間モデル検証で起こりうる失敗（次元不一致、ゼロ分散変数、データ不足など）を
// 構造化されたエラー情報として提供します。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("geoval-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// これにより、ApproximateDomainWarningなどの診断警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	// zerologが設定されている場合は優先的に使用
	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	// フォールバック: 従来のハンドラ
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	診断警告型
//
// ===========================================================================

// ApproximateDomainWarning は予測ドメインのサンプルが与えられず、
// 調査領域マスクから固定解像度で近似した場合に発生する警告です。
// NNDMはこの状況で失敗せず、近似サンプルで続行します。
type ApproximateDomainWarning struct {
	Resolution float64
	Samples    int
	Reason     string
}

func (w *ApproximateDomainWarning) Error() string {
	return fmt.Sprintf("prediction domain approximated from study-area mask at resolution %g (%d samples): %s",
		w.Resolution, w.Samples, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ApproximateDomainWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("resolution", w.Resolution).
		Int("samples", w.Samples).
		Str("reason", w.Reason).
		Str("type", "ApproximateDomainWarning")
}

// NewApproximateDomainWarning は新しいApproximateDomainWarningを作成します。
func NewApproximateDomainWarning(resolution float64, samples int, reason string) *ApproximateDomainWarning {
	return &ApproximateDomainWarning{Resolution: resolution, Samples: samples, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError は推定器が未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("geoval: %s: this estimator is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("geoval: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ConfigError は設定値の検証に失敗した場合のエラーです。
// 重みベクトルの長さ不一致など、呼び出し側の構成ミスを示します。
type ConfigError struct {
	Op        string
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("geoval: %s: invalid configuration for '%s': %s (got: %v)", e.Op, e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigError")
}

// NewConfigError は新しいConfigErrorを作成し、スタックトレースを付与します。
func NewConfigError(op, param, reason string, value interface{}) error {
	err := &ConfigError{Op: op, ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// DataError は入力データが計算の前提条件を満たさない場合のエラーです。
// ゼロ分散変数や訓練・予測間の特徴量セット不一致などを示します。
type DataError struct {
	Op       string
	Entity   string // 問題のある変数・エンティティ名
	Reason   string // 違反した不変条件
}

func (e *DataError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("geoval: %s: invalid data for %s: %s", e.Op, e.Entity, e.Reason)
	}
	return fmt.Sprintf("geoval: %s: invalid data: %s", e.Op, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("entity", e.Entity).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError は新しいDataErrorを作成し、スタックトレースを付与します。
func NewDataError(op, entity, reason string) error {
	err := &DataError{Op: op, Entity: entity, Reason: reason}
	return errors.WithStack(err)
}

// InsufficientDataError はNNDMやキャリブレーションに必要な
// データ点・フォールド数が不足している場合のエラーです。
type InsufficientDataError struct {
	Op       string
	Required int
	Got      int
	Unit     string // "points", "folds", "observations" など
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("geoval: %s: insufficient data: need at least %d %s, got %d", e.Op, e.Required, e.Unit, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("required", e.Required).
		Int("got", e.Got).
		Str("unit", e.Unit).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError は新しいInsufficientDataErrorを作成し、スタックトレースを付与します。
func NewInsufficientDataError(op string, required, got int, unit string) error {
	err := &InsufficientDataError{Op: op, Required: required, Got: got, Unit: unit}
	return errors.WithStack(err)
}

// DomainMismatchError は予測ドメインに必要な変数が欠けている場合のエラーです。
// 特徴量セットの不一致は暗黙に補正されず、必ずこのエラーで中断します。
type DomainMismatchError struct {
	Op      string
	Missing []string
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("geoval: %s: prediction domain is missing required variables: [%s]", e.Op, strings.Join(e.Missing, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DomainMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Strs("missing", e.Missing).
		Str("type", "DomainMismatchError")
}

// NewDomainMismatchError は新しいDomainMismatchErrorを作成し、スタックトレースを付与します。
func NewDomainMismatchError(op string, missing []string) error {
	err := &DomainMismatchError{Op: op, Missing: missing}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("geoval: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
