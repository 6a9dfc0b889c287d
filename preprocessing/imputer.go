package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// 欠損値補完の戦略
const (
	// StrategyMedian は列の中央値で欠損値を補完する
	StrategyMedian = "median"
	// StrategyMean は列の平均値で欠損値を補完する
	StrategyMean = "mean"
	// StrategyConstant は固定値で欠損値を補完する
	StrategyConstant = "constant"
)

// SimpleImputer はscikit-learn互換の欠損値補完器
// NaNを欠損値マーカーとして扱い、学習した統計量で置き換える
type SimpleImputer struct {
	model.BaseEstimator

	// Strategy は補完戦略 ("median", "mean", "constant")
	Strategy string

	// FillValue はStrategyConstantの場合に使用する固定値
	FillValue float64

	// Statistics は各特徴量の学習済み補完値
	Statistics []float64

	// NFeatures は特徴量の数
	NFeatures int
}

// NewSimpleImputer は新しいSimpleImputerを作成する
//
// 使用例:
//
//	imputer := preprocessing.NewSimpleImputer(preprocessing.StrategyMedian, 0)
//	XImputed, err := imputer.FitTransform(X)
func NewSimpleImputer(strategy string, fillValue float64) *SimpleImputer {
	return &SimpleImputer{
		Strategy:  strategy,
		FillValue: fillValue,
	}
}

// NewMedianImputer は中央値補完のSimpleImputerを作成する
func NewMedianImputer() *SimpleImputer {
	return NewSimpleImputer(StrategyMedian, 0)
}

// Fit は訓練データから各列の補完統計量を計算する
// NaNは統計量の計算から除外される
func (im *SimpleImputer) Fit(X mat.Matrix) error {
	switch im.Strategy {
	case StrategyMedian, StrategyMean, StrategyConstant:
	default:
		return errors.NewValidationError("strategy", "must be median, mean, or constant", im.Strategy)
	}

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}

	im.NFeatures = c
	im.Statistics = make([]float64, c)

	for j := 0; j < c; j++ {
		if im.Strategy == StrategyConstant {
			im.Statistics[j] = im.FillValue
			continue
		}

		observed := make([]float64, 0, r)
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}

		// 全てNaNの列は固定値にフォールバックする
		if len(observed) == 0 {
			errors.Warn(errors.NewDataConversionWarning(
				"NaN", "float64",
				fmt.Sprintf("feature %d has no observed values, imputing with %g", j, im.FillValue)))
			im.Statistics[j] = im.FillValue
			continue
		}

		switch im.Strategy {
		case StrategyMean:
			sum := 0.0
			for _, v := range observed {
				sum += v
			}
			im.Statistics[j] = sum / float64(len(observed))
		case StrategyMedian:
			sort.Float64s(observed)
			mid := len(observed) / 2
			if len(observed)%2 == 1 {
				im.Statistics[j] = observed[mid]
			} else {
				im.Statistics[j] = (observed[mid-1] + observed[mid]) / 2
			}
		}
	}

	im.SetFitted()
	return nil
}

// Transform は学習済みの統計量でNaNを置き換える
func (im *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !im.IsFitted() {
		return nil, errors.NewNotFittedError("SimpleImputer", "Transform")
	}

	r, c := X.Dims()
	if c != im.NFeatures {
		return nil, errors.NewDimensionError("SimpleImputer.Transform", im.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				v = im.Statistics[j]
			}
			result.Set(i, j, v)
		}
	}
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (im *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := im.Fit(X); err != nil {
		return nil, err
	}
	return im.Transform(X)
}

// GetParams は補完器のパラメータを取得する
func (im *SimpleImputer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"strategy":   im.Strategy,
		"fill_value": im.FillValue,
	}
}

// String は補完器の文字列表現を返す
func (im *SimpleImputer) String() string {
	if !im.IsFitted() {
		return fmt.Sprintf("SimpleImputer(strategy=%s)", im.Strategy)
	}
	return fmt.Sprintf("SimpleImputer(strategy=%s, n_features=%d)", im.Strategy, im.NFeatures)
}

// CategoricalImputer はカテゴリカル列の欠損値（空文字列）を番兵カテゴリで補完する
type CategoricalImputer struct {
	model.BaseEstimator

	// Sentinel は欠損セルの置き換え先カテゴリ
	Sentinel string
}

// MissingCategory はカテゴリカル補完のデフォルト番兵値
const MissingCategory = "__missing__"

// NewCategoricalImputer はデフォルト番兵のCategoricalImputerを作成する
func NewCategoricalImputer() *CategoricalImputer {
	return &CategoricalImputer{Sentinel: MissingCategory}
}

// Fit は補完器を学習する（番兵は固定のため統計量は持たない）
func (ci *CategoricalImputer) Fit(cols [][]string) error {
	if len(cols) == 0 {
		return errors.NewModelError("CategoricalImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	ci.SetFitted()
	return nil
}

// Transform は空文字列セルを番兵カテゴリに置き換えた列を返す
func (ci *CategoricalImputer) Transform(cols [][]string) ([][]string, error) {
	if !ci.IsFitted() {
		return nil, errors.NewNotFittedError("CategoricalImputer", "Transform")
	}

	out := make([][]string, len(cols))
	for j, col := range cols {
		out[j] = make([]string, len(col))
		for i, v := range col {
			if v == "" {
				v = ci.Sentinel
			}
			out[j][i] = v
		}
	}
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (ci *CategoricalImputer) FitTransform(cols [][]string) ([][]string, error) {
	if err := ci.Fit(cols); err != nil {
		return nil, err
	}
	return ci.Transform(cols)
}
