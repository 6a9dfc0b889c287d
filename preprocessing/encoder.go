package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// 未知カテゴリの扱い
const (
	// HandleUnknownError は未知カテゴリをエラーにする（デフォルト）
	HandleUnknownError = "error"
	// HandleUnknownIgnore は未知カテゴリを無視する
	// （ordinal: -1、one-hot: 全て0の行）
	HandleUnknownIgnore = "ignore"
)

// fitCategories は各列のソート済み語彙を学習する
func fitCategories(cols [][]string) ([][]string, error) {
	if len(cols) == 0 || len(cols[0]) == 0 {
		return nil, errors.NewModelError("fitCategories", "empty data", errors.ErrEmptyData)
	}

	categories := make([][]string, len(cols))
	for j, col := range cols {
		seen := make(map[string]bool)
		for _, v := range col {
			seen[v] = true
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		categories[j] = vocab
	}
	return categories, nil
}

// categoryIndex は語彙から逆引きマップを構築する
func categoryIndex(categories [][]string) []map[string]int {
	index := make([]map[string]int, len(categories))
	for j, vocab := range categories {
		index[j] = make(map[string]int, len(vocab))
		for code, v := range vocab {
			index[j][v] = code
		}
	}
	return index
}

// OrdinalEncoder はカテゴリ値を整数コードに変換するエンコーダー
// 各列の語彙はソート順にコード0..k-1が割り当てられる
type OrdinalEncoder struct {
	model.BaseEstimator

	// Categories は各列の学習済み語彙（ソート済み）
	Categories [][]string

	// HandleUnknown は未知カテゴリの扱い ("error" または "ignore")
	HandleUnknown string

	// NColumns は入力列数
	NColumns int

	index []map[string]int // 遅延構築の逆引き（gobには保存されない）
}

// NewOrdinalEncoder は新しいOrdinalEncoderを作成する
func NewOrdinalEncoder(handleUnknown string) *OrdinalEncoder {
	return &OrdinalEncoder{HandleUnknown: handleUnknown}
}

// NewOrdinalEncoderDefault はデフォルト設定でOrdinalEncoderを作成する
func NewOrdinalEncoderDefault() *OrdinalEncoder {
	return NewOrdinalEncoder(HandleUnknownError)
}

// Fit は各列のカテゴリ語彙を学習する
func (e *OrdinalEncoder) Fit(cols [][]string) error {
	categories, err := fitCategories(cols)
	if err != nil {
		return err
	}
	e.Categories = categories
	e.NColumns = len(cols)
	e.index = categoryIndex(categories)
	e.SetFitted()
	return nil
}

// Transform は学習済み語彙でカテゴリ値を整数コードに変換する
func (e *OrdinalEncoder) Transform(cols [][]string) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("OrdinalEncoder", "Transform")
	}
	if len(cols) != e.NColumns {
		return nil, errors.NewDimensionError("OrdinalEncoder.Transform", e.NColumns, len(cols), 1)
	}
	if e.index == nil {
		e.index = categoryIndex(e.Categories)
	}

	n := len(cols[0])
	result := mat.NewDense(n, e.NColumns, nil)
	for j, col := range cols {
		for i, v := range col {
			code, ok := e.index[j][v]
			if !ok {
				if e.HandleUnknown == HandleUnknownIgnore {
					code = -1
				} else {
					return nil, errors.NewValueError("OrdinalEncoder.Transform",
						fmt.Sprintf("unknown category %q in column %d", v, j))
				}
			}
			result.Set(i, j, float64(code))
		}
	}
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (e *OrdinalEncoder) FitTransform(cols [][]string) (*mat.Dense, error) {
	if err := e.Fit(cols); err != nil {
		return nil, err
	}
	return e.Transform(cols)
}

// NumOutputFeatures は出力特徴量数（入力列数と同じ）を返す
func (e *OrdinalEncoder) NumOutputFeatures() int {
	return e.NColumns
}

// FeatureNames は入力列名に対応する出力特徴量名を返す
func (e *OrdinalEncoder) FeatureNames(inputNames []string) []string {
	out := make([]string, len(inputNames))
	copy(out, inputNames)
	return out
}

// OneHotEncoder はカテゴリ値を指示変数列に展開するエンコーダー
// 列ごとに語彙サイズ分の0/1列を生成する
type OneHotEncoder struct {
	model.BaseEstimator

	// Categories は各列の学習済み語彙（ソート済み）
	Categories [][]string

	// HandleUnknown は未知カテゴリの扱い ("error" または "ignore")
	HandleUnknown string

	// NColumns は入力列数
	NColumns int

	index []map[string]int
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
func NewOneHotEncoder(handleUnknown string) *OneHotEncoder {
	return &OneHotEncoder{HandleUnknown: handleUnknown}
}

// NewOneHotEncoderDefault はデフォルト設定でOneHotEncoderを作成する
func NewOneHotEncoderDefault() *OneHotEncoder {
	return NewOneHotEncoder(HandleUnknownError)
}

// Fit は各列のカテゴリ語彙を学習する
func (e *OneHotEncoder) Fit(cols [][]string) error {
	categories, err := fitCategories(cols)
	if err != nil {
		return err
	}
	e.Categories = categories
	e.NColumns = len(cols)
	e.index = categoryIndex(categories)
	e.SetFitted()
	return nil
}

// Transform は学習済み語彙でカテゴリ値を指示変数行列に変換する
// 各入力列につき、ちょうど1つの指示変数が1になる
// （HandleUnknownIgnoreの未知カテゴリ行のみ全て0）
func (e *OneHotEncoder) Transform(cols [][]string) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if len(cols) != e.NColumns {
		return nil, errors.NewDimensionError("OneHotEncoder.Transform", e.NColumns, len(cols), 1)
	}
	if e.index == nil {
		e.index = categoryIndex(e.Categories)
	}

	n := len(cols[0])
	result := mat.NewDense(n, e.NumOutputFeatures(), nil)
	offset := 0
	for j, col := range cols {
		for i, v := range col {
			code, ok := e.index[j][v]
			if !ok {
				if e.HandleUnknown == HandleUnknownIgnore {
					continue
				}
				return nil, errors.NewValueError("OneHotEncoder.Transform",
					fmt.Sprintf("unknown category %q in column %d", v, j))
			}
			result.Set(i, offset+code, 1.0)
		}
		offset += len(e.Categories[j])
	}
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (e *OneHotEncoder) FitTransform(cols [][]string) (*mat.Dense, error) {
	if err := e.Fit(cols); err != nil {
		return nil, err
	}
	return e.Transform(cols)
}

// NumOutputFeatures は出力特徴量数（全列の語彙サイズの合計）を返す
func (e *OneHotEncoder) NumOutputFeatures() int {
	total := 0
	for _, vocab := range e.Categories {
		total += len(vocab)
	}
	return total
}

// FeatureNames は「列名=カテゴリ」形式の出力特徴量名を返す
func (e *OneHotEncoder) FeatureNames(inputNames []string) []string {
	names := make([]string, 0, e.NumOutputFeatures())
	for j, vocab := range e.Categories {
		prefix := fmt.Sprintf("col%d", j)
		if j < len(inputNames) {
			prefix = inputNames[j]
		}
		for _, v := range vocab {
			names = append(names, prefix+"="+v)
		}
	}
	return names
}
