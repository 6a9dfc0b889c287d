package preprocessing

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// PolynomialFeatures は数値特徴量を多項式基底（バイアス項なし）に展開する変換器
//
// 次数dまでの全ての単項式（各変数の指数の合計が1以上d以下）を生成する。
// 出力特徴量数は C(n+d, d) - 1 となる。
type PolynomialFeatures struct {
	model.BaseEstimator

	// Degree は展開する最大次数（1以上）
	Degree int

	// NInputFeatures は学習時の入力特徴量数
	NInputFeatures int

	// Exponents は各出力特徴量の指数ベクトル（入力特徴量ごとの指数）
	Exponents [][]int
}

// NewPolynomialFeatures は新しいPolynomialFeaturesを作成する
func NewPolynomialFeatures(degree int) *PolynomialFeatures {
	return &PolynomialFeatures{Degree: degree}
}

// Fit は入力次元を記録し、指数ベクトルを列挙する
func (p *PolynomialFeatures) Fit(X mat.Matrix) error {
	if p.Degree < 1 {
		return errors.NewValidationError("degree", "must be >= 1", p.Degree)
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("PolynomialFeatures.Fit", "empty data", errors.ErrEmptyData)
	}

	p.NInputFeatures = cols
	p.Exponents = nil
	// 次数の昇順、同一次数内は辞書順で列挙する
	for d := 1; d <= p.Degree; d++ {
		p.enumerate(make([]int, cols), 0, d)
	}
	p.SetFitted()
	return nil
}

// enumerate は合計次数がちょうどremainingとなる指数ベクトルを列挙する
func (p *PolynomialFeatures) enumerate(current []int, pos, remaining int) {
	if pos == len(current)-1 {
		current[pos] = remaining
		exp := make([]int, len(current))
		copy(exp, current)
		p.Exponents = append(p.Exponents, exp)
		current[pos] = 0
		return
	}
	for e := remaining; e >= 0; e-- {
		current[pos] = e
		p.enumerate(current, pos+1, remaining-e)
	}
	current[pos] = 0
}

// Transform は入力行列を多項式特徴量行列に展開する
func (p *PolynomialFeatures) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("PolynomialFeatures", "Transform")
	}
	rows, cols := X.Dims()
	if cols != p.NInputFeatures {
		return nil, errors.NewDimensionError("PolynomialFeatures.Transform", p.NInputFeatures, cols, 1)
	}

	result := mat.NewDense(rows, len(p.Exponents), nil)
	for i := 0; i < rows; i++ {
		for k, exp := range p.Exponents {
			v := 1.0
			for j, e := range exp {
				for ; e > 0; e-- {
					v *= X.At(i, j)
				}
			}
			result.Set(i, k, v)
		}
	}
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (p *PolynomialFeatures) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// NumOutputFeatures は出力特徴量数 C(n+d, d) - 1 を返す
func (p *PolynomialFeatures) NumOutputFeatures() int {
	return len(p.Exponents)
}

// FeatureNames は「x0 x1^2」形式の出力特徴量名を返す
func (p *PolynomialFeatures) FeatureNames(inputNames []string) []string {
	names := make([]string, len(p.Exponents))
	for k, exp := range p.Exponents {
		var parts []string
		for j, e := range exp {
			if e == 0 {
				continue
			}
			name := fmt.Sprintf("x%d", j)
			if j < len(inputNames) {
				name = inputNames[j]
			}
			if e > 1 {
				name = fmt.Sprintf("%s^%d", name, e)
			}
			parts = append(parts, name)
		}
		names[k] = strings.Join(parts, " ")
	}
	return names
}

// GetParams はパラメータを返す
func (p *PolynomialFeatures) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"degree": p.Degree,
	}
}
