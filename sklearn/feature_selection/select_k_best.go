// Package feature_selection implements univariate feature selection
// against a class target.
package feature_selection

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// FClassif computes the one-way ANOVA F-statistic of every column of X
// against the class labels in y (n_samples × 1). Constant columns score 0.
func FClassif(X, y mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.NewModelError("FClassif", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return nil, errors.NewDimensionError("FClassif", rows, yRows, 0)
	}

	groups := make(map[int][]int)
	for i := 0; i < rows; i++ {
		c := int(y.At(i, 0))
		groups[c] = append(groups[c], i)
	}
	k := len(groups)
	if k < 2 {
		return nil, errors.NewValueError("FClassif", "need at least 2 classes")
	}
	if rows <= k {
		return nil, errors.NewValueError("FClassif",
			fmt.Sprintf("need more samples (%d) than classes (%d)", rows, k))
	}

	scores := make([]float64, cols)
	for j := 0; j < cols; j++ {
		grand := 0.0
		for i := 0; i < rows; i++ {
			grand += X.At(i, j)
		}
		grand /= float64(rows)

		ssBetween, ssWithin := 0.0, 0.0
		for _, members := range groups {
			groupMean := 0.0
			for _, i := range members {
				groupMean += X.At(i, j)
			}
			groupMean /= float64(len(members))

			d := groupMean - grand
			ssBetween += float64(len(members)) * d * d
			for _, i := range members {
				dd := X.At(i, j) - groupMean
				ssWithin += dd * dd
			}
		}

		msBetween := ssBetween / float64(k-1)
		msWithin := ssWithin / float64(rows-k)
		switch {
		case msWithin > 0:
			scores[j] = msBetween / msWithin
		case msBetween > 0:
			// Perfectly separated feature
			scores[j] = math.Inf(1)
		default:
			scores[j] = 0
		}
	}
	return scores, nil
}

// SelectKBest keeps the K features with the highest ANOVA F-statistic
// against the target. Selected column indices preserve their original
// order so downstream feature names stay aligned.
type SelectKBest struct {
	model.BaseEstimator

	// K is the number of features to keep.
	K int

	// Scores holds the per-feature F-statistics from the fit.
	Scores []float64

	// SupportIndices holds the kept column indices in ascending order.
	SupportIndices []int

	// NFeatures is the number of features seen during fit.
	NFeatures int
}

// NewSelectKBest creates a selector keeping the K best features.
func NewSelectKBest(k int) *SelectKBest {
	return &SelectKBest{K: k}
}

// Fit scores every feature and records the K best.
func (s *SelectKBest) Fit(X, y mat.Matrix) error {
	if s.K < 1 {
		return errors.NewValidationError("k", "must be >= 1", s.K)
	}
	_, cols := X.Dims()
	if s.K > cols {
		return errors.NewValidationError("k",
			fmt.Sprintf("cannot select %d features from %d", s.K, cols), s.K)
	}

	scores, err := FClassif(X, y)
	if err != nil {
		return err
	}
	s.Scores = scores
	s.NFeatures = cols

	// Rank descending by score, ties broken by lower index.
	order := make([]int, cols)
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	s.SupportIndices = append([]int(nil), order[:s.K]...)
	sort.Ints(s.SupportIndices)

	s.SetFitted()
	return nil
}

// Transform restricts X to the selected columns.
func (s *SelectKBest) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SelectKBest", "Transform")
	}
	rows, cols := X.Dims()
	if cols != s.NFeatures {
		return nil, errors.NewDimensionError("SelectKBest.Transform", s.NFeatures, cols, 1)
	}

	result := mat.NewDense(rows, len(s.SupportIndices), nil)
	for i := 0; i < rows; i++ {
		for out, j := range s.SupportIndices {
			result.Set(i, out, X.At(i, j))
		}
	}
	return result, nil
}

// FitTransform fits the selector and returns the reduced matrix.
func (s *SelectKBest) FitTransform(X, y mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X, y); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// SelectNames maps input feature names to the names of the kept columns.
func (s *SelectKBest) SelectNames(names []string) []string {
	out := make([]string, 0, len(s.SupportIndices))
	for _, j := range s.SupportIndices {
		if j < len(names) {
			out = append(out, names[j])
		}
	}
	return out
}

// GetParams returns the hyperparameters.
func (s *SelectKBest) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"k": s.K,
	}
}
