// Package ensemble implements ensemble classifiers: bagged and boosted
// decision trees and a voting combiner over heterogeneous members.
package ensemble

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/core/parallel"
	"github.com/go-tabkit/tabkit/pkg/errors"
	"github.com/go-tabkit/tabkit/sklearn/tree"
)

// RandomForestClassifier is a bagging ensemble of CART trees. Each tree is
// trained on a bootstrap resample with random feature subsampling at every
// split, and trees are fitted in parallel.
type RandomForestClassifier struct {
	model.BaseEstimator

	// Trees holds the fitted ensemble members.
	Trees []*tree.DecisionTreeClassifier

	// ClassValues is the sorted list of class labels seen during fit.
	ClassValues []int

	// NFeatures is the number of features seen during fit.
	NFeatures int

	nEstimators int
	maxDepth    int
	maxFeatures int // 0 means sqrt(n_features)
	randomState int64
}

// ForestOption configures a RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// WithTrees sets the number of trees in the forest.
func WithTrees(n int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.nEstimators = n
	}
}

// WithForestMaxDepth limits the depth of every tree. Zero means unlimited.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.maxDepth = depth
	}
}

// WithForestMaxFeatures sets the number of features considered per split.
// Zero means sqrt(n_features).
func WithForestMaxFeatures(n int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.maxFeatures = n
	}
}

// WithForestRandomState seeds bootstrap resampling and feature subsampling.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.randomState = seed
	}
}

// NewRandomForestClassifier creates a random forest with 100 trees by default.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{nEstimators: 100}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit trains the forest on X (n_samples × n_features) and y (n_samples × 1).
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("RandomForestClassifier.Fit", rows, yRows, 0)
	}

	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i] = int(y.At(i, 0))
	}
	rf.ClassValues = sortedUnique(labels)
	rf.NFeatures = cols

	maxFeatures := rf.maxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(cols)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	rf.Trees = make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)

	// Small ensembles are not worth the goroutine overhead
	parallel.ParallelizeWithThreshold(rf.nEstimators, 4, func(start, end int) {
		for b := start; b < end; b++ {
			// Per-tree derived seed keeps fits reproducible regardless of
			// how the work is chunked across goroutines.
			seed := rf.randomState + int64(b)
			bootX, bootY := bootstrapSample(X, y, rows, cols, seed)

			member := tree.NewDecisionTreeClassifier(
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithRandomState(seed),
			)
			if err := member.Fit(bootX, bootY); err != nil {
				errs[b] = errors.Wrapf(err, "fit tree %d", b)
				continue
			}
			rf.Trees[b] = member
		}
	})

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	rf.SetFitted()
	return nil
}

// bootstrapSample draws n rows with replacement.
func bootstrapSample(X, y mat.Matrix, rows, cols int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	bootX := mat.NewDense(rows, cols, nil)
	bootY := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		src := rng.Intn(rows)
		for j := 0; j < cols; j++ {
			bootX.Set(i, j, X.At(src, j))
		}
		bootY.Set(i, 0, y.At(src, 0))
	}
	return bootX, bootY
}

// PredictProba returns class probabilities averaged over all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}
	rows, cols := X.Dims()
	if cols != rf.NFeatures {
		return nil, errors.NewDimensionError("RandomForestClassifier.PredictProba", rf.NFeatures, cols, 1)
	}

	classPos := make(map[int]int, len(rf.ClassValues))
	for pos, c := range rf.ClassValues {
		classPos[c] = pos
	}

	result := mat.NewDense(rows, len(rf.ClassValues), nil)
	for _, member := range rf.Trees {
		probas, err := member.PredictProba(X)
		if err != nil {
			return nil, err
		}
		// Bootstrap samples can miss classes, so member columns are mapped
		// by class value rather than by position.
		memberClasses := member.Classes()
		for i := 0; i < rows; i++ {
			for k, c := range memberClasses {
				pos := classPos[c]
				result.Set(i, pos, result.At(i, pos)+probas.At(i, k))
			}
		}
	}

	scale := 1.0 / float64(len(rf.Trees))
	result.Scale(scale, result)
	return result, nil
}

// Predict returns the class with the highest averaged probability per row.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxClasses(probas, rf.ClassValues), nil
}

// Score returns the mean accuracy of Predict(X) against y.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	return accuracyScore(rf, X, y)
}

// Classes returns the sorted class labels seen during fit.
func (rf *RandomForestClassifier) Classes() []int {
	out := make([]int, len(rf.ClassValues))
	copy(out, rf.ClassValues)
	return out
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators": rf.nEstimators,
		"max_depth":    rf.maxDepth,
		"max_features": rf.maxFeatures,
		"random_state": rf.randomState,
	}
}

// String returns a concise description of the model.
func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, fitted=%v)", rf.nEstimators, rf.IsFitted())
}
