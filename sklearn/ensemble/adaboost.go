package ensemble

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
	"github.com/go-tabkit/tabkit/sklearn/tree"
)

// AdaBoostClassifier is a boosted ensemble of shallow CART trees using the
// multi-class SAMME weight-update rule. Each round refits a weak learner on
// reweighted samples, concentrating weight on previous misclassifications.
type AdaBoostClassifier struct {
	model.BaseEstimator

	// Members holds the fitted weak learners.
	Members []*tree.DecisionTreeClassifier

	// Alphas holds the vote weight of each member.
	Alphas []float64

	// ClassValues is the sorted list of class labels seen during fit.
	ClassValues []int

	// NFeatures is the number of features seen during fit.
	NFeatures int

	nEstimators  int
	learningRate float64
	maxDepth     int
	randomState  int64
}

// BoostOption configures an AdaBoostClassifier.
type BoostOption func(*AdaBoostClassifier)

// WithRounds sets the maximum number of boosting rounds.
func WithRounds(n int) BoostOption {
	return func(ab *AdaBoostClassifier) {
		ab.nEstimators = n
	}
}

// WithLearningRate shrinks the contribution of each round.
func WithLearningRate(rate float64) BoostOption {
	return func(ab *AdaBoostClassifier) {
		ab.learningRate = rate
	}
}

// WithBoostMaxDepth sets the depth of the weak learners. The default of 1
// trains decision stumps.
func WithBoostMaxDepth(depth int) BoostOption {
	return func(ab *AdaBoostClassifier) {
		ab.maxDepth = depth
	}
}

// WithBoostRandomState seeds the weak learners for reproducible fits.
func WithBoostRandomState(seed int64) BoostOption {
	return func(ab *AdaBoostClassifier) {
		ab.randomState = seed
	}
}

// NewAdaBoostClassifier creates an AdaBoost classifier with 50 stump rounds
// and learning rate 1.0 by default.
func NewAdaBoostClassifier(opts ...BoostOption) *AdaBoostClassifier {
	ab := &AdaBoostClassifier{
		nEstimators:  50,
		learningRate: 1.0,
		maxDepth:     1,
	}
	for _, opt := range opts {
		opt(ab)
	}
	return ab
}

// Fit trains the boosted ensemble on X (n_samples × n_features) and y
// (n_samples × 1).
func (ab *AdaBoostClassifier) Fit(X, y mat.Matrix) error {
	if ab.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", ab.nEstimators)
	}
	if ab.learningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be > 0", ab.learningRate)
	}

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("AdaBoostClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("AdaBoostClassifier.Fit", rows, yRows, 0)
	}

	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i] = int(y.At(i, 0))
	}
	ab.ClassValues = sortedUnique(labels)
	ab.NFeatures = cols
	nClasses := float64(len(ab.ClassValues))
	if nClasses < 2 {
		return errors.NewValueError("AdaBoostClassifier.Fit", "need at least 2 classes")
	}

	weights := make([]float64, rows)
	for i := range weights {
		weights[i] = 1.0 / float64(rows)
	}

	ab.Members = nil
	ab.Alphas = nil

	const eps = 1e-10
	for m := 0; m < ab.nEstimators; m++ {
		member := tree.NewDecisionTreeClassifier(
			tree.WithMaxDepth(ab.maxDepth),
			tree.WithRandomState(ab.randomState+int64(m)),
		)
		if err := member.FitWeighted(X, y, weights); err != nil {
			return errors.Wrapf(err, "boosting round %d", m)
		}

		predictions, err := member.Predict(X)
		if err != nil {
			return errors.Wrapf(err, "boosting round %d", m)
		}

		weightedErr := 0.0
		for i := 0; i < rows; i++ {
			if predictions.At(i, 0) != y.At(i, 0) {
				weightedErr += weights[i]
			}
		}

		// SAMME requires the weak learner to beat random guessing.
		if weightedErr >= 1-1/nClasses {
			if len(ab.Members) == 0 {
				return errors.NewModelError("AdaBoostClassifier.Fit",
					fmt.Sprintf("weak learner is no better than random guessing (error %.3f)", weightedErr), nil)
			}
			break
		}
		if weightedErr < eps {
			weightedErr = eps
		}

		alpha := ab.learningRate * (math.Log((1-weightedErr)/weightedErr) + math.Log(nClasses-1))
		ab.Members = append(ab.Members, member)
		ab.Alphas = append(ab.Alphas, alpha)

		// A perfect round leaves nothing to reweight.
		if weightedErr <= eps {
			break
		}

		total := 0.0
		for i := 0; i < rows; i++ {
			if predictions.At(i, 0) != y.At(i, 0) {
				weights[i] *= math.Exp(alpha)
			}
			total += weights[i]
		}
		for i := range weights {
			weights[i] /= total
		}
	}

	ab.SetFitted()
	return nil
}

// decisionScores accumulates the alpha-weighted votes per class.
func (ab *AdaBoostClassifier) decisionScores(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != ab.NFeatures {
		return nil, errors.NewDimensionError("AdaBoostClassifier.PredictProba", ab.NFeatures, cols, 1)
	}

	classPos := make(map[int]int, len(ab.ClassValues))
	for pos, c := range ab.ClassValues {
		classPos[c] = pos
	}

	scores := mat.NewDense(rows, len(ab.ClassValues), nil)
	for m, member := range ab.Members {
		predictions, err := member.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			pos := classPos[int(predictions.At(i, 0))]
			scores.Set(i, pos, scores.At(i, pos)+ab.Alphas[m])
		}
	}
	return scores, nil
}

// PredictProba returns the alpha-weighted vote shares per class.
func (ab *AdaBoostClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !ab.IsFitted() {
		return nil, errors.NewNotFittedError("AdaBoostClassifier", "PredictProba")
	}

	scores, err := ab.decisionScores(X)
	if err != nil {
		return nil, err
	}

	rows, nClasses := scores.Dims()
	for i := 0; i < rows; i++ {
		total := 0.0
		for k := 0; k < nClasses; k++ {
			total += scores.At(i, k)
		}
		if total > 0 {
			for k := 0; k < nClasses; k++ {
				scores.Set(i, k, scores.At(i, k)/total)
			}
		} else {
			for k := 0; k < nClasses; k++ {
				scores.Set(i, k, 1/float64(nClasses))
			}
		}
	}
	return scores, nil
}

// Predict returns the class with the highest weighted vote per row.
func (ab *AdaBoostClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !ab.IsFitted() {
		return nil, errors.NewNotFittedError("AdaBoostClassifier", "Predict")
	}
	scores, err := ab.decisionScores(X)
	if err != nil {
		return nil, err
	}
	return argmaxClasses(scores, ab.ClassValues), nil
}

// Score returns the mean accuracy of Predict(X) against y.
func (ab *AdaBoostClassifier) Score(X, y mat.Matrix) (float64, error) {
	return accuracyScore(ab, X, y)
}

// Classes returns the sorted class labels seen during fit.
func (ab *AdaBoostClassifier) Classes() []int {
	out := make([]int, len(ab.ClassValues))
	copy(out, ab.ClassValues)
	return out
}

// GetParams returns the hyperparameters.
func (ab *AdaBoostClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":  ab.nEstimators,
		"learning_rate": ab.learningRate,
		"max_depth":     ab.maxDepth,
		"random_state":  ab.randomState,
	}
}

// String returns a concise description of the model.
func (ab *AdaBoostClassifier) String() string {
	return fmt.Sprintf("AdaBoostClassifier(n_estimators=%d, rounds=%d, fitted=%v)",
		ab.nEstimators, len(ab.Members), ab.IsFitted())
}
