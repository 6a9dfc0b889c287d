// Package model provides the shared estimator interfaces and state management
// used across preprocessing, feature selection, and classification packages.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the interface for models trained on features and a target.
type Fitter interface {
	// Fit trains the model on X (n_samples × n_features) and y (n_samples × 1).
	Fit(X, y mat.Matrix) error
}

// Predictor is the interface for models that produce point predictions.
type Predictor interface {
	// Predict returns predictions as an n_samples × 1 matrix.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Transformer is the interface for unsupervised data transformations.
// Fit learns parameters from X alone; Transform applies the learned
// parameters, which makes the fitted state reusable on new data.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// SupervisedTransformer is the interface for transformations whose fitted
// state depends on the target as well, such as univariate feature selection.
type SupervisedTransformer interface {
	Fit(X, y mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X, y mat.Matrix) (mat.Matrix, error)
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns a model-appropriate goodness score (accuracy for
	// classifiers) of the prediction on X against y.
	Score(X, y mat.Matrix) (float64, error)
}

// Classifier combines the interfaces a classification model must satisfy.
type Classifier interface {
	Fitter
	Predictor
	Scorer

	// PredictProba returns probability estimates, one column per class in
	// the order reported by Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique class labels seen during fitting, sorted.
	Classes() []int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}

// Persistable is the interface for models that can be saved and loaded.
type Persistable interface {
	// Save saves the model to a file.
	Save(path string) error

	// Load loads the model from a file.
	Load(path string) error
}
