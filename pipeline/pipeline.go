// Package pipeline chains feature transformations with a final classifier.
//
// Intermediate steps must be transformers; unsupervised transformers learn
// from the features alone, while supervised transformers (such as univariate
// feature selection) also see the target during fitting. The final step is
// trained last on the fully transformed features.
package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
	"github.com/go-tabkit/tabkit/pkg/log"
)

var globalProvider log.LoggerProvider

// Step is a single named stage of the pipeline.
type Step struct {
	Name      string
	Estimator interface{}
}

// Pipeline applies a sequence of transformations and fits a final estimator
// on the transformed features.
type Pipeline struct {
	state  *model.StateManager
	logger log.Logger

	steps []Step

	namedSteps map[string]interface{}
}

// New creates a pipeline from the given steps.
func New(steps ...Step) *Pipeline {
	named := make(map[string]interface{}, len(steps))
	for _, step := range steps {
		named[step.Name] = step.Estimator
	}

	p := &Pipeline{
		steps:      steps,
		namedSteps: named,
		state:      model.NewStateManager(),
	}

	if globalProvider == nil {
		globalProvider = log.NewZerologProvider(log.ToLogLevel("info"))
	}
	p.logger = globalProvider.GetLoggerWithName("Pipeline")

	return p
}

// Make creates a pipeline with auto-generated step names.
func Make(estimators ...interface{}) *Pipeline {
	steps := make([]Step, len(estimators))
	for i, estimator := range estimators {
		steps[i] = Step{Name: fmt.Sprintf("step%d", i+1), Estimator: estimator}
	}
	return New(steps...)
}

// fitTransformStep fits an intermediate step and returns the transformed
// features. The step must be an unsupervised or supervised transformer.
func fitTransformStep(step Step, X, y mat.Matrix) (mat.Matrix, error) {
	switch tr := step.Estimator.(type) {
	case model.SupervisedTransformer:
		Xt, err := tr.FitTransform(X, y)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fit step %q", step.Name)
		}
		return Xt, nil
	case model.Transformer:
		Xt, err := tr.FitTransform(X)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fit step %q", step.Name)
		}
		return Xt, nil
	default:
		return nil, errors.NewValidationError(
			"pipeline step",
			"intermediate steps must be transformers",
			step.Name,
		)
	}
}

// transformStep applies a fitted intermediate step to new data.
func transformStep(step Step, X mat.Matrix) (mat.Matrix, error) {
	tr, ok := step.Estimator.(interface {
		Transform(mat.Matrix) (mat.Matrix, error)
	})
	if !ok {
		return nil, errors.NewValidationError(
			"pipeline step",
			"intermediate steps must be transformers",
			step.Name,
		)
	}
	Xt, err := tr.Transform(X)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to transform at step %q", step.Name)
	}
	return Xt, nil
}

// Fit fits every transformer in order, feeding each the output of the
// previous one, then fits the final estimator on the transformed features.
func (p *Pipeline) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Pipeline.Fit")

	if len(p.steps) == 0 {
		return errors.NewValueError("Pipeline.Fit", "pipeline has no steps")
	}

	Xt := X
	for _, step := range p.steps[:len(p.steps)-1] {
		Xt, err = fitTransformStep(step, Xt, y)
		if err != nil {
			return err
		}
	}

	final := p.steps[len(p.steps)-1]
	fitter, ok := final.Estimator.(model.Fitter)
	if !ok {
		return errors.NewValidationError(
			"pipeline final step",
			"final step must have a Fit method",
			final.Name,
		)
	}
	if err = fitter.Fit(Xt, y); err != nil {
		return errors.Wrapf(err, "failed to fit final step %q", final.Name)
	}

	rows, _ := X.Dims()
	_, cols := Xt.Dims()
	p.logger.Info("pipeline fitted",
		log.SamplesKey, rows,
		log.FeaturesKey, cols)

	p.state.SetFitted()
	return nil
}

// transform applies all fitted steps except the final estimator.
func (p *Pipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	Xt := X
	var err error
	for _, step := range p.steps[:len(p.steps)-1] {
		Xt, err = transformStep(step, Xt)
		if err != nil {
			return nil, err
		}
	}
	return Xt, nil
}

// Predict transforms the data and predicts with the final estimator.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Predict")
	}

	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}

	final := p.steps[len(p.steps)-1]
	predictor, ok := final.Estimator.(model.Predictor)
	if !ok {
		return nil, errors.NewValidationError(
			"pipeline final step",
			"final step must have a Predict method",
			final.Name,
		)
	}
	return predictor.Predict(Xt)
}

// PredictProba transforms the data and returns probability estimates from
// the final estimator.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "PredictProba")
	}

	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}

	final := p.steps[len(p.steps)-1]
	predictor, ok := final.Estimator.(interface {
		PredictProba(mat.Matrix) (mat.Matrix, error)
	})
	if !ok {
		return nil, errors.NewValidationError(
			"pipeline final step",
			"final step must have a PredictProba method",
			final.Name,
		)
	}
	return predictor.PredictProba(Xt)
}

// Score transforms the data and scores the final estimator against y.
func (p *Pipeline) Score(X, y mat.Matrix) (float64, error) {
	if !p.state.IsFitted() {
		return 0, errors.NewNotFittedError("Pipeline", "Score")
	}

	Xt, err := p.transform(X)
	if err != nil {
		return 0, err
	}

	final := p.steps[len(p.steps)-1]
	scorer, ok := final.Estimator.(model.Scorer)
	if !ok {
		return 0, errors.NewValidationError(
			"pipeline final step",
			"final step must have a Score method",
			final.Name,
		)
	}
	return scorer.Score(Xt, y)
}

// Transform applies all steps, including the final one, which must itself
// be a transformer.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Transform")
	}

	Xt := X
	var err error
	for _, step := range p.steps {
		Xt, err = transformStep(step, Xt)
		if err != nil {
			return nil, err
		}
	}
	return Xt, nil
}

// FitTransform fits every step as a transformer and returns the transformed
// features. Only valid when all steps, including the last, are transformers.
func (p *Pipeline) FitTransform(X, y mat.Matrix) (mat.Matrix, error) {
	if len(p.steps) == 0 {
		return nil, errors.NewValueError("Pipeline.FitTransform", "pipeline has no steps")
	}

	Xt := X
	var err error
	for _, step := range p.steps {
		Xt, err = fitTransformStep(step, Xt, y)
		if err != nil {
			return nil, err
		}
	}

	p.state.SetFitted()
	return Xt, nil
}

// FitPredict fits the pipeline and predicts on the training data.
func (p *Pipeline) FitPredict(X, y mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X, y); err != nil {
		return nil, err
	}
	return p.Predict(X)
}

// Classes returns the class labels of the final estimator, or nil when the
// final step is not a classifier.
func (p *Pipeline) Classes() []int {
	if len(p.steps) == 0 {
		return nil
	}
	if clf, ok := p.steps[len(p.steps)-1].Estimator.(interface{ Classes() []int }); ok {
		return clf.Classes()
	}
	return nil
}

// GetParams returns the pipeline parameters, including the parameters of
// every step prefixed with the step name.
func (p *Pipeline) GetParams() map[string]interface{} {
	params := make(map[string]interface{})
	params["steps"] = p.Steps()

	for _, step := range p.steps {
		getter, ok := step.Estimator.(model.ParameterGetter)
		if !ok {
			continue
		}
		for key, value := range getter.GetParams() {
			params[fmt.Sprintf("%s__%s", step.Name, key)] = value
		}
	}
	return params
}

// NamedSteps returns the steps keyed by name.
func (p *Pipeline) NamedSteps() map[string]interface{} {
	return p.namedSteps
}

// Steps returns a copy of the step list.
func (p *Pipeline) Steps() []Step {
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	return steps
}
