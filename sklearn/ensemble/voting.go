package ensemble

import (
	"encoding/gob"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
	"github.com/go-tabkit/tabkit/pkg/log"
	"github.com/go-tabkit/tabkit/sklearn/svm"
	"github.com/go-tabkit/tabkit/sklearn/tree"
)

// Voting strategies.
const (
	// VotingSoft averages member class probabilities (default).
	VotingSoft = "soft"
	// VotingHard takes a weighted majority vote of member predictions.
	VotingHard = "hard"
)

func init() {
	// Concrete member types must be registered so a fitted voting ensemble
	// round-trips through gob behind the model.Classifier interface.
	gob.Register(&tree.DecisionTreeClassifier{})
	gob.Register(&RandomForestClassifier{})
	gob.Register(&AdaBoostClassifier{})
	gob.Register(&VotingClassifier{})
	gob.Register(&svm.SVC{})
}

// VotingClassifier combines heterogeneous member classifiers by soft or
// hard voting. All members are fitted on the same data, and the ensemble
// fails atomically if any member fails.
type VotingClassifier struct {
	model.BaseEstimator

	// Names labels the members for reporting.
	Names []string

	// Members holds the member classifiers in fit order.
	Members []model.Classifier

	// MemberWeights holds the relative vote weight of each member.
	MemberWeights []float64

	// Strategy is the voting strategy, VotingSoft or VotingHard.
	Strategy string

	// ClassValues is the sorted list of class labels seen during fit.
	ClassValues []int

	// NFeatures is the number of features seen during fit.
	NFeatures int

	logger log.Logger
}

// VotingOption configures a VotingClassifier.
type VotingOption func(*VotingClassifier)

// WithVoting sets the voting strategy.
func WithVoting(strategy string) VotingOption {
	return func(vc *VotingClassifier) {
		vc.Strategy = strategy
	}
}

// WithMemberWeights sets per-member vote weights. The default is uniform.
func WithMemberWeights(weights []float64) VotingOption {
	return func(vc *VotingClassifier) {
		vc.MemberWeights = weights
	}
}

// WithVotingLogger attaches a logger that records per-member fit progress.
func WithVotingLogger(logger log.Logger) VotingOption {
	return func(vc *VotingClassifier) {
		vc.logger = logger
	}
}

// NewVotingClassifier creates a voting ensemble over the named members.
func NewVotingClassifier(names []string, members []model.Classifier, opts ...VotingOption) (*VotingClassifier, error) {
	if len(members) == 0 {
		return nil, errors.NewValidationError("members", "must not be empty", nil)
	}
	if len(names) != len(members) {
		return nil, errors.NewValidationError("names",
			fmt.Sprintf("got %d names for %d members", len(names), len(members)), names)
	}

	vc := &VotingClassifier{
		Names:    names,
		Members:  members,
		Strategy: VotingSoft,
	}
	for _, opt := range opts {
		opt(vc)
	}

	if vc.Strategy != VotingSoft && vc.Strategy != VotingHard {
		return nil, errors.NewValidationError("voting",
			fmt.Sprintf("must be %q or %q", VotingSoft, VotingHard), vc.Strategy)
	}
	if vc.MemberWeights == nil {
		vc.MemberWeights = make([]float64, len(members))
		for i := range vc.MemberWeights {
			vc.MemberWeights[i] = 1.0
		}
	}
	if len(vc.MemberWeights) != len(members) {
		return nil, errors.NewValidationError("weights",
			fmt.Sprintf("got %d weights for %d members", len(vc.MemberWeights), len(members)), vc.MemberWeights)
	}
	total := 0.0
	for _, w := range vc.MemberWeights {
		if w < 0 {
			return nil, errors.NewValidationError("weights", "must be non-negative", w)
		}
		total += w
	}
	if total == 0 {
		return nil, errors.NewValidationError("weights", "must not all be zero", vc.MemberWeights)
	}
	return vc, nil
}

// Fit trains every member on the same X and y. Any member failure aborts
// the whole fit.
func (vc *VotingClassifier) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("VotingClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("VotingClassifier.Fit", rows, yRows, 0)
	}

	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i] = int(y.At(i, 0))
	}
	vc.ClassValues = sortedUnique(labels)
	vc.NFeatures = cols

	for m, member := range vc.Members {
		start := time.Now()
		if err := member.Fit(X, y); err != nil {
			return errors.Wrapf(err, "fit member %q", vc.Names[m])
		}
		if vc.logger != nil {
			vc.logger.Info("ensemble member fitted",
				log.ModelNameKey, vc.Names[m],
				log.SamplesKey, rows,
				log.DurationMsKey, time.Since(start).Milliseconds())
		}
	}

	vc.SetFitted()
	return nil
}

// checkPredictInput validates fitted state and feature count.
func (vc *VotingClassifier) checkPredictInput(X mat.Matrix, op string) (int, error) {
	if !vc.IsFitted() {
		return 0, errors.NewNotFittedError("VotingClassifier", op)
	}
	rows, cols := X.Dims()
	if cols != vc.NFeatures {
		return 0, errors.NewDimensionError("VotingClassifier."+op, vc.NFeatures, cols, 1)
	}
	return rows, nil
}

// PredictProba returns the weighted average of member probabilities (soft)
// or the weighted vote shares (hard).
func (vc *VotingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := vc.checkPredictInput(X, "PredictProba")
	if err != nil {
		return nil, err
	}

	classPos := make(map[int]int, len(vc.ClassValues))
	for pos, c := range vc.ClassValues {
		classPos[c] = pos
	}

	result := mat.NewDense(rows, len(vc.ClassValues), nil)
	totalWeight := 0.0

	for m, member := range vc.Members {
		weight := vc.MemberWeights[m]
		if weight == 0 {
			continue
		}
		totalWeight += weight

		if vc.Strategy == VotingHard {
			predictions, err := member.Predict(X)
			if err != nil {
				return nil, errors.Wrapf(err, "predict member %q", vc.Names[m])
			}
			for i := 0; i < rows; i++ {
				pos := classPos[int(predictions.At(i, 0))]
				result.Set(i, pos, result.At(i, pos)+weight)
			}
			continue
		}

		probas, err := member.PredictProba(X)
		if err != nil {
			return nil, errors.Wrapf(err, "predict member %q", vc.Names[m])
		}
		memberClasses := member.Classes()
		for i := 0; i < rows; i++ {
			for k, c := range memberClasses {
				pos := classPos[c]
				result.Set(i, pos, result.At(i, pos)+weight*probas.At(i, k))
			}
		}
	}

	result.Scale(1/totalWeight, result)
	return result, nil
}

// Predict returns the class with the highest combined vote per row. Ties
// resolve to the lowest class label.
func (vc *VotingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := vc.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxClasses(probas, vc.ClassValues), nil
}

// Score returns the mean accuracy of Predict(X) against y.
func (vc *VotingClassifier) Score(X, y mat.Matrix) (float64, error) {
	return accuracyScore(vc, X, y)
}

// Classes returns the sorted class labels seen during fit.
func (vc *VotingClassifier) Classes() []int {
	out := make([]int, len(vc.ClassValues))
	copy(out, vc.ClassValues)
	return out
}

// String returns a concise description of the model.
func (vc *VotingClassifier) String() string {
	return fmt.Sprintf("VotingClassifier(members=%v, voting=%s, fitted=%v)",
		vc.Names, vc.Strategy, vc.IsFitted())
}

// EnsembleConfig is the validated hyperparameter set for the default
// three-member ensemble: a random forest, an AdaBoost classifier, and an
// RBF-kernel SVC combined by soft voting.
type EnsembleConfig struct {
	// ForestTrees is the number of trees in the random forest member.
	ForestTrees int

	// ForestMaxDepth limits the forest trees. Zero means unlimited.
	ForestMaxDepth int

	// BoostRounds is the number of AdaBoost rounds.
	BoostRounds int

	// LearningRate is the AdaBoost shrinkage factor.
	LearningRate float64

	// C is the SVC regularization strength.
	C float64

	// Voting is the combination strategy, VotingSoft or VotingHard.
	Voting string

	// Weights holds the three member vote weights, forest first.
	Weights []float64

	// Seed makes all stochastic members reproducible.
	Seed int64
}

// NewDefaultEnsembleConfig returns the stock configuration with the given
// random seed.
func NewDefaultEnsembleConfig(seed int64) EnsembleConfig {
	return EnsembleConfig{
		ForestTrees:    50,
		ForestMaxDepth: 0,
		BoostRounds:    50,
		LearningRate:   1.0,
		C:              1.0,
		Voting:         VotingSoft,
		Seed:           seed,
	}
}

// Validate checks the configuration fields.
func (c *EnsembleConfig) Validate() error {
	if c.ForestTrees < 1 {
		return errors.NewValidationError("ForestTrees", "must be >= 1", c.ForestTrees)
	}
	if c.ForestMaxDepth < 0 {
		return errors.NewValidationError("ForestMaxDepth", "must be >= 0", c.ForestMaxDepth)
	}
	if c.BoostRounds < 1 {
		return errors.NewValidationError("BoostRounds", "must be >= 1", c.BoostRounds)
	}
	if c.LearningRate <= 0 {
		return errors.NewValidationError("LearningRate", "must be > 0", c.LearningRate)
	}
	if c.C <= 0 {
		return errors.NewValidationError("C", "must be > 0", c.C)
	}
	switch c.Voting {
	case VotingSoft, VotingHard:
	default:
		return errors.NewValidationError("Voting",
			fmt.Sprintf("must be %q or %q", VotingSoft, VotingHard), c.Voting)
	}
	if c.Weights != nil && len(c.Weights) != 3 {
		return errors.NewValidationError("Weights", "must have one weight per member", c.Weights)
	}
	return nil
}

// Build constructs the unfitted three-member voting ensemble.
func (c *EnsembleConfig) Build(opts ...VotingOption) (*VotingClassifier, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	members := []model.Classifier{
		NewRandomForestClassifier(
			WithTrees(c.ForestTrees),
			WithForestMaxDepth(c.ForestMaxDepth),
			WithForestRandomState(c.Seed),
		),
		NewAdaBoostClassifier(
			WithRounds(c.BoostRounds),
			WithLearningRate(c.LearningRate),
			WithBoostRandomState(c.Seed),
		),
		svm.NewSVC(
			svm.WithC(c.C),
			svm.WithProbability(),
			svm.WithSVCRandomState(c.Seed),
		),
	}
	names := []string{"forest", "adaboost", "svc"}

	built := append([]VotingOption{WithVoting(c.Voting)}, opts...)
	if c.Weights != nil {
		built = append(built, WithMemberWeights(c.Weights))
	}
	return NewVotingClassifier(names, members, built...)
}

// NewDefaultVotingClassifier builds the stock forest + AdaBoost + SVC
// soft-voting ensemble with the given random seed.
func NewDefaultVotingClassifier(seed int64, opts ...VotingOption) (*VotingClassifier, error) {
	cfg := NewDefaultEnsembleConfig(seed)
	return cfg.Build(opts...)
}

// sortedUnique returns the sorted unique labels.
func sortedUnique(labels []int) []int {
	seen := make(map[int]bool)
	var classes []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Ints(classes)
	return classes
}

// argmaxClasses maps per-row score argmax positions back to class labels.
// Ties resolve to the lowest class label.
func argmaxClasses(scores mat.Matrix, classes []int) *mat.Dense {
	rows, cols := scores.Dims()
	result := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for k := 1; k < cols; k++ {
			if scores.At(i, k) > scores.At(i, best) {
				best = k
			}
		}
		result.Set(i, 0, float64(classes[best]))
	}
	return result
}

// accuracyScore computes mean accuracy for any predictor.
func accuracyScore(p model.Predictor, X, y mat.Matrix) (float64, error) {
	predictions, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := y.Dims()
	if rows == 0 {
		return 0, errors.NewModelError("accuracyScore", "empty target", errors.ErrEmptyData)
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}
