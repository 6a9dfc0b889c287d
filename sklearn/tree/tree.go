// Package tree implements decision tree classifiers using the CART algorithm.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// Node is a single node of a fitted decision tree. Internal nodes hold a
// split on Feature at Threshold; leaves hold the class distribution.
// Fields are exported so fitted trees survive gob encoding.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node

	// Probs is the class probability distribution at this node, indexed by
	// position in the classifier's class list.
	Probs []float64

	// Leaf marks terminal nodes.
	Leaf bool
}

// DecisionTreeClassifier is a CART classifier supporting gini and entropy
// split criteria, depth and sample-count constraints, and optional random
// feature subsampling for use inside ensembles.
type DecisionTreeClassifier struct {
	model.BaseEstimator

	// Root is the root of the fitted tree.
	Root *Node

	// ClassValues is the sorted list of class labels seen during fit.
	ClassValues []int

	// NFeatures is the number of features seen during fit.
	NFeatures int

	// Importances is the normalized impurity-decrease importance per feature.
	Importances []float64

	criterion       string
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all features
	randomState     int64

	rng *rand.Rand
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the split quality criterion ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth limits the depth of the tree. Zero means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split
// an internal node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples required at a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures limits the number of features considered per split.
// Zero means all features; ensembles use this for decorrelation.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = n
	}
}

// WithRandomState seeds the feature subsampling so fits are reproducible.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

// NewDecisionTreeClassifier creates a decision tree classifier with
// sklearn-compatible defaults (gini, unlimited depth, min_samples_split=2,
// min_samples_leaf=1).
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// extractLabels converts an n×1 target matrix to integer labels.
func extractLabels(y mat.Matrix) ([]int, error) {
	rows, cols := y.Dims()
	if cols != 1 {
		return nil, errors.NewDimensionError("extractLabels", 1, cols, 1)
	}
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsNaN(v) {
			return nil, errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("class label at row %d is not an integer: %v", i, v))
		}
		labels[i] = int(v)
	}
	return labels, nil
}

// uniqueClasses returns the sorted unique labels.
func uniqueClasses(labels []int) []int {
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

// Fit trains the tree on X (n_samples × n_features) and y (n_samples × 1)
// with uniform sample weights.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	rows, _ := X.Dims()
	weights := make([]float64, rows)
	for i := range weights {
		weights[i] = 1.0
	}
	return dt.FitWeighted(X, y, weights)
}

// FitWeighted trains the tree with per-sample weights. Boosting ensembles
// reweight samples between rounds through this entry point.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", rows, yRows, 0)
	}
	if len(sampleWeight) != rows {
		return errors.NewDimensionError("DecisionTreeClassifier.FitWeighted", rows, len(sampleWeight), 0)
	}

	labels, err := extractLabels(y)
	if err != nil {
		return err
	}

	dt.ClassValues = uniqueClasses(labels)
	dt.NFeatures = cols
	dt.rng = rand.New(rand.NewSource(dt.randomState))

	classIndex := make(map[int]int, len(dt.ClassValues))
	for i, c := range dt.ClassValues {
		classIndex[c] = i
	}
	yIdx := make([]int, rows)
	for i, l := range labels {
		yIdx[i] = classIndex[l]
	}

	samples := make([]int, rows)
	for i := range samples {
		samples[i] = i
	}

	rawImportances := make([]float64, cols)
	dt.Root = dt.build(X, yIdx, sampleWeight, samples, 0, rawImportances)

	// Normalize importances over the accumulated impurity decrease.
	total := 0.0
	for _, v := range rawImportances {
		total += v
	}
	dt.Importances = rawImportances
	if total > 0 {
		for j := range dt.Importances {
			dt.Importances[j] /= total
		}
	}

	dt.SetFitted()
	return nil
}

// classDistribution returns the weighted class counts and total weight over
// the given samples.
func (dt *DecisionTreeClassifier) classDistribution(yIdx []int, weights []float64, samples []int) ([]float64, float64) {
	counts := make([]float64, len(dt.ClassValues))
	total := 0.0
	for _, i := range samples {
		counts[yIdx[i]] += weights[i]
		total += weights[i]
	}
	return counts, total
}

// impurity computes the node impurity for the configured criterion.
func (dt *DecisionTreeClassifier) impurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	switch dt.criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	default: // gini
		g := 1.0
		for _, c := range counts {
			p := c / total
			g -= p * p
		}
		return g
	}
}

// leaf builds a terminal node from the weighted class distribution.
func leaf(counts []float64, total float64) *Node {
	probs := make([]float64, len(counts))
	if total > 0 {
		for i, c := range counts {
			probs[i] = c / total
		}
	}
	return &Node{Leaf: true, Probs: probs}
}

// candidateFeatures returns the features to consider at this split.
func (dt *DecisionTreeClassifier) candidateFeatures() []int {
	if dt.maxFeatures <= 0 || dt.maxFeatures >= dt.NFeatures {
		features := make([]int, dt.NFeatures)
		for j := range features {
			features[j] = j
		}
		return features
	}
	return dt.rng.Perm(dt.NFeatures)[:dt.maxFeatures]
}

type split struct {
	feature   int
	threshold float64
	decrease  float64
	left      []int
	right     []int
}

// bestSplit exhaustively searches midpoint thresholds over the candidate
// features and returns the split with the largest weighted impurity
// decrease, or nil when no valid split exists.
func (dt *DecisionTreeClassifier) bestSplit(X mat.Matrix, yIdx []int, weights []float64, samples []int, parentImpurity float64, parentTotal float64) *split {
	var best *split

	for _, j := range dt.candidateFeatures() {
		order := make([]int, len(samples))
		copy(order, samples)
		sort.Slice(order, func(a, b int) bool {
			return X.At(order[a], j) < X.At(order[b], j)
		})

		leftCounts := make([]float64, len(dt.ClassValues))
		rightCounts, rightTotal := dt.classDistribution(yIdx, weights, samples)
		leftTotal := 0.0

		for pos := 0; pos < len(order)-1; pos++ {
			i := order[pos]
			leftCounts[yIdx[i]] += weights[i]
			leftTotal += weights[i]
			rightCounts[yIdx[i]] -= weights[i]
			rightTotal -= weights[i]

			v, next := X.At(i, j), X.At(order[pos+1], j)
			if v == next {
				continue
			}
			if pos+1 < dt.minSamplesLeaf || len(order)-pos-1 < dt.minSamplesLeaf {
				continue
			}

			weighted := (leftTotal*dt.impurity(leftCounts, leftTotal) +
				rightTotal*dt.impurity(rightCounts, rightTotal)) / parentTotal
			decrease := parentImpurity - weighted
			if best == nil || decrease > best.decrease {
				best = &split{
					feature:   j,
					threshold: (v + next) / 2,
					decrease:  decrease,
					left:      append([]int(nil), order[:pos+1]...),
					right:     append([]int(nil), order[pos+1:]...),
				}
			}
		}
	}

	if best != nil && best.decrease <= 0 {
		return nil
	}
	return best
}

// build grows the tree recursively.
func (dt *DecisionTreeClassifier) build(X mat.Matrix, yIdx []int, weights []float64, samples []int, depth int, importances []float64) *Node {
	counts, total := dt.classDistribution(yIdx, weights, samples)
	impurity := dt.impurity(counts, total)

	if impurity == 0 ||
		len(samples) < dt.minSamplesSplit ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		return leaf(counts, total)
	}

	best := dt.bestSplit(X, yIdx, weights, samples, impurity, total)
	if best == nil {
		return leaf(counts, total)
	}

	importances[best.feature] += total * best.decrease

	return &Node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Probs:     leaf(counts, total).Probs,
		Left:      dt.build(X, yIdx, weights, best.left, depth+1, importances),
		Right:     dt.build(X, yIdx, weights, best.right, depth+1, importances),
	}
}

// traverse walks the tree to the leaf for the given row.
func (dt *DecisionTreeClassifier) traverse(X mat.Matrix, i int) *Node {
	node := dt.Root
	for !node.Leaf {
		if X.At(i, node.Feature) <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// checkPredictInput validates fitted state and feature count.
func (dt *DecisionTreeClassifier) checkPredictInput(X mat.Matrix, op string) (int, error) {
	if !dt.IsFitted() {
		return 0, errors.NewNotFittedError("DecisionTreeClassifier", op)
	}
	rows, cols := X.Dims()
	if cols != dt.NFeatures {
		return 0, errors.NewDimensionError("DecisionTreeClassifier."+op, dt.NFeatures, cols, 1)
	}
	return rows, nil
}

// Predict returns the predicted class label for each row of X.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := dt.checkPredictInput(X, "Predict")
	if err != nil {
		return nil, err
	}

	result := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		probs := dt.traverse(X, i).Probs
		best := 0
		for k := 1; k < len(probs); k++ {
			if probs[k] > probs[best] {
				best = k
			}
		}
		result.Set(i, 0, float64(dt.ClassValues[best]))
	}
	return result, nil
}

// PredictProba returns class probability estimates, one column per class in
// the order reported by Classes.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := dt.checkPredictInput(X, "PredictProba")
	if err != nil {
		return nil, err
	}

	result := mat.NewDense(rows, len(dt.ClassValues), nil)
	for i := 0; i < rows; i++ {
		result.SetRow(i, dt.traverse(X, i).Probs)
	}
	return result, nil
}

// Score returns the mean accuracy of Predict(X) against y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := y.Dims()
	correct := 0
	for i := 0; i < rows; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}

// Classes returns the sorted class labels seen during fit.
func (dt *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(dt.ClassValues))
	copy(out, dt.ClassValues)
	return out
}

// GetFeatureImportances returns the normalized impurity-based feature
// importances.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(dt.Importances))
	copy(out, dt.Importances)
	return out
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return nodeDepth(dt.Root)
}

func nodeDepth(n *Node) int {
	if n == nil || n.Leaf {
		return 0
	}
	left, right := nodeDepth(n.Left), nodeDepth(n.Right)
	if left > right {
		return left + 1
	}
	return right + 1
}

// GetNLeaves returns the number of leaves in the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return countLeaves(dt.Root)
}

func countLeaves(n *Node) int {
	if n == nil {
		return 0
	}
	if n.Leaf {
		return 1
	}
	return countLeaves(n.Left) + countLeaves(n.Right)
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates the hyperparameters.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = v
		case "max_depth":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			dt.maxDepth = v
		case "min_samples_split":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			dt.minSamplesSplit = v
		case "min_samples_leaf":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			dt.minSamplesLeaf = v
		case "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			dt.maxFeatures = v
		case "random_state":
			switch v := value.(type) {
			case int:
				dt.randomState = int64(v)
			case int64:
				dt.randomState = v
			default:
				return errors.NewValidationError(key, "must be an int", value)
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// String returns a concise description of the model.
func (dt *DecisionTreeClassifier) String() string {
	if !dt.IsFitted() {
		return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, unfitted)", dt.criterion)
	}
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, depth=%d, leaves=%d)",
		dt.criterion, dt.GetDepth(), dt.GetNLeaves())
}
