// Package svm implements a support vector classifier trained with a
// simplified SMO solver.
package svm

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// Kernel names.
const (
	KernelRBF    = "rbf"
	KernelLinear = "linear"
)

// BinaryMachine is one fitted maximum-margin separator. Multi-class
// problems train one machine per class in a one-vs-rest scheme. Fields are
// exported so fitted machines survive gob encoding.
type BinaryMachine struct {
	// SupportVectors holds the rows with non-zero dual coefficients.
	SupportVectors [][]float64

	// DualCoefs holds alpha_i * y_i for each support vector.
	DualCoefs []float64

	// Bias is the intercept of the decision function.
	Bias float64

	// PlattA and PlattB map decision values to probabilities through
	// 1 / (1 + exp(A*f + B)).
	PlattA float64
	PlattB float64
}

// SVC is a C-support vector classifier with RBF or linear kernel. The dual
// problem is solved with a simplified SMO loop; class probabilities come
// from Platt scaling fitted on the training decision values.
type SVC struct {
	model.BaseEstimator

	// Machines holds one fitted separator per class (one for binary).
	Machines []*BinaryMachine

	// ClassValues is the sorted list of class labels seen during fit.
	ClassValues []int

	// NFeatures is the number of features seen during fit.
	NFeatures int

	// Kernel is the kernel name, KernelRBF or KernelLinear.
	Kernel string

	// Gamma is the RBF kernel coefficient resolved at fit time.
	Gamma float64

	// Probability records whether Platt scaling was fitted, which gates
	// PredictProba.
	Probability bool

	c           float64
	gammaOpt    float64 // 0 means "scale"
	tol         float64
	maxPasses   int
	maxIter     int
	randomState int64
}

// SVCOption configures an SVC.
type SVCOption func(*SVC)

// WithC sets the regularization strength. Larger values fit the training
// data more closely.
func WithC(c float64) SVCOption {
	return func(s *SVC) {
		s.c = c
	}
}

// WithKernel sets the kernel, KernelRBF or KernelLinear.
func WithKernel(kernel string) SVCOption {
	return func(s *SVC) {
		s.Kernel = kernel
	}
}

// WithGamma sets the RBF kernel coefficient. The default derives it from
// the feature variance the way sklearn's "scale" setting does.
func WithGamma(gamma float64) SVCOption {
	return func(s *SVC) {
		s.gammaOpt = gamma
	}
}

// WithTol sets the KKT violation tolerance of the solver.
func WithTol(tol float64) SVCOption {
	return func(s *SVC) {
		s.tol = tol
	}
}

// WithMaxPasses sets how many consecutive full passes without an update end
// the SMO loop.
func WithMaxPasses(n int) SVCOption {
	return func(s *SVC) {
		s.maxPasses = n
	}
}

// WithProbability enables Platt scaling so PredictProba is available.
func WithProbability() SVCOption {
	return func(s *SVC) {
		s.Probability = true
	}
}

// WithSVCRandomState seeds the solver's working-pair selection.
func WithSVCRandomState(seed int64) SVCOption {
	return func(s *SVC) {
		s.randomState = seed
	}
}

// NewSVC creates an SVC with C=1, RBF kernel, and scale gamma by default.
func NewSVC(opts ...SVCOption) *SVC {
	s := &SVC{
		Kernel:    KernelRBF,
		c:         1.0,
		tol:       1e-3,
		maxPasses: 5,
		maxIter:   1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// kernelFunc evaluates the configured kernel on two rows.
func (s *SVC) kernelFunc(a, b []float64) float64 {
	switch s.Kernel {
	case KernelLinear:
		dot := 0.0
		for j := range a {
			dot += a[j] * b[j]
		}
		return dot
	default: // rbf
		dist := 0.0
		for j := range a {
			d := a[j] - b[j]
			dist += d * d
		}
		return math.Exp(-s.Gamma * dist)
	}
}

// resolveGamma computes the "scale" gamma: 1 / (n_features * Var(X)).
func resolveGamma(rows [][]float64, nFeatures int) float64 {
	n := float64(len(rows) * nFeatures)
	sum, sumSq := 0.0, 0.0
	for _, row := range rows {
		for _, v := range row {
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance <= 0 {
		return 1.0
	}
	return 1.0 / (float64(nFeatures) * variance)
}

// Fit trains the classifier on X (n_samples × n_features) and y
// (n_samples × 1). Multi-class targets train one-vs-rest machines.
func (s *SVC) Fit(X, y mat.Matrix) error {
	if s.Kernel != KernelRBF && s.Kernel != KernelLinear {
		return errors.NewValidationError("kernel",
			fmt.Sprintf("must be %q or %q", KernelRBF, KernelLinear), s.Kernel)
	}
	if s.c <= 0 {
		return errors.NewValidationError("C", "must be > 0", s.c)
	}

	nRows, nCols := X.Dims()
	if nRows == 0 || nCols == 0 {
		return errors.NewModelError("SVC.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != nRows {
		return errors.NewDimensionError("SVC.Fit", nRows, yRows, 0)
	}

	rows := make([][]float64, nRows)
	labels := make([]int, nRows)
	for i := 0; i < nRows; i++ {
		rows[i] = make([]float64, nCols)
		for j := 0; j < nCols; j++ {
			rows[i][j] = X.At(i, j)
		}
		labels[i] = int(y.At(i, 0))
	}

	s.ClassValues = sortedUnique(labels)
	s.NFeatures = nCols
	if len(s.ClassValues) < 2 {
		return errors.NewValueError("SVC.Fit", "need at least 2 classes")
	}

	if s.gammaOpt > 0 {
		s.Gamma = s.gammaOpt
	} else {
		s.Gamma = resolveGamma(rows, nCols)
	}

	// Binary problems need a single machine; K classes need K one-vs-rest
	// machines indexed by class position.
	targets := s.ClassValues[1:]
	if len(s.ClassValues) > 2 {
		targets = s.ClassValues
	}

	s.Machines = make([]*BinaryMachine, len(targets))
	for m, positive := range targets {
		signs := make([]float64, nRows)
		for i, l := range labels {
			if l == positive {
				signs[i] = 1
			} else {
				signs[i] = -1
			}
		}
		machine, err := s.solve(rows, signs, int64(m))
		if err != nil {
			return errors.Wrapf(err, "train machine for class %d", positive)
		}
		if s.Probability {
			s.fitPlatt(machine, rows, signs)
		}
		s.Machines[m] = machine
	}

	s.SetFitted()
	return nil
}

// solve runs simplified SMO on one binary problem.
func (s *SVC) solve(rows [][]float64, signs []float64, seedOffset int64) (*BinaryMachine, error) {
	n := len(rows)
	rng := rand.New(rand.NewSource(s.randomState + seedOffset))

	alphas := make([]float64, n)
	bias := 0.0

	decide := func(i int) float64 {
		f := bias
		for k := 0; k < n; k++ {
			if alphas[k] != 0 {
				f += alphas[k] * signs[k] * s.kernelFunc(rows[k], rows[i])
			}
		}
		return f
	}

	passes, iter := 0, 0
	for passes < s.maxPasses && iter < s.maxIter {
		iter++
		changed := 0

		for i := 0; i < n; i++ {
			errI := decide(i) - signs[i]
			if !((signs[i]*errI < -s.tol && alphas[i] < s.c) ||
				(signs[i]*errI > s.tol && alphas[i] > 0)) {
				continue
			}

			j := rng.Intn(n - 1)
			if j >= i {
				j++
			}
			errJ := decide(j) - signs[j]

			oldI, oldJ := alphas[i], alphas[j]
			var low, high float64
			if signs[i] != signs[j] {
				low = math.Max(0, oldJ-oldI)
				high = math.Min(s.c, s.c+oldJ-oldI)
			} else {
				low = math.Max(0, oldI+oldJ-s.c)
				high = math.Min(s.c, oldI+oldJ)
			}
			if low == high {
				continue
			}

			kII := s.kernelFunc(rows[i], rows[i])
			kJJ := s.kernelFunc(rows[j], rows[j])
			kIJ := s.kernelFunc(rows[i], rows[j])
			eta := 2*kIJ - kII - kJJ
			if eta >= 0 {
				continue
			}

			alphas[j] = oldJ - signs[j]*(errI-errJ)/eta
			if alphas[j] > high {
				alphas[j] = high
			} else if alphas[j] < low {
				alphas[j] = low
			}
			if math.Abs(alphas[j]-oldJ) < 1e-5 {
				continue
			}
			alphas[i] = oldI + signs[i]*signs[j]*(oldJ-alphas[j])

			b1 := bias - errI - signs[i]*(alphas[i]-oldI)*kII - signs[j]*(alphas[j]-oldJ)*kIJ
			b2 := bias - errJ - signs[i]*(alphas[i]-oldI)*kIJ - signs[j]*(alphas[j]-oldJ)*kJJ
			switch {
			case alphas[i] > 0 && alphas[i] < s.c:
				bias = b1
			case alphas[j] > 0 && alphas[j] < s.c:
				bias = b2
			default:
				bias = (b1 + b2) / 2
			}
			changed++
		}

		if changed == 0 {
			passes++
		} else {
			passes = 0
		}
	}

	if iter >= s.maxIter {
		errors.Warn(errors.NewConvergenceWarning("SVC", s.maxIter,
			"SMO reached the iteration limit before stabilizing"))
	}

	machine := &BinaryMachine{}
	for i, a := range alphas {
		if a > 1e-8 {
			sv := make([]float64, len(rows[i]))
			copy(sv, rows[i])
			machine.SupportVectors = append(machine.SupportVectors, sv)
			machine.DualCoefs = append(machine.DualCoefs, a*signs[i])
		}
	}
	machine.Bias = bias
	return machine, nil
}

// decision evaluates one machine's decision function on a row.
func (s *SVC) decision(machine *BinaryMachine, x []float64) float64 {
	f := machine.Bias
	for k, sv := range machine.SupportVectors {
		f += machine.DualCoefs[k] * s.kernelFunc(sv, x)
	}
	return f
}

// fitPlatt fits the probability sigmoid on the training decision values
// using Platt's regularized targets.
func (s *SVC) fitPlatt(machine *BinaryMachine, rows [][]float64, signs []float64) {
	n := len(rows)
	decisions := make([]float64, n)
	nPos, nNeg := 0.0, 0.0
	for i, row := range rows {
		decisions[i] = s.decision(machine, row)
		if signs[i] > 0 {
			nPos++
		} else {
			nNeg++
		}
	}

	tPos := (nPos + 1) / (nPos + 2)
	tNeg := 1 / (nNeg + 2)
	targets := make([]float64, n)
	for i := range targets {
		if signs[i] > 0 {
			targets[i] = tPos
		} else {
			targets[i] = tNeg
		}
	}

	// Gradient descent on the cross-entropy of the sigmoid fit. The problem
	// is two-dimensional and well conditioned, so a fixed schedule is enough.
	a, b := 0.0, math.Log((nNeg+1)/(nPos+1))
	const rate = 0.01
	for iter := 0; iter < 500; iter++ {
		gradA, gradB := 0.0, 0.0
		for i := 0; i < n; i++ {
			p := 1 / (1 + math.Exp(a*decisions[i]+b))
			diff := p - targets[i]
			gradA -= diff * decisions[i]
			gradB -= diff
		}
		a -= rate * gradA / float64(n)
		b -= rate * gradB / float64(n)
	}

	machine.PlattA = a
	machine.PlattB = b
}

// checkPredictInput validates fitted state and feature count.
func (s *SVC) checkPredictInput(X mat.Matrix, op string) (int, error) {
	if !s.IsFitted() {
		return 0, errors.NewNotFittedError("SVC", op)
	}
	rows, cols := X.Dims()
	if cols != s.NFeatures {
		return 0, errors.NewDimensionError("SVC."+op, s.NFeatures, cols, 1)
	}
	return rows, nil
}

// row extracts one row of X as a slice.
func row(X mat.Matrix, i, cols int) []float64 {
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = X.At(i, j)
	}
	return out
}

// Predict returns the predicted class label for each row of X.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := s.checkPredictInput(X, "Predict")
	if err != nil {
		return nil, err
	}

	result := mat.NewDense(rows, 1, nil)
	binary := len(s.ClassValues) == 2

	for i := 0; i < rows; i++ {
		x := row(X, i, s.NFeatures)
		if binary {
			if s.decision(s.Machines[0], x) >= 0 {
				result.Set(i, 0, float64(s.ClassValues[1]))
			} else {
				result.Set(i, 0, float64(s.ClassValues[0]))
			}
			continue
		}

		best, bestScore := 0, math.Inf(-1)
		for m := range s.Machines {
			if score := s.decision(s.Machines[m], x); score > bestScore {
				best, bestScore = m, score
			}
		}
		result.Set(i, 0, float64(s.ClassValues[best]))
	}
	return result, nil
}

// PredictProba returns Platt-scaled class probabilities. The classifier
// must have been created with WithProbability.
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := s.checkPredictInput(X, "PredictProba")
	if err != nil {
		return nil, err
	}
	if !s.Probability {
		return nil, errors.NewValueError("SVC.PredictProba",
			"probability estimates require WithProbability at construction")
	}

	result := mat.NewDense(rows, len(s.ClassValues), nil)
	binary := len(s.ClassValues) == 2

	for i := 0; i < rows; i++ {
		x := row(X, i, s.NFeatures)
		if binary {
			machine := s.Machines[0]
			p := 1 / (1 + math.Exp(machine.PlattA*s.decision(machine, x)+machine.PlattB))
			result.Set(i, 0, 1-p)
			result.Set(i, 1, p)
			continue
		}

		total := 0.0
		for m, machine := range s.Machines {
			p := 1 / (1 + math.Exp(machine.PlattA*s.decision(machine, x)+machine.PlattB))
			result.Set(i, m, p)
			total += p
		}
		if total > 0 {
			for m := range s.Machines {
				result.Set(i, m, result.At(i, m)/total)
			}
		}
	}
	return result, nil
}

// Score returns the mean accuracy of Predict(X) against y.
func (s *SVC) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := s.Predict(X)
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
func (s *SVC) Classes() []int {
	out := make([]int, len(s.ClassValues))
	copy(out, s.ClassValues)
	return out
}

// GetParams returns the hyperparameters.
func (s *SVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":            s.c,
		"kernel":       s.Kernel,
		"gamma":        s.gammaOpt,
		"tol":          s.tol,
		"max_passes":   s.maxPasses,
		"probability":  s.Probability,
		"random_state": s.randomState,
	}
}

// String returns a concise description of the model.
func (s *SVC) String() string {
	return fmt.Sprintf("SVC(kernel=%s, C=%g, fitted=%v)", s.Kernel, s.c, s.IsFitted())
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
