package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect classifier",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9},
			want:  1.0,
		},
		{
			name:  "Worst classifier",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1},
			want:  0.0,
		},
		{
			name:  "Random classifier",
			yTrue: []float64{0, 1, 0, 1},
			yPred: []float64{0.5, 0.5, 0.5, 0.5},
			want:  0.5,
		},
		{
			name:  "Typical case",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0.1, 0.4, 0.35, 0.8},
			want:  0.75,
		},
		{
			name:  "All positive labels",
			yTrue: []float64{1, 1, 1, 1},
			yPred: []float64{0.1, 0.4, 0.35, 0.8},
			want:  0.5, // Undefined case, returns 0.5
		},
		{
			name:  "All negative labels",
			yTrue: []float64{0, 0, 0, 0},
			yPred: []float64{0.1, 0.4, 0.35, 0.8},
			want:  0.5, // Undefined case, returns 0.5
		},
		{
			name:    "Non-binary labels",
			yTrue:   []float64{0, 0.5, 1},
			yPred:   []float64{0.1, 0.5, 0.9},
			wantErr: true,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0.5},
			wantErr: true,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := AUC(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("AUC() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUCMatrix(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   mat.Matrix
		yPred   mat.Matrix
		want    float64
		wantErr bool
	}{
		{
			name:  "Matrix input",
			yTrue: mat.NewDense(4, 1, []float64{0, 0, 1, 1}),
			yPred: mat.NewDense(4, 1, []float64{0.1, 0.4, 0.35, 0.8}),
			want:  0.75,
		},
		{
			name:  "Multi-column matrix (uses first column)",
			yTrue: mat.NewDense(4, 2, []float64{0, 9, 0, 9, 1, 9, 1, 9}),
			yPred: mat.NewDense(4, 2, []float64{0.1, 9, 0.4, 9, 0.35, 9, 0.8, 9}),
			want:  0.75,
		},
		{
			name:    "Nil matrix",
			yTrue:   nil,
			yPred:   mat.NewDense(1, 1, []float64{0.5}),
			wantErr: true,
		},
		{
			name:    "Empty matrix",
			yTrue:   &mat.Dense{},
			yPred:   &mat.Dense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUCMatrix(tt.yTrue, tt.yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("AUCMatrix() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("AUCMatrix() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect predictions",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0, 0, 1, 1},
			want:  0.0, // Will be small epsilon value due to clipping
		},
		{
			name:  "Typical case",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0.1, 0.2, 0.8, 0.9},
			want:  0.164252, // Approximate expected value
		},
		{
			name:  "Worst predictions",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0.9, 0.9, 0.1, 0.1},
			want:  2.3025851, // Approximate expected value
		},
		{
			name:  "Clipping edge case",
			yTrue: []float64{0, 1},
			yPred: []float64{0, 1}, // Will be clipped to avoid log(0)
			want:  0.0,             // Small value due to epsilon
		},
		{
			name:    "Non-binary labels",
			yTrue:   []float64{0, 0.5, 1},
			yPred:   []float64{0.1, 0.5, 0.9},
			wantErr: true,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := BinaryLogLoss(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("BinaryLogLoss() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 0.01 {
				t.Errorf("BinaryLogLoss() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassificationError(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect classification",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  0.0,
		},
		{
			name:  "One error",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.2,
		},
		{
			name:  "All wrong",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  1.0,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := ClassificationError(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("ClassificationError() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ClassificationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := Accuracy(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrecisionRecallF1(t *testing.T) {
	tests := []struct {
		name          string
		yTrue         []float64
		yPred         []float64
		wantPrecision float64
		wantRecall    float64
		wantF1        float64
		wantErr       bool
	}{
		{
			name:          "Perfect predictions",
			yTrue:         []float64{0, 0, 1, 1},
			yPred:         []float64{0, 0, 1, 1},
			wantPrecision: 1.0,
			wantRecall:    1.0,
			wantF1:        1.0,
		},
		{
			name:          "One false positive",
			yTrue:         []float64{0, 0, 1, 1},
			yPred:         []float64{0, 1, 1, 1},
			wantPrecision: 2.0 / 3.0,
			wantRecall:    1.0,
			wantF1:        0.8,
		},
		{
			name:          "One false negative",
			yTrue:         []float64{0, 0, 1, 1},
			yPred:         []float64{0, 0, 0, 1},
			wantPrecision: 1.0,
			wantRecall:    0.5,
			wantF1:        2.0 / 3.0,
		},
		{
			name:          "No positive predictions",
			yTrue:         []float64{0, 0, 1, 1},
			yPred:         []float64{0, 0, 0, 0},
			wantPrecision: 0.0, // Undefined case, returns 0
			wantRecall:    0.0,
			wantF1:        0.0,
		},
		{
			name:          "No positive labels",
			yTrue:         []float64{0, 0, 0, 0},
			yPred:         []float64{0, 1, 0, 1},
			wantPrecision: 0.0,
			wantRecall:    0.0, // Undefined case, returns 0
			wantF1:        0.0,
		},
		{
			name:    "Non-binary labels",
			yTrue:   []float64{0, 1, 2},
			yPred:   []float64{0, 1, 2},
			wantErr: true,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			precision, err := Precision(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Precision() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if math.Abs(precision-tt.wantPrecision) > 1e-6 {
				t.Errorf("Precision() = %v, want %v", precision, tt.wantPrecision)
			}

			recall, err := Recall(yTrue, yPred)
			if err != nil {
				t.Fatalf("Recall() error = %v", err)
			}
			if math.Abs(recall-tt.wantRecall) > 1e-6 {
				t.Errorf("Recall() = %v, want %v", recall, tt.wantRecall)
			}

			f1, err := F1Score(yTrue, yPred)
			if err != nil {
				t.Fatalf("F1Score() error = %v", err)
			}
			if math.Abs(f1-tt.wantF1) > 1e-6 {
				t.Errorf("F1Score() = %v, want %v", f1, tt.wantF1)
			}
		})
	}
}

func TestMacroMetrics(t *testing.T) {
	tests := []struct {
		name          string
		yTrue         []float64
		yPred         []float64
		wantPrecision float64
		wantRecall    float64
		wantF1        float64
	}{
		{
			name:          "Perfect three-class predictions",
			yTrue:         []float64{0, 1, 2, 0, 1, 2},
			yPred:         []float64{0, 1, 2, 0, 1, 2},
			wantPrecision: 1.0,
			wantRecall:    1.0,
			wantF1:        1.0,
		},
		{
			// クラス2の予測がクラス1に流れるケース
			// precision: class0=1, class1=2/3, class2=1 -> 8/9
			// recall:    class0=1, class1=1, class2=1/2 -> 5/6
			name:          "One class confused",
			yTrue:         []float64{0, 1, 2, 0, 1, 2},
			yPred:         []float64{0, 1, 1, 0, 1, 2},
			wantPrecision: 8.0 / 9.0,
			wantRecall:    5.0 / 6.0,
			wantF1:        (1.0 + 0.8 + 2.0/3.0) / 3.0,
		},
		{
			// 予測が一度も現れないクラスは0として平均に入る
			name:          "Class never predicted",
			yTrue:         []float64{0, 0, 1, 1},
			yPred:         []float64{0, 0, 0, 0},
			wantPrecision: 0.25,
			wantRecall:    0.5,
			wantF1:        (4.0 / 6.0) / 2.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yTrue := mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			yPred := mat.NewVecDense(len(tt.yPred), tt.yPred)

			precision, err := MacroPrecision(yTrue, yPred)
			if err != nil {
				t.Fatalf("MacroPrecision() error = %v", err)
			}
			if math.Abs(precision-tt.wantPrecision) > 1e-6 {
				t.Errorf("MacroPrecision() = %v, want %v", precision, tt.wantPrecision)
			}

			recall, err := MacroRecall(yTrue, yPred)
			if err != nil {
				t.Fatalf("MacroRecall() error = %v", err)
			}
			if math.Abs(recall-tt.wantRecall) > 1e-6 {
				t.Errorf("MacroRecall() = %v, want %v", recall, tt.wantRecall)
			}

			f1, err := MacroF1Score(yTrue, yPred)
			if err != nil {
				t.Fatalf("MacroF1Score() error = %v", err)
			}
			if math.Abs(f1-tt.wantF1) > 1e-6 {
				t.Errorf("MacroF1Score() = %v, want %v", f1, tt.wantF1)
			}
		})
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := mat.NewVecDense(6, []float64{0, 1, 2, 0, 1, 2})
	yPred := mat.NewVecDense(6, []float64{0, 1, 1, 0, 1, 2})

	cm, labels, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		t.Fatalf("ConfusionMatrix() error = %v", err)
	}

	wantLabels := []int{0, 1, 2}
	if len(labels) != len(wantLabels) {
		t.Fatalf("labels = %v, want %v", labels, wantLabels)
	}
	for i, l := range wantLabels {
		if labels[i] != l {
			t.Errorf("labels[%d] = %d, want %d", i, labels[i], l)
		}
	}

	want := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 2, 0,
		0, 1, 1,
	})
	if !mat.Equal(cm, want) {
		t.Errorf("ConfusionMatrix() =\n%v\nwant\n%v",
			mat.Formatted(cm), mat.Formatted(want))
	}

	// セルの総和はサンプル数と一致する
	total := 0.0
	rows, cols := cm.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			total += cm.At(i, j)
		}
	}
	if total != 6 {
		t.Errorf("confusion matrix total = %v, want 6", total)
	}
}

func TestConfusionMatrix_EmptyInput(t *testing.T) {
	if _, _, err := ConfusionMatrix(nil, nil); err == nil {
		t.Error("ConfusionMatrix() expected error for nil input")
	}
}

// Benchmark tests
func BenchmarkAUC(b *testing.B) {
	// Create test data
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < n/2 {
			yTrue[i] = 0
			yPred[i] = float64(i) / float64(n)
		} else {
			yTrue[i] = 1
			yPred[i] = float64(i) / float64(n)
		}
	}
	yTrueVec := mat.NewVecDense(n, yTrue)
	yPredVec := mat.NewVecDense(n, yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yTrueVec, yPredVec)
	}
}

func BenchmarkBinaryLogLoss(b *testing.B) {
	// Create test data
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < n/2 {
			yTrue[i] = 0
			yPred[i] = 0.1 + 0.3*float64(i)/float64(n)
		} else {
			yTrue[i] = 1
			yPred[i] = 0.6 + 0.3*float64(i-n/2)/float64(n/2)
		}
	}
	yTrueVec := mat.NewVecDense(n, yTrue)
	yPredVec := mat.NewVecDense(n, yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = BinaryLogLoss(yTrueVec, yPredVec)
	}
}
