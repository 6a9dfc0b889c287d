package preprocessing

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// binomial は C(n, k) を計算する
func binomial(n, k int) int {
	result := 1
	for i := 0; i < k; i++ {
		result = result * (n - i) / (i + 1)
	}
	return result
}

func TestPolynomialFeatures_OutputWidth(t *testing.T) {
	tests := []struct {
		nFeatures int
		degree    int
	}{
		{nFeatures: 1, degree: 1},
		{nFeatures: 2, degree: 2},
		{nFeatures: 3, degree: 2},
		{nFeatures: 2, degree: 3},
		{nFeatures: 4, degree: 3},
	}

	for _, tt := range tests {
		p := NewPolynomialFeatures(tt.degree)
		X := mat.NewDense(2, tt.nFeatures, make([]float64, 2*tt.nFeatures))
		if err := p.Fit(X); err != nil {
			t.Fatalf("Fit(n=%d, d=%d) failed: %v", tt.nFeatures, tt.degree, err)
		}

		// 出力幅は C(n+d, d) - 1
		want := binomial(tt.nFeatures+tt.degree, tt.degree) - 1
		if got := p.NumOutputFeatures(); got != want {
			t.Errorf("NumOutputFeatures(n=%d, d=%d) = %d, want %d", tt.nFeatures, tt.degree, got, want)
		}
	}
}

func TestPolynomialFeatures_Degree2(t *testing.T) {
	X := mat.NewDense(1, 2, []float64{2, 3})

	p := NewPolynomialFeatures(2)
	result, err := p.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	// x0, x1, x0^2, x0*x1, x1^2
	want := []float64{2, 3, 4, 6, 9}
	_, c := result.Dims()
	if c != len(want) {
		t.Fatalf("output columns = %d, want %d", c, len(want))
	}
	for j, w := range want {
		if got := result.At(0, j); got != w {
			t.Errorf("result[0][%d] = %v, want %v", j, got, w)
		}
	}
}

func TestPolynomialFeatures_DegreeOne(t *testing.T) {
	X := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})

	p := NewPolynomialFeatures(1)
	result, err := p.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	// 次数1は入力をそのまま返す
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if result.At(i, j) != X.At(i, j) {
				t.Errorf("result[%d][%d] = %v, want %v", i, j, result.At(i, j), X.At(i, j))
			}
		}
	}
}

func TestPolynomialFeatures_FeatureNames(t *testing.T) {
	p := NewPolynomialFeatures(2)
	if err := p.Fit(mat.NewDense(1, 2, []float64{1, 2})); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	names := p.FeatureNames([]string{"a", "b"})
	want := []string{"a", "b", "a^2", "a b", "b^2"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPolynomialFeatures_Errors(t *testing.T) {
	t.Run("degree zero", func(t *testing.T) {
		p := NewPolynomialFeatures(0)
		if err := p.Fit(mat.NewDense(1, 1, []float64{1})); err == nil {
			t.Error("expected error for degree 0, got nil")
		}
	})

	t.Run("transform before fit", func(t *testing.T) {
		p := NewPolynomialFeatures(2)
		if _, err := p.Transform(mat.NewDense(1, 1, []float64{1})); err == nil {
			t.Error("expected not fitted error, got nil")
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		p := NewPolynomialFeatures(2)
		if err := p.Fit(mat.NewDense(1, 2, []float64{1, 2})); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		if _, err := p.Transform(mat.NewDense(1, 3, nil)); err == nil {
			t.Error("expected dimension error, got nil")
		}
	})
}
