package metrics

import (
	"image/color"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/go-tabkit/tabkit/pkg/errors"
)

// ROCPoint はROC曲線上の1点
type ROCPoint struct {
	FPR       float64
	TPR       float64
	Threshold float64
}

// ROCCurve はスコアの降順に閾値を動かしてROC曲線の点列を計算する
// 先頭は(0,0)、末尾は(1,1)
func ROCCurve(yTrue, scores *mat.VecDense) ([]ROCPoint, error) {
	n, err := validateVectors("ROCCurve", yTrue, scores)
	if err != nil {
		return nil, err
	}
	if err := checkBinaryLabels("ROCCurve", yTrue); err != nil {
		return nil, err
	}

	nPos, nNeg := 0, 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return nil, errors.NewValueError("ROCCurve",
			"both positive and negative samples are required")
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return scores.AtVec(order[a]) > scores.AtVec(order[b])
	})

	points := []ROCPoint{{FPR: 0, TPR: 0, Threshold: scores.AtVec(order[0]) + 1}}
	tp, fp := 0, 0
	for pos := 0; pos < n; {
		// 同じスコアのサンプルはまとめて処理する
		end := pos
		for end+1 < n && scores.AtVec(order[end+1]) == scores.AtVec(order[pos]) {
			end++
		}
		for k := pos; k <= end; k++ {
			if yTrue.AtVec(order[k]) == 1 {
				tp++
			} else {
				fp++
			}
		}
		points = append(points, ROCPoint{
			FPR:       float64(fp) / float64(nNeg),
			TPR:       float64(tp) / float64(nPos),
			Threshold: scores.AtVec(order[pos]),
		})
		pos = end + 1
	}
	return points, nil
}

// SaveROCCurve はROC曲線をPNGファイルに保存する
func SaveROCCurve(yTrue, scores *mat.VecDense, filename string) error {
	points, err := ROCCurve(yTrue, scores)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "ROC Curve"
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	curve := make(plotter.XYs, len(points))
	for i, pt := range points {
		curve[i].X = pt.FPR
		curve[i].Y = pt.TPR
	}
	l, err := plotter.NewLine(curve)
	if err != nil {
		return errors.Wrap(err, "roc curve line")
	}
	l.Color = color.RGBA{B: 255, A: 255}
	l.LineStyle.Width = vg.Points(2)
	p.Add(l)

	// ランダム分類器の対角線
	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "roc diagonal line")
	}
	diag.Color = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diag)

	if err := p.Save(5*vg.Inch, 5*vg.Inch, filename); err != nil {
		return errors.Wrapf(err, "save roc curve to %s", filename)
	}
	return nil
}
