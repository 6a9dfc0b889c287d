package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// 平均化方式
const (
	// AverageBinary は正例ラベル1に対する二値指標
	AverageBinary = "binary"
	// AverageMacro はクラスごとの指標の単純平均
	AverageMacro = "macro"
)

// Report は分類モデルの評価結果をまとめた構造体
type Report struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64

	// Average は適合率・再現率・F1の平均化方式 ("binary" または "macro")
	Average string

	// Support は評価に使われたサンプル数
	Support int
}

// Evaluate は学習済み分類器をテストデータで評価する
// ラベルが0/1のみの場合は二値指標、3クラス以上の場合はマクロ平均を使う
func Evaluate(clf model.Classifier, X, y mat.Matrix) (*Report, error) {
	if clf == nil {
		return nil, errors.NewValueError("Evaluate", "classifier must not be nil")
	}

	yTrue, err := firstColumn("Evaluate", y)
	if err != nil {
		return nil, err
	}

	pred, err := clf.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate: predict failed")
	}
	yPred, err := firstColumn("Evaluate", pred)
	if err != nil {
		return nil, err
	}

	return EvaluatePredictions(yTrue, yPred)
}

// EvaluatePredictions は真のラベルと予測ラベルからレポートを作成する
func EvaluatePredictions(yTrue, yPred *mat.VecDense) (*Report, error) {
	n, err := validateVectors("EvaluatePredictions", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	report := &Report{Support: n}

	report.Accuracy, err = Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	if isBinary(yTrue, yPred) {
		report.Average = AverageBinary
		report.Precision, err = Precision(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		report.Recall, err = Recall(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		report.F1, err = F1Score(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		return report, nil
	}

	report.Average = AverageMacro
	report.Precision, err = MacroPrecision(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	report.Recall, err = MacroRecall(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	report.F1, err = MacroF1Score(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// isBinary はラベルが0/1のみかどうかを調べる
func isBinary(vecs ...*mat.VecDense) bool {
	for _, v := range vecs {
		for i := 0; i < v.Len(); i++ {
			if val := v.AtVec(i); val != 0 && val != 1 {
				return false
			}
		}
	}
	return true
}

// String はレポートを人間が読める形式で返す
func (r *Report) String() string {
	return fmt.Sprintf(
		"accuracy:  %.4f\nprecision: %.4f (%s)\nrecall:    %.4f (%s)\nf1:        %.4f (%s)\nsupport:   %d",
		r.Accuracy, r.Precision, r.Average, r.Recall, r.Average, r.F1, r.Average, r.Support)
}
