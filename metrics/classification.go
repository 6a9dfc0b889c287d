// Package metrics は分類モデルの評価指標を提供する
package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/pkg/errors"
)

// validateVectors は2つのベクトルの形状を検証し、要素数を返す
func validateVectors(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewModelError(op, "nil input", errors.ErrEmptyData)
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewModelError(op, "empty input", errors.ErrEmptyData)
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// firstColumn は行列の最初の列をベクトルとして取り出す
func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewModelError(op, "nil input", errors.ErrEmptyData)
	}
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.NewModelError(op, "empty input", errors.ErrEmptyData)
	}
	v := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// checkBinaryLabels はラベルが0/1のみであることを検証する
func checkBinaryLabels(op string, yTrue *mat.VecDense) error {
	for i := 0; i < yTrue.Len(); i++ {
		if v := yTrue.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op,
				fmt.Sprintf("labels must be binary (0 or 1), got %v at index %d", v, i))
		}
	}
	return nil
}

// Accuracy は正解率（一致した予測の割合）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validateVectors("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyMatrix は行列入力（最初の列を使用）のAccuracy
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	tVec, err := firstColumn("AccuracyMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	pVec, err := firstColumn("AccuracyMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(tVec, pVec)
}

// ClassificationError は誤分類率 (1 - Accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ClassificationErrorMatrix は行列入力（最初の列を使用）のClassificationError
func ClassificationErrorMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	acc, err := AccuracyMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// binaryCounts は二値分類の混同行列の4要素を数える
// 正例ラベルは1
func binaryCounts(yTrue, yPred *mat.VecDense) (tp, fp, fn, tn int) {
	for i := 0; i < yTrue.Len(); i++ {
		truePos := yTrue.AtVec(i) == 1
		predPos := yPred.AtVec(i) == 1
		switch {
		case truePos && predPos:
			tp++
		case !truePos && predPos:
			fp++
		case truePos && !predPos:
			fn++
		default:
			tn++
		}
	}
	return
}

// Precision は適合率 TP/(TP+FP) を計算する（正例ラベルは1）
// 正例予測が1つもない場合はUndefinedMetricWarningを発生させて0を返す
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := validateVectors("Precision", yTrue, yPred); err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("Precision", yTrue); err != nil {
		return 0, err
	}

	tp, fp, _, _ := binaryCounts(yTrue, yPred)
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Precision", "no positive predictions", 0))
		return 0, nil
	}
	return float64(tp) / float64(tp+fp), nil
}

// Recall は再現率 TP/(TP+FN) を計算する（正例ラベルは1）
// 正例が1つもない場合はUndefinedMetricWarningを発生させて0を返す
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := validateVectors("Recall", yTrue, yPred); err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("Recall", yTrue); err != nil {
		return 0, err
	}

	tp, _, fn, _ := binaryCounts(yTrue, yPred)
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Recall", "no positive labels", 0))
		return 0, nil
	}
	return float64(tp) / float64(tp+fn), nil
}

// F1Score は適合率と再現率の調和平均を計算する（正例ラベルは1）
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	precision, err := Precision(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	recall, err := Recall(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if precision+recall == 0 {
		return 0, nil
	}
	return 2 * precision * recall / (precision + recall), nil
}

// uniqueLabels はソート済みのラベル集合を返す
func uniqueLabels(vecs ...*mat.VecDense) []int {
	seen := make(map[int]bool)
	var labels []int
	for _, v := range vecs {
		for i := 0; i < v.Len(); i++ {
			l := int(v.AtVec(i))
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	sort.Ints(labels)
	return labels
}

// perClassCounts はクラスlを正例とみなしたTP/FP/FNを数える
func perClassCounts(yTrue, yPred *mat.VecDense, label int) (tp, fp, fn int) {
	for i := 0; i < yTrue.Len(); i++ {
		truePos := int(yTrue.AtVec(i)) == label
		predPos := int(yPred.AtVec(i)) == label
		switch {
		case truePos && predPos:
			tp++
		case !truePos && predPos:
			fp++
		case truePos && !predPos:
			fn++
		}
	}
	return
}

// MacroPrecision はクラスごとの適合率の単純平均を計算する
// 正例予測のないクラスは0として平均に入る（警告を発生）
func MacroPrecision(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := validateVectors("MacroPrecision", yTrue, yPred); err != nil {
		return 0, err
	}

	labels := uniqueLabels(yTrue, yPred)
	total := 0.0
	for _, l := range labels {
		tp, fp, _ := perClassCounts(yTrue, yPred, l)
		if tp+fp == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("MacroPrecision",
				fmt.Sprintf("no predictions for class %d", l), 0))
			continue
		}
		total += float64(tp) / float64(tp+fp)
	}
	return total / float64(len(labels)), nil
}

// MacroRecall はクラスごとの再現率の単純平均を計算する
func MacroRecall(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := validateVectors("MacroRecall", yTrue, yPred); err != nil {
		return 0, err
	}

	labels := uniqueLabels(yTrue, yPred)
	total := 0.0
	for _, l := range labels {
		tp, _, fn := perClassCounts(yTrue, yPred, l)
		if tp+fn == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("MacroRecall",
				fmt.Sprintf("no true samples for class %d", l), 0))
			continue
		}
		total += float64(tp) / float64(tp+fn)
	}
	return total / float64(len(labels)), nil
}

// MacroF1Score はクラスごとのF1の単純平均を計算する
func MacroF1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := validateVectors("MacroF1Score", yTrue, yPred); err != nil {
		return 0, err
	}

	labels := uniqueLabels(yTrue, yPred)
	total := 0.0
	for _, l := range labels {
		tp, fp, fn := perClassCounts(yTrue, yPred, l)
		precision, recall := 0.0, 0.0
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		if precision+recall > 0 {
			total += 2 * precision * recall / (precision + recall)
		}
	}
	return total / float64(len(labels)), nil
}

// ConfusionMatrix は混同行列と対応するラベル順を返す
// 行が真のクラス、列が予測クラス
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, []int, error) {
	if _, err := validateVectors("ConfusionMatrix", yTrue, yPred); err != nil {
		return nil, nil, err
	}

	labels := uniqueLabels(yTrue, yPred)
	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < yTrue.Len(); i++ {
		r := index[int(yTrue.AtVec(i))]
		c := index[int(yPred.AtVec(i))]
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, labels, nil
}

// AUC はROC曲線下面積を計算する
// 同順位は平均順位で扱う。正例または負例しか存在しない場合は0.5を返す
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validateVectors("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
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
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present", 0.5))
		return 0.5, nil
	}

	// スコア昇順の平均順位を計算する
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return yPred.AtVec(order[a]) < yPred.AtVec(order[b])
	})

	ranks := make([]float64, n)
	for pos := 0; pos < n; {
		end := pos
		for end+1 < n && yPred.AtVec(order[end+1]) == yPred.AtVec(order[pos]) {
			end++
		}
		avg := float64(pos+end)/2 + 1
		for k := pos; k <= end; k++ {
			ranks[order[k]] = avg
		}
		pos = end + 1
	}

	rankSum := 0.0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			rankSum += ranks[i]
		}
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix は行列入力（最初の列を使用）のAUC
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	tVec, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	pVec, err := firstColumn("AUCMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return AUC(tVec, pVec)
}

// logLossEps は対数損失のクリッピング値
const logLossEps = 1e-15

// BinaryLogLoss は二値分類の対数損失を計算する
// 予測確率は[eps, 1-eps]にクリップされる
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validateVectors("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	total := 0.0
	for i := 0; i < n; i++ {
		p := yPred.AtVec(i)
		if p < logLossEps {
			p = logLossEps
		} else if p > 1-logLossEps {
			p = 1 - logLossEps
		}
		if yTrue.AtVec(i) == 1 {
			total -= math.Log(p)
		} else {
			total -= math.Log(1 - p)
		}
	}
	return total / float64(n), nil
}

// BinaryLogLossMatrix は行列入力（最初の列を使用）のBinaryLogLoss
func BinaryLogLossMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	tVec, err := firstColumn("BinaryLogLossMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	pVec, err := firstColumn("BinaryLogLossMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return BinaryLogLoss(tVec, pVec)
}
