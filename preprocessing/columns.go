// Package preprocessing はテーブルデータの前処理コンポーネントを提供する
//
// 数値特徴量の欠損値補完と標準化、カテゴリ特徴量のエンコード、
// テキスト特徴量のTF-IDFベクトル化、および多項式特徴量の展開を実装する。
// ColumnTransformer がこれらを列の役割ごとに束ね、datasetパッケージの
// テーブルを学習用の行列に変換する。
package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/dataset"
	"github.com/go-tabkit/tabkit/pkg/errors"
	"github.com/go-tabkit/tabkit/pkg/log"
)

// カテゴリ列のエンコード方式
const (
	// EncodingOneHot はone-hotエンコード（デフォルト）
	EncodingOneHot = "onehot"
	// EncodingOrdinal は整数コードエンコード
	EncodingOrdinal = "ordinal"
)

// Config はColumnTransformerの列役割の設定
//
// 各列はちょうど1つの役割（数値・カテゴリ・テキスト・ターゲット）を持つ。
// Fit前にValidateで検証される。
type Config struct {
	// NumericColumns は数値特徴量として扱う列名
	NumericColumns []string

	// CategoricalColumns はカテゴリ特徴量として扱う列名
	CategoricalColumns []string

	// TextColumns はTF-IDFベクトル化するテキスト列名
	TextColumns []string

	// TargetColumn はクラスラベル列名（必須）
	TargetColumn string

	// Encoding はカテゴリ列のエンコード方式 ("onehot" または "ordinal")
	// 空の場合はone-hotを使う
	Encoding string

	// HandleUnknown は変換時の未知カテゴリの扱い ("error" または "ignore")
	// 空の場合はエラーにする
	HandleUnknown string

	// ImputeStrategy は数値列の欠損値補完戦略 ("median", "mean", "constant")
	// 空の場合は中央値を使う
	ImputeStrategy string

	// FillValue はImputeStrategyが"constant"の場合の補完値
	FillValue float64

	// TextOptions はTF-IDFベクトライザーのオプション
	TextOptions []TfidfOption
}

// Validate は設定の整合性を検証する
func (c *Config) Validate() error {
	if c.TargetColumn == "" {
		return errors.NewValidationError("TargetColumn", "must not be empty", c.TargetColumn)
	}
	if len(c.NumericColumns)+len(c.CategoricalColumns)+len(c.TextColumns) == 0 {
		return errors.NewValidationError("columns", "at least one feature column is required", nil)
	}

	roles := make(map[string]string)
	assign := func(names []string, role string) error {
		for _, name := range names {
			if prev, ok := roles[name]; ok {
				return errors.NewValidationError("columns",
					fmt.Sprintf("column assigned to both %s and %s", prev, role), name)
			}
			if name == c.TargetColumn {
				return errors.NewValidationError("columns",
					"target column cannot also be a feature column", name)
			}
			roles[name] = role
		}
		return nil
	}
	if err := assign(c.NumericColumns, "numeric"); err != nil {
		return err
	}
	if err := assign(c.CategoricalColumns, "categorical"); err != nil {
		return err
	}
	if err := assign(c.TextColumns, "text"); err != nil {
		return err
	}

	switch c.Encoding {
	case "", EncodingOneHot, EncodingOrdinal:
	default:
		return errors.NewValidationError("Encoding",
			fmt.Sprintf("must be %q or %q", EncodingOneHot, EncodingOrdinal), c.Encoding)
	}
	switch c.HandleUnknown {
	case "", HandleUnknownError, HandleUnknownIgnore:
	default:
		return errors.NewValidationError("HandleUnknown",
			fmt.Sprintf("must be %q or %q", HandleUnknownError, HandleUnknownIgnore), c.HandleUnknown)
	}
	switch c.ImputeStrategy {
	case "", StrategyMedian, StrategyMean, StrategyConstant:
	default:
		return errors.NewValidationError("ImputeStrategy", "unknown impute strategy", c.ImputeStrategy)
	}
	return nil
}

// encoding はデフォルトを解決したエンコード方式を返す
func (c *Config) encoding() string {
	if c.Encoding == "" {
		return EncodingOneHot
	}
	return c.Encoding
}

// handleUnknown はデフォルトを解決した未知カテゴリの扱いを返す
func (c *Config) handleUnknown() string {
	if c.HandleUnknown == "" {
		return HandleUnknownError
	}
	return c.HandleUnknown
}

// imputeStrategy はデフォルトを解決した補完戦略を返す
func (c *Config) imputeStrategy() string {
	if c.ImputeStrategy == "" {
		return StrategyMedian
	}
	return c.ImputeStrategy
}

// encoderLike は両エンコーダーに共通の操作
type encoderLike interface {
	Fit(cols [][]string) error
	Transform(cols [][]string) (*mat.Dense, error)
	NumOutputFeatures() int
	FeatureNames(inputNames []string) []string
}

// ColumnTransformer はテーブルを学習用の特徴量行列とラベル列に変換する
//
// 出力行列の列順は [数値][カテゴリ][テキスト] で固定される。
// Fitは訓練データでのみ呼び、検証データにはTransformだけを適用する。
type ColumnTransformer struct {
	model.BaseEstimator

	// Cfg は列役割の設定
	Cfg Config

	// Imputer は数値列の欠損値補完器
	Imputer *SimpleImputer

	// Scaler は数値列の標準化器
	Scaler *StandardScaler

	// CatImputer はカテゴリ列の欠損値補完器
	CatImputer *CategoricalImputer

	// OneHot / Ordinal は設定に応じてどちらか一方だけが使われる
	OneHot  *OneHotEncoder
	Ordinal *OrdinalEncoder

	// Vectorizers はテキスト列ごとのTF-IDFベクトライザー
	Vectorizers []*TfidfVectorizer

	// ClassLabels はソート済みのクラスラベル語彙
	ClassLabels []string

	labelIndex map[string]int
	logger     log.Logger
}

// ColumnTransformerOption はColumnTransformerの設定オプション
type ColumnTransformerOption func(*ColumnTransformer)

// WithColumnLogger は変換の進捗ログを出力するロガーを設定する
func WithColumnLogger(logger log.Logger) ColumnTransformerOption {
	return func(ct *ColumnTransformer) {
		ct.logger = logger
	}
}

// NewColumnTransformer は設定を検証して新しいColumnTransformerを作成する
func NewColumnTransformer(cfg Config, opts ...ColumnTransformerOption) (*ColumnTransformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ct := &ColumnTransformer{Cfg: cfg}
	for _, opt := range opts {
		opt(ct)
	}
	return ct, nil
}

// checkColumns は参照する全列の存在を確認する
// 1つでも欠けていればMissingColumnErrorを返す
func (ct *ColumnTransformer) checkColumns(t *dataset.Table, op string, withTarget bool) error {
	var all []string
	all = append(all, ct.Cfg.NumericColumns...)
	all = append(all, ct.Cfg.CategoricalColumns...)
	all = append(all, ct.Cfg.TextColumns...)
	if withTarget {
		all = append(all, ct.Cfg.TargetColumn)
	}
	for _, name := range all {
		if !t.HasColumn(name) {
			return errors.NewMissingColumnError(op, name)
		}
	}
	return nil
}

// numericMatrix は数値列を行列に組み立てる（欠損はNaN）
func (ct *ColumnTransformer) numericMatrix(t *dataset.Table) (*mat.Dense, error) {
	X := mat.NewDense(t.NumRows(), len(ct.Cfg.NumericColumns), nil)
	for j, name := range ct.Cfg.NumericColumns {
		col, err := t.FloatColumn(name)
		if err != nil {
			return nil, err
		}
		X.SetCol(j, col)
	}
	return X, nil
}

// categoricalColumns はカテゴリ列を列優先の文字列スライスで集める
func (ct *ColumnTransformer) categoricalColumns(t *dataset.Table) ([][]string, error) {
	cols := make([][]string, len(ct.Cfg.CategoricalColumns))
	for j, name := range ct.Cfg.CategoricalColumns {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	return cols, nil
}

// Fit は訓練テーブルで全ての変換器とラベル語彙を学習する
func (ct *ColumnTransformer) Fit(t *dataset.Table) error {
	const op = "ColumnTransformer.Fit"
	if err := ct.checkColumns(t, op, true); err != nil {
		return err
	}
	if t.NumRows() == 0 {
		return errors.NewModelError(op, "empty table", errors.ErrEmptyData)
	}

	if ct.logger != nil {
		ct.logger.Info("fitting column transformer",
			log.SamplesKey, t.NumRows(),
			log.FeaturesKey, len(ct.Cfg.NumericColumns)+len(ct.Cfg.CategoricalColumns)+len(ct.Cfg.TextColumns))
	}

	// 数値列: 補完して標準化
	if len(ct.Cfg.NumericColumns) > 0 {
		X, err := ct.numericMatrix(t)
		if err != nil {
			return err
		}
		ct.Imputer = NewSimpleImputer(ct.Cfg.imputeStrategy(), ct.Cfg.FillValue)
		imputed, err := ct.Imputer.FitTransform(X)
		if err != nil {
			return err
		}
		ct.Scaler = NewStandardScalerDefault()
		if err := ct.Scaler.Fit(imputed); err != nil {
			return err
		}
	}

	// カテゴリ列: 欠損埋めしてエンコード
	if len(ct.Cfg.CategoricalColumns) > 0 {
		cols, err := ct.categoricalColumns(t)
		if err != nil {
			return err
		}
		ct.CatImputer = NewCategoricalImputer()
		filled, err := ct.CatImputer.FitTransform(cols)
		if err != nil {
			return err
		}
		var enc encoderLike
		if ct.Cfg.encoding() == EncodingOrdinal {
			ct.Ordinal = NewOrdinalEncoder(ct.Cfg.handleUnknown())
			enc = ct.Ordinal
		} else {
			ct.OneHot = NewOneHotEncoder(ct.Cfg.handleUnknown())
			enc = ct.OneHot
		}
		if err := enc.Fit(filled); err != nil {
			return err
		}
	}

	// テキスト列: 列ごとにTF-IDF
	ct.Vectorizers = nil
	for _, name := range ct.Cfg.TextColumns {
		docs, err := t.Column(name)
		if err != nil {
			return err
		}
		v := NewTfidfVectorizer(ct.Cfg.TextOptions...)
		if err := v.Fit(docs); err != nil {
			return errors.Wrapf(err, "fit tfidf for column %q", name)
		}
		ct.Vectorizers = append(ct.Vectorizers, v)
	}

	// ラベル語彙の学習
	labels, err := t.Column(ct.Cfg.TargetColumn)
	if err != nil {
		return err
	}
	ct.ClassLabels = nil
	ct.labelIndex = make(map[string]int)
	for _, l := range labels {
		if _, ok := ct.labelIndex[l]; !ok {
			ct.labelIndex[l] = 0
			ct.ClassLabels = append(ct.ClassLabels, l)
		}
	}
	sort.Strings(ct.ClassLabels)
	for i, l := range ct.ClassLabels {
		ct.labelIndex[l] = i
	}

	ct.SetFitted()
	if ct.logger != nil {
		ct.logger.Info("column transformer fitted",
			log.FeaturesKey, ct.NumOutputFeatures(),
			log.ClassesKey, len(ct.ClassLabels))
	}
	return nil
}

// encoder は設定済みのエンコーダーを返す
func (ct *ColumnTransformer) encoder() encoderLike {
	if ct.Ordinal != nil {
		return ct.Ordinal
	}
	if ct.OneHot != nil {
		return ct.OneHot
	}
	return nil
}

// Transform はテーブルを学習済み変換器で特徴量行列に変換する
// 行順は入力テーブルの行順と一致する
func (ct *ColumnTransformer) Transform(t *dataset.Table) (*mat.Dense, error) {
	const op = "ColumnTransformer.Transform"
	if !ct.IsFitted() {
		return nil, errors.NewNotFittedError("ColumnTransformer", "Transform")
	}
	if err := ct.checkColumns(t, op, false); err != nil {
		return nil, err
	}
	if t.NumRows() == 0 {
		return nil, errors.NewModelError(op, "empty table", errors.ErrEmptyData)
	}

	var blocks []*mat.Dense

	if len(ct.Cfg.NumericColumns) > 0 {
		X, err := ct.numericMatrix(t)
		if err != nil {
			return nil, err
		}
		imputed, err := ct.Imputer.Transform(X)
		if err != nil {
			return nil, err
		}
		scaled, err := ct.Scaler.Transform(imputed)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, scaled.(*mat.Dense))
	}

	if enc := ct.encoder(); enc != nil {
		cols, err := ct.categoricalColumns(t)
		if err != nil {
			return nil, err
		}
		filled, err := ct.CatImputer.Transform(cols)
		if err != nil {
			return nil, err
		}
		encoded, err := enc.Transform(filled)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, encoded)
	}

	for i, name := range ct.Cfg.TextColumns {
		docs, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		tfidf, err := ct.Vectorizers[i].Transform(docs)
		if err != nil {
			return nil, errors.Wrapf(err, "transform tfidf for column %q", name)
		}
		blocks = append(blocks, tfidf)
	}

	return hstack(t.NumRows(), blocks), nil
}

// FitTransform は学習と変換を同時に行う
func (ct *ColumnTransformer) FitTransform(t *dataset.Table) (*mat.Dense, error) {
	if err := ct.Fit(t); err != nil {
		return nil, err
	}
	return ct.Transform(t)
}

// Target はターゲット列を学習済みラベル語彙のクラスインデックスに変換する
func (ct *ColumnTransformer) Target(t *dataset.Table) ([]int, error) {
	const op = "ColumnTransformer.Target"
	if !ct.IsFitted() {
		return nil, errors.NewNotFittedError("ColumnTransformer", "Target")
	}
	if !t.HasColumn(ct.Cfg.TargetColumn) {
		return nil, errors.NewMissingColumnError(op, ct.Cfg.TargetColumn)
	}
	labels, err := t.Column(ct.Cfg.TargetColumn)
	if err != nil {
		return nil, err
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		idx, ok := ct.labelIndex[l]
		if !ok {
			return nil, errors.NewValueError(op, fmt.Sprintf("unknown class label %q", l))
		}
		y[i] = idx
	}
	return y, nil
}

// Classes はソート済みのクラスラベル語彙を返す
func (ct *ColumnTransformer) Classes() []string {
	out := make([]string, len(ct.ClassLabels))
	copy(out, ct.ClassLabels)
	return out
}

// LabelOf はクラスインデックスを元のラベル文字列に戻す
func (ct *ColumnTransformer) LabelOf(class int) (string, error) {
	if class < 0 || class >= len(ct.ClassLabels) {
		return "", errors.NewValueError("ColumnTransformer.LabelOf",
			fmt.Sprintf("class index %d out of range [0, %d)", class, len(ct.ClassLabels)))
	}
	return ct.ClassLabels[class], nil
}

// NumOutputFeatures は出力行列の列数を返す
func (ct *ColumnTransformer) NumOutputFeatures() int {
	total := len(ct.Cfg.NumericColumns)
	if enc := ct.encoder(); enc != nil {
		total = len(ct.Cfg.NumericColumns) + enc.NumOutputFeatures()
	}
	for _, v := range ct.Vectorizers {
		total += v.NumOutputFeatures()
	}
	return total
}

// FeatureNames は出力行列の列順に対応する特徴量名を返す
func (ct *ColumnTransformer) FeatureNames() []string {
	names := make([]string, 0, ct.NumOutputFeatures())
	names = append(names, ct.Cfg.NumericColumns...)
	if enc := ct.encoder(); enc != nil {
		names = append(names, enc.FeatureNames(ct.Cfg.CategoricalColumns)...)
	}
	for i, v := range ct.Vectorizers {
		names = append(names, v.FeatureNames(ct.Cfg.TextColumns[i])...)
	}
	return names
}

// hstack はブロック行列を水平方向に連結する
func hstack(rows int, blocks []*mat.Dense) *mat.Dense {
	total := 0
	for _, b := range blocks {
		_, c := b.Dims()
		total += c
	}
	result := mat.NewDense(rows, total, nil)
	offset := 0
	for _, b := range blocks {
		_, c := b.Dims()
		result.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(b)
		offset += c
	}
	return result
}
