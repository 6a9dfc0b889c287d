package preprocessing

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/bbalet/stopwords"
	"github.com/reiver/go-porterstemmer"
	"gonum.org/v1/gonum/mat"

	"github.com/go-tabkit/tabkit/core/model"
	"github.com/go-tabkit/tabkit/pkg/errors"
)

// TfidfVectorizer はテキスト列をTF-IDF特徴量行列に変換するベクトライザー
//
// トークン化は小文字化の後、英数字以外の文字で分割する。
// IDFは平滑化版 ln((1+n)/(1+df)) + 1 を使い、各行はL2正規化される。
// 全ての重みが0の行はそのまま0ベクトルとして残る。
type TfidfVectorizer struct {
	model.BaseEstimator

	// Vocabulary は学習済み語彙（ソート済み）
	Vocabulary []string

	// IDF は語彙の各単語のIDF値
	IDF []float64

	// MaxFeatures は語彙サイズの上限（0は無制限）
	MaxFeatures int

	stopWordsLang string
	stemming      bool

	vocabIndex map[string]int
}

// TfidfOption はTfidfVectorizerの設定オプション
type TfidfOption func(*TfidfVectorizer)

// WithStopWords はISO 639-1言語コードのストップワード除去を有効にする
func WithStopWords(lang string) TfidfOption {
	return func(v *TfidfVectorizer) {
		v.stopWordsLang = lang
	}
}

// WithStemming はPorterステマーによる語幹抽出を有効にする
func WithStemming() TfidfOption {
	return func(v *TfidfVectorizer) {
		v.stemming = true
	}
}

// WithMaxFeatures は文書頻度の高い順に語彙サイズを制限する
func WithMaxFeatures(n int) TfidfOption {
	return func(v *TfidfVectorizer) {
		v.MaxFeatures = n
	}
}

// NewTfidfVectorizer は新しいTfidfVectorizerを作成する
func NewTfidfVectorizer(opts ...TfidfOption) *TfidfVectorizer {
	v := &TfidfVectorizer{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// tokenize は文書をトークン列に分解する
func (v *TfidfVectorizer) tokenize(doc string) []string {
	if v.stopWordsLang != "" {
		doc = stopwords.CleanString(doc, v.stopWordsLang, false)
	}
	doc = strings.ToLower(doc)
	tokens := strings.FieldsFunc(doc, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if v.stemming {
		for i, t := range tokens {
			tokens[i] = porterstemmer.StemString(t)
		}
	}
	return tokens
}

// Fit はコーパスから語彙とIDFを学習する
func (v *TfidfVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.NewModelError("TfidfVectorizer.Fit", "empty corpus", errors.ErrEmptyData)
	}

	// 文書頻度の集計
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, t := range v.tokenize(doc) {
			if t != "" && !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	vocab := make([]string, 0, len(df))
	for t := range df {
		vocab = append(vocab, t)
	}
	// 全文書が空・ストップワードのみの場合は語彙が作れない
	if len(vocab) == 0 {
		return errors.NewValueError("TfidfVectorizer.Fit",
			"empty vocabulary: no terms survived tokenization")
	}
	sort.Strings(vocab)

	if v.MaxFeatures > 0 && len(vocab) > v.MaxFeatures {
		// 文書頻度の降順（同順位は辞書順）で上位を残す
		sort.SliceStable(vocab, func(i, j int) bool {
			return df[vocab[i]] > df[vocab[j]]
		})
		vocab = vocab[:v.MaxFeatures]
		sort.Strings(vocab)
	}

	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for i, t := range vocab {
		idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	v.Vocabulary = vocab
	v.IDF = idf
	v.vocabIndex = make(map[string]int, len(vocab))
	for i, t := range vocab {
		v.vocabIndex[t] = i
	}
	v.SetFitted()
	return nil
}

// Transform は文書列をL2正規化済みTF-IDF行列に変換する
func (v *TfidfVectorizer) Transform(docs []string) (*mat.Dense, error) {
	if !v.IsFitted() {
		return nil, errors.NewNotFittedError("TfidfVectorizer", "Transform")
	}
	if v.vocabIndex == nil {
		v.vocabIndex = make(map[string]int, len(v.Vocabulary))
		for i, t := range v.Vocabulary {
			v.vocabIndex[t] = i
		}
	}

	result := mat.NewDense(len(docs), len(v.Vocabulary), nil)
	for i, doc := range docs {
		counts := make(map[int]int)
		for _, t := range v.tokenize(doc) {
			if j, ok := v.vocabIndex[t]; ok {
				counts[j]++
			}
		}

		norm := 0.0
		for j, c := range counts {
			w := float64(c) * v.IDF[j]
			result.Set(i, j, w)
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range counts {
				result.Set(i, j, result.At(i, j)/norm)
			}
		}
	}
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (v *TfidfVectorizer) FitTransform(docs []string) (*mat.Dense, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

// NumOutputFeatures は出力特徴量数（語彙サイズ）を返す
func (v *TfidfVectorizer) NumOutputFeatures() int {
	return len(v.Vocabulary)
}

// FeatureNames は「列名=単語」形式の出力特徴量名を返す
func (v *TfidfVectorizer) FeatureNames(column string) []string {
	names := make([]string, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		names[i] = column + "=" + t
	}
	return names
}
