// Package tabkit provides an end-to-end classification toolkit for tabular
// data, designed for backend services that need to train and serve models
// without leaving Go.
//
// Tabkit covers the full path from a raw CSV file to a persisted model: data
// loading, column-wise preprocessing, feature selection and expansion, a
// soft-voting ensemble of heterogeneous classifiers, evaluation, and
// gob-based model persistence.
//
// # Quick Start
//
// Train a voting ensemble on a CSV file with mixed column types:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "gonum.org/v1/gonum/mat"
//
//	    "github.com/go-tabkit/tabkit/dataset"
//	    "github.com/go-tabkit/tabkit/metrics"
//	    "github.com/go-tabkit/tabkit/preprocessing"
//	    "github.com/go-tabkit/tabkit/sklearn/ensemble"
//	)
//
//	func main() {
//	    table, err := dataset.ReadCSV("train.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    ct, err := preprocessing.NewColumnTransformer(preprocessing.Config{
//	        NumericColumns:     []string{"age", "income"},
//	        CategoricalColumns: []string{"city"},
//	        TargetColumn:       "label",
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    X, err := ct.FitTransform(table)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    labels, err := ct.Target(table)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    y := mat.NewDense(len(labels), 1, nil)
//	    for i, l := range labels {
//	        y.Set(i, 0, float64(l))
//	    }
//
//	    clf, err := ensemble.NewDefaultEnsembleConfig(42).Build()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := clf.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    report, err := metrics.Evaluate(clf, X, y)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(report)
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - dataset: CSV loading and train/test splitting for string-typed tables
//   - preprocessing: Imputation, scaling, categorical encoding, TF-IDF text
//     features, polynomial expansion, and the ColumnTransformer that ties
//     them together
//   - sklearn/tree: CART decision tree classifier
//   - sklearn/ensemble: Random forest, AdaBoost, and the soft-voting
//     ensemble combining them with an SVM
//   - sklearn/svm: Support vector classifier with probability estimates
//   - sklearn/feature_selection: ANOVA F-test univariate selection
//   - pipeline: Chaining transformers with a final classifier
//   - metrics: Accuracy, precision, recall, F1, AUC, and evaluation reports
//   - core/model: Core interfaces, state management, and gob persistence
//   - core/parallel: Parallel processing utilities
//
// # Model Persistence
//
// Fitted models are saved and restored with core/model:
//
//	if err := model.SaveModel(clf, "model.gob"); err != nil {
//	    log.Fatal(err)
//	}
//
//	loaded := &ensemble.VotingClassifier{}
//	if err := model.LoadModel(loaded, "model.gob"); err != nil {
//	    log.Fatal(err)
//	}
//
// A reloaded model produces predictions identical to the model that was
// saved.
package tabkit
