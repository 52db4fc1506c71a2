// Package ml provides the binary profitability classifier and the predictor that
// turns user inputs into a labelled prediction with a confidence percentage.
//
// Three classifier backends are supported: a pickled scikit-learn model evaluated
// by a Python subprocess, a remote HTTP model server, and a native logistic
// regression loaded from a JSON artifact. Every backend is loaded once and is
// safe for concurrent use afterwards.
package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"trader-insights/internal/common"
)

// FeatureCount is the arity of the feature vector: [avg trade size, trade count, sentiment]
const FeatureCount = 3

var (
	// ErrFeatureArity is returned when a feature vector does not have FeatureCount values
	ErrFeatureArity = errors.New("unexpected feature count")
	// ErrInvalidOutput is returned when a classifier produces a label outside {0,1}
	// or a probability outside [0,1]
	ErrInvalidOutput = errors.New("invalid classifier output")
	// ErrUnknownSentiment is returned for a sentiment label other than Fear or Greed
	ErrUnknownSentiment = errors.New("unknown sentiment")
)

// Classifier defines the trained binary model consumed by the predictor.
type Classifier interface {
	// Predict returns the predicted class, 0 (loss) or 1 (profitable).
	Predict(ctx context.Context, features []float64) (int, error)

	// PredictProba returns the probability of class 1.
	PredictProba(ctx context.Context, features []float64) (float64, error)
}

// Scorer is implemented by classifiers that can produce the label and the
// class-1 probability in a single evaluation.
type Scorer interface {
	Score(ctx context.Context, features []float64) (label int, probability float64, err error)
}

// Options selects and configures a classifier backend
type Options struct {
	Backend    string
	Path       string
	ServerURL  string
	PythonPath string
	Timeout    time.Duration
}

// Load deserializes the classifier selected by opts. Any failure is returned as
// is; callers treat it as fatal.
func Load(ctx context.Context, opts Options) (Classifier, error) {
	switch opts.Backend {
	case common.BackendPickle, "":
		return NewPickleClassifier(ctx, opts.Path, opts.PythonPath, opts.Timeout)
	case common.BackendRemote:
		return NewRemoteClassifier(ctx, opts.ServerURL, opts.Timeout)
	case common.BackendLinear:
		return LoadLinearClassifier(opts.Path)
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", opts.Backend)
	}
}

func checkFeatures(features []float64) error {
	if len(features) != FeatureCount {
		return fmt.Errorf("%w: expected %d features, got %d", ErrFeatureArity, FeatureCount, len(features))
	}
	return nil
}

func checkOutput(label int, probability float64) error {
	if label != 0 && label != 1 {
		return fmt.Errorf("%w: label %d", ErrInvalidOutput, label)
	}
	if math.IsNaN(probability) || probability < 0 || probability > 1 {
		return fmt.Errorf("%w: probability %v", ErrInvalidOutput, probability)
	}
	return nil
}
