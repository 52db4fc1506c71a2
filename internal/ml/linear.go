package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog/log"
)

// LinearArtifact is the on-disk form of a logistic regression model
type LinearArtifact struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	Threshold    float64   `json:"threshold,omitempty"`
}

// LinearClassifier evaluates a logistic regression natively
type LinearClassifier struct {
	intercept    float64
	coefficients []float64
	threshold    float64
}

// NewLinearClassifier creates a logistic classifier. A threshold of 0 means 0.5.
func NewLinearClassifier(intercept float64, coefficients []float64, threshold float64) (*LinearClassifier, error) {
	if len(coefficients) != FeatureCount {
		return nil, fmt.Errorf("%w: model has %d coefficients, want %d", ErrFeatureArity, len(coefficients), FeatureCount)
	}
	if threshold == 0 {
		threshold = 0.5
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %v", threshold)
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", i)
		}
	}

	return &LinearClassifier{
		intercept:    intercept,
		coefficients: append([]float64(nil), coefficients...),
		threshold:    threshold,
	}, nil
}

// LoadLinearClassifier reads a LinearArtifact JSON file
func LoadLinearClassifier(path string) (*LinearClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	var artifact LinearArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode model file %s: %w", path, err)
	}

	lc, err := NewLinearClassifier(artifact.Intercept, artifact.Coefficients, artifact.Threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid model file %s: %w", path, err)
	}

	log.Info().Str("model_path", path).Float64("threshold", lc.threshold).Msg("linear model loaded successfully")
	return lc, nil
}

func (lc *LinearClassifier) Predict(ctx context.Context, features []float64) (int, error) {
	label, _, err := lc.Score(ctx, features)
	return label, err
}

func (lc *LinearClassifier) PredictProba(ctx context.Context, features []float64) (float64, error) {
	_, p, err := lc.Score(ctx, features)
	return p, err
}

// Score returns the label and the class-1 probability in one pass
func (lc *LinearClassifier) Score(_ context.Context, features []float64) (int, float64, error) {
	if err := checkFeatures(features); err != nil {
		return 0, 0, err
	}

	z := lc.intercept
	for i, x := range features {
		z += lc.coefficients[i] * x
	}

	p := sigmoid(z)
	if p >= lc.threshold {
		return 1, p, nil
	}
	return 0, p, nil
}

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
