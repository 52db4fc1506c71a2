package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

type remoteRequest struct {
	Features []float64 `json:"features"`
}

type remoteResponse struct {
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

// RemoteClassifier delegates inference to an HTTP model server
type RemoteClassifier struct {
	base string
	rest *resty.Client
}

// NewRemoteClassifier creates a client for the model server at base and checks
// that it answers its health endpoint.
func NewRemoteClassifier(ctx context.Context, base string, timeout time.Duration) (*RemoteClassifier, error) {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}

	rc := &RemoteClassifier{base: strings.TrimRight(base, "/"), rest: r}

	resp, err := rc.rest.R().SetContext(ctx).Get(rc.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("model server %s unreachable: %w", rc.base, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model server %s unhealthy: %s", rc.base, resp.Status())
	}

	log.Info().Str("model_server", rc.base).Msg("remote model server reachable")
	return rc, nil
}

func (rc *RemoteClassifier) Predict(ctx context.Context, features []float64) (int, error) {
	label, _, err := rc.Score(ctx, features)
	return label, err
}

func (rc *RemoteClassifier) PredictProba(ctx context.Context, features []float64) (float64, error) {
	_, p, err := rc.Score(ctx, features)
	return p, err
}

// Score posts the feature vector to /predict
func (rc *RemoteClassifier) Score(ctx context.Context, features []float64) (int, float64, error) {
	if err := checkFeatures(features); err != nil {
		return 0, 0, err
	}

	out := &remoteResponse{}
	resp, err := rc.rest.R().
		SetContext(ctx).
		SetBody(remoteRequest{Features: features}).
		SetResult(out).
		SetError(out).
		Post(rc.base + "/predict")
	if err != nil {
		return 0, 0, fmt.Errorf("model server request failed: %w", err)
	}
	if out.Error != "" {
		return 0, 0, fmt.Errorf("model server error: %s", out.Error)
	}
	if resp.IsError() {
		return 0, 0, fmt.Errorf("model server returned %s", resp.Status())
	}

	if len(out.Probabilities) != 2 {
		return 0, 0, fmt.Errorf("%w: expected 2 probabilities, got %d", ErrInvalidOutput, len(out.Probabilities))
	}
	return out.Prediction, out.Probabilities[1], nil
}
