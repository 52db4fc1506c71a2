package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModelServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/predict", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteClassifier_Score(t *testing.T) {
	var got remoteRequest
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prediction": 1, "probabilities": [0.18, 0.82]}`))
	})

	rc, err := NewRemoteClassifier(context.Background(), srv.URL+"/", time.Second)
	require.NoError(t, err)

	label, p, err := rc.Score(context.Background(), []float64{3000, 10, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Equal(t, 0.82, p)
	assert.Equal(t, []float64{3000, 10, 1}, got.Features)

	pred, err := NewPredictor(rc, nil).Predict(context.Background(), Features{AvgTradeSize: 3000, TradeCount: 10, Sentiment: Greed})
	require.NoError(t, err)
	assert.Equal(t, "82.0%", pred.ConfidenceText())
}

func TestRemoteClassifier_ServerError(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "X has 2 features, but model expects 3"}`))
	})

	rc, err := NewRemoteClassifier(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	_, err = rc.Predict(context.Background(), []float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model expects 3")
}

func TestRemoteClassifier_BadProbabilities(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prediction": 1, "probabilities": [1.0]}`))
	})

	rc, err := NewRemoteClassifier(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	_, err = rc.PredictProba(context.Background(), []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestRemoteClassifier_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteClassifier(context.Background(), srv.URL, time.Second)
	assert.Error(t, err)
}

func TestRemoteClassifier_FeatureArity(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	})

	rc, err := NewRemoteClassifier(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	_, err = rc.Predict(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrFeatureArity)
}
