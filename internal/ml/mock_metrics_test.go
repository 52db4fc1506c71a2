package ml

import (
	"context"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions map[int]int
	failures    int
	latencySum  float64
	latencyObs  int
	confidences []float64
}

func (m *MockMetrics) PredictionsInc(label int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[int]int)
	}
	m.predictions[label]++
}

func (m *MockMetrics) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
	m.latencyObs++
}

func (m *MockMetrics) PredictionConfidenceObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, v)
}

// stubClassifier returns fixed outputs through the two-call Classifier path
type stubClassifier struct {
	label       int
	probability float64
	err         error

	mu       sync.Mutex
	calls    int
	received [][]float64
}

func (s *stubClassifier) Predict(_ context.Context, features []float64) (int, error) {
	s.mu.Lock()
	s.calls++
	s.received = append(s.received, append([]float64(nil), features...))
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if err := checkFeatures(features); err != nil {
		return 0, err
	}
	return s.label, nil
}

func (s *stubClassifier) PredictProba(_ context.Context, features []float64) (float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.probability, nil
}
