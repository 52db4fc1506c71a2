package metrics

import (
	"strconv"
	"time"
)

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// MetricsWrapper adapts Metrics to the narrow interfaces the predictor and the
// web server consume. A wrapper around nil Metrics is a no-op.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// PredictionsInc counts a served prediction under its label
func (w *MetricsWrapper) PredictionsInc(label int) {
	if w.m == nil {
		return
	}
	name := "loss"
	if label == 1 {
		name = "profitable"
	}
	w.m.PredictionsTotal.WithLabelValues(name).Inc()
}

func (w *MetricsWrapper) PredictionFailuresInc() {
	if w.m == nil {
		return
	}
	w.m.PredictionFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(v float64) {
	if w.m == nil {
		return
	}
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) PredictionConfidenceObserve(v float64) {
	if w.m == nil {
		return
	}
	w.m.PredictionConfidence.Observe(v)
}

// ModelAgeSet records the model artifact age at load time
func (w *MetricsWrapper) ModelAgeSet(age time.Duration) {
	if w.m == nil {
		return
	}
	w.m.ModelAge.Set(age.Seconds())
}

// DatasetRowsSet records how many rows a dataset contributed
func (w *MetricsWrapper) DatasetRowsSet(dataset string, rows int) {
	if w.m == nil {
		return
	}
	w.m.DatasetRows.WithLabelValues(dataset).Set(float64(rows))
}

func (w *MetricsWrapper) SummaryComputed(d time.Duration) {
	if w.m == nil {
		return
	}
	w.m.SummaryComputations.Inc()
	w.m.SummaryLatency.Observe(d.Seconds())
}

func (w *MetricsWrapper) SummaryCacheHitInc() {
	if w.m == nil {
		return
	}
	w.m.SummaryCacheHits.Inc()
}

func (w *MetricsWrapper) SummaryCacheMissInc() {
	if w.m == nil {
		return
	}
	w.m.SummaryCacheMisses.Inc()
}

// HTTPRequestObserve counts a finished request and its duration
func (w *MetricsWrapper) HTTPRequestObserve(route string, code int, d time.Duration) {
	if w.m == nil {
		return
	}
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
	if code >= 500 {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) WSClients() MetricsGauge {
	if w.m == nil {
		return noopGauge{}
	}
	return &GaugeWrapper{w.m.WSClients}
}

func (w *MetricsWrapper) ErrorsTotal() MetricsCounter {
	if w.m == nil {
		return noopCounter{}
	}
	return &CounterWrapper{w.m.ErrorsTotal}
}

type CounterWrapper struct {
	c interface{ Inc() }
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g interface {
		Set(float64)
		Add(float64)
	}
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Add(float64) {}
