// Package artifacts loads the classifier and both datasets exactly once per
// process and hands them out as one immutable value.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"trader-insights/internal/common"
	"trader-insights/internal/dataset"
	"trader-insights/internal/ml"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics the loader reports
type MetricsInterface interface {
	ModelAgeSet(time.Duration)
	DatasetRowsSet(dataset string, rows int)
}

// Artifacts are the shared read-only inputs of every request
type Artifacts struct {
	Model       ml.Classifier
	Backend     string
	Trades      *dataset.Trades
	Predictions *dataset.Predictions
	Fingerprint string
	LoadedAt    time.Time
}

// Config names the files and classifier backend to load
type Config struct {
	Model           ml.Options
	TradesPath      string
	PredictionsPath string
}

// Loader memoizes a single Load. The first result, value or error, is returned
// to every later caller without touching disk again.
type Loader struct {
	cfg     Config
	metrics MetricsInterface

	once sync.Once
	art  *Artifacts
	err  error
}

// NewLoader creates a loader. metrics may be nil.
func NewLoader(cfg Config, metrics MetricsInterface) *Loader {
	return &Loader{cfg: cfg, metrics: metrics}
}

// Load returns the artifacts, reading them on the first call only
func (l *Loader) Load(ctx context.Context) (*Artifacts, error) {
	l.once.Do(func() {
		l.art, l.err = load(ctx, l.cfg)
		if l.err != nil {
			log.Error().Err(l.err).Msg("failed to load artifacts")
			return
		}
		l.report()
	})
	return l.art, l.err
}

// Close releases classifier resources such as the pickle inference script
func (l *Loader) Close() error {
	if l.art == nil {
		return nil
	}
	if c, ok := l.art.Model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ObserveAge updates the model age gauge; the server calls it periodically
func (l *Loader) ObserveAge() {
	if l.art == nil || l.metrics == nil {
		return
	}
	l.metrics.ModelAgeSet(time.Since(l.art.LoadedAt))
}

func (l *Loader) report() {
	log.Info().
		Str("backend", l.art.Backend).
		Str("trades", l.art.Trades.Path).
		Int("trade_rows", len(l.art.Trades.Records)).
		Str("predictions", l.art.Predictions.Path).
		Int("prediction_rows", len(l.art.Predictions.Records)).
		Str("fingerprint", l.art.Fingerprint).
		Msg("artifacts loaded")

	if l.metrics == nil {
		return
	}
	l.metrics.DatasetRowsSet("trades", len(l.art.Trades.Records))
	l.metrics.DatasetRowsSet("predictions", len(l.art.Predictions.Records))
	l.metrics.ModelAgeSet(0)
}

func load(ctx context.Context, cfg Config) (*Artifacts, error) {
	backend := cfg.Model.Backend
	if backend == "" {
		backend = common.BackendPickle
	}

	// Datasets first: they are cheap to validate and a schema error should not
	// wait on an interpreter start
	trades, err := dataset.LoadTrades(cfg.TradesPath)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	predictions, err := dataset.LoadPredictions(cfg.PredictionsPath)
	if err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}

	model, err := ml.Load(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	return &Artifacts{
		Model:       model,
		Backend:     backend,
		Trades:      trades,
		Predictions: predictions,
		Fingerprint: dataset.Fingerprint(trades.Digest, predictions.Digest),
		LoadedAt:    time.Now().UTC(),
	}, nil
}
