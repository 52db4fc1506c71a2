package dashboard

import (
	"fmt"
	"sync"
	"time"

	"trader-insights/internal/analytics"
	"trader-insights/internal/artifacts"
	"trader-insights/internal/metrics"

	"github.com/rs/zerolog/log"
)

// SummaryStore is a persistent summary cache keyed by dataset fingerprint
type SummaryStore interface {
	GetSummary(fingerprint string) (analytics.Summary, bool, error)
	PutSummary(fingerprint string, summary analytics.Summary) error
	PruneExcept(fingerprint string) (int, error)
}

// SummaryService computes the dashboard summary at most once per fingerprint.
// With a store configured the result also survives restarts.
type SummaryService struct {
	store   SummaryStore
	metrics *metrics.MetricsWrapper

	mu   sync.Mutex
	memo map[string]analytics.Summary
}

// NewSummaryService creates a summary service. store and m may be nil.
func NewSummaryService(store SummaryStore, m *metrics.MetricsWrapper) *SummaryService {
	if m == nil {
		m = metrics.NewWrapper(nil)
	}
	return &SummaryService{
		store:   store,
		metrics: m,
		memo:    make(map[string]analytics.Summary),
	}
}

// Get returns the summary of art's datasets
func (s *SummaryService) Get(art *artifacts.Artifacts) (analytics.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := art.Fingerprint
	if summary, ok := s.memo[fp]; ok {
		s.metrics.SummaryCacheHitInc()
		return summary, nil
	}

	if s.store != nil {
		summary, ok, err := s.store.GetSummary(fp)
		if err != nil {
			s.metrics.ErrorsTotal().Inc()
			log.Warn().Err(err).Str("fingerprint", fp).Msg("summary cache read failed, recomputing")
		} else if ok {
			s.metrics.SummaryCacheHitInc()
			s.memo[fp] = summary
			log.Debug().Str("fingerprint", fp).Msg("summary served from cache")
			return summary, nil
		}
	}
	s.metrics.SummaryCacheMissInc()

	start := time.Now()
	summary, err := analytics.Build(art.Trades.Records, art.Predictions.Records)
	if err != nil {
		return analytics.Summary{}, fmt.Errorf("build dashboard summary: %w", err)
	}
	s.metrics.SummaryComputed(time.Since(start))
	s.memo[fp] = summary

	log.Info().
		Str("fingerprint", fp).
		Int("trades", summary.TradeRecords).
		Int("predictions", summary.PredictionRecords).
		Dur("took", time.Since(start)).
		Msg("dashboard summary computed")

	if s.store != nil {
		if err := s.store.PutSummary(fp, summary); err != nil {
			s.metrics.ErrorsTotal().Inc()
			log.Warn().Err(err).Str("fingerprint", fp).Msg("failed to cache summary")
		} else if n, err := s.store.PruneExcept(fp); err != nil {
			s.metrics.ErrorsTotal().Inc()
			log.Warn().Err(err).Msg("failed to prune stale summaries")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("pruned stale summaries")
		}
	}

	return summary, nil
}
