package dashboard

import (
	"errors"
	"testing"

	"trader-insights/internal/analytics"
	"trader-insights/internal/metrics"
	"trader-insights/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) GetSummary(string) (analytics.Summary, bool, error) {
	return analytics.Summary{}, false, errors.New("disk on fire")
}

func (failingStore) PutSummary(string, analytics.Summary) error { return errors.New("disk on fire") }

func (failingStore) PruneExcept(string) (int, error) { return 0, nil }

func TestSummaryService_Memoizes(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := NewSummaryService(nil, metrics.NewWrapper(m))
	art := testArtifacts(&fixedClassifier{})

	first, err := svc.Get(art)
	require.NoError(t, err)
	second, err := svc.Get(art)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryComputations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryCacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryCacheHits))
}

func TestSummaryService_PersistentCache(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	art := testArtifacts(&fixedClassifier{})

	warm := NewSummaryService(store, nil)
	want, err := warm.Get(art)
	require.NoError(t, err)

	// A fresh service, as after a restart, reads the stored summary
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cold := NewSummaryService(store, metrics.NewWrapper(m))
	got, err := cold.Get(art)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SummaryComputations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryCacheHits))
}

func TestSummaryService_StaleEntriesPruned(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutSummary("old-fingerprint", analytics.Summary{TradeRecords: 99}))

	_, err = NewSummaryService(store, nil).Get(testArtifacts(&fixedClassifier{}))
	require.NoError(t, err)

	_, ok, err := store.GetSummary("old-fingerprint")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummaryService_StoreFailureFallsBack(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := NewSummaryService(failingStore{}, metrics.NewWrapper(m))

	summary, err := svc.Get(testArtifacts(&fixedClassifier{}))
	require.NoError(t, err)
	assert.Equal(t, "50.00%", summary.WinRate.Text)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal), "failed read and write should both be counted")
}

func TestSummaryService_EmptyDataset(t *testing.T) {
	art := testArtifacts(&fixedClassifier{})
	art.Trades.Records = nil

	_, err := NewSummaryService(nil, nil).Get(art)
	assert.ErrorIs(t, err, analytics.ErrEmptyDataset)
}
