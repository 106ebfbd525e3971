package price_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goldnightmare/analysis-api/internal/adapter/price"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForexQuoteFetchAndCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/EURUSD=X", r.URL.Path)
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":1.0911,"chartPreviousClose":1.0850,"regularMarketDayHigh":1.0950,"regularMarketDayLow":1.0820}}]}}`))
	}))
	defer srv.Close()

	f := price.NewForexSource(srv.Client(), newTestStore(t), discardLogger(), srv.URL)

	q, err := f.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", q.Pair)
	assert.Equal(t, 1.0911, q.Price)
	assert.InDelta(t, 1.0911-1.0850, q.Change, 1e-9)
	assert.Equal(t, "forex-chart", q.Source)

	// Second call inside the TTL is served from cache.
	q2, err := f.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, q.Price, q2.Price)
	assert.Equal(t, 1, calls)
}

func TestForexQuoteDemoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := price.NewForexSource(srv.Client(), newTestStore(t), discardLogger(), srv.URL)

	q, err := f.Quote(context.Background(), "USDJPY")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDemo, q.Source)
	assert.Equal(t, 149.85, q.Price)
}

func TestForexQuoteUnknownPair(t *testing.T) {
	f := price.NewForexSource(nil, newTestStore(t), discardLogger(), "http://127.0.0.1:1")
	_, err := f.Quote(context.Background(), "XXXYYY")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSupportedPairsCatalog(t *testing.T) {
	require.Len(t, price.SupportedPairs, 7)
	p, ok := price.PairBySymbol("GBPUSD")
	require.True(t, ok)
	assert.Equal(t, "الباوند دولار", p.ArabicName)
}
