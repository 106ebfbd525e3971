package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goldnightmare/analysis-api/internal/adapter/cache"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/observability"
)

// forexCacheTTL is deliberately shorter than the gold TTL: pair quotes move
// faster and are cheap to refetch.
const forexCacheTTL = 5 * time.Minute

// ForexSource serves quotes for the supported currency pairs from a public
// chart endpoint, with a per-pair cache and a demo fallback per pair.
type ForexSource struct {
	client  *http.Client
	store   *cache.Store
	log     *slog.Logger
	now     func() time.Time
	baseURL string
}

// NewForexSource builds the pair quote source. baseURL is overridable for
// tests; empty selects the public endpoint.
func NewForexSource(client *http.Client, store *cache.Store, log *slog.Logger, baseURL string) *ForexSource {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ForexSource{client: client, store: store, log: log, now: time.Now, baseURL: baseURL}
}

// Quote returns the current quote for one supported pair. Unknown symbols
// yield ErrNotFound; upstream failures fall back to the demo table so the
// endpoint always answers for supported pairs.
func (f *ForexSource) Quote(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	pair, ok := PairBySymbol(symbol)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.Quote: %w: unsupported pair %q", domain.ErrNotFound, symbol)
	}

	if q, ok, err := f.store.GetForexPrice(ctx, symbol); err == nil && ok {
		return q, nil
	}

	q, err := f.fetch(ctx, pair)
	if err != nil {
		observability.PriceFetchTotal.WithLabelValues("forex-chart", outcomeTransport).Inc()
		f.log.Warn("forex fetch failed, serving demo quote",
			slog.String("pair", symbol), slog.Any("error", err))
		return f.demo(pair), nil
	}
	observability.PriceFetchTotal.WithLabelValues("forex-chart", outcomeOK).Inc()
	if err := f.store.SetForexPrice(ctx, symbol, q, forexCacheTTL); err != nil {
		f.log.Warn("forex cache store failed", slog.Any("error", err))
	}
	return q, nil
}

func (f *ForexSource) fetch(ctx context.Context, pair Pair) (domain.PriceQuote, error) {
	url := fmt.Sprintf("%s/%s=X", f.baseURL, pair.Symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.fetch: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.fetch: %w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.fetch: %w", err)
	}
	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Price     *float64 `json:"regularMarketPrice"`
					PrevClose *float64 `json:"chartPreviousClose"`
					High      *float64 `json:"regularMarketDayHigh"`
					Low       *float64 `json:"regularMarketDayLow"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.fetch: %w", err)
	}
	if len(raw.Chart.Result) == 0 || raw.Chart.Result[0].Meta.Price == nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ForexSource.fetch: %w: empty chart result", domain.ErrUpstreamSemantic)
	}
	m := raw.Chart.Result[0].Meta
	q := domain.PriceQuote{
		Pair:      pair.Symbol,
		Price:     *m.Price,
		Source:    "forex-chart",
		Currency:  "USD",
		Unit:      "rate",
		Timestamp: f.now().UTC(),
	}
	if m.PrevClose != nil && *m.PrevClose != 0 {
		q.Change = *m.Price - *m.PrevClose
		q.ChangePct = q.Change / *m.PrevClose * 100
	}
	if m.High != nil {
		q.High24h = *m.High
	}
	if m.Low != nil {
		q.Low24h = *m.Low
	}
	return q, nil
}

func (f *ForexSource) demo(pair Pair) domain.PriceQuote {
	return domain.PriceQuote{
		Pair:      pair.Symbol,
		Price:     pair.DemoPrice,
		Source:    domain.SourceDemo,
		Currency:  "USD",
		Unit:      "rate",
		Timestamp: f.now().UTC(),
	}
}
