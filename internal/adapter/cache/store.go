package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/observability"
)

// Reserved key prefixes. Analysis keys embed the request fingerprint so two
// identical requests share one cached result.
const (
	KeyGoldPriceLatest   = "gold_price:latest"
	KeyGoldPriceLastGood = "gold_price:last_good"
	keyForexPrefix       = "forex_price:"
	keyAnalysisPrefix    = "analysis:"
)

// lastGoodTTL bounds how old a quote may be and still serve as the
// stale-cache fallback when every provider is down.
const lastGoodTTL = 24 * time.Hour

// ForexKey returns the cache key for one currency pair quote.
func ForexKey(pair string) string { return keyForexPrefix + pair }

// AnalysisKey returns the cache key for a user's analysis of one kind and
// context fingerprint.
func AnalysisKey(userID int64, kind domain.Kind, fingerprint string) string {
	return fmt.Sprintf("%s%d:%s:%s", keyAnalysisPrefix, userID, kind, fingerprint)
}

// Store layers typed accessors and TTL policy over the raw key-value cache.
type Store struct {
	cache       domain.Cache
	priceTTL    time.Duration
	analysisTTL time.Duration
}

// NewStore builds the typed cache facade.
func NewStore(c domain.Cache, priceTTL, analysisTTL time.Duration) *Store {
	return &Store{cache: c, priceTTL: priceTTL, analysisTTL: analysisTTL}
}

// Raw exposes the underlying key-value store.
func (s *Store) Raw() domain.Cache { return s.cache }

// GetGoldPrice returns the cached latest spot quote, if any.
func (s *Store) GetGoldPrice(ctx context.Context) (domain.PriceQuote, bool, error) {
	return s.getQuote(ctx, KeyGoldPriceLatest, "gold_price")
}

// SetGoldPrice caches the latest spot quote under the shared key.
func (s *Store) SetGoldPrice(ctx context.Context, q domain.PriceQuote) error {
	return s.setJSON(ctx, KeyGoldPriceLatest, q, s.priceTTL)
}

// GetLastGoodGoldPrice returns the most recent valid quote regardless of the
// fresh-cache TTL. It backs the stale-cache fallback path.
func (s *Store) GetLastGoodGoldPrice(ctx context.Context) (domain.PriceQuote, bool, error) {
	return s.getQuote(ctx, KeyGoldPriceLastGood, "gold_price_stale")
}

// SetLastGoodGoldPrice records a valid quote for the stale-cache fallback.
func (s *Store) SetLastGoodGoldPrice(ctx context.Context, q domain.PriceQuote) error {
	return s.setJSON(ctx, KeyGoldPriceLastGood, q, lastGoodTTL)
}

// GetForexPrice returns the cached quote for one pair, if any.
func (s *Store) GetForexPrice(ctx context.Context, pair string) (domain.PriceQuote, bool, error) {
	return s.getQuote(ctx, ForexKey(pair), "forex_price")
}

// SetForexPrice caches a pair quote for ttl.
func (s *Store) SetForexPrice(ctx context.Context, pair string, q domain.PriceQuote, ttl time.Duration) error {
	return s.setJSON(ctx, ForexKey(pair), q, ttl)
}

// GetAnalysis returns the cached analysis for (user, kind, fingerprint).
func (s *Store) GetAnalysis(ctx context.Context, userID int64, kind domain.Kind, fingerprint string) (domain.Analysis, bool, error) {
	var a domain.Analysis
	raw, ok, err := s.cache.Get(ctx, AnalysisKey(userID, kind, fingerprint))
	if err != nil {
		return a, false, err
	}
	if !ok {
		observability.CacheOpsTotal.WithLabelValues("analysis", "miss").Inc()
		return a, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return a, false, fmt.Errorf("op=cache.GetAnalysis: %w", err)
	}
	observability.CacheOpsTotal.WithLabelValues("analysis", "hit").Inc()
	return a, true, nil
}

// SetAnalysis caches a generated analysis under its fingerprint key.
func (s *Store) SetAnalysis(ctx context.Context, fingerprint string, a domain.Analysis) error {
	return s.setJSON(ctx, AnalysisKey(a.UserID, a.Kind, fingerprint), a, s.analysisTTL)
}

func (s *Store) getQuote(ctx context.Context, key, metric string) (domain.PriceQuote, bool, error) {
	var q domain.PriceQuote
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return q, false, err
	}
	if !ok {
		observability.CacheOpsTotal.WithLabelValues(metric, "miss").Inc()
		return q, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return q, false, fmt.Errorf("op=cache.getQuote key=%s: %w", key, err)
	}
	observability.CacheOpsTotal.WithLabelValues(metric, "hit").Inc()
	return q, true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("op=cache.setJSON key=%s: %w", key, err)
	}
	return s.cache.Set(ctx, key, string(raw), ttl)
}
