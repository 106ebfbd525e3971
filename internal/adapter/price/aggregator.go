package price

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goldnightmare/analysis-api/internal/adapter/cache"
	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/observability"
	"github.com/sony/gobreaker"
)

// Classification outcomes for one provider attempt. Used for logs, metrics
// and the public provider status endpoint.
const (
	outcomeOK          = "ok"
	outcomeBadCreds    = "invalid_credentials"
	outcomeRateLimited = "rate_limited"
	outcomeForbidden   = "forbidden"
	outcomeNotFound    = "not_found"
	outcomeTransport   = "transport"
	outcomeParse       = "parse"
	outcomeInvalid     = "invalid_quote"
	outcomeBreakerOpen = "breaker_open"
)

// ProviderStatus is the last observed state of one upstream provider.
type ProviderStatus struct {
	Name      string    `json:"name"`
	Priority  int       `json:"priority"`
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
}

type providerState struct {
	cfg     config.Provider
	parse   ParseFunc
	breaker *gobreaker.CircuitBreaker
}

// Aggregator fetches the gold spot price from an ordered provider list,
// falling through to the next provider on any failure, then to the stale
// cache, then to the demo quote.
type Aggregator struct {
	providers []providerState
	client    *http.Client
	store     *cache.Store
	prices    domain.PriceRepository
	log       *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	status map[string]ProviderStatus
}

// NewAggregator builds the aggregator. An empty provider list is a
// configuration error: the service would have nothing to ask.
func NewAggregator(providers []config.Provider, timeout, connectTimeout time.Duration, store *cache.Store, prices domain.PriceRepository, log *slog.Logger) (*Aggregator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("op=price.NewAggregator: %w: no providers configured", domain.ErrInvalidArgument)
	}
	sorted := make([]config.Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	states := make([]providerState, 0, len(sorted))
	for _, p := range sorted {
		parse, err := ParserByName(p.Parser)
		if err != nil {
			return nil, fmt.Errorf("op=price.NewAggregator provider=%s: %w", p.Name, err)
		}
		states = append(states, providerState{
			cfg:   p,
			parse: parse,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    "price-" + p.Name,
				Timeout: 60 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
			}),
		})
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
	return &Aggregator{
		providers: states,
		client:    client,
		store:     store,
		prices:    prices,
		log:       log,
		now:       time.Now,
		status:    make(map[string]ProviderStatus),
	}, nil
}

// Current returns the latest gold quote, preferring the fresh cache when
// useCache is set. It never returns an error for "no fresh data": the
// stale-cache and demo fallbacks keep the endpoint answering.
func (a *Aggregator) Current(ctx context.Context, useCache bool) (domain.PriceQuote, error) {
	if useCache {
		if q, ok, err := a.store.GetGoldPrice(ctx); err == nil && ok {
			return q, nil
		}
	}

	for i := range a.providers {
		p := &a.providers[i]
		start := a.now()
		q, outcome := a.tryProvider(ctx, p)
		observability.PriceFetchTotal.WithLabelValues(p.cfg.Name, outcome).Inc()
		observability.PriceFetchDuration.WithLabelValues(p.cfg.Name).Observe(a.now().Sub(start).Seconds())
		a.recordStatus(p.cfg, outcome)
		if outcome != outcomeOK {
			a.log.Warn("price provider failed",
				slog.String("provider", p.cfg.Name),
				slog.String("outcome", outcome))
			continue
		}
		q.Source = p.cfg.Name
		if err := a.store.SetGoldPrice(ctx, q); err != nil {
			a.log.Warn("price cache store failed", slog.Any("error", err))
		}
		if err := a.store.SetLastGoodGoldPrice(ctx, q); err != nil {
			a.log.Warn("price last-good store failed", slog.Any("error", err))
		}
		if a.prices != nil {
			if err := a.prices.Insert(ctx, q); err != nil {
				a.log.Warn("price archive insert failed", slog.Any("error", err))
			}
		}
		return q, nil
	}

	if q, ok, err := a.store.GetLastGoodGoldPrice(ctx); err == nil && ok {
		q.Source = domain.StaleCachePrefix + q.Source
		a.log.Warn("all price providers failed, serving stale cache",
			slog.String("source", q.Source))
		return q, nil
	}

	a.log.Warn("all price providers failed, serving demo quote")
	return DemoQuote(a.now()), nil
}

// tryProvider performs one guarded fetch and returns the quote plus the
// classification outcome.
func (a *Aggregator) tryProvider(ctx context.Context, p *providerState) (domain.PriceQuote, string) {
	res, err := p.breaker.Execute(func() (any, error) {
		return a.fetch(ctx, p)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.PriceQuote{}, outcomeBreakerOpen
		}
		if fe, ok := err.(*fetchError); ok {
			return domain.PriceQuote{}, fe.outcome
		}
		return domain.PriceQuote{}, outcomeTransport
	}
	return res.(domain.PriceQuote), outcomeOK
}

// fetchError carries the classification of a failed attempt through the
// breaker boundary.
type fetchError struct {
	outcome string
	err     error
}

func (e *fetchError) Error() string { return e.outcome + ": " + e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func (a *Aggregator) fetch(ctx context.Context, p *providerState) (domain.PriceQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return domain.PriceQuote{}, &fetchError{outcome: outcomeTransport, err: err}
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return domain.PriceQuote{}, &fetchError{outcome: outcomeTransport, err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return domain.PriceQuote{}, &fetchError{outcome: outcomeBadCreds, err: domain.ErrUpstreamUnavailable}
	case http.StatusTooManyRequests:
		return domain.PriceQuote{}, &fetchError{outcome: outcomeRateLimited, err: domain.ErrUpstreamUnavailable}
	case http.StatusForbidden:
		return domain.PriceQuote{}, &fetchError{outcome: outcomeForbidden, err: domain.ErrUpstreamUnavailable}
	case http.StatusNotFound:
		return domain.PriceQuote{}, &fetchError{outcome: outcomeNotFound, err: domain.ErrUpstreamUnavailable}
	default:
		return domain.PriceQuote{}, &fetchError{outcome: outcomeTransport, err: fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PriceQuote{}, &fetchError{outcome: outcomeTransport, err: err}
	}
	q, err := p.parse(body, a.now())
	if err != nil {
		return domain.PriceQuote{}, &fetchError{outcome: outcomeParse, err: err}
	}
	if err := ValidateGold(q); err != nil {
		return domain.PriceQuote{}, &fetchError{outcome: outcomeInvalid, err: err}
	}
	return q, nil
}

func (a *Aggregator) recordStatus(p config.Provider, outcome string) {
	a.mu.Lock()
	a.status[p.Name] = ProviderStatus{
		Name:      p.Name,
		Priority:  p.Priority,
		Healthy:   outcome == outcomeOK,
		Detail:    outcome,
		CheckedAt: a.now().UTC(),
	}
	a.mu.Unlock()
}

// Status lists the last observed state of every configured provider in
// priority order. Providers not yet tried report an empty detail.
func (a *Aggregator) Status() []ProviderStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ProviderStatus, 0, len(a.providers))
	for _, p := range a.providers {
		if s, ok := a.status[p.cfg.Name]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, ProviderStatus{Name: p.cfg.Name, Priority: p.cfg.Priority, Detail: "not_checked"})
	}
	return out
}

var _ domain.PriceSource = (*Aggregator)(nil)
