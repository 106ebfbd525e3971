// Package price implements the multi-provider spot price aggregator and the
// currency pair source.
package price

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

// ParseFunc converts one provider's JSON body into a quote. Parsers return
// errors instead of panicking; the aggregator's fallback loop treats any
// parse error as "try next provider".
type ParseFunc func(body []byte, now time.Time) (domain.PriceQuote, error)

// ParserByName resolves the parser named in the provider table.
func ParserByName(name string) (ParseFunc, error) {
	switch name {
	case "spot":
		return ParseSpot, nil
	case "rates":
		return ParseRates, nil
	case "quotelist":
		return ParseQuoteList, nil
	}
	return nil, fmt.Errorf("op=price.ParserByName: %w: unknown parser %q", domain.ErrInvalidArgument, name)
}

// ParseSpot handles the flat shape {price, ch?, chp?, ask?, bid?,
// high_price?, low_price?}. Missing change fields default to neutral;
// missing ask/bid and high/low are derived from the price by the ±$2 and
// ±$15 heuristics.
func ParseSpot(body []byte, now time.Time) (domain.PriceQuote, error) {
	var raw struct {
		Price     *float64 `json:"price"`
		Change    *float64 `json:"ch"`
		ChangePct *float64 `json:"chp"`
		Ask       *float64 `json:"ask"`
		Bid       *float64 `json:"bid"`
		High      *float64 `json:"high_price"`
		Low       *float64 `json:"low_price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseSpot: %w", err)
	}
	if raw.Price == nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseSpot: %w: missing price", domain.ErrUpstreamSemantic)
	}
	q := newQuote(*raw.Price, now)
	if raw.Change != nil {
		q.Change = *raw.Change
	}
	if raw.ChangePct != nil {
		q.ChangePct = *raw.ChangePct
	}
	if raw.Ask != nil {
		q.Ask = *raw.Ask
	}
	if raw.Bid != nil {
		q.Bid = *raw.Bid
	}
	if raw.High != nil {
		q.High24h = *raw.High
	}
	if raw.Low != nil {
		q.Low24h = *raw.Low
	}
	return q, nil
}

// ParseRates handles the inverted shape {success: true, rates: {XAU: x}}
// where x is ounces per USD; the price is 1/x.
func ParseRates(body []byte, now time.Time) (domain.PriceQuote, error) {
	var raw struct {
		Success bool               `json:"success"`
		Rates   map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseRates: %w", err)
	}
	if !raw.Success {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseRates: %w: success=false", domain.ErrUpstreamSemantic)
	}
	x, ok := raw.Rates["XAU"]
	if !ok || x == 0 {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseRates: %w: missing XAU rate", domain.ErrUpstreamSemantic)
	}
	return newQuote(1/x, now), nil
}

// ParseQuoteList handles the vendor list shape
// {quoteResponse: {result: [{regularMarketPrice, regularMarketPreviousClose, ...}]}}.
func ParseQuoteList(body []byte, now time.Time) (domain.PriceQuote, error) {
	var raw struct {
		QuoteResponse struct {
			Result []struct {
				Price     *float64 `json:"regularMarketPrice"`
				PrevClose *float64 `json:"regularMarketPreviousClose"`
				High      *float64 `json:"regularMarketDayHigh"`
				Low       *float64 `json:"regularMarketDayLow"`
				Ask       *float64 `json:"ask"`
				Bid       *float64 `json:"bid"`
			} `json:"result"`
		} `json:"quoteResponse"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseQuoteList: %w", err)
	}
	if len(raw.QuoteResponse.Result) == 0 || raw.QuoteResponse.Result[0].Price == nil {
		return domain.PriceQuote{}, fmt.Errorf("op=price.ParseQuoteList: %w: empty result", domain.ErrUpstreamSemantic)
	}
	r := raw.QuoteResponse.Result[0]
	q := newQuote(*r.Price, now)
	if r.PrevClose != nil && *r.PrevClose != 0 {
		q.Change = *r.Price - *r.PrevClose
		q.ChangePct = q.Change / *r.PrevClose * 100
	}
	if r.Ask != nil {
		q.Ask = *r.Ask
	}
	if r.Bid != nil {
		q.Bid = *r.Bid
	}
	if r.High != nil {
		q.High24h = *r.High
	}
	if r.Low != nil {
		q.Low24h = *r.Low
	}
	return q, nil
}

// newQuote fills the derived fields with the ±$2 ask/bid and ±$15 high/low
// heuristics. Providers that report the real values overwrite them.
func newQuote(price float64, now time.Time) domain.PriceQuote {
	return domain.PriceQuote{
		Price:     price,
		Ask:       price + 2,
		Bid:       price - 2,
		High24h:   price + 15,
		Low24h:    price - 15,
		Currency:  "USD",
		Unit:      "ounce",
		Timestamp: now.UTC(),
	}
}

// ValidateGold checks the hard range invariant for gold quotes: a finite
// price inside [1000, 5000].
func ValidateGold(q domain.PriceQuote) error {
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return fmt.Errorf("op=price.ValidateGold: %w: non-finite price", domain.ErrUpstreamSemantic)
	}
	if q.Price < 1000 || q.Price > 5000 {
		return fmt.Errorf("op=price.ValidateGold: %w: price %.2f outside [1000, 5000]", domain.ErrUpstreamSemantic, q.Price)
	}
	return nil
}
