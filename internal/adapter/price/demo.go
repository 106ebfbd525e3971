package price

import (
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

// DemoQuote is the placeholder returned when no provider answers and no
// cached quote exists. Its source marker tells clients there is no fresh
// market data behind the numbers.
func DemoQuote(now time.Time) domain.PriceQuote {
	return domain.PriceQuote{
		Price:     3310.06,
		Change:    15.52,
		ChangePct: 0.47,
		Ask:       3312.00,
		Bid:       3308.12,
		High24h:   3325.89,
		Low24h:    3298.43,
		Source:    domain.SourceDemo,
		Currency:  "USD",
		Unit:      "ounce",
		Timestamp: now.UTC(),
	}
}

// Pair describes one supported currency pair.
type Pair struct {
	Symbol     string `json:"symbol"`
	ArabicName string `json:"name_ar"`
	DemoPrice  float64
}

// SupportedPairs is the fixed catalog of currency pairs, in display order.
var SupportedPairs = []Pair{
	{Symbol: "EURUSD", ArabicName: "اليورو دولار", DemoPrice: 1.0856},
	{Symbol: "GBPUSD", ArabicName: "الباوند دولار", DemoPrice: 1.2734},
	{Symbol: "USDJPY", ArabicName: "الدولار ين", DemoPrice: 149.85},
	{Symbol: "USDCHF", ArabicName: "الدولار فرنك", DemoPrice: 0.8912},
	{Symbol: "AUDUSD", ArabicName: "الأسترالي دولار", DemoPrice: 0.6587},
	{Symbol: "USDCAD", ArabicName: "الدولار كندي", DemoPrice: 1.3642},
	{Symbol: "NZDUSD", ArabicName: "النيوزلندي دولار", DemoPrice: 0.6123},
}

// PairBySymbol returns the catalog entry for symbol, if supported.
func PairBySymbol(symbol string) (Pair, bool) {
	for _, p := range SupportedPairs {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Pair{}, false
}
