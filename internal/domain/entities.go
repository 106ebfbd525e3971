// Package domain holds the core entities, enums and ports of the gold
// analysis service. It has no dependencies on adapters.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrInactiveAccount     = errors.New("account not active")
	ErrQuotaExhausted      = errors.New("daily quota exhausted")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamSemantic    = errors.New("upstream returned unusable data")
	ErrStoreFailure        = errors.New("store failure")
	ErrInternal            = errors.New("internal error")
)

// Tier is a subscription class determining the daily analysis quota.
type Tier string

// Subscription tiers.
const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// UnlimitedQuota is the sentinel daily limit for tiers without a ceiling.
const UnlimitedQuota = -1

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierVIP:
		return true
	}
	return false
}

// DailyLimit returns the tier's daily analysis limit (-1 means unlimited).
func (t Tier) DailyLimit() int {
	switch t {
	case TierPremium:
		return 5
	case TierVIP:
		return UnlimitedQuota
	default:
		return 1
	}
}

// Features returns the feature set of the tier.
func (t Tier) Features() map[string]any {
	switch t {
	case TierPremium:
		return map[string]any{"daily_analyses": 5, "save_history": true, "priority_support": false}
	case TierVIP:
		return map[string]any{"daily_analyses": UnlimitedQuota, "save_history": true, "priority_support": true}
	default:
		return map[string]any{"daily_analyses": 1, "save_history": false, "priority_support": false}
	}
}

// Status is the account activation state.
type Status string

// Account statuses.
const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusBlocked   Status = "blocked"
	StatusSuspended Status = "suspended"
)

// Kind selects a prompt template for analysis generation.
type Kind string

// Analysis kinds.
const (
	KindQuick    Kind = "quick"
	KindDetailed Kind = "detailed"
	KindChart    Kind = "chart"
	KindNews     Kind = "news"
	KindForecast Kind = "forecast"
)

// Kinds lists all analysis kinds in catalog order.
func Kinds() []Kind {
	return []Kind{KindQuick, KindDetailed, KindChart, KindNews, KindForecast}
}

// Valid reports whether k is a known analysis kind.
func (k Kind) Valid() bool {
	switch k {
	case KindQuick, KindDetailed, KindChart, KindNews, KindForecast:
		return true
	}
	return false
}

// User is the persisted account record.
// Invariants: Email is unique and lowercase; PasswordHash is "salt:hexdigest";
// a DailyDate different from today means the daily counter is stale and reads
// as zero.
type User struct {
	ID            string     `bson:"id" json:"id"`
	UserID        int64      `bson:"user_id" json:"user_id"`
	Email         string     `bson:"email" json:"email"`
	PasswordHash  string     `bson:"password_hash" json:"-"`
	Username      string     `bson:"username,omitempty" json:"username,omitempty"`
	FirstName     string     `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName      string     `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Tier          Tier       `bson:"tier" json:"tier"`
	Status        Status     `bson:"status" json:"status"`
	EmailVerified bool       `bson:"is_email_verified" json:"is_email_verified"`
	SubStart      *time.Time `bson:"subscription_start_date,omitempty" json:"subscription_start_date,omitempty"`
	SubEnd        *time.Time `bson:"subscription_end_date,omitempty" json:"subscription_end_date,omitempty"`
	TotalAnalyses int64      `bson:"total_analyses" json:"total_analyses"`
	DailyCount    int        `bson:"daily_analyses_count" json:"daily_analyses_count"`
	DailyDate     string     `bson:"daily_analyses_date,omitempty" json:"daily_analyses_date,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
	LastSeen      *time.Time `bson:"last_seen,omitempty" json:"last_seen,omitempty"`
	ActivatedAt   *time.Time `bson:"activated_at,omitempty" json:"activated_at,omitempty"`
}

// IsActive reports whether gated operations are allowed for the account.
func (u User) IsActive() bool { return u.Status == StatusActive }

// RemainingToday returns the analyses left for the given calendar day
// (yyyy-mm-dd). A stale DailyDate counts as a fresh day. Unlimited tiers
// return UnlimitedQuota.
func (u User) RemainingToday(today string) int {
	limit := u.Tier.DailyLimit()
	if limit == UnlimitedQuota {
		return UnlimitedQuota
	}
	if u.DailyDate != today {
		return limit
	}
	remaining := limit - u.DailyCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanAnalyze reports whether the user has quota left on the given day.
func (u User) CanAnalyze(today string) bool { return u.RemainingToday(today) != 0 }

// PriceQuote is a single observation of the spot price from one source.
type PriceQuote struct {
	Pair      string    `bson:"pair,omitempty" json:"pair,omitempty"`
	Price     float64   `bson:"price_usd" json:"price_usd"`
	Change    float64   `bson:"price_change" json:"price_change"`
	ChangePct float64   `bson:"price_change_pct" json:"price_change_pct"`
	Ask       float64   `bson:"ask" json:"ask"`
	Bid       float64   `bson:"bid" json:"bid"`
	High24h   float64   `bson:"high_24h" json:"high_24h"`
	Low24h    float64   `bson:"low_24h" json:"low_24h"`
	Source    string    `bson:"source" json:"source"`
	Currency  string    `bson:"currency" json:"currency"`
	Unit      string    `bson:"unit" json:"unit"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Source markers for quotes that did not come from a fresh provider call.
const (
	SourceDemo       = "demo_data"
	StaleCachePrefix = "stale-cache:"
)

// IsFallback reports whether the quote carries one of the reserved fallback
// source markers instead of a fresh provider name.
func (q PriceQuote) IsFallback() bool {
	return q.Source == SourceDemo || strings.HasPrefix(q.Source, StaleCachePrefix)
}

// ArabicText renders the quote as the Arabic market block shown to users.
func (q PriceQuote) ArabicText() string {
	changeEmoji, changeColor := "➡️", "🟡"
	switch {
	case q.Change > 0:
		changeEmoji, changeColor = "📈", "🟢"
	case q.Change < 0:
		changeEmoji, changeColor = "📉", "🔴"
	}
	return strings.TrimSpace(fmt.Sprintf(`
🏆 **سعر الذهب الحالي**
━━━━━━━━━━━━━━━━━━━━

💰 السعر: **$%.2f** لكل أونصة
%s التغيير: **%+.2f** (%+.2f%%) %s

📊 **تفاصيل السوق:**
• السعر العالي: $%.2f (24س)
• السعر المنخفض: $%.2f (24س)
• سعر الطلب: $%.2f
• سعر البيع: $%.2f

⏰ آخر تحديث: %s UTC
📡 المصدر: %s
`,
		q.Price,
		changeEmoji, q.Change, q.ChangePct, changeColor,
		q.High24h, q.Low24h,
		q.Ask, q.Bid,
		q.Timestamp.UTC().Format("2006-01-02 15:04"),
		strings.ToUpper(q.Source)))
}

// Analysis is a generated market analysis, cached by fingerprint.
type Analysis struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Kind         Kind      `json:"analysis_type"`
	Content      string    `json:"content"`
	GoldPrice    *float64  `json:"gold_price,omitempty"`
	PriceChange  *float64  `json:"price_change,omitempty"`
	ModelUsed    string    `json:"model_used"`
	Language     string    `json:"language"`
	TokensUsed   *int      `json:"tokens_used,omitempty"`
	ProcessingMS int64     `json:"processing_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnalysisLog is the append-only audit record of one analysis attempt.
type AnalysisLog struct {
	ID           string    `bson:"id" json:"id"`
	UserID       int64     `bson:"user_id" json:"user_id"`
	Kind         Kind      `bson:"analysis_type" json:"analysis_type"`
	Success      bool      `bson:"success" json:"success"`
	ProcessingMS int64     `bson:"processing_ms" json:"processing_ms"`
	ErrorMessage string    `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UserTier     Tier      `bson:"user_tier" json:"user_tier"`
	PriceAtReq   *float64  `bson:"gold_price_at_request,omitempty" json:"gold_price_at_request,omitempty"`
	TokensUsed   *int      `bson:"tokens_used,omitempty" json:"tokens_used,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// DailySummary is the per-user per-day usage roll-up, keyed by (user_id, date).
type DailySummary struct {
	ID         string  `bson:"id" json:"id"`
	UserID     int64   `bson:"user_id" json:"user_id"`
	Date       string  `bson:"date" json:"date"` // yyyy-mm-dd
	Total      int64   `bson:"total_requests" json:"total_requests"`
	Successful int64   `bson:"successful_analyses" json:"successful_analyses"`
	Failed     int64   `bson:"failed_analyses" json:"failed_analyses"`
	AvgMS      float64 `bson:"avg_response_ms" json:"avg_response_ms"`
	Quick      int64   `bson:"quick_analyses" json:"quick_analyses"`
	Detailed   int64   `bson:"detailed_analyses" json:"detailed_analyses"`
	Chart      int64   `bson:"chart_analyses" json:"chart_analyses"`
	News       int64   `bson:"news_analyses" json:"news_analyses"`
	Forecast   int64   `bson:"forecast_analyses" json:"forecast_analyses"`
}

// Observe folds one attempt into the roll-up, keeping AvgMS a running mean.
func (s *DailySummary) Observe(kind Kind, success bool, processingMS int64) {
	s.Total++
	if success {
		s.Successful++
	} else {
		s.Failed++
	}
	switch kind {
	case KindQuick:
		s.Quick++
	case KindDetailed:
		s.Detailed++
	case KindChart:
		s.Chart++
	case KindNews:
		s.News++
	case KindForecast:
		s.Forecast++
	}
	s.AvgMS += (float64(processingMS) - s.AvgMS) / float64(s.Total)
}

// KindCount returns the per-kind counter of the roll-up.
func (s DailySummary) KindCount(k Kind) int64 {
	switch k {
	case KindQuick:
		return s.Quick
	case KindDetailed:
		return s.Detailed
	case KindChart:
		return s.Chart
	case KindNews:
		return s.News
	case KindForecast:
		return s.Forecast
	}
	return 0
}

// AdminUser is an operator account for the admin panel.
type AdminUser struct {
	ID           string     `bson:"id" json:"id"`
	AdminID      string     `bson:"admin_id" json:"admin_id"`
	Username     string     `bson:"username" json:"username"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	Email        string     `bson:"email,omitempty" json:"email,omitempty"`
	CanManage    bool       `bson:"can_manage_users" json:"can_manage_users"`
	CanViewStats bool       `bson:"can_view_analytics" json:"can_view_analytics"`
	IsSuperAdmin bool       `bson:"is_super_admin" json:"is_super_admin"`
	LastLogin    *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
}

// Context is an alias so ports read cleanly without importing std context in
// every signature.
type Context = context.Context
