package domain

import "time"

// Clock abstracts wall-clock time so quota rollover is testable.
type Clock interface {
	Now() time.Time
}

// DateOf formats t as the yyyy-mm-dd calendar day in UTC.
func DateOf(t time.Time) string { return t.UTC().Format("2006-01-02") }

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx Context, u User) error
	GetByID(ctx Context, userID int64) (User, error)
	GetByEmail(ctx Context, email string) (User, error)
	Update(ctx Context, u User) error
	SetLastSeen(ctx Context, userID int64, at time.Time) error
	// ConsumeDailyQuota performs the conditional read-modify-write that makes
	// the per-user quota decrement linearisable: it succeeds only if, at write
	// time, the user's counter for today is still below limit (limit
	// UnlimitedQuota never blocks). It also bumps total_analyses.
	ConsumeDailyQuota(ctx Context, userID int64, today string, limit int) (bool, error)
	NextUserID(ctx Context) (int64, error)
	List(ctx Context, page, perPage int64) ([]User, int64, error)
	CountByFilter(ctx Context, filter map[string]any) (int64, error)
}

// AnalysisLogRepository appends and queries audit records.
type AnalysisLogRepository interface {
	Insert(ctx Context, l AnalysisLog) error
	ListByUser(ctx Context, userID int64, since time.Time, limit int64) ([]AnalysisLog, error)
	List(ctx Context, page, perPage int64, userID *int64) ([]AnalysisLog, int64, error)
	CountSince(ctx Context, since time.Time, until *time.Time) (int64, error)
	ListSince(ctx Context, since time.Time) ([]AnalysisLog, error)
	Recent(ctx Context, limit int64) ([]AnalysisLog, error)
}

// DailySummaryRepository upserts and queries per-day roll-ups.
type DailySummaryRepository interface {
	Get(ctx Context, userID int64, date string) (DailySummary, error)
	Upsert(ctx Context, s DailySummary) error
	ListByUser(ctx Context, userID int64, fromDate string, limit int64) ([]DailySummary, error)
}

// AdminUserRepository persists operator accounts.
type AdminUserRepository interface {
	GetByUsername(ctx Context, username string) (AdminUser, error)
	Upsert(ctx Context, a AdminUser) error
	SetLastLogin(ctx Context, adminID string, at time.Time) error
}

// PriceRepository opportunistically archives observed quotes.
type PriceRepository interface {
	Insert(ctx Context, q PriceQuote) error
}

// PriceSource yields the current spot quote, preferring cache when asked.
type PriceSource interface {
	Current(ctx Context, useCache bool) (PriceQuote, error)
}

// ForexSource yields the current quote for one supported currency pair.
type ForexSource interface {
	Quote(ctx Context, symbol string) (PriceQuote, error)
}

// LLMRequest is the provider-agnostic completion request shape.
type LLMRequest struct {
	SystemMessage string
	UserMessage   string
	MaxTokens     int
	Temperature   float64
	SessionID     string
}

// LLMResponse carries the generated content and optional usage accounting.
type LLMResponse struct {
	Content    string
	ModelUsed  string
	TokensUsed *int
}

// LLMClient is a stateless call to the external inference endpoint.
// Empty content is treated as failure by callers.
type LLMClient interface {
	Complete(ctx Context, req LLMRequest) (LLMResponse, error)
}

// Cache is a TTL key-value store. Implementations must serialise values as
// JSON at the boundary and round-trip timestamps in ISO-8601 UTC.
type Cache interface {
	Get(ctx Context, key string) (string, bool, error)
	Set(ctx Context, key string, value string, ttl time.Duration) error
	Delete(ctx Context, key string) (bool, error)
	Exists(ctx Context, key string) (bool, error)
}
