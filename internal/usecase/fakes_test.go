package usecase_test

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock lets tests move time across day boundaries.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int64]domain.User
	nextID int64
}

func newUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]domain.User), nextID: 1000}
}

func (r *memUserRepo) Create(_ domain.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("op=test.Create: %w", domain.ErrConflict)
		}
	}
	r.users[u.UserID] = u
	return nil
}

func (r *memUserRepo) GetByID(_ domain.Context, userID int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("op=test.GetByID: %w", domain.ErrNotFound)
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(_ domain.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("op=test.GetByEmail: %w", domain.ErrNotFound)
}

func (r *memUserRepo) Update(_ domain.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.UserID]; !ok {
		return fmt.Errorf("op=test.Update: %w", domain.ErrNotFound)
	}
	r.users[u.UserID] = u
	return nil
}

func (r *memUserRepo) SetLastSeen(_ domain.Context, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("op=test.SetLastSeen: %w", domain.ErrNotFound)
	}
	u.LastSeen = &at
	r.users[userID] = u
	return nil
}

func (r *memUserRepo) ConsumeDailyQuota(_ domain.Context, userID int64, today string, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, fmt.Errorf("op=test.ConsumeDailyQuota: %w", domain.ErrNotFound)
	}
	if u.DailyDate != today {
		u.DailyDate = today
		u.DailyCount = 1
		u.TotalAnalyses++
		r.users[userID] = u
		return true, nil
	}
	if limit != domain.UnlimitedQuota && u.DailyCount >= limit {
		return false, nil
	}
	u.DailyCount++
	u.TotalAnalyses++
	r.users[userID] = u
	return true, nil
}

func (r *memUserRepo) NextUserID(_ domain.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id, nil
}

func (r *memUserRepo) List(_ domain.Context, page, perPage int64) ([]domain.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	start := (page - 1) * perPage
	if start >= int64(len(all)) {
		return nil, int64(len(all)), nil
	}
	end := start + perPage
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[start:end], int64(len(all)), nil
}

func (r *memUserRepo) CountByFilter(_ domain.Context, filter map[string]any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		match := true
		if v, ok := filter["status"]; ok && string(u.Status) != v {
			match = false
		}
		if v, ok := filter["tier"]; ok && string(u.Tier) != v {
			match = false
		}
		if match {
			n++
		}
	}
	return n, nil
}

type memLogRepo struct {
	mu   sync.Mutex
	logs []domain.AnalysisLog
	fail bool
}

func newLogRepo() *memLogRepo { return &memLogRepo{} }

func (r *memLogRepo) Insert(_ domain.Context, l domain.AnalysisLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("op=test.Insert: %w", domain.ErrStoreFailure)
	}
	r.logs = append(r.logs, l)
	return nil
}

func (r *memLogRepo) all() []domain.AnalysisLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AnalysisLog, len(r.logs))
	copy(out, r.logs)
	return out
}

func (r *memLogRepo) ListByUser(_ domain.Context, userID int64, since time.Time, limit int64) ([]domain.AnalysisLog, error) {
	var out []domain.AnalysisLog
	for _, l := range r.all() {
		if l.UserID == userID && !l.CreatedAt.Before(since) && int64(len(out)) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memLogRepo) List(_ domain.Context, page, perPage int64, userID *int64) ([]domain.AnalysisLog, int64, error) {
	var filtered []domain.AnalysisLog
	for _, l := range r.all() {
		if userID == nil || l.UserID == *userID {
			filtered = append(filtered, l)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })
	start := (page - 1) * perPage
	if start >= int64(len(filtered)) {
		return nil, int64(len(filtered)), nil
	}
	end := start + perPage
	if end > int64(len(filtered)) {
		end = int64(len(filtered))
	}
	return filtered[start:end], int64(len(filtered)), nil
}

func (r *memLogRepo) CountSince(_ domain.Context, since time.Time, until *time.Time) (int64, error) {
	var n int64
	for _, l := range r.all() {
		if l.CreatedAt.Before(since) {
			continue
		}
		if until != nil && !l.CreatedAt.Before(*until) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *memLogRepo) ListSince(_ domain.Context, since time.Time) ([]domain.AnalysisLog, error) {
	var out []domain.AnalysisLog
	for _, l := range r.all() {
		if !l.CreatedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memLogRepo) Recent(_ domain.Context, limit int64) ([]domain.AnalysisLog, error) {
	all := r.all()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, nil
}

type memSummaryRepo struct {
	mu        sync.Mutex
	summaries map[string]domain.DailySummary
}

func newSummaryRepo() *memSummaryRepo {
	return &memSummaryRepo{summaries: make(map[string]domain.DailySummary)}
}

func summaryKey(userID int64, date string) string {
	return fmt.Sprintf("%d:%s", userID, date)
}

func (r *memSummaryRepo) Get(_ domain.Context, userID int64, date string) (domain.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[summaryKey(userID, date)]
	if !ok {
		return domain.DailySummary{}, fmt.Errorf("op=test.Get: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (r *memSummaryRepo) Upsert(_ domain.Context, s domain.DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[summaryKey(s.UserID, s.Date)] = s
	return nil
}

func (r *memSummaryRepo) ListByUser(_ domain.Context, userID int64, fromDate string, limit int64) ([]domain.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DailySummary
	for _, s := range r.summaries {
		if s.UserID == userID && s.Date >= fromDate && int64(len(out)) < limit {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

type memAdminRepo struct {
	mu     sync.Mutex
	admins map[string]domain.AdminUser
}

func newAdminRepo() *memAdminRepo {
	return &memAdminRepo{admins: make(map[string]domain.AdminUser)}
}

func (r *memAdminRepo) GetByUsername(_ domain.Context, username string) (domain.AdminUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admins[username]
	if !ok {
		return domain.AdminUser{}, fmt.Errorf("op=test.GetByUsername: %w", domain.ErrNotFound)
	}
	return a, nil
}

func (r *memAdminRepo) Upsert(_ domain.Context, a domain.AdminUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[a.Username] = a
	return nil
}

func (r *memAdminRepo) SetLastLogin(_ domain.Context, adminID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, a := range r.admins {
		if a.AdminID == adminID {
			a.LastLogin = &at
			r.admins[name] = a
		}
	}
	return nil
}

// stubPriceSource returns a fixed quote or an error.
type stubPriceSource struct {
	quote domain.PriceQuote
	err   error
}

func (s *stubPriceSource) Current(domain.Context, bool) (domain.PriceQuote, error) {
	return s.quote, s.err
}

type stubForexSource struct {
	quote domain.PriceQuote
	err   error
}

func (s *stubForexSource) Quote(domain.Context, string) (domain.PriceQuote, error) {
	return s.quote, s.err
}

// stubLLM counts calls and returns a canned completion.
type stubLLM struct {
	mu    sync.Mutex
	calls int
	resp  domain.LLMResponse
	err   error
}

func (s *stubLLM) Complete(_ domain.Context, _ domain.LLMRequest) (domain.LLMResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.resp, s.err
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
