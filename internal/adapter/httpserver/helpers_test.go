package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goldnightmare/analysis-api/internal/adapter/cache"
	"github.com/goldnightmare/analysis-api/internal/adapter/httpserver"
	"github.com/goldnightmare/analysis-api/internal/adapter/price"
	"github.com/goldnightmare/analysis-api/internal/app"
	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

var baseTime = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
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
}

func (r *memLogRepo) Insert(_ domain.Context, l domain.AnalysisLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	if int64(len(all)) > limit {
		all = all[len(all)-int(limit):]
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

func (r *memSummaryRepo) Get(_ domain.Context, userID int64, date string) (domain.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[fmt.Sprintf("%d:%s", userID, date)]
	if !ok {
		return domain.DailySummary{}, fmt.Errorf("op=test.Get: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (r *memSummaryRepo) Upsert(_ domain.Context, s domain.DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[fmt.Sprintf("%d:%s", s.UserID, s.Date)] = s
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

// stubGold serves a fixed quote and a canned provider snapshot.
type stubGold struct {
	quote domain.PriceQuote
	err   error
}

func (s *stubGold) Current(context.Context, bool) (domain.PriceQuote, error) {
	return s.quote, s.err
}

func (s *stubGold) Status() []price.ProviderStatus {
	return []price.ProviderStatus{{Name: "goldapi", Priority: 1, Healthy: true, Detail: "ok"}}
}

// stubForex resolves quotes against the static pair catalog.
type stubForex struct{}

func (stubForex) Quote(_ context.Context, symbol string) (domain.PriceQuote, error) {
	p, ok := price.PairBySymbol(symbol)
	if !ok {
		return domain.PriceQuote{}, usecase.Faultf(domain.ErrNotFound, "زوج العملات غير مدعوم")
	}
	return domain.PriceQuote{
		Pair:      p.Symbol,
		Price:     p.DemoPrice,
		Source:    domain.SourceDemo,
		Currency:  "USD",
		Timestamp: baseTime,
	}, nil
}

type stubLLM struct {
	mu    sync.Mutex
	calls int
	resp  domain.LLMResponse
	err   error
}

func (s *stubLLM) Complete(domain.Context, domain.LLMRequest) (domain.LLMResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.resp, s.err
}

// env is one fully wired edge under test.
type env struct {
	router http.Handler
	srv    *httpserver.Server
	users  *memUserRepo
	logs   *memLogRepo
	llm    *stubLLM
	gold   *stubGold
	cfg    config.Config
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:             "test",
		ClaudeAPIKey:       "test-key",
		PromptLanguage:     "arabic",
		BotSignature:       "Gold Nightmare – عدي",
		AdminUsername:      "admin",
		AdminPassword:      "GOLD_NIGHTMARE_205",
		AdminTokenSecret:   "test-secret",
		AdminTokenLifetime: time.Hour,
		CORSAllowOrigins:   "*",
		RateLimitPerMin:    1000,
		HTTPWriteTimeout:   time.Minute,
		MaxChartImageMB:    8,
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testConfig()
	clock := &fixedClock{t: baseTime}
	log := discardLogger()

	users := newUserRepo()
	logs := &memLogRepo{}
	sums := newSummaryRepo()
	admins := newAdminRepo()

	mem := cache.NewMemory(time.Minute)
	t.Cleanup(mem.Stop)
	store := cache.NewStore(mem, 15*time.Minute, 30*time.Minute)

	auth := usecase.NewAuthService(users, clock, log)
	llm := &stubLLM{resp: domain.LLMResponse{
		Content:   strings.Repeat("تحليل الذهب يشير إلى اتجاه صاعد. ", 10),
		ModelUsed: "test-model",
	}}
	gold := &stubGold{quote: domain.PriceQuote{
		Price:     3310.06,
		Change:    15.52,
		ChangePct: 0.47,
		Ask:       3312.00,
		Bid:       3308.12,
		High24h:   3325.89,
		Low24h:    3298.43,
		Source:    "goldapi",
		Currency:  "USD",
		Unit:      "ounce",
		Timestamp: baseTime,
	}}
	audit := usecase.NewAuditRecorder(logs, sums, clock, log)
	audit.Start()
	t.Cleanup(audit.Stop)

	analysis := usecase.NewAnalysisService(
		auth, gold, stubForex{}, usecase.NewPromptComposer(cfg), llm, store, audit, clock, log)
	tokens := usecase.NewAdminTokenManager(cfg.AdminTokenSecret, cfg.AdminTokenLifetime, clock)
	admin := usecase.NewAdminService(admins, users, logs, sums, tokens, clock, log, "master-1")
	require.NoError(t, admin.Seed(context.Background(), cfg.AdminUsername, cfg.AdminPassword))

	srv := httpserver.NewServer(cfg, auth, analysis, admin, gold, stubForex{}, clock)
	return &env{
		router: app.BuildRouter(cfg, srv),
		srv:    srv,
		users:  users,
		logs:   logs,
		llm:    llm,
		gold:   gold,
		cfg:    cfg,
	}
}

// do performs one request against the router and decodes the JSON body.
func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

// register creates an account through the API and returns its numeric id.
func (e *env) register(t *testing.T, email, password string) int64 {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"], "register failed: %v", body["error"])
	user := body["user"].(map[string]any)
	return int64(user["user_id"].(float64))
}

// adminToken logs the seeded operator in and returns the bearer token.
func (e *env) adminToken(t *testing.T) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/admin/login", map[string]any{
		"username": e.cfg.AdminUsername,
		"password": e.cfg.AdminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])
	return body["token"].(string)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
