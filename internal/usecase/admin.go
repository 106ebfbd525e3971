package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

// AdminService is the operator surface: login, user management and the
// read-only dashboard aggregates.
type AdminService struct {
	admins    domain.AdminUserRepository
	users     domain.UserRepository
	logs      domain.AnalysisLogRepository
	summaries domain.DailySummaryRepository
	tokens    *AdminTokenManager
	clock     domain.Clock
	log       *slog.Logger

	masterUserID string
}

// NewAdminService builds the admin service.
func NewAdminService(
	admins domain.AdminUserRepository,
	users domain.UserRepository,
	logs domain.AnalysisLogRepository,
	summaries domain.DailySummaryRepository,
	tokens *AdminTokenManager,
	clock domain.Clock,
	log *slog.Logger,
	masterUserID string,
) *AdminService {
	return &AdminService{
		admins:       admins,
		users:        users,
		logs:         logs,
		summaries:    summaries,
		tokens:       tokens,
		clock:        clock,
		log:          log,
		masterUserID: masterUserID,
	}
}

// Seed ensures the bootstrap operator account exists. The default
// credentials come from the environment and the password is stored hashed;
// an existing account is left untouched.
func (s *AdminService) Seed(ctx domain.Context, username, password string) error {
	if _, err := s.admins.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=admin.Seed: %w", err)
	}
	hash, err := HashAdminPassword(password)
	if err != nil {
		return fmt.Errorf("op=admin.Seed: %w", err)
	}
	now := s.clock.Now().UTC()
	a := domain.AdminUser{
		ID:           newID(),
		AdminID:      newID(),
		Username:     username,
		PasswordHash: hash,
		CanManage:    true,
		CanViewStats: true,
		IsSuperAdmin: true,
		CreatedAt:    now,
	}
	if err := s.admins.Upsert(ctx, a); err != nil {
		return fmt.Errorf("op=admin.Seed: %w", err)
	}
	s.log.Info("admin account seeded", slog.String("username", username))
	return nil
}

// Login verifies operator credentials and issues a signed bearer token.
func (s *AdminService) Login(ctx domain.Context, username, password string) (string, time.Time, error) {
	a, err := s.admins.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", time.Time{}, faultf(domain.ErrAuthFailed, "بيانات الدخول غير صحيحة")
		}
		return "", time.Time{}, fmt.Errorf("op=admin.Login: %w", err)
	}
	if !VerifyAdminPassword(password, a.PasswordHash) {
		return "", time.Time{}, faultf(domain.ErrAuthFailed, "بيانات الدخول غير صحيحة")
	}
	now := s.clock.Now().UTC()
	if err := s.admins.SetLastLogin(ctx, a.AdminID, now); err != nil {
		s.log.Warn("admin last_login update failed", slog.Any("error", err))
	}
	token, expiry := s.tokens.Issue(a.AdminID)
	s.log.Info("admin logged in", slog.String("username", username))
	return token, expiry, nil
}

// VerifyToken checks an admin bearer token and returns the admin id.
func (s *AdminService) VerifyToken(token string) (string, error) {
	return s.tokens.Verify(token)
}

// UserRow is one row of the paginated user listing.
type UserRow struct {
	User          domain.User `json:"user"`
	RequestsToday int64       `json:"requests_today"`
}

// UserPage is a page of the user listing.
type UserPage struct {
	Users   []UserRow `json:"users"`
	Total   int64     `json:"total"`
	Page    int64     `json:"page"`
	PerPage int64     `json:"per_page"`
}

// ListUsers returns one page of accounts joined with today's request count.
func (s *AdminService) ListUsers(ctx domain.Context, page, perPage int64) (UserPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	users, total, err := s.users.List(ctx, page, perPage)
	if err != nil {
		return UserPage{}, fmt.Errorf("op=admin.ListUsers: %w", err)
	}
	today := domain.DateOf(s.clock.Now())
	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		row := UserRow{User: u}
		if sum, err := s.summaries.Get(ctx, u.UserID, today); err == nil {
			row.RequestsToday = sum.Total
		}
		rows = append(rows, row)
	}
	return UserPage{Users: rows, Total: total, Page: page, PerPage: perPage}, nil
}

// UserDetail is the full admin view of one account.
type UserDetail struct {
	User          domain.User           `json:"user"`
	RecentLogs    []domain.AnalysisLog  `json:"recent_logs"`
	Summaries     []domain.DailySummary `json:"daily_summaries"`
	KindBreakdown map[domain.Kind]int64 `json:"kind_breakdown"`
	AvgResponseMS float64               `json:"avg_response_ms"`
}

// GetUserDetail returns the record plus a 30-day log slice, a 7-day summary
// slice, the per-kind breakdown and the average response time.
func (s *AdminService) GetUserDetail(ctx domain.Context, userID int64) (UserDetail, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UserDetail{}, faultf(domain.ErrNotFound, "المستخدم غير موجود")
		}
		return UserDetail{}, fmt.Errorf("op=admin.GetUserDetail: %w", err)
	}
	now := s.clock.Now().UTC()
	logs, err := s.logs.ListByUser(ctx, userID, now.AddDate(0, 0, -30), 200)
	if err != nil {
		return UserDetail{}, fmt.Errorf("op=admin.GetUserDetail: %w", err)
	}
	weekAgo := domain.DateOf(now.AddDate(0, 0, -7))
	sums, err := s.summaries.ListByUser(ctx, userID, weekAgo, 7)
	if err != nil {
		return UserDetail{}, fmt.Errorf("op=admin.GetUserDetail: %w", err)
	}

	breakdown := make(map[domain.Kind]int64, len(domain.Kinds()))
	var totalMS, n int64
	for _, l := range logs {
		breakdown[l.Kind]++
		totalMS += l.ProcessingMS
		n++
	}
	detail := UserDetail{User: u, RecentLogs: logs, Summaries: sums, KindBreakdown: breakdown}
	if n > 0 {
		detail.AvgResponseMS = float64(totalMS) / float64(n)
	}
	return detail, nil
}

// LogPage is a page of the analysis log listing, newest first.
type LogPage struct {
	Logs    []domain.AnalysisLog `json:"logs"`
	Total   int64                `json:"total"`
	Page    int64                `json:"page"`
	PerPage int64                `json:"per_page"`
}

// ListLogs returns one page of logs, optionally filtered to one user.
func (s *AdminService) ListLogs(ctx domain.Context, page, perPage int64, userID *int64) (LogPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	logs, total, err := s.logs.List(ctx, page, perPage, userID)
	if err != nil {
		return LogPage{}, fmt.Errorf("op=admin.ListLogs: %w", err)
	}
	return LogPage{Logs: logs, Total: total, Page: page, PerPage: perPage}, nil
}

// Dashboard is the operator home-page aggregate.
type Dashboard struct {
	TotalUsers        int64                 `json:"total_users"`
	ActiveUsers       int64                 `json:"active_users"`
	TierBreakdown     map[domain.Tier]int64 `json:"tier_breakdown"`
	AnalysesToday     int64                 `json:"analyses_today"`
	AnalysesYesterday int64                 `json:"analyses_yesterday"`
	TodayDelta        int64                 `json:"today_delta"`
	SuccessRate7d     float64               `json:"success_rate_7d"`
	AvgLatency7dMS    float64               `json:"avg_latency_7d_ms"`
	RecentActivity    []domain.AnalysisLog  `json:"recent_activity"`
	GeneratedAt       time.Time             `json:"generated_at"`
}

// GetDashboard computes the aggregate totals, the today-vs-yesterday delta,
// the 7-day success rate and latency, and the 20 most recent attempts.
func (s *AdminService) GetDashboard(ctx domain.Context) (Dashboard, error) {
	now := s.clock.Now().UTC()
	d := Dashboard{GeneratedAt: now, TierBreakdown: make(map[domain.Tier]int64, 3)}

	var err error
	if d.TotalUsers, err = s.users.CountByFilter(ctx, map[string]any{}); err != nil {
		return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
	}
	if d.ActiveUsers, err = s.users.CountByFilter(ctx, map[string]any{"status": string(domain.StatusActive)}); err != nil {
		return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
	}
	for _, tier := range []domain.Tier{domain.TierBasic, domain.TierPremium, domain.TierVIP} {
		n, err := s.users.CountByFilter(ctx, map[string]any{"tier": string(tier)})
		if err != nil {
			return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
		}
		d.TierBreakdown[tier] = n
	}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	if d.AnalysesToday, err = s.logs.CountSince(ctx, todayStart, nil); err != nil {
		return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
	}
	if d.AnalysesYesterday, err = s.logs.CountSince(ctx, yesterdayStart, &todayStart); err != nil {
		return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
	}
	d.TodayDelta = d.AnalysesToday - d.AnalysesYesterday

	weekLogs, err := s.logs.ListSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
	}
	var success, totalMS int64
	for _, l := range weekLogs {
		if l.Success {
			success++
		}
		totalMS += l.ProcessingMS
	}
	if len(weekLogs) > 0 {
		d.SuccessRate7d = float64(success) / float64(len(weekLogs)) * 100
		d.AvgLatency7dMS = float64(totalMS) / float64(len(weekLogs))
	}

	if d.RecentActivity, err = s.logs.Recent(ctx, 20); err != nil {
		return Dashboard{}, fmt.Errorf("op=admin.GetDashboard: %w", err)
	}
	return d, nil
}

// ToggleStatus flips an account between active and inactive. Blocked and
// suspended accounts stay where an operator put them.
func (s *AdminService) ToggleStatus(ctx domain.Context, userID int64, adminID string) (domain.Status, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", faultf(domain.ErrNotFound, "المستخدم غير موجود")
		}
		return "", fmt.Errorf("op=admin.ToggleStatus: %w", err)
	}
	switch u.Status {
	case domain.StatusActive:
		u.Status = domain.StatusInactive
	case domain.StatusInactive:
		u.Status = domain.StatusActive
	default:
		return "", faultf(domain.ErrInvalidArgument, "لا يمكن تغيير حالة هذا الحساب")
	}
	u.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		return "", fmt.Errorf("op=admin.ToggleStatus: %w", err)
	}
	action := "deactivated"
	if u.Status == domain.StatusActive {
		action = "activated"
	}
	s.recordAction(ctx, fmt.Sprintf("admin %s %s user %d", adminID, action, userID))
	s.log.Info("user status toggled",
		slog.Int64("user_id", userID),
		slog.String("admin_id", adminID),
		slog.String("status", string(u.Status)))
	return u.Status, nil
}

// TierUpdate is the outcome of an admin subscription change.
type TierUpdate struct {
	OldTier       domain.Tier `json:"old_tier"`
	NewTier       domain.Tier `json:"new_tier"`
	NewDailyLimit int         `json:"new_daily_limit"`
	Message       string      `json:"message"`
}

// UpdateTier changes a user's subscription, restarting the subscription
// window for one year and resetting today's counter so the new limit takes
// effect immediately.
func (s *AdminService) UpdateTier(ctx domain.Context, userID int64, newTier string, adminID string) (TierUpdate, error) {
	tier, ok := validTier(newTier)
	if !ok {
		return TierUpdate{}, faultf(domain.ErrInvalidArgument, fmt.Sprintf("نوع اشتراك غير صحيح: %s", newTier))
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TierUpdate{}, faultf(domain.ErrNotFound, "المستخدم غير موجود")
		}
		return TierUpdate{}, fmt.Errorf("op=admin.UpdateTier: %w", err)
	}

	oldTier := u.Tier
	now := s.clock.Now().UTC()
	end := now.AddDate(1, 0, 0)
	u.Tier = tier
	u.SubStart = &now
	u.SubEnd = &end
	u.DailyCount = 0
	u.DailyDate = domain.DateOf(now)
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return TierUpdate{}, fmt.Errorf("op=admin.UpdateTier: %w", err)
	}
	s.recordAction(ctx, fmt.Sprintf("admin %s changed user %d tier from %s to %s", adminID, userID, oldTier, tier))
	s.log.Info("user tier updated",
		slog.Int64("user_id", userID),
		slog.String("admin_id", adminID),
		slog.String("old_tier", string(oldTier)),
		slog.String("new_tier", string(tier)))
	return TierUpdate{
		OldTier:       oldTier,
		NewTier:       tier,
		NewDailyLimit: tier.DailyLimit(),
		Message:       fmt.Sprintf("تم تحديث الاشتراك من %s إلى %s", oldTier, tier),
	}, nil
}

// recordAction persists a system-actor audit row for an admin mutation.
// Failures never fail the mutation itself; it already landed.
func (s *AdminService) recordAction(ctx domain.Context, message string) {
	l := domain.AnalysisLog{
		ID:           newID(),
		UserID:       0, // system actor
		Kind:         domain.KindQuick,
		Success:      true,
		ErrorMessage: message,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.logs.Insert(ctx, l); err != nil {
		s.log.Warn("admin action audit write failed", slog.Any("error", err))
	}
}

// Broadcast counts the active accounts a master-gated announcement would
// reach. Only the configured master user may trigger it.
func (s *AdminService) Broadcast(ctx domain.Context, requesterID string) (int64, error) {
	if s.masterUserID == "" || requesterID != s.masterUserID {
		return 0, faultf(domain.ErrAuthFailed, "غير مصرح بالبث")
	}
	n, err := s.users.CountByFilter(ctx, map[string]any{"status": string(domain.StatusActive)})
	if err != nil {
		return 0, fmt.Errorf("op=admin.Broadcast: %w", err)
	}
	return n, nil
}
