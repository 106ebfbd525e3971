// Package usecase contains the application services orchestrating the
// domain ports: auth and quotas, the analysis pipeline, audit recording and
// the admin read façade.
package usecase

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

// Fault pairs a machine sentinel with the Arabic message shown to the user.
// Handlers unwrap the sentinel for status mapping and surface the message.
type Fault struct {
	Sentinel error
	Message  string
}

func (f *Fault) Error() string { return f.Message }
func (f *Fault) Unwrap() error { return f.Sentinel }

// Faultf builds a Fault pairing sentinel with a user-facing message.
func Faultf(sentinel error, msg string) error {
	return &Fault{Sentinel: sentinel, Message: msg}
}

func faultf(sentinel error, msg string) error { return Faultf(sentinel, msg) }

// UserMessage extracts the Arabic message from err, or returns fallback.
func UserMessage(err error, fallback string) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return fallback
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// AuthService owns registration, login and quota bookkeeping.
type AuthService struct {
	users domain.UserRepository
	clock domain.Clock
	log   *slog.Logger
}

// NewAuthService builds the auth service.
func NewAuthService(users domain.UserRepository, clock domain.Clock, log *slog.Logger) *AuthService {
	return &AuthService{users: users, clock: clock, log: log}
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// Register creates a new basic-tier account. Email is normalised to
// lowercase; the password is stored as salt:hex(sha256(password+salt)).
func (s *AuthService) Register(ctx domain.Context, in RegisterInput) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return domain.User{}, faultf(domain.ErrInvalidArgument, "البريد الإلكتروني غير صحيح")
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return domain.User{}, faultf(domain.ErrConflict, "البريد الإلكتروني مُسجل مسبقاً")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("op=auth.Register: %w", err)
	}
	if msg := validatePassword(in.Password); msg != "" {
		return domain.User{}, faultf(domain.ErrInvalidArgument, msg)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.Register: %w", err)
	}
	userID, err := s.users.NextUserID(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.Register: %w", err)
	}

	now := s.clock.Now().UTC()
	u := domain.User{
		ID:            newID(),
		UserID:        userID,
		Email:         email,
		PasswordHash:  hash,
		Username:      in.Username,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Tier:          domain.TierBasic,
		Status:        domain.StatusActive,
		EmailVerified: true, // auto-verified; no mail loop in the MVP
		SubStart:      &now,
		ActivatedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, faultf(domain.ErrConflict, "البريد الإلكتروني مُسجل مسبقاً")
		}
		return domain.User{}, fmt.Errorf("op=auth.Register: %w", err)
	}
	s.log.Info("user registered", slog.Int64("user_id", u.UserID), slog.String("email", email))
	return u, nil
}

// Login verifies credentials and updates last_seen.
func (s *AuthService) Login(ctx domain.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, faultf(domain.ErrAuthFailed, "البريد الإلكتروني غير مُسجل")
		}
		return domain.User{}, fmt.Errorf("op=auth.Login: %w", err)
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return domain.User{}, faultf(domain.ErrAuthFailed, "كلمة المرور غير صحيحة")
	}
	if !u.IsActive() {
		return domain.User{}, faultf(domain.ErrInactiveAccount, "الحساب غير مفعل، تواصل مع الإدارة")
	}

	now := s.clock.Now().UTC()
	if err := s.users.SetLastSeen(ctx, u.UserID, now); err != nil {
		s.log.Warn("last_seen update failed", slog.Int64("user_id", u.UserID), slog.Any("error", err))
	}
	u.LastSeen = &now
	s.log.Info("user logged in", slog.Int64("user_id", u.UserID))
	return u, nil
}

// GetUser returns the account record by numeric id.
func (s *AuthService) GetUser(ctx domain.Context, userID int64) (domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, faultf(domain.ErrNotFound, "المستخدم غير موجود")
		}
		return domain.User{}, fmt.Errorf("op=auth.GetUser: %w", err)
	}
	return u, nil
}

// Permission is the outcome of a quota check. Sentinel carries the denial
// class (nil when allowed) so callers can map it without parsing Message.
type Permission struct {
	Allowed   bool
	Message   string
	Remaining int
	Tier      domain.Tier
	Sentinel  error
}

// CanAnalyze checks status and the lazy-reset daily counter without
// consuming quota.
func (s *AuthService) CanAnalyze(ctx domain.Context, userID int64) (Permission, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Permission{Message: "المستخدم غير موجود", Sentinel: domain.ErrNotFound}, nil
		}
		return Permission{}, fmt.Errorf("op=auth.CanAnalyze: %w", err)
	}
	if !u.IsActive() {
		return Permission{Message: "الحساب غير مفعل", Sentinel: domain.ErrInactiveAccount}, nil
	}
	today := domain.DateOf(s.clock.Now())
	if !u.CanAnalyze(today) {
		limit := u.Tier.DailyLimit()
		msg := fmt.Sprintf("تم استنفاد حد التحليلات اليومية (%d تحليلات)", limit)
		if limit == 1 {
			msg = "تم استنفاد التحليل المجاني اليوم. ترقية الاشتراك للمزيد"
		}
		return Permission{Message: msg, Sentinel: domain.ErrQuotaExhausted}, nil
	}
	return Permission{Allowed: true, Remaining: u.RemainingToday(today), Tier: u.Tier}, nil
}

// RecordAnalysis consumes one unit of today's quota. The conditional write
// in the repository keeps concurrent calls from exceeding the limit; a
// false return means the quota raced out.
func (s *AuthService) RecordAnalysis(ctx domain.Context, userID int64) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("op=auth.RecordAnalysis: %w", err)
	}
	today := domain.DateOf(s.clock.Now())
	ok, err := s.users.ConsumeDailyQuota(ctx, userID, today, u.Tier.DailyLimit())
	if err != nil {
		return false, fmt.Errorf("op=auth.RecordAnalysis: %w", err)
	}
	if ok {
		s.log.Info("analysis recorded", slog.Int64("user_id", userID))
	}
	return ok, nil
}

// Remaining returns today's remaining quota for userID.
func (s *AuthService) Remaining(ctx domain.Context, userID int64) (int, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("op=auth.Remaining: %w", err)
	}
	return u.RemainingToday(domain.DateOf(s.clock.Now())), nil
}

func validatePassword(pw string) string {
	if len(pw) < 6 {
		return "كلمة المرور يجب أن تكون 6 أحرف على الأقل"
	}
	var hasLetter, hasDigit bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasLetter {
		return "كلمة المرور يجب أن تحتوي على حروف"
	}
	if !hasDigit {
		return "كلمة المرور يجب أن تحتوي على أرقام"
	}
	return ""
}

// HashPassword derives "salt:hex(sha256(password+salt))" with a fresh
// 16-byte random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("op=auth.HashPassword: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	digest := sha256.Sum256([]byte(password + saltHex))
	return saltHex + ":" + hex.EncodeToString(digest[:]), nil
}

// VerifyPassword checks password against a stored salt:digest pair in
// constant time.
func VerifyPassword(password, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}
	digest := sha256.Sum256([]byte(password + parts[0]))
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(digest[:], want) == 1
}

func validTier(t string) (domain.Tier, bool) {
	tier := domain.Tier(strings.ToLower(t))
	return tier, tier.Valid()
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation.
func SystemClock() domain.Clock { return realClock{} }
