package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

type adminIDKey struct{}

// adminIDFrom returns the authenticated operator id stored by AdminGuard.
func adminIDFrom(r *http.Request) string {
	if v := r.Context().Value(adminIDKey{}); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// AdminGuard requires a valid operator bearer token on every request.
func (s *Server) AdminGuard() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Admin == nil {
				writeNotInitialised(w)
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeFailure(w, http.StatusUnauthorized, "مطلوب تسجيل دخول المشرف")
				return
			}
			adminID, err := s.Admin.VerifyToken(token)
			if err != nil {
				writeFailure(w, http.StatusUnauthorized, "جلسة المشرف غير صالحة أو منتهية")
				return
			}
			ctx := context.WithValue(r.Context(), adminIDKey{}, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminLoginHandler issues a signed bearer token for the operator panel.
func (s *Server) AdminLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Admin == nil {
			writeNotInitialised(w)
			return
		}
		var req adminLoginRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "اسم المستخدم وكلمة المرور مطلوبان")
			return
		}
		token, expiry, err := s.Admin.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{
			"token":      token,
			"expires_at": expiry.UTC().Format(time.RFC3339),
		})
	}
}

// AdminDashboardHandler returns the operator home-page aggregate.
func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.Admin.GetDashboard(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"dashboard": d})
	}
}

// pageParams parses ?page= and ?per_page= with sane defaults.
func pageParams(r *http.Request) (int64, int64) {
	page, _ := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64)
	perPage, _ := strconv.ParseInt(r.URL.Query().Get("per_page"), 10, 64)
	if page < 1 {
		page = 1
	}
	return page, perPage
}

// AdminListUsersHandler returns one page of accounts.
func (s *Server) AdminListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := pageParams(r)
		users, err := s.Admin.ListUsers(r.Context(), page, perPage)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"data": users})
	}
}

// AdminUserDetailHandler returns the full admin view of one account.
func (s *Server) AdminUserDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, usecase.Faultf(domain.ErrInvalidArgument, "معرف المستخدم غير صحيح"))
			return
		}
		detail, err := s.Admin.GetUserDetail(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"data": detail})
	}
}

type toggleStatusRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// AdminToggleStatusHandler flips an account between active and inactive.
func (s *Server) AdminToggleStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleStatusRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "معرف المستخدم مطلوب")
			return
		}
		status, err := s.Admin.ToggleStatus(r.Context(), req.UserID, adminIDFrom(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{
			"user_id":    req.UserID,
			"new_status": status,
		})
	}
}

type updateTierRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	NewTier string `json:"new_tier" validate:"required"`
}

// AdminUpdateTierHandler changes a user's subscription tier.
func (s *Server) AdminUpdateTierHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateTierRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "معرف المستخدم ونوع الاشتراك مطلوبان")
			return
		}
		update, err := s.Admin.UpdateTier(r.Context(), req.UserID, req.NewTier, adminIDFrom(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"data": update})
	}
}

// AdminListLogsHandler returns one page of analysis logs, optionally
// filtered to one user via ?user_id=.
func (s *Server) AdminListLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := pageParams(r)
		var userID *int64
		if raw := r.URL.Query().Get("user_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, r, usecase.Faultf(domain.ErrInvalidArgument, "معرف المستخدم غير صحيح"))
				return
			}
			userID = &id
		}
		logs, err := s.Admin.ListLogs(r.Context(), page, perPage, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"data": logs})
	}
}

// AdminSystemStatusHandler mirrors the public status snapshot plus cache
// and store wiring for the operator panel.
func (s *Server) AdminSystemStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var goldAPIs any
		if s.Gold != nil {
			goldAPIs = s.Gold.Status()
		}
		writeOK(w, envelope{
			"status": envelope{
				"gold_apis":   goldAPIs,
				"claude_ai":   s.Cfg.ClaudeAPIKey != "",
				"api_running": s.Analysis != nil,
				"checked_at":  s.Clock.Now().UTC().Format(time.RFC3339),
			},
		})
	}
}

type broadcastRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
	Message     string `json:"message" validate:"required"`
}

// AdminBroadcastHandler counts the active accounts a master-gated
// announcement would reach.
func (s *Server) AdminBroadcastHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "معرف المرسل ونص الرسالة مطلوبان")
			return
		}
		n, err := s.Admin.Broadcast(r.Context(), req.RequesterID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"recipients": n})
	}
}
