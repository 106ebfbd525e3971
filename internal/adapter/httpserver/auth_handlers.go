package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

// userProjection is the public view of an account. It never includes the
// password hash.
func (s *Server) userProjection(u domain.User) envelope {
	today := domain.DateOf(s.Clock.Now())
	return envelope{
		"user_id":                  u.UserID,
		"email":                    u.Email,
		"username":                 u.Username,
		"first_name":               u.FirstName,
		"last_name":                u.LastName,
		"tier":                     u.Tier,
		"status":                   u.Status,
		"daily_analyses_remaining": u.RemainingToday(today),
		"total_analyses":           u.TotalAnalyses,
		"features":                 u.Tier.Features(),
		"is_email_verified":        u.EmailVerified,
		"subscription_end_date":    u.SubEnd,
		"created_at":               u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RegisterHandler creates a basic-tier account.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil {
			writeNotInitialised(w)
			return
		}
		var req registerRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "البريد الإلكتروني وكلمة المرور مطلوبان")
			return
		}
		u, err := s.Auth.Register(r.Context(), usecase.RegisterInput{
			Email:     req.Email,
			Password:  req.Password,
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"user": s.userProjection(u)})
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginHandler verifies credentials.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil {
			writeNotInitialised(w)
			return
		}
		var req loginRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "البريد الإلكتروني وكلمة المرور مطلوبان")
			return
		}
		u, err := s.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"user": s.userProjection(u)})
	}
}

// userIDParam parses the {user_id} path segment.
func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, usecase.Faultf(domain.ErrInvalidArgument, "معرف المستخدم غير صحيح")
	}
	return id, nil
}

// GetUserHandler returns the public projection of one account.
func (s *Server) GetUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil {
			writeNotInitialised(w)
			return
		}
		id, err := userIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u, err := s.Auth.GetUser(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{"user": s.userProjection(u)})
	}
}

// CheckPermissionHandler reports whether the account may run an analysis
// right now, without consuming quota.
func (s *Server) CheckPermissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil {
			writeNotInitialised(w)
			return
		}
		id, err := userIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		perm, err := s.Auth.CanAnalyze(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{
			"can_analyze":        perm.Allowed,
			"message":            perm.Message,
			"remaining_analyses": perm.Remaining,
		})
	}
}
