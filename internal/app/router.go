// Package app assembles the HTTP router from the edge handlers, the
// middleware chain and the configured CORS and rate-limit policies.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goldnightmare/analysis-api/internal/adapter/httpserver"
	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/observability"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means any origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// Every application endpoint lives under /api; /metrics is exposed at the
// root for the scraper.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", srv.HealthHandler())
		api.Get("/gold-price", srv.GoldPriceHandler())
		api.Get("/forex-price/{pair}", srv.ForexPriceHandler())
		api.Get("/forex-pairs", srv.ForexPairsHandler())
		api.Get("/analysis-types", srv.AnalysisTypesHandler())
		api.Get("/api-status", srv.APIStatusHandler())

		// The analysis pipeline and account mutations are rate limited per
		// client IP.
		api.Group(func(mut chi.Router) {
			mut.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
			mut.Post("/analyze", srv.AnalyzeHandler())
			mut.Post("/analyze-forex", srv.AnalyzeForexHandler())
			mut.Post("/analyze-chart", srv.AnalyzeChartHandler())
			mut.Post("/auth/register", srv.RegisterHandler())
			mut.Post("/auth/login", srv.LoginHandler())
		})

		api.Get("/auth/user/{user_id}", srv.GetUserHandler())
		api.Get("/auth/check-analysis-permission/{user_id}", srv.CheckPermissionHandler())

		api.Route("/admin", func(adm chi.Router) {
			adm.Group(func(login chi.Router) {
				login.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
				login.Post("/login", srv.AdminLoginHandler())
			})
			adm.Group(func(guarded chi.Router) {
				guarded.Use(srv.AdminGuard())
				guarded.Get("/dashboard", srv.AdminDashboardHandler())
				guarded.Get("/users", srv.AdminListUsersHandler())
				guarded.Get("/users/{id}", srv.AdminUserDetailHandler())
				guarded.Post("/users/toggle-status", srv.AdminToggleStatusHandler())
				guarded.Post("/users/update-tier", srv.AdminUpdateTierHandler())
				guarded.Get("/analysis-logs", srv.AdminListLogsHandler())
				guarded.Get("/system-status", srv.AdminSystemStatusHandler())
				guarded.Post("/broadcast", srv.AdminBroadcastHandler())
			})
		})
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
