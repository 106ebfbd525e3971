package httpserver

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/goldnightmare/analysis-api/internal/adapter/price"
	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

// GoldSource is the slice of the price aggregator the edge needs: the
// current quote and the per-provider health snapshot.
type GoldSource interface {
	Current(ctx context.Context, useCache bool) (domain.PriceQuote, error)
	Status() []price.ProviderStatus
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Auth     *usecase.AuthService
	Analysis *usecase.AnalysisService
	Admin    *usecase.AdminService
	Gold     GoldSource
	Forex    domain.ForexSource
	Clock    domain.Clock
}

// NewServer constructs the HTTP server with all handlers wired.
func NewServer(
	cfg config.Config,
	auth *usecase.AuthService,
	analysis *usecase.AnalysisService,
	admin *usecase.AdminService,
	gold GoldSource,
	forex domain.ForexSource,
	clock domain.Clock,
) *Server {
	return &Server{
		Cfg:      cfg,
		Auth:     auth,
		Analysis: analysis,
		Admin:    admin,
		Gold:     gold,
		Forex:    forex,
		Clock:    clock,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}
