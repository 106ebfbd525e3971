package mongodb

import (
	"fmt"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"go.mongodb.org/mongo-driver/mongo"
)

// PriceRepo opportunistically archives observed quotes for offline
// inspection. Writes are best-effort; readers query the collection
// directly.
type PriceRepo struct {
	prices *mongo.Collection
}

// NewPriceRepo builds the repository.
func NewPriceRepo(db *mongo.Database) *PriceRepo {
	return &PriceRepo{prices: db.Collection(colPrices)}
}

// Insert archives one quote observation.
func (r *PriceRepo) Insert(ctx domain.Context, q domain.PriceQuote) error {
	if _, err := r.prices.InsertOne(ctx, q); err != nil {
		return fmt.Errorf("op=mongodb.PriceRepo.Insert: %w", err)
	}
	return nil
}

var _ domain.PriceRepository = (*PriceRepo)(nil)
