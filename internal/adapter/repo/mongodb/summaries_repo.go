package mongodb

import (
	"errors"
	"fmt"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SummaryRepo persists the per-user per-day usage roll-ups.
type SummaryRepo struct {
	summaries *mongo.Collection
}

// NewSummaryRepo builds the repository.
func NewSummaryRepo(db *mongo.Database) *SummaryRepo {
	return &SummaryRepo{summaries: db.Collection(colSummaries)}
}

// Get returns the roll-up for (userID, date).
func (r *SummaryRepo) Get(ctx domain.Context, userID int64, date string) (domain.DailySummary, error) {
	var s domain.DailySummary
	err := r.summaries.FindOne(ctx, bson.M{"user_id": userID, "date": date}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.DailySummary{}, fmt.Errorf("op=mongodb.SummaryRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("op=mongodb.SummaryRepo.Get: %w", err)
	}
	return s, nil
}

// Upsert writes the roll-up keyed by (user_id, date).
func (r *SummaryRepo) Upsert(ctx domain.Context, s domain.DailySummary) error {
	_, err := r.summaries.ReplaceOne(ctx,
		bson.M{"user_id": s.UserID, "date": s.Date},
		s,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("op=mongodb.SummaryRepo.Upsert: %w", err)
	}
	return nil
}

// ListByUser returns up to limit roll-ups for one user from fromDate on,
// newest first.
func (r *SummaryRepo) ListByUser(ctx domain.Context, userID int64, fromDate string, limit int64) ([]domain.DailySummary, error) {
	cur, err := r.summaries.Find(ctx,
		bson.M{"user_id": userID, "date": bson.M{"$gte": fromDate}},
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("op=mongodb.SummaryRepo.ListByUser: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.DailySummary
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("op=mongodb.SummaryRepo.ListByUser: %w", err)
	}
	return out, nil
}

var _ domain.DailySummaryRepository = (*SummaryRepo)(nil)
