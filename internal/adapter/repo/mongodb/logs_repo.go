package mongodb

import (
	"fmt"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LogRepo persists the append-only analysis attempt records.
type LogRepo struct {
	logs *mongo.Collection
}

// NewLogRepo builds the repository.
func NewLogRepo(db *mongo.Database) *LogRepo {
	return &LogRepo{logs: db.Collection(colLogs)}
}

// Insert appends one attempt record.
func (r *LogRepo) Insert(ctx domain.Context, l domain.AnalysisLog) error {
	if _, err := r.logs.InsertOne(ctx, l); err != nil {
		return fmt.Errorf("op=mongodb.LogRepo.Insert: %w", err)
	}
	return nil
}

// ListByUser returns up to limit records for one user since the cutoff,
// newest first.
func (r *LogRepo) ListByUser(ctx domain.Context, userID int64, since time.Time, limit int64) ([]domain.AnalysisLog, error) {
	cur, err := r.logs.Find(ctx,
		bson.M{"user_id": userID, "created_at": bson.M{"$gte": since}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("op=mongodb.LogRepo.ListByUser: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.AnalysisLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("op=mongodb.LogRepo.ListByUser: %w", err)
	}
	return out, nil
}

// List returns one page of records, newest first, optionally filtered to
// one user, plus the matching total.
func (r *LogRepo) List(ctx domain.Context, page, perPage int64, userID *int64) ([]domain.AnalysisLog, int64, error) {
	filter := bson.M{}
	if userID != nil {
		filter["user_id"] = *userID
	}
	total, err := r.logs.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("op=mongodb.LogRepo.List: %w", err)
	}
	cur, err := r.logs.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page-1)*perPage).
		SetLimit(perPage),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("op=mongodb.LogRepo.List: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.AnalysisLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("op=mongodb.LogRepo.List: %w", err)
	}
	return out, total, nil
}

// CountSince counts records in [since, until); a nil until is open-ended.
func (r *LogRepo) CountSince(ctx domain.Context, since time.Time, until *time.Time) (int64, error) {
	window := bson.M{"$gte": since}
	if until != nil {
		window["$lt"] = *until
	}
	n, err := r.logs.CountDocuments(ctx, bson.M{"created_at": window})
	if err != nil {
		return 0, fmt.Errorf("op=mongodb.LogRepo.CountSince: %w", err)
	}
	return n, nil
}

// ListSince returns all records at or after the cutoff.
func (r *LogRepo) ListSince(ctx domain.Context, since time.Time) ([]domain.AnalysisLog, error) {
	cur, err := r.logs.Find(ctx, bson.M{"created_at": bson.M{"$gte": since}})
	if err != nil {
		return nil, fmt.Errorf("op=mongodb.LogRepo.ListSince: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.AnalysisLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("op=mongodb.LogRepo.ListSince: %w", err)
	}
	return out, nil
}

// Recent returns the newest limit records across all users.
func (r *LogRepo) Recent(ctx domain.Context, limit int64) ([]domain.AnalysisLog, error) {
	cur, err := r.logs.Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("op=mongodb.LogRepo.Recent: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.AnalysisLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("op=mongodb.LogRepo.Recent: %w", err)
	}
	return out, nil
}

var _ domain.AnalysisLogRepository = (*LogRepo)(nil)
