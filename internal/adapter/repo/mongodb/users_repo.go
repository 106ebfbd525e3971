package mongodb

import (
	"errors"
	"fmt"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// firstUserID is where numeric account ids start.
const firstUserID = 1000

// UserRepo persists accounts in the users collection.
type UserRepo struct {
	users    *mongo.Collection
	counters *mongo.Collection
}

// NewUserRepo builds the repository.
func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{users: db.Collection(colUsers), counters: db.Collection(colCounters)}
}

// Create inserts a new account. Duplicate email or user_id maps to
// ErrConflict via the unique indexes.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) error {
	if _, err := r.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("op=mongodb.UserRepo.Create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("op=mongodb.UserRepo.Create: %w", err)
	}
	return nil
}

// GetByID returns the account with the numeric id.
func (r *UserRepo) GetByID(ctx domain.Context, userID int64) (domain.User, error) {
	var u domain.User
	err := r.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("op=mongodb.UserRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("op=mongodb.UserRepo.GetByID: %w", err)
	}
	return u, nil
}

// GetByEmail returns the account with the (lowercase) email.
func (r *UserRepo) GetByEmail(ctx domain.Context, email string) (domain.User, error) {
	var u domain.User
	err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("op=mongodb.UserRepo.GetByEmail: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("op=mongodb.UserRepo.GetByEmail: %w", err)
	}
	return u, nil
}

// Update replaces the whole account document.
func (r *UserRepo) Update(ctx domain.Context, u domain.User) error {
	res, err := r.users.ReplaceOne(ctx, bson.M{"user_id": u.UserID}, u)
	if err != nil {
		return fmt.Errorf("op=mongodb.UserRepo.Update: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("op=mongodb.UserRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

// SetLastSeen stamps the login time without rewriting the document.
func (r *UserRepo) SetLastSeen(ctx domain.Context, userID int64, at time.Time) error {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"last_seen": at, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("op=mongodb.UserRepo.SetLastSeen: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("op=mongodb.UserRepo.SetLastSeen: %w", domain.ErrNotFound)
	}
	return nil
}

// ConsumeDailyQuota performs the conditional decrement in two guarded
// writes so concurrent requests cannot exceed the limit:
//  1. a stale daily_date resets the counter to 1 for today;
//  2. otherwise the increment only matches while daily_count < limit.
//
// Unlimited tiers skip the guard in step 2.
func (r *UserRepo) ConsumeDailyQuota(ctx domain.Context, userID int64, today string, limit int) (bool, error) {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID, "daily_analyses_date": bson.M{"$ne": today}},
		bson.M{
			"$set": bson.M{"daily_analyses_date": today, "daily_analyses_count": 1},
			"$inc": bson.M{"total_analyses": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("op=mongodb.UserRepo.ConsumeDailyQuota: %w", err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	filter := bson.M{"user_id": userID, "daily_analyses_date": today}
	if limit != domain.UnlimitedQuota {
		filter["daily_analyses_count"] = bson.M{"$lt": limit}
	}
	res, err = r.users.UpdateOne(ctx, filter,
		bson.M{"$inc": bson.M{"daily_analyses_count": 1, "total_analyses": 1}},
	)
	if err != nil {
		return false, fmt.Errorf("op=mongodb.UserRepo.ConsumeDailyQuota: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// NextUserID atomically allocates the next numeric account id from the
// counters collection, starting at firstUserID.
func (r *UserRepo) NextUserID(ctx domain.Context) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "user_id"},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("op=mongodb.UserRepo.NextUserID: %w", err)
	}
	// The upserted counter starts at 1; shift into the account id range.
	return firstUserID - 1 + doc.Value, nil
}

// List returns one page of accounts ordered by user_id plus the total.
func (r *UserRepo) List(ctx domain.Context, page, perPage int64) ([]domain.User, int64, error) {
	total, err := r.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("op=mongodb.UserRepo.List: %w", err)
	}
	cur, err := r.users.Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "user_id", Value: 1}}).
		SetSkip((page-1)*perPage).
		SetLimit(perPage),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("op=mongodb.UserRepo.List: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("op=mongodb.UserRepo.List: %w", err)
	}
	return out, total, nil
}

// CountByFilter counts accounts matching the given field filter.
func (r *UserRepo) CountByFilter(ctx domain.Context, filter map[string]any) (int64, error) {
	n, err := r.users.CountDocuments(ctx, bson.M(filter))
	if err != nil {
		return 0, fmt.Errorf("op=mongodb.UserRepo.CountByFilter: %w", err)
	}
	return n, nil
}

var _ domain.UserRepository = (*UserRepo)(nil)
