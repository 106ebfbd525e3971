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

// AdminRepo persists operator accounts.
type AdminRepo struct {
	admins *mongo.Collection
}

// NewAdminRepo builds the repository.
func NewAdminRepo(db *mongo.Database) *AdminRepo {
	return &AdminRepo{admins: db.Collection(colAdmins)}
}

// GetByUsername returns the operator account.
func (r *AdminRepo) GetByUsername(ctx domain.Context, username string) (domain.AdminUser, error) {
	var a domain.AdminUser
	err := r.admins.FindOne(ctx, bson.M{"username": username}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.AdminUser{}, fmt.Errorf("op=mongodb.AdminRepo.GetByUsername: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.AdminUser{}, fmt.Errorf("op=mongodb.AdminRepo.GetByUsername: %w", err)
	}
	return a, nil
}

// Upsert writes the operator account keyed by username.
func (r *AdminRepo) Upsert(ctx domain.Context, a domain.AdminUser) error {
	_, err := r.admins.ReplaceOne(ctx,
		bson.M{"username": a.Username},
		a,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("op=mongodb.AdminRepo.Upsert: %w", err)
	}
	return nil
}

// SetLastLogin stamps the login time.
func (r *AdminRepo) SetLastLogin(ctx domain.Context, adminID string, at time.Time) error {
	_, err := r.admins.UpdateOne(ctx,
		bson.M{"admin_id": adminID},
		bson.M{"$set": bson.M{"last_login": at}},
	)
	if err != nil {
		return fmt.Errorf("op=mongodb.AdminRepo.SetLastLogin: %w", err)
	}
	return nil
}

var _ domain.AdminUserRepository = (*AdminRepo)(nil)
