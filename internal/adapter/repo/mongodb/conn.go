// Package mongodb implements the persistence ports on the document store.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	colUsers     = "users"
	colLogs      = "analysis_logs"
	colSummaries = "daily_summaries"
	colAdmins    = "admin_users"
	colPrices    = "gold_prices"
	colCounters  = "counters"
)

// Connect opens the client and verifies connectivity with a ping.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(context.Context) error, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(pingCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("op=mongodb.Connect: %w", err)
	}
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("op=mongodb.Connect ping: %w", err)
	}
	return client.Database(dbName), client.Disconnect, nil
}

// EnsureIndexes creates the unique and query indexes the repositories rely
// on. Safe to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	_, err := db.Collection(colUsers).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "tier", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("op=mongodb.EnsureIndexes users: %w", err)
	}

	_, err = db.Collection(colLogs).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("op=mongodb.EnsureIndexes logs: %w", err)
	}

	_, err = db.Collection(colSummaries).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("op=mongodb.EnsureIndexes summaries: %w", err)
	}

	_, err = db.Collection(colAdmins).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("op=mongodb.EnsureIndexes admins: %w", err)
	}
	return nil
}
