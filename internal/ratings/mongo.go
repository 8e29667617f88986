// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package ratings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomtom215/slopeone/internal/config"
	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// ErrMissingMongoURI is returned when no connection string is configured.
var ErrMissingMongoURI = errors.New("ratings: missing mongo uri")

// importBatchSize is the number of upserts sent per BulkWrite.
const importBatchSize = 1000

// ratingDocument is one rating in the collection.
type ratingDocument struct {
	UserID int64   `bson:"user_id"`
	ItemID int64   `bson:"item_id"`
	Rating float64 `bson:"rating"`
}

// MongoSource reads ratings from a MongoDB collection.
type MongoSource struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ slopeone.RatingSource = (*MongoSource)(nil)

// NewMongoSource connects to cfg.URI and pings the server.
// The caller must Close the source.
func NewMongoSource(ctx context.Context, cfg config.MongoConfig) (*MongoSource, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, ErrMissingMongoURI
	}

	opt := options.Client().ApplyURI(uri)
	// ServerAPI is only needed for Atlas clusters
	if strings.HasPrefix(uri, "mongodb+srv://") {
		opt.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	}

	client, err := mongo.Connect(opt)
	if err != nil {
		return nil, fmt.Errorf("ratings: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ratings: mongo ping: %w", err)
	}

	database, collection := cfg.Database, cfg.Collection
	if database == "" {
		database = "slopeone"
	}
	if collection == "" {
		collection = "ratings"
	}

	logging.Info().Str("database", database).Str("collection", collection).Msg("Connected to MongoDB rating source")
	return &MongoSource{client: client, coll: client.Database(database).Collection(collection)}, nil
}

// NewMongoSourceWithCollection wraps an existing collection. Close is a no-op.
func NewMongoSourceWithCollection(coll *mongo.Collection) *MongoSource {
	return &MongoSource{coll: coll}
}

// Close disconnects the client opened by NewMongoSource.
func (s *MongoSource) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique (user_id, item_id) index.
func (s *MongoSource) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_item"),
	})
	if err != nil {
		return fmt.Errorf("ratings: create index: %w", err)
	}
	return nil
}

// EachRating implements slopeone.RatingSource.
func (s *MongoSource) EachRating(ctx context.Context, fn func(slopeone.Rating) error) error {
	cursor, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("ratings: find: %w", err)
	}
	defer closeCursor(ctx, cursor)

	for cursor.Next(ctx) {
		var doc ratingDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("ratings: decode: %w", err)
		}
		if err := fn(doc.rating()); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// UserProfile implements slopeone.RatingSource.
func (s *MongoSource) UserProfile(ctx context.Context, userID int) (*slopeone.UserProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "item_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.D{{Key: "user_id", Value: int64(userID)}}, opts)
	if err != nil {
		return nil, fmt.Errorf("ratings: find user %d: %w", userID, err)
	}
	defer closeCursor(ctx, cursor)

	profile := slopeone.NewUserProfile(userID)
	for cursor.Next(ctx) {
		var doc ratingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("ratings: decode: %w", err)
		}
		if err := profile.Append(int(doc.ItemID), doc.Rating); err != nil {
			return nil, err
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return profile, nil
}

// UnratedItems implements slopeone.RatingSource.
func (s *MongoSource) UnratedItems(ctx context.Context, userID int) ([]int, error) {
	var all []int64
	if err := s.coll.Distinct(ctx, "item_id", bson.D{}).Decode(&all); err != nil {
		return nil, fmt.Errorf("ratings: distinct items: %w", err)
	}

	profile, err := s.UserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]int, 0, len(all))
	for _, item := range all {
		if !profile.Has(int(item)) {
			out = append(out, int(item))
		}
	}
	sort.Ints(out)
	return out, nil
}

// ImportRatings upserts every rating of src, replacing existing
// (user, item) documents.
func (s *MongoSource) ImportRatings(ctx context.Context, src slopeone.RatingSource) (int, error) {
	var (
		batch    []mongo.WriteModel
		imported int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := s.coll.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("ratings: bulk write: %w", err)
		}
		imported += len(batch)
		batch = batch[:0]
		return nil
	}

	err := src.EachRating(ctx, func(r slopeone.Rating) error {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return &slopeone.ConfigurationError{
				Field:  "rating",
				Reason: fmt.Sprintf("user %d item %d has non-finite rating %v", r.UserID, r.ItemID, r.Value),
			}
		}
		doc := ratingDocument{UserID: int64(r.UserID), ItemID: int64(r.ItemID), Rating: r.Value}
		batch = append(batch, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "user_id", Value: doc.UserID}, {Key: "item_id", Value: doc.ItemID}}).
			SetReplacement(doc).
			SetUpsert(true))
		if len(batch) >= importBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return imported, err
	}
	if err := flush(); err != nil {
		return imported, err
	}

	logging.Info().Int("ratings", imported).Msg("Imported ratings into MongoDB")
	return imported, nil
}

func (d ratingDocument) rating() slopeone.Rating {
	return slopeone.Rating{UserID: int(d.UserID), ItemID: int(d.ItemID), Value: d.Rating}
}

func closeCursor(ctx context.Context, cursor *mongo.Cursor) {
	if err := cursor.Close(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to close mongo cursor")
	}
}
