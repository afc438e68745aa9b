package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type GrantRepository struct {
	collection *mongo.Collection
}

func NewGrantRepository(db *mongo.Database) *GrantRepository {
	r := &GrantRepository{
		collection: db.Collection("Grant"),
	}
	r.ensureIndexes()
	return r
}

// The partial unique index is what enforces one active grant per pair: two
// concurrent grants can both pass SupersedeActive, but only one insert wins
// and the loser gets a duplicate-key error to retry on.
func (r *GrantRepository) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "documentId", Value: 1},
		},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": models.GrantActive}),
	})
	if err != nil {
		log.Printf("Failed to create active-grant unique index: %s", err)
	}
}

func (r *GrantRepository) Insert(ctx context.Context, grant *models.Grant) error {
	if grant.ID.IsZero() {
		grant.ID = bson.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, grant)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: user %s document %d", models.ErrGrantConflict, grant.UserID, grant.DocumentID)
		}
		return fmt.Errorf("%w: insert grant: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// SupersedeActive marks the current active grant for the pair as superseded
// and returns it, or nil when the pair has no active grant. The single
// FindOneAndUpdate keeps concurrent re-grants last-writer-wins without a
// read-modify-write window.
func (r *GrantRepository) SupersedeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error) {
	filter := bson.M{
		"userId":     userID,
		"documentId": documentID,
		"status":     models.GrantActive,
	}
	update := bson.M{"$set": bson.M{
		"status":   models.GrantSuperseded,
		"closedAt": closedAt,
	}}

	var old models.Grant
	err := r.collection.FindOneAndUpdate(ctx, filter, update).Decode(&old)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: supersede grant: %v", models.ErrStoreUnavailable, err)
	}
	return &old, nil
}

// Reactivate undoes a supersede when the replacement grant could not be
// audited and had to be rolled back.
func (r *GrantRepository) Reactivate(ctx context.Context, id bson.ObjectID) error {
	update := bson.M{
		"$set":   bson.M{"status": models.GrantActive},
		"$unset": bson.M{"closedAt": ""},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("%w: reactivate grant: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *GrantRepository) Remove(ctx context.Context, id bson.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: remove grant: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeActive flips the active grant for the pair to revoked and returns it.
// Returns nil when nothing was active, which callers treat as success.
func (r *GrantRepository) RevokeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error) {
	filter := bson.M{
		"userId":     userID,
		"documentId": documentID,
		"status":     models.GrantActive,
		"expiresAt":  bson.M{"$gt": closedAt},
	}
	update := bson.M{"$set": bson.M{
		"status":   models.GrantRevoked,
		"closedAt": closedAt,
	}}

	var old models.Grant
	err := r.collection.FindOneAndUpdate(ctx, filter, update).Decode(&old)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: revoke grant: %v", models.ErrStoreUnavailable, err)
	}
	return &old, nil
}

// RevokeByID revokes one specific grant, and only while it is still the
// active one. Used to withdraw a grant its own operation created; a grant
// another writer already superseded is left alone, so the withdrawal never
// touches access someone else established.
func (r *GrantRepository) RevokeByID(ctx context.Context, id bson.ObjectID, closedAt int64) (*models.Grant, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.GrantActive,
	}
	update := bson.M{"$set": bson.M{
		"status":   models.GrantRevoked,
		"closedAt": closedAt,
	}}

	var old models.Grant
	err := r.collection.FindOneAndUpdate(ctx, filter, update).Decode(&old)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: revoke grant by id: %v", models.ErrStoreUnavailable, err)
	}
	return &old, nil
}

func (r *GrantRepository) FindActive(ctx context.Context, userID string, documentID int, now int64) (*models.Grant, error) {
	r.flagExpired(ctx, bson.M{"userId": userID, "documentId": documentID}, now)

	filter := bson.M{
		"userId":     userID,
		"documentId": documentID,
		"status":     models.GrantActive,
		"expiresAt":  bson.M{"$gt": now},
	}

	var grant models.Grant
	err := r.collection.FindOne(ctx, filter).Decode(&grant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find grant: %v", models.ErrStoreUnavailable, err)
	}
	return &grant, nil
}

func (r *GrantRepository) ListActive(ctx context.Context, f models.GrantFilter, now int64) ([]*models.Grant, error) {
	filter := bson.M{
		"status":    models.GrantActive,
		"expiresAt": bson.M{"$gt": now},
	}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.DocumentID != 0 {
		filter["documentId"] = f.DocumentID
	}

	r.flagExpired(ctx, nil, now)

	opts := options.Find().SetSort(bson.D{{Key: "grantedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", models.ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var grants []*models.Grant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", models.ErrStoreUnavailable, err)
	}
	return grants, nil
}

func (r *GrantRepository) ListActiveByDocument(ctx context.Context, documentID int, now int64) ([]*models.Grant, error) {
	return r.ListActive(ctx, models.GrantFilter{DocumentID: documentID}, now)
}

// flagExpired lazily marks run-out grants at read time so the active set
// stays clean without a background sweep. Expiry correctness never depends
// on it: every active-grant filter also checks expiresAt against now.
func (r *GrantRepository) flagExpired(ctx context.Context, scope bson.M, now int64) {
	filter := bson.M{
		"status":    models.GrantActive,
		"expiresAt": bson.M{"$lte": now},
	}
	for k, v := range scope {
		filter[k] = v
	}
	update := bson.M{"$set": bson.M{"status": models.GrantExpired, "closedAt": now}}
	_, _ = r.collection.UpdateMany(ctx, filter, update)
}
