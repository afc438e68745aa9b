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

type RequestRepository struct {
	collection *mongo.Collection
}

func NewRequestRepository(db *mongo.Database) *RequestRepository {
	r := &RequestRepository{
		collection: db.Collection("AccessRequest"),
	}
	r.ensureIndexes()
	return r
}

// One pending request per pair is enforced here, not by the read-then-insert
// in the service: concurrent submits both pass the pending lookup, but the
// second insert hits the partial unique index.
func (r *RequestRepository) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "documentId", Value: 1},
		},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": models.RequestPending}),
	})
	if err != nil {
		log.Printf("Failed to create pending-request unique index: %s", err)
	}
}

func (r *RequestRepository) Insert(ctx context.Context, request *models.AccessRequest) error {
	if request.ID.IsZero() {
		request.ID = bson.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, request)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrDuplicateRequest
		}
		return fmt.Errorf("%w: insert access request: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessRequest, error) {
	var request models.AccessRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrRequestNotFound
		}
		return nil, fmt.Errorf("%w: find access request: %v", models.ErrStoreUnavailable, err)
	}
	return &request, nil
}

func (r *RequestRepository) FindPending(ctx context.Context, userID string, documentID int) (*models.AccessRequest, error) {
	filter := bson.M{
		"userId":     userID,
		"documentId": documentID,
		"status":     models.RequestPending,
	}

	var request models.AccessRequest
	err := r.collection.FindOne(ctx, filter).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find pending request: %v", models.ErrStoreUnavailable, err)
	}
	return &request, nil
}

func (r *RequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AccessRequest, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list access requests: %v", models.ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var requests []*models.AccessRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("%w: list access requests: %v", models.ErrStoreUnavailable, err)
	}
	return requests, nil
}

func (r *RequestRepository) CountByStatus(ctx context.Context, status models.RequestStatus) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		return 0, fmt.Errorf("%w: count access requests: %v", models.ErrStoreUnavailable, err)
	}
	return count, nil
}

// MarkReviewed transitions a request out of pending. The filter pins the
// current status so a concurrent reviewer loses cleanly with
// ErrInvalidTransition instead of double-stamping.
func (r *RequestRepository) MarkReviewed(ctx context.Context, id bson.ObjectID, status models.RequestStatus, reviewerID, note string, reviewedAt int64) error {
	filter := bson.M{"_id": id, "status": models.RequestPending}
	update := bson.M{"$set": bson.M{
		"status":     status,
		"reviewedBy": reviewerID,
		"reviewNote": note,
		"reviewedAt": reviewedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: review access request: %v", models.ErrStoreUnavailable, err)
	}
	if result.MatchedCount == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}
