package repository

import (
	"context"
	"fmt"
	"time"

	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// AuditRepository is append-only: there is deliberately no update or delete
// method on it.
type AuditRepository struct {
	collection *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{
		collection: db.Collection("AuditLog"),
	}
}

func (r *AuditRepository) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID.IsZero() {
		entry.ID = bson.NewObjectID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}

	_, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrAuditWriteFailed, err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list audit log: %v", models.ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AuditEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("%w: list audit log: %v", models.ErrStoreUnavailable, err)
	}
	return entries, nil
}

func (r *AuditRepository) Stats(ctx context.Context, now time.Time) (*models.AuditStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$action",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: audit stats: %v", models.ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Action models.AuditAction `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: audit stats: %v", models.ErrStoreUnavailable, err)
	}

	stats := &models.AuditStats{ByAction: make(map[models.AuditAction]int64)}
	for _, row := range rows {
		stats.ByAction[row.Action] = row.Count
		stats.Total += row.Count
		if row.Action == models.AuditAccessDenied {
			stats.Denied = row.Count
		}
	}
	if stats.Total > 0 {
		stats.DenyRate = float64(stats.Denied) / float64(stats.Total)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := r.collection.CountDocuments(ctx, bson.M{"timestamp": bson.M{"$gte": midnight.Unix()}})
	if err != nil {
		return nil, fmt.Errorf("%w: audit stats: %v", models.ErrStoreUnavailable, err)
	}
	stats.Today = today

	return stats, nil
}
