package repository

import (
	"context"
	"errors"
	"fmt"

	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type TemplateRepository struct {
	collection *mongo.Collection
}

func NewTemplateRepository(db *mongo.Database) *TemplateRepository {
	return &TemplateRepository{
		collection: db.Collection("AccessTemplate"),
	}
}

func (r *TemplateRepository) Insert(ctx context.Context, template *models.AccessTemplate) error {
	if template.ID.IsZero() {
		template.ID = bson.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, template)
	if err != nil {
		return fmt.Errorf("%w: insert template: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessTemplate, error) {
	var template models.AccessTemplate
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&template)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("%w: find template: %v", models.ErrStoreUnavailable, err)
	}
	return &template, nil
}

func (r *TemplateRepository) FindByName(ctx context.Context, name string) (*models.AccessTemplate, error) {
	var template models.AccessTemplate
	err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&template)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("%w: find template: %v", models.ErrStoreUnavailable, err)
	}
	return &template, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.AccessTemplate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list templates: %v", models.ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var templates []*models.AccessTemplate
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, fmt.Errorf("%w: list templates: %v", models.ErrStoreUnavailable, err)
	}
	return templates, nil
}

func (r *TemplateRepository) Remove(ctx context.Context, id bson.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: remove template: %v", models.ErrStoreUnavailable, err)
	}
	if result.DeletedCount == 0 {
		return models.ErrTemplateNotFound
	}
	return nil
}
