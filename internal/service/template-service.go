package service

import (
	"context"
	"fmt"
	"time"

	"access_service/internal/catalog"
	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TemplateService manages named {permissions, duration} presets. Applying a
// template is sugar for a direct grant expiring defaultDurationDays from now.
type TemplateService struct {
	templates TemplateStore
	grants    *GrantService
	now       func() time.Time
}

func NewTemplateService(templates TemplateStore, grants *GrantService) *TemplateService {
	return &TemplateService{
		templates: templates,
		grants:    grants,
		now:       time.Now,
	}
}

func (s *TemplateService) Create(ctx context.Context, name string, permissions []string, durationDays int, description string) (*models.AccessTemplate, error) {
	if durationDays <= 0 {
		return nil, models.ErrInvalidExpiry
	}
	for _, id := range permissions {
		if !catalog.IsValid(id) {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidPermissionSet, id)
		}
	}

	existing, err := s.templates.FindByName(ctx, name)
	if err != nil && err != models.ErrTemplateNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrTemplateExists
	}

	template := &models.AccessTemplate{
		Name:                name,
		Permissions:         catalog.Normalize(permissions),
		DefaultDurationDays: durationDays,
		Description:         description,
		CreatedAt:           s.now().Unix(),
	}
	if err := s.templates.Insert(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

func (s *TemplateService) List(ctx context.Context) ([]*models.AccessTemplate, error) {
	return s.templates.List(ctx)
}

func (s *TemplateService) Delete(ctx context.Context, id bson.ObjectID) error {
	return s.templates.Remove(ctx, id)
}

func (s *TemplateService) Apply(ctx context.Context, id bson.ObjectID, userID string, documentID int, appliedBy string) (*models.Grant, error) {
	template, err := s.templates.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().AddDate(0, 0, template.DefaultDurationDays)
	return s.grants.Grant(ctx, userID, documentID, template.Permissions, expiresAt, appliedBy)
}
