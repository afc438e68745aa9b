package service

import (
	"context"
	"time"

	"access_service/internal/models"
)

type AuditReader interface {
	List(ctx context.Context, limit, offset int) ([]*models.AuditEntry, error)
	Stats(ctx context.Context, now time.Time) (*models.AuditStats, error)
}

// AuditService is the read side of the audit trail. Writes happen inside the
// grant, resolver and request services as part of their unit of work.
type AuditService struct {
	audit AuditReader
	now   func() time.Time
}

func NewAuditService(audit AuditReader) *AuditService {
	return &AuditService{
		audit: audit,
		now:   time.Now,
	}
}

func (s *AuditService) List(ctx context.Context, limit, offset int) ([]*models.AuditEntry, error) {
	return s.audit.List(ctx, limit, offset)
}

func (s *AuditService) Stats(ctx context.Context) (*models.AuditStats, error) {
	return s.audit.Stats(ctx, s.now())
}
