package service

import (
	"context"

	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Storage contracts consumed by the services. The Mongo repositories satisfy
// them in production; tests substitute in-memory fakes.

type GrantStore interface {
	Insert(ctx context.Context, grant *models.Grant) error
	Remove(ctx context.Context, id bson.ObjectID) error
	SupersedeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error)
	Reactivate(ctx context.Context, id bson.ObjectID) error
	RevokeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error)
	RevokeByID(ctx context.Context, id bson.ObjectID, closedAt int64) (*models.Grant, error)
	FindActive(ctx context.Context, userID string, documentID int, now int64) (*models.Grant, error)
	ListActive(ctx context.Context, f models.GrantFilter, now int64) ([]*models.Grant, error)
	ListActiveByDocument(ctx context.Context, documentID int, now int64) ([]*models.Grant, error)
}

type RequestStore interface {
	Insert(ctx context.Context, request *models.AccessRequest) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessRequest, error)
	FindPending(ctx context.Context, userID string, documentID int) (*models.AccessRequest, error)
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AccessRequest, error)
	CountByStatus(ctx context.Context, status models.RequestStatus) (int64, error)
	MarkReviewed(ctx context.Context, id bson.ObjectID, status models.RequestStatus, reviewerID, note string, reviewedAt int64) error
}

type TemplateStore interface {
	Insert(ctx context.Context, template *models.AccessTemplate) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessTemplate, error)
	FindByName(ctx context.Context, name string) (*models.AccessTemplate, error)
	List(ctx context.Context) ([]*models.AccessTemplate, error)
	Remove(ctx context.Context, id bson.ObjectID) error
}

// AuditSink must be append-only. A failed Record on a grant mutation or an
// access decision is treated as a failure of the operation itself.
type AuditSink interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// DecisionCache is the invalidation hook into the external response cache
// plus the Redis grant mirror the ACL sync job reads.
type DecisionCache interface {
	InvalidateDecision(ctx context.Context, userID string, documentID int) error
	WriteGrantMirror(ctx context.Context, grant *models.Grant) error
	DeleteGrantMirror(ctx context.Context, userID string, documentID int) error
}

// DocumentChecker asks the document store whether a document id exists.
type DocumentChecker interface {
	Exists(ctx context.Context, documentID int) (bool, error)
}

// AccessEventPublisher fans grant lifecycle changes out to the broker.
// Publishing is best-effort: the audit trail is the mandatory record.
type AccessEventPublisher interface {
	PublishAccessGranted(ctx context.Context, grant *models.Grant) error
	PublishAccessRevoked(ctx context.Context, userID string, documentID int, revokedBy string) error
	PublishRequestSubmitted(ctx context.Context, request *models.AccessRequest) error
	PublishRequestReviewed(ctx context.Context, request *models.AccessRequest) error
}
