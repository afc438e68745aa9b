package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"access_service/internal/catalog"
	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RequestService drives the access-request state machine:
// pending -> approved or pending -> rejected, both terminal.
type RequestService struct {
	requests RequestStore
	grants   *GrantService
	audit    AuditSink
	events   AccessEventPublisher
	now      func() time.Time
}

func NewRequestService(requests RequestStore, grants *GrantService, audit AuditSink, events AccessEventPublisher) *RequestService {
	return &RequestService{
		requests: requests,
		grants:   grants,
		audit:    audit,
		events:   events,
		now:      time.Now,
	}
}

func (s *RequestService) Submit(ctx context.Context, userID string, documentID int, reason string, permissions []string) (*models.AccessRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, models.ErrEmptyReason
	}

	if len(permissions) == 0 {
		permissions = []string{models.PermissionView, models.PermissionDownload}
	}
	for _, id := range permissions {
		if !catalog.IsValid(id) {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidPermissionSet, id)
		}
	}
	perms := catalog.Normalize(permissions)

	existing, err := s.requests.FindPending(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrDuplicateRequest
	}

	request := &models.AccessRequest{
		UserID:               userID,
		DocumentID:           documentID,
		Reason:               reason,
		RequestedPermissions: perms,
		Status:               models.RequestPending,
		CreatedAt:            s.now().Unix(),
	}
	if err := s.requests.Insert(ctx, request); err != nil {
		return nil, err
	}

	s.recordLifecycle(ctx, models.AuditRequestSubmitted, userID, request, "")
	if s.events != nil {
		if err := s.events.PublishRequestSubmitted(ctx, request); err != nil {
			log.Printf("Failed to publish access.requested for request %s: %s", request.ID.Hex(), err)
		}
	}

	return request, nil
}

// Approve creates the grant first and only then stamps the request, so a
// failed grant leaves the request pending instead of silently approved. The
// reviewer may pass an override permission set; an empty override binds the
// grant to the permissions originally requested.
func (s *RequestService) Approve(ctx context.Context, requestID bson.ObjectID, expiresAt time.Time, note, reviewerID string, overridePermissions []string) (*models.Grant, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestPending {
		return nil, models.ErrInvalidTransition
	}

	permissions := request.RequestedPermissions
	if len(overridePermissions) > 0 {
		permissions = overridePermissions
	}

	grant, superseded, err := s.grants.grant(ctx, request.UserID, request.DocumentID, permissions, expiresAt, reviewerID)
	if err != nil {
		return nil, err
	}

	reviewedAt := s.now().Unix()
	if err := s.requests.MarkReviewed(ctx, requestID, models.RequestApproved, reviewerID, note, reviewedAt); err != nil {
		// Lost the race against another reviewer. Withdraw only the grant
		// this approval created, by identity, and restore what it replaced;
		// revoking whatever is active for the pair would tear down the
		// winning reviewer's grant instead.
		if rbErr := s.grants.withdraw(ctx, grant, superseded, reviewerID); rbErr != nil {
			log.Printf("Failed to withdraw grant after losing review race on request %s: %s", requestID.Hex(), rbErr)
		}
		return nil, err
	}

	request.Status = models.RequestApproved
	request.ReviewedBy = reviewerID
	request.ReviewNote = note
	request.ReviewedAt = reviewedAt

	s.recordLifecycle(ctx, models.AuditRequestApproved, reviewerID, request, note)
	if s.events != nil {
		if err := s.events.PublishRequestReviewed(ctx, request); err != nil {
			log.Printf("Failed to publish request review for request %s: %s", requestID.Hex(), err)
		}
	}

	return grant, nil
}

func (s *RequestService) Reject(ctx context.Context, requestID bson.ObjectID, note, reviewerID string) (*models.AccessRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	reviewedAt := s.now().Unix()
	if err := s.requests.MarkReviewed(ctx, requestID, models.RequestRejected, reviewerID, note, reviewedAt); err != nil {
		return nil, err
	}

	request.Status = models.RequestRejected
	request.ReviewedBy = reviewerID
	request.ReviewNote = note
	request.ReviewedAt = reviewedAt

	s.recordLifecycle(ctx, models.AuditRequestRejected, reviewerID, request, note)
	if s.events != nil {
		if err := s.events.PublishRequestReviewed(ctx, request); err != nil {
			log.Printf("Failed to publish request review for request %s: %s", requestID.Hex(), err)
		}
	}

	return request, nil
}

func (s *RequestService) List(ctx context.Context, status models.RequestStatus) ([]*models.AccessRequest, error) {
	return s.requests.ListByStatus(ctx, status)
}

func (s *RequestService) CountPending(ctx context.Context) (int64, error) {
	return s.requests.CountByStatus(ctx, models.RequestPending)
}

// Request lifecycle entries are secondary to the mandatory grant/decision
// audit trail; a failed write here is logged, not propagated.
func (s *RequestService) recordLifecycle(ctx context.Context, action models.AuditAction, actorID string, request *models.AccessRequest, note string) {
	metadata := map[string]any{
		"requestId":   request.ID.Hex(),
		"permissions": request.RequestedPermissions,
	}
	if note != "" {
		metadata["note"] = note
	}

	entry := &models.AuditEntry{
		Action:       action,
		ActorID:      actorID,
		TargetUserID: request.UserID,
		DocumentID:   request.DocumentID,
		Timestamp:    s.now().Unix(),
		Metadata:     metadata,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Printf("Failed to record %s for request %s: %s", action, request.ID.Hex(), err)
	}
}
