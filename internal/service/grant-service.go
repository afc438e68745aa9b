package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"access_service/internal/catalog"
	"access_service/internal/models"
)

// GrantService is the one write path for grants. Direct admin grants,
// request approvals, template application and bulk operations all end up in
// Grant/Revoke here, so normalization, audit atomicity and cache
// invalidation cannot be bypassed.
type GrantService struct {
	grants    GrantStore
	audit     AuditSink
	cache     DecisionCache
	documents DocumentChecker
	events    AccessEventPublisher
	now       func() time.Time
}

func NewGrantService(grants GrantStore, audit AuditSink, cache DecisionCache, documents DocumentChecker, events AccessEventPublisher) *GrantService {
	return &GrantService{
		grants:    grants,
		audit:     audit,
		cache:     cache,
		documents: documents,
		events:    events,
		now:       time.Now,
	}
}

// Grant creates an active grant for the pair, superseding any previous one.
// The grant insert and its ACCESS_GRANTED audit entry form one unit of work:
// when the audit write fails, the insert is rolled back and the superseded
// grant restored, so an unaudited grant can never exist.
func (s *GrantService) Grant(ctx context.Context, userID string, documentID int, permissions []string, expiresAt time.Time, grantedBy string) (*models.Grant, error) {
	grant, _, err := s.grant(ctx, userID, documentID, permissions, expiresAt, grantedBy)
	return grant, err
}

// grantConflictRetries bounds how often a lost insert race against the
// active-grant unique index is retried before surfacing the conflict.
const grantConflictRetries = 3

func (s *GrantService) grant(ctx context.Context, userID string, documentID int, permissions []string, expiresAt time.Time, grantedBy string) (*models.Grant, *models.Grant, error) {
	for _, id := range permissions {
		if !catalog.IsValid(id) {
			return nil, nil, fmt.Errorf("%w: %q", models.ErrInvalidPermissionSet, id)
		}
	}
	perms := catalog.Normalize(permissions)

	now := s.now()
	if !expiresAt.After(now) {
		return nil, nil, models.ErrInvalidExpiry
	}

	if s.documents != nil {
		exists, err := s.documents.Exists(ctx, documentID)
		if err != nil {
			return nil, nil, fmt.Errorf("document check: %w", err)
		}
		if !exists {
			return nil, nil, models.ErrDocumentNotFound
		}
	}

	var grant, superseded *models.Grant
	for attempt := 0; ; attempt++ {
		var err error
		superseded, err = s.grants.SupersedeActive(ctx, userID, documentID, now.Unix())
		if err != nil {
			return nil, nil, err
		}

		grant = &models.Grant{
			UserID:      userID,
			DocumentID:  documentID,
			Permissions: perms,
			ExpiresAt:   expiresAt.Unix(),
			GrantedBy:   grantedBy,
			GrantedAt:   now.Unix(),
			Status:      models.GrantActive,
		}
		err = s.grants.Insert(ctx, grant)
		if err == nil {
			break
		}
		// A concurrent grant slipped in between supersede and insert and the
		// unique index rejected ours. Supersede again so last writer wins.
		if errors.Is(err, models.ErrGrantConflict) && attempt < grantConflictRetries {
			continue
		}
		if superseded != nil {
			if rbErr := s.grants.Reactivate(ctx, superseded.ID); rbErr != nil {
				log.Printf("Failed to restore superseded grant %s: %s", superseded.ID.Hex(), rbErr)
			}
		}
		return nil, nil, err
	}

	entry := &models.AuditEntry{
		Action:       models.AuditAccessGranted,
		ActorID:      grantedBy,
		TargetUserID: userID,
		DocumentID:   documentID,
		Timestamp:    now.Unix(),
		Metadata: map[string]any{
			"permissions": perms,
			"expiresAt":   expiresAt.Unix(),
			"superseded":  superseded != nil,
		},
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		if rbErr := s.grants.Remove(ctx, grant.ID); rbErr != nil {
			log.Printf("Failed to roll back unaudited grant %s: %s", grant.ID.Hex(), rbErr)
		}
		if superseded != nil {
			if rbErr := s.grants.Reactivate(ctx, superseded.ID); rbErr != nil {
				log.Printf("Failed to restore superseded grant %s: %s", superseded.ID.Hex(), rbErr)
			}
		}
		return nil, nil, err
	}

	s.syncCache(ctx, grant)

	if s.events != nil {
		if err := s.events.PublishAccessGranted(ctx, grant); err != nil {
			log.Printf("Failed to publish access.granted for user %s document %d: %s", userID, documentID, err)
		}
	}

	return grant, superseded, nil
}

// withdraw undoes a grant the calling operation just created, revoking it
// only while it is still the pair's active grant and restoring whatever it
// superseded. A grant another writer has already superseded is left alone.
func (s *GrantService) withdraw(ctx context.Context, grant, superseded *models.Grant, withdrawnBy string) error {
	now := s.now()

	revoked, err := s.grants.RevokeByID(ctx, grant.ID, now.Unix())
	if err != nil {
		return err
	}
	if revoked == nil {
		// Someone else superseded it already; their grant is the pair's
		// truth and there is nothing left to undo.
		return nil
	}

	if superseded != nil {
		if err := s.grants.Reactivate(ctx, superseded.ID); err != nil {
			log.Printf("Failed to restore superseded grant %s: %s", superseded.ID.Hex(), err)
		}
		if err := s.cache.WriteGrantMirror(ctx, superseded); err != nil {
			log.Printf("Failed to write grant mirror for user %s document %d: %s", grant.UserID, grant.DocumentID, err)
		}
	} else {
		if err := s.cache.DeleteGrantMirror(ctx, grant.UserID, grant.DocumentID); err != nil {
			log.Printf("Failed to delete grant mirror for user %s document %d: %s", grant.UserID, grant.DocumentID, err)
		}
	}
	if err := s.cache.InvalidateDecision(ctx, grant.UserID, grant.DocumentID); err != nil {
		log.Printf("Failed to invalidate decision cache for user %s document %d: %s", grant.UserID, grant.DocumentID, err)
	}

	entry := &models.AuditEntry{
		Action:       models.AuditAccessRevoked,
		ActorID:      withdrawnBy,
		TargetUserID: grant.UserID,
		DocumentID:   grant.DocumentID,
		Timestamp:    now.Unix(),
		Metadata:     map[string]any{"permissions": grant.Permissions, "withdrawn": true},
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		// Already inside a failure path; the withdrawal stands either way.
		log.Printf("Failed to record withdrawal of grant %s: %s", grant.ID.Hex(), err)
	}
	return nil
}

// Revoke is idempotent: revoking a pair with no active grant is a success
// and produces no audit noise. ACCESS_REVOKED is written only when an active
// grant was actually closed.
func (s *GrantService) Revoke(ctx context.Context, userID string, documentID int, revokedBy string) error {
	now := s.now()

	revoked, err := s.grants.RevokeActive(ctx, userID, documentID, now.Unix())
	if err != nil {
		return err
	}

	if err := s.cache.DeleteGrantMirror(ctx, userID, documentID); err != nil {
		log.Printf("Failed to delete grant mirror for user %s document %d: %s", userID, documentID, err)
	}
	if err := s.cache.InvalidateDecision(ctx, userID, documentID); err != nil {
		log.Printf("Failed to invalidate decision cache for user %s document %d: %s", userID, documentID, err)
	}

	if revoked == nil {
		return nil
	}

	entry := &models.AuditEntry{
		Action:       models.AuditAccessRevoked,
		ActorID:      revokedBy,
		TargetUserID: userID,
		DocumentID:   documentID,
		Timestamp:    now.Unix(),
		Metadata:     map[string]any{"permissions": revoked.Permissions},
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		// The grant stays revoked: re-activating access because the audit
		// store is down would fail open. Surface the failure instead.
		return err
	}

	if s.events != nil {
		if err := s.events.PublishAccessRevoked(ctx, userID, documentID, revokedBy); err != nil {
			log.Printf("Failed to publish access.revoked for user %s document %d: %s", userID, documentID, err)
		}
	}

	return nil
}

// RevokeAllForDocument closes every active grant on a document. Used when
// the document store reports a deletion.
func (s *GrantService) RevokeAllForDocument(ctx context.Context, documentID int, revokedBy string) (int, error) {
	grants, err := s.grants.ListActiveByDocument(ctx, documentID, s.now().Unix())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, grant := range grants {
		if err := s.Revoke(ctx, grant.UserID, documentID, revokedBy); err != nil {
			log.Printf("Failed to revoke grant for user %s document %d: %s", grant.UserID, documentID, err)
			continue
		}
		revoked++
	}
	return revoked, nil
}

func (s *GrantService) FindActive(ctx context.Context, userID string, documentID int) (*models.Grant, error) {
	return s.grants.FindActive(ctx, userID, documentID, s.now().Unix())
}

func (s *GrantService) ListActive(ctx context.Context, filter models.GrantFilter) ([]*models.Grant, error) {
	return s.grants.ListActive(ctx, filter, s.now().Unix())
}

func (s *GrantService) syncCache(ctx context.Context, grant *models.Grant) {
	if err := s.cache.WriteGrantMirror(ctx, grant); err != nil {
		log.Printf("Failed to write grant mirror for user %s document %d: %s", grant.UserID, grant.DocumentID, err)
	}
	if err := s.cache.InvalidateDecision(ctx, grant.UserID, grant.DocumentID); err != nil {
		log.Printf("Failed to invalidate decision cache for user %s document %d: %s", grant.UserID, grant.DocumentID, err)
	}
}
