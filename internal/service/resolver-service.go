package service

import (
	"context"
	"fmt"
	"time"

	"access_service/internal/catalog"
	"access_service/internal/models"
)

// ResolverService answers "may this principal perform this action on this
// document". Every call writes exactly one audit entry, permit or deny; when
// that write fails the decision fails closed.
type ResolverService struct {
	grants GrantStore
	audit  AuditSink
	now    func() time.Time
}

func NewResolverService(grants GrantStore, audit AuditSink) *ResolverService {
	return &ResolverService{
		grants: grants,
		audit:  audit,
		now:    time.Now,
	}
}

func (s *ResolverService) Resolve(ctx context.Context, principal models.Principal, documentID int, action string) (models.Decision, error) {
	if !catalog.IsValid(action) {
		return models.Decision{}, fmt.Errorf("%w: %q", models.ErrInvalidPermissionSet, action)
	}

	now := s.now()
	decision := models.Decision{}

	switch {
	case principal.IsAdmin():
		decision = models.Decision{Allowed: true, Reason: models.ReasonAdminBypass}
	default:
		grant, err := s.grants.FindActive(ctx, principal.ID, documentID, now.Unix())
		if err != nil {
			return models.Decision{}, err
		}
		switch {
		case grant == nil:
			decision = models.Decision{Allowed: false, Reason: models.ReasonNoGrant}
		case !grant.Allows(action):
			decision = models.Decision{Allowed: false, Reason: models.ReasonPermissionNotGranted}
		default:
			decision = models.Decision{Allowed: true, Reason: models.ReasonGranted, ExpiresAt: grant.ExpiresAt}
		}
	}

	if err := s.recordDecision(ctx, principal, documentID, action, decision, now); err != nil {
		return models.Decision{Allowed: false, Reason: decision.Reason}, err
	}
	return decision, nil
}

// ResolveAll computes the full capability set for a document in one grant
// lookup, so document lists do not trigger a resolve call per action. It
// counts as one access decision and writes one audit entry.
func (s *ResolverService) ResolveAll(ctx context.Context, principal models.Principal, documentID int) (models.AccessFlags, error) {
	now := s.now()

	flags := models.AccessFlags{}
	reason := models.ReasonNoGrant

	if principal.IsAdmin() {
		flags = models.AccessFlags{CanView: true, CanDownload: true, CanOcr: true, CanAiSummary: true}
		reason = models.ReasonAdminBypass
	} else {
		grant, err := s.grants.FindActive(ctx, principal.ID, documentID, now.Unix())
		if err != nil {
			return models.AccessFlags{}, err
		}
		if grant != nil {
			flags = models.AccessFlags{
				CanView:      grant.Allows(models.PermissionView),
				CanDownload:  grant.Allows(models.PermissionDownload),
				CanOcr:       grant.Allows(models.PermissionOcr),
				CanAiSummary: grant.Allows(models.PermissionAiSummary),
			}
			reason = models.ReasonGranted
		}
	}

	decision := models.Decision{Allowed: flags.CanView, Reason: reason}
	if err := s.recordDecision(ctx, principal, documentID, models.PermissionView, decision, now); err != nil {
		return models.AccessFlags{}, err
	}
	return flags, nil
}

func (s *ResolverService) recordDecision(ctx context.Context, principal models.Principal, documentID int, action string, decision models.Decision, now time.Time) error {
	auditAction := models.AuditAccessDenied
	if decision.Allowed {
		auditAction = models.GrantedAction(action)
	}

	entry := &models.AuditEntry{
		Action:       auditAction,
		ActorID:      principal.ID,
		TargetUserID: principal.ID,
		DocumentID:   documentID,
		Timestamp:    now.Unix(),
		Metadata: map[string]any{
			"action": action,
			"reason": string(decision.Reason),
		},
	}
	return s.audit.Record(ctx, entry)
}
