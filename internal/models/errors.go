package models

import "errors"

var (
	ErrInvalidExpiry        = errors.New("expiry must be in the future")
	ErrInvalidPermissionSet = errors.New("unknown permission id")
	ErrEmptyReason          = errors.New("reason is required")
	ErrDuplicateRequest     = errors.New("a pending request already exists for this document")
	ErrInvalidTransition    = errors.New("request is not pending")
	ErrRequestNotFound      = errors.New("access request not found")
	ErrGrantNotFound        = errors.New("no active grant")
	ErrGrantConflict        = errors.New("another active grant was created concurrently")
	ErrTemplateNotFound     = errors.New("access template not found")
	ErrTemplateExists       = errors.New("access template name already in use")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrAuditWriteFailed     = errors.New("audit write failed")
)

// ErrorCode maps a taxonomy error to the stable code string surfaced in
// structured {error, code} bodies and bulk per-id reports.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidExpiry):
		return "InvalidExpiry"
	case errors.Is(err, ErrInvalidPermissionSet):
		return "InvalidPermissionSet"
	case errors.Is(err, ErrEmptyReason):
		return "EmptyReason"
	case errors.Is(err, ErrDuplicateRequest):
		return "DuplicateRequest"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrRequestNotFound):
		return "RequestNotFound"
	case errors.Is(err, ErrGrantNotFound):
		return "GrantNotFound"
	case errors.Is(err, ErrGrantConflict):
		return "GrantConflict"
	case errors.Is(err, ErrTemplateNotFound):
		return "TemplateNotFound"
	case errors.Is(err, ErrTemplateExists):
		return "TemplateExists"
	case errors.Is(err, ErrDocumentNotFound):
		return "DocumentNotFound"
	case errors.Is(err, ErrUserNotFound):
		return "UserNotFound"
	case errors.Is(err, ErrAuditWriteFailed):
		return "AuditWriteFailed"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	default:
		return "Internal"
	}
}
