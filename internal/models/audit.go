package models

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

type AuditAction string

const (
	AuditAccessGranted     AuditAction = "ACCESS_GRANTED"
	AuditAccessRevoked     AuditAction = "ACCESS_REVOKED"
	AuditAccessDenied      AuditAction = "ACCESS_DENIED"
	AuditDocumentView      AuditAction = "DOCUMENT_VIEW"
	AuditDocumentDownload  AuditAction = "DOCUMENT_DOWNLOAD"
	AuditDocumentOcr       AuditAction = "DOCUMENT_OCR"
	AuditDocumentAiSummary AuditAction = "DOCUMENT_AI_SUMMARY"
	AuditDocumentUpload    AuditAction = "DOCUMENT_UPLOAD"
	AuditRequestSubmitted  AuditAction = "REQUEST_SUBMITTED"
	AuditRequestApproved   AuditAction = "REQUEST_APPROVED"
	AuditRequestRejected   AuditAction = "REQUEST_REJECTED"
)

// AuditEntry is an immutable fact. The audit repository exposes no update or
// delete methods; entries are only ever appended.
type AuditEntry struct {
	ID           bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	Action       AuditAction    `bson:"action" json:"action"`
	ActorID      string         `bson:"actorId" json:"actorId"`
	TargetUserID string         `bson:"targetUserId,omitempty" json:"targetUserId,omitempty"`
	DocumentID   int            `bson:"documentId,omitempty" json:"documentId,omitempty"`
	Timestamp    int64          `bson:"timestamp" json:"timestamp"`
	Metadata     map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// GrantedAction maps a permission id to the audit action recorded when an
// access decision allows it.
func GrantedAction(permission string) AuditAction {
	switch permission {
	case PermissionDownload:
		return AuditDocumentDownload
	case PermissionOcr:
		return AuditDocumentOcr
	case PermissionAiSummary:
		return AuditDocumentAiSummary
	case PermissionUpload:
		return AuditDocumentUpload
	default:
		return AuditDocumentView
	}
}

type AuditStats struct {
	Total    int64                 `json:"total"`
	Denied   int64                 `json:"denied"`
	Today    int64                 `json:"today"`
	ByAction map[AuditAction]int64 `json:"byAction"`
	DenyRate float64               `json:"denyRate"`
}
