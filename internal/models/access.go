package models

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Permission ids are a closed set; anything else is rejected at the boundary.
const (
	PermissionView      = "view"
	PermissionDownload  = "download"
	PermissionOcr       = "ocr"
	PermissionAiSummary = "ai_summary"
	PermissionUpload    = "upload"
)

type PermissionType struct {
	ID          string `bson:"_id" json:"id"`
	Label       string `bson:"label" json:"label"`
	Description string `bson:"description" json:"description"`
}

type GrantStatus string

const (
	GrantActive     GrantStatus = "active"
	GrantSuperseded GrantStatus = "superseded"
	GrantRevoked    GrantStatus = "revoked"
	GrantExpired    GrantStatus = "expired"
)

// Grant is a time-bounded permission set for one user on one document.
// A (userId, documentId) pair holds at most one active grant; re-granting
// supersedes the previous one instead of editing it in place.
type Grant struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string        `bson:"userId" json:"userId"`
	DocumentID  int           `bson:"documentId" json:"documentId"`
	Permissions []string      `bson:"permissions" json:"permissions"`
	ExpiresAt   int64         `bson:"expiresAt" json:"expiresAt"`
	GrantedBy   string        `bson:"grantedBy" json:"grantedBy"`
	GrantedAt   int64         `bson:"grantedAt" json:"grantedAt"`
	Status      GrantStatus   `bson:"status" json:"status"`
	ClosedAt    int64         `bson:"closedAt,omitempty" json:"-"`
}

func (g *Grant) Allows(permission string) bool {
	return slices.Contains(g.Permissions, permission)
}

func (g *Grant) ActiveAt(now time.Time) bool {
	return g.Status == GrantActive && g.ExpiresAt > now.Unix()
}

type GrantFilter struct {
	UserID     string
	DocumentID int
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AccessRequest is a user-initiated ask for a grant. Status transitions are
// pending -> approved or pending -> rejected, both terminal.
type AccessRequest struct {
	ID                   bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID               string        `bson:"userId" json:"userId"`
	DocumentID           int           `bson:"documentId" json:"documentId"`
	Reason               string        `bson:"reason" json:"reason"`
	RequestedPermissions []string      `bson:"requestedPermissions" json:"requestedPermissions"`
	Status               RequestStatus `bson:"status" json:"status"`
	CreatedAt            int64         `bson:"createdAt" json:"createdAt"`
	ReviewedBy           string        `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewNote           string        `bson:"reviewNote,omitempty" json:"reviewNote,omitempty"`
	ReviewedAt           int64         `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
}

// AccessTemplate is a named preset for grant creation.
type AccessTemplate struct {
	ID                  bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                string        `bson:"name" json:"name"`
	Permissions         []string      `bson:"permissions" json:"permissions"`
	DefaultDurationDays int           `bson:"defaultDurationDays" json:"defaultDurationDays"`
	Description         string        `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt           int64         `bson:"createdAt" json:"createdAt"`
}

type BulkFailure struct {
	DocumentID int    `json:"documentId"`
	Error      string `json:"error"`
}

type BulkResult struct {
	Succeeded []int         `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}
