package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// AccessGranted is published after a grant is created or re-granted.
	AccessGranted EventType = "access.granted"
	// AccessRevoked is published after an active grant is revoked.
	AccessRevoked EventType = "access.revoked"
	// AccessRequested is published when a user submits an access request.
	AccessRequested EventType = "access.requested"
	// AccessRequestReviewed is published on approval or rejection.
	AccessRequestReviewed EventType = "access.request.reviewed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

type AccessGrantedEvent struct {
	BaseEvent
	UserID      string   `json:"user_id"`
	DocumentID  int      `json:"document_id"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"expires_at"`
	GrantedBy   string   `json:"granted_by"`
}

func (e *AccessGrantedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type AccessRevokedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	DocumentID int    `json:"document_id"`
	RevokedBy  string `json:"revoked_by"`
}

func (e *AccessRevokedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type AccessRequestedEvent struct {
	BaseEvent
	RequestID   string   `json:"request_id"`
	UserID      string   `json:"user_id"`
	DocumentID  int      `json:"document_id"`
	Permissions []string `json:"permissions"`
	Reason      string   `json:"reason"`
}

func (e *AccessRequestedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type AccessRequestReviewedEvent struct {
	BaseEvent
	RequestID  string `json:"request_id"`
	UserID     string `json:"user_id"`
	DocumentID int    `json:"document_id"`
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewed_by"`
}

func (e *AccessRequestReviewedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// DocumentDeletedEvent arrives from the document store pipeline when a
// document is removed; its grants are revoked in response.
type DocumentDeletedEvent struct {
	BaseEvent
	DocumentID int `json:"document_id"`
}
