package events

import (
	"context"
	"log"

	"access_service/internal/models"
)

// EventPublisher implements service.AccessEventPublisher over RabbitMQ.
// With no broker URI it degrades to disabled instead of failing startup.
type EventPublisher struct {
	rabbitMQ *RabbitMQClient
	enabled  bool
}

func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			rabbitMQ: nil,
			enabled:  false,
		}, nil
	}

	client, err := NewRabbitMQClient(rabbitURI)
	if err != nil {
		return nil, err
	}

	if err := client.setupExchanges(); err != nil {
		client.Close()
		return nil, err
	}

	return &EventPublisher{
		rabbitMQ: client,
		enabled:  true,
	}, nil
}

func (p *EventPublisher) PublishAccessGranted(ctx context.Context, grant *models.Grant) error {
	if !p.enabled {
		return nil
	}

	event := &AccessGrantedEvent{
		BaseEvent:   newBaseEvent(AccessGranted),
		UserID:      grant.UserID,
		DocumentID:  grant.DocumentID,
		Permissions: grant.Permissions,
		ExpiresAt:   grant.ExpiresAt,
		GrantedBy:   grant.GrantedBy,
	}

	eventData, err := event.ToJSON()
	if err != nil {
		return err
	}

	return p.rabbitMQ.PublishEvent(accessExchange, string(AccessGranted), eventData)
}

func (p *EventPublisher) PublishAccessRevoked(ctx context.Context, userID string, documentID int, revokedBy string) error {
	if !p.enabled {
		return nil
	}

	event := &AccessRevokedEvent{
		BaseEvent:  newBaseEvent(AccessRevoked),
		UserID:     userID,
		DocumentID: documentID,
		RevokedBy:  revokedBy,
	}

	eventData, err := event.ToJSON()
	if err != nil {
		return err
	}

	return p.rabbitMQ.PublishEvent(accessExchange, string(AccessRevoked), eventData)
}

func (p *EventPublisher) PublishRequestSubmitted(ctx context.Context, request *models.AccessRequest) error {
	if !p.enabled {
		return nil
	}

	event := &AccessRequestedEvent{
		BaseEvent:   newBaseEvent(AccessRequested),
		RequestID:   request.ID.Hex(),
		UserID:      request.UserID,
		DocumentID:  request.DocumentID,
		Permissions: request.RequestedPermissions,
		Reason:      request.Reason,
	}

	eventData, err := event.ToJSON()
	if err != nil {
		return err
	}

	return p.rabbitMQ.PublishEvent(accessExchange, string(AccessRequested), eventData)
}

func (p *EventPublisher) PublishRequestReviewed(ctx context.Context, request *models.AccessRequest) error {
	if !p.enabled {
		return nil
	}

	event := &AccessRequestReviewedEvent{
		BaseEvent:  newBaseEvent(AccessRequestReviewed),
		RequestID:  request.ID.Hex(),
		UserID:     request.UserID,
		DocumentID: request.DocumentID,
		Status:     string(request.Status),
		ReviewedBy: request.ReviewedBy,
	}

	eventData, err := event.ToJSON()
	if err != nil {
		return err
	}

	return p.rabbitMQ.PublishEvent(accessExchange, string(AccessRequestReviewed), eventData)
}

func (p *EventPublisher) Close() error {
	if p.rabbitMQ != nil {
		return p.rabbitMQ.Close()
	}
	return nil
}
