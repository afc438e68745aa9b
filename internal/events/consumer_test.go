package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"access_service/internal/models"
	"access_service/internal/service"

	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type stubGrantStore struct {
	mu     sync.Mutex
	grants []*models.Grant
}

func (s *stubGrantStore) Insert(ctx context.Context, grant *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grant.ID.IsZero() {
		grant.ID = bson.NewObjectID()
	}
	s.grants = append(s.grants, grant)
	return nil
}

func (s *stubGrantStore) Remove(ctx context.Context, id bson.ObjectID) error { return nil }

func (s *stubGrantStore) SupersedeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error) {
	return nil, nil
}

func (s *stubGrantStore) Reactivate(ctx context.Context, id bson.ObjectID) error { return nil }

func (s *stubGrantStore) RevokeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.UserID == userID && g.DocumentID == documentID && g.Status == models.GrantActive && g.ExpiresAt > closedAt {
			g.Status = models.GrantRevoked
			g.ClosedAt = closedAt
			return g, nil
		}
	}
	return nil, nil
}

func (s *stubGrantStore) RevokeByID(ctx context.Context, id bson.ObjectID, closedAt int64) (*models.Grant, error) {
	return nil, nil
}

func (s *stubGrantStore) FindActive(ctx context.Context, userID string, documentID int, now int64) (*models.Grant, error) {
	return nil, nil
}

func (s *stubGrantStore) ListActive(ctx context.Context, f models.GrantFilter, now int64) ([]*models.Grant, error) {
	return nil, nil
}

func (s *stubGrantStore) ListActiveByDocument(ctx context.Context, documentID int, now int64) ([]*models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Grant
	for _, g := range s.grants {
		if g.DocumentID == documentID && g.Status == models.GrantActive && g.ExpiresAt > now {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubGrantStore) activeCount(documentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, g := range s.grants {
		if g.DocumentID == documentID && g.Status == models.GrantActive {
			count++
		}
	}
	return count
}

type stubAudit struct{}

func (stubAudit) Record(ctx context.Context, entry *models.AuditEntry) error { return nil }

type stubCache struct{}

func (stubCache) InvalidateDecision(ctx context.Context, userID string, documentID int) error {
	return nil
}
func (stubCache) WriteGrantMirror(ctx context.Context, grant *models.Grant) error { return nil }
func (stubCache) DeleteGrantMirror(ctx context.Context, userID string, documentID int) error {
	return nil
}

func newTestConsumer(store *stubGrantStore) *EventConsumer {
	grants := service.NewGrantService(store, stubAudit{}, stubCache{}, nil, nil)
	return &EventConsumer{
		queueName: "access-service-events",
		grants:    grants,
		shutdown:  make(chan struct{}),
		enabled:   true,
	}
}

func TestConsumeSignalsReestablishOnClosedChannel(t *testing.T) {
	consumer := newTestConsumer(&stubGrantStore{})

	msgs := make(chan amqp091.Delivery)
	close(msgs)

	if !consumer.consume(msgs) {
		t.Error("consume on a closed delivery channel = false, want true so the subscription is re-established")
	}
}

func TestConsumeStopsOnShutdown(t *testing.T) {
	consumer := newTestConsumer(&stubGrantStore{})
	close(consumer.shutdown)

	msgs := make(chan amqp091.Delivery)
	if consumer.consume(msgs) {
		t.Error("consume after shutdown = true, want false")
	}
}

func TestDocumentDeletedRevokesGrants(t *testing.T) {
	store := &stubGrantStore{}
	consumer := newTestConsumer(store)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).Unix()

	for _, userID := range []string{"user-1", "user-2"} {
		if err := store.Insert(ctx, &models.Grant{
			UserID:      userID,
			DocumentID:  7,
			Permissions: []string{models.PermissionView},
			ExpiresAt:   expires,
			Status:      models.GrantActive,
		}); err != nil {
			t.Fatalf("setup insert returned error: %s", err)
		}
	}
	if err := store.Insert(ctx, &models.Grant{
		UserID:      "user-1",
		DocumentID:  8,
		Permissions: []string{models.PermissionView},
		ExpiresAt:   expires,
		Status:      models.GrantActive,
	}); err != nil {
		t.Fatalf("setup insert returned error: %s", err)
	}

	msg := amqp091.Delivery{
		RoutingKey: "document.deleted",
		Body:       []byte(`{"document_id": 7}`),
	}
	if err := consumer.processMessage(msg); err != nil {
		t.Fatalf("processMessage returned error: %s", err)
	}

	if got := store.activeCount(7); got != 0 {
		t.Errorf("active grants on deleted document = %d, want 0", got)
	}
	if got := store.activeCount(8); got != 1 {
		t.Errorf("active grants on untouched document = %d, want 1", got)
	}
}

func TestDocumentDeletedRejectsMalformedEvent(t *testing.T) {
	consumer := newTestConsumer(&stubGrantStore{})

	cases := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not-json")},
		{"missing id", []byte(`{}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := amqp091.Delivery{RoutingKey: "document.deleted", Body: tc.body}
			if err := consumer.processMessage(msg); err == nil {
				t.Error("processMessage accepted a malformed document.deleted event")
			}
		})
	}
}
