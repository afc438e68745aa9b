package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"access_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// In-memory doubles for the storage and collaborator contracts.

type fakeGrantStore struct {
	mu         sync.Mutex
	grants     []*models.Grant
	failInsert error

	// beforeInsert runs outside the lock so tests can widen the
	// supersede-then-insert window.
	beforeInsert func()
}

func (f *fakeGrantStore) Insert(ctx context.Context, grant *models.Grant) error {
	if f.beforeInsert != nil {
		f.beforeInsert()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return f.failInsert
	}
	// Mirrors the partial unique index on {userId, documentId, status: active}.
	for _, g := range f.grants {
		if g.UserID == grant.UserID && g.DocumentID == grant.DocumentID && g.Status == models.GrantActive {
			return fmt.Errorf("%w: user %s document %d", models.ErrGrantConflict, grant.UserID, grant.DocumentID)
		}
	}
	if grant.ID.IsZero() {
		grant.ID = bson.NewObjectID()
	}
	f.grants = append(f.grants, grant)
	return nil
}

func (f *fakeGrantStore) Remove(ctx context.Context, id bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, g := range f.grants {
		if g.ID == id {
			f.grants = append(f.grants[:i], f.grants[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeGrantStore) SupersedeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.UserID == userID && g.DocumentID == documentID && g.Status == models.GrantActive {
			g.Status = models.GrantSuperseded
			g.ClosedAt = closedAt
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGrantStore) Reactivate(ctx context.Context, id bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.ID == id {
			g.Status = models.GrantActive
			g.ClosedAt = 0
		}
	}
	return nil
}

func (f *fakeGrantStore) RevokeActive(ctx context.Context, userID string, documentID int, closedAt int64) (*models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.UserID == userID && g.DocumentID == documentID && g.Status == models.GrantActive && g.ExpiresAt > closedAt {
			g.Status = models.GrantRevoked
			g.ClosedAt = closedAt
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGrantStore) RevokeByID(ctx context.Context, id bson.ObjectID, closedAt int64) (*models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.ID == id && g.Status == models.GrantActive {
			g.Status = models.GrantRevoked
			g.ClosedAt = closedAt
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGrantStore) FindActive(ctx context.Context, userID string, documentID int, now int64) (*models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.UserID == userID && g.DocumentID == documentID && g.Status == models.GrantActive && g.ExpiresAt > now {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGrantStore) ListActive(ctx context.Context, filter models.GrantFilter, now int64) ([]*models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Grant
	for _, g := range f.grants {
		if g.Status != models.GrantActive || g.ExpiresAt <= now {
			continue
		}
		if filter.UserID != "" && g.UserID != filter.UserID {
			continue
		}
		if filter.DocumentID != 0 && g.DocumentID != filter.DocumentID {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeGrantStore) ListActiveByDocument(ctx context.Context, documentID int, now int64) ([]*models.Grant, error) {
	return f.ListActive(ctx, models.GrantFilter{DocumentID: documentID}, now)
}

func (f *fakeGrantStore) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, g := range f.grants {
		if g.Status == models.GrantActive {
			count++
		}
	}
	return count
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
	fail    bool
}

func (f *fakeAudit) Record(ctx context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("%w: store down", models.ErrAuditWriteFailed)
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) countAction(action models.AuditAction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, e := range f.entries {
		if e.Action == action {
			count++
		}
	}
	return count
}

func (f *fakeAudit) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeCache struct {
	mu            sync.Mutex
	mirrors       map[string]*models.Grant
	invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{mirrors: make(map[string]*models.Grant)}
}

func cacheKey(userID string, documentID int) string {
	return fmt.Sprintf("%s:%d", userID, documentID)
}

func (f *fakeCache) InvalidateDecision(ctx context.Context, userID string, documentID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	return nil
}

func (f *fakeCache) WriteGrantMirror(ctx context.Context, grant *models.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrors[cacheKey(grant.UserID, grant.DocumentID)] = grant
	return nil
}

func (f *fakeCache) DeleteGrantMirror(ctx context.Context, userID string, documentID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mirrors, cacheKey(userID, documentID))
	return nil
}

type fakeDocs struct {
	missing map[int]bool
}

func (f *fakeDocs) Exists(ctx context.Context, documentID int) (bool, error) {
	if f.missing[documentID] {
		return false, nil
	}
	return true, nil
}

type fakeRequestStore struct {
	mu       sync.Mutex
	requests []*models.AccessRequest

	// Hooks run outside the lock so tests can stage submit and review races.
	beforeInsert func()
	beforeReview func()
}

func (f *fakeRequestStore) Insert(ctx context.Context, request *models.AccessRequest) error {
	if f.beforeInsert != nil {
		f.beforeInsert()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Mirrors the partial unique index on {userId, documentId, status: pending}.
	for _, r := range f.requests {
		if r.UserID == request.UserID && r.DocumentID == request.DocumentID && r.Status == models.RequestPending {
			return models.ErrDuplicateRequest
		}
	}
	if request.ID.IsZero() {
		request.ID = bson.NewObjectID()
	}
	f.requests = append(f.requests, request)
	return nil
}

func (f *fakeRequestStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ID == id {
			copied := *r
			return &copied, nil
		}
	}
	return nil, models.ErrRequestNotFound
}

func (f *fakeRequestStore) FindPending(ctx context.Context, userID string, documentID int) (*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UserID == userID && r.DocumentID == documentID && r.Status == models.RequestPending {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRequestStore) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AccessRequest
	for _, r := range f.requests {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) CountByStatus(ctx context.Context, status models.RequestStatus) (int64, error) {
	requests, _ := f.ListByStatus(ctx, status)
	return int64(len(requests)), nil
}

func (f *fakeRequestStore) MarkReviewed(ctx context.Context, id bson.ObjectID, status models.RequestStatus, reviewerID, note string, reviewedAt int64) error {
	if f.beforeReview != nil {
		f.beforeReview()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ID == id {
			if r.Status != models.RequestPending {
				return models.ErrInvalidTransition
			}
			r.Status = status
			r.ReviewedBy = reviewerID
			r.ReviewNote = note
			r.ReviewedAt = reviewedAt
			return nil
		}
	}
	return models.ErrInvalidTransition
}

type fakeTemplateStore struct {
	mu        sync.Mutex
	templates []*models.AccessTemplate
}

func (f *fakeTemplateStore) Insert(ctx context.Context, template *models.AccessTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if template.ID.IsZero() {
		template.ID = bson.NewObjectID()
	}
	f.templates = append(f.templates, template)
	return nil
}

func (f *fakeTemplateStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, models.ErrTemplateNotFound
}

func (f *fakeTemplateStore) FindByName(ctx context.Context, name string) (*models.AccessTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.templates {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, models.ErrTemplateNotFound
}

func (f *fakeTemplateStore) List(ctx context.Context) ([]*models.AccessTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.AccessTemplate{}, f.templates...), nil
}

func (f *fakeTemplateStore) Remove(ctx context.Context, id bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.templates {
		if t.ID == id {
			f.templates = append(f.templates[:i], f.templates[i+1:]...)
			return nil
		}
	}
	return models.ErrTemplateNotFound
}

type fakePublisher struct {
	mu       sync.Mutex
	granted  int
	revoked  int
	submits  int
	reviewed int
}

func (f *fakePublisher) PublishAccessGranted(ctx context.Context, grant *models.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted++
	return nil
}

func (f *fakePublisher) PublishAccessRevoked(ctx context.Context, userID string, documentID int, revokedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked++
	return nil
}

func (f *fakePublisher) PublishRequestSubmitted(ctx context.Context, request *models.AccessRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return nil
}

func (f *fakePublisher) PublishRequestReviewed(ctx context.Context, request *models.AccessRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewed++
	return nil
}

// testEnv bundles a grant service with all its doubles and a controllable
// clock.
type testEnv struct {
	grants *GrantService
	store  *fakeGrantStore
	audit  *fakeAudit
	cache  *fakeCache
	docs   *fakeDocs
	events *fakePublisher
	clock  time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:  &fakeGrantStore{},
		audit:  &fakeAudit{},
		cache:  newFakeCache(),
		docs:   &fakeDocs{missing: make(map[int]bool)},
		events: &fakePublisher{},
		clock:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.grants = NewGrantService(env.store, env.audit, env.cache, env.docs, env.events)
	env.grants.now = env.now
	return env
}

func (e *testEnv) now() time.Time { return e.clock }

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }
