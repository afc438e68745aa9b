package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"access_service/internal/models"
)

func newTestRequests(env *testEnv) (*RequestService, *fakeRequestStore) {
	store := &fakeRequestStore{}
	requests := NewRequestService(store, env.grants, env.audit, env.events)
	requests.now = env.now
	return requests, store
}

func TestSubmitDefaultsPermissions(t *testing.T) {
	env := newTestEnv()
	requests, _ := newTestRequests(env)

	request, err := requests.Submit(context.Background(), "user-1", 42, "quarterly review", nil)
	if err != nil {
		t.Fatalf("Submit returned error: %s", err)
	}

	want := []string{"view", "download"}
	if !slices.Equal(request.RequestedPermissions, want) {
		t.Errorf("requested permissions = %v, want %v", request.RequestedPermissions, want)
	}
	if request.Status != models.RequestPending {
		t.Errorf("status = %s, want %s", request.Status, models.RequestPending)
	}
	if got := env.audit.countAction(models.AuditRequestSubmitted); got != 1 {
		t.Errorf("REQUEST_SUBMITTED entries = %d, want 1", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv()
	requests, _ := newTestRequests(env)
	ctx := context.Background()

	cases := []struct {
		name        string
		reason      string
		permissions []string
		wantErr     error
	}{
		{"empty reason", "", nil, models.ErrEmptyReason},
		{"whitespace reason", "   ", nil, models.ErrEmptyReason},
		{"unknown permission", "need it", []string{"admin"}, models.ErrInvalidPermissionSet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := requests.Submit(ctx, "user-1", 42, tc.reason, tc.permissions)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSubmitRejectsDuplicatePending(t *testing.T) {
	env := newTestEnv()
	requests, _ := newTestRequests(env)
	ctx := context.Background()

	if _, err := requests.Submit(ctx, "user-1", 42, "first ask", nil); err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}

	_, err := requests.Submit(ctx, "user-1", 42, "second ask", nil)
	if !errors.Is(err, models.ErrDuplicateRequest) {
		t.Fatalf("err = %v, want ErrDuplicateRequest", err)
	}

	// Same user, different document is fine.
	if _, err := requests.Submit(ctx, "user-1", 43, "other doc", nil); err != nil {
		t.Fatalf("Submit for another document returned error: %s", err)
	}
}

func TestConcurrentSubmitsCreateOnePending(t *testing.T) {
	env := newTestEnv()
	requests, store := newTestRequests(env)
	ctx := context.Background()

	// Both submits pass the pending lookup before either insert lands; the
	// pending unique constraint rejects the second.
	store.beforeInsert = barrier(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = requests.Submit(ctx, "user-1", 42, "need it", nil)
		}()
	}
	wg.Wait()

	var duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, models.ErrDuplicateRequest):
			duplicates++
		default:
			t.Fatalf("concurrent Submit returned unexpected error: %s", err)
		}
	}
	if duplicates != 1 {
		t.Errorf("duplicate rejections = %d, want exactly 1", duplicates)
	}

	count, err := requests.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending returned error: %s", err)
	}
	if count != 1 {
		t.Errorf("pending requests for the pair = %d, want 1", count)
	}
}

func TestConcurrentApprovalsKeepWinnersGrant(t *testing.T) {
	env := newTestEnv()
	requests, store := newTestRequests(env)
	ctx := context.Background()

	request, err := requests.Submit(ctx, "user-1", 42, "need it", nil)
	if err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}

	// Both reviewers create their grant before either stamps the request;
	// exactly one review transition can win.
	store.beforeReview = barrier(2)

	reviewers := []string{"admin-A", "admin-B"}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = requests.Approve(ctx, request.ID, env.clock.Add(time.Hour), "", reviewers[i], nil)
		}()
	}
	wg.Wait()

	var winner string
	var losses int
	for i, err := range errs {
		switch {
		case err == nil:
			winner = reviewers[i]
		case errors.Is(err, models.ErrInvalidTransition):
			losses++
		default:
			t.Fatalf("concurrent Approve returned unexpected error: %s", err)
		}
	}
	if winner == "" || losses != 1 {
		t.Fatalf("approvals: winner %q, losses %d, want one winner and one loss", winner, losses)
	}

	// The losing approval must withdraw only its own grant: the pair keeps
	// exactly one active grant and it belongs to the winning reviewer.
	if got := env.store.activeCount(); got != 1 {
		t.Fatalf("active grants for the pair = %d, want 1", got)
	}
	active, _ := env.grants.FindActive(ctx, "user-1", 42)
	if active == nil {
		t.Fatal("approved access was withdrawn by the losing reviewer")
	}
	if active.GrantedBy != winner {
		t.Errorf("active grant created by %s, want winning reviewer %s", active.GrantedBy, winner)
	}

	stored, _ := store.FindByID(ctx, request.ID)
	if stored.Status != models.RequestApproved || stored.ReviewedBy != winner {
		t.Errorf("request state = %s by %s, want approved by %s", stored.Status, stored.ReviewedBy, winner)
	}
}

func TestApproveCreatesGrant(t *testing.T) {
	env := newTestEnv()
	requests, store := newTestRequests(env)
	ctx := context.Background()

	request, err := requests.Submit(ctx, "user-1", 42, "need ocr", []string{"view", "ocr"})
	if err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}

	expiresAt := env.clock.Add(7 * 24 * time.Hour)
	grant, err := requests.Approve(ctx, request.ID, expiresAt, "looks fine", "admin-1", nil)
	if err != nil {
		t.Fatalf("Approve returned error: %s", err)
	}

	if !slices.Equal(grant.Permissions, []string{"view", "ocr"}) {
		t.Errorf("grant permissions = %v, want the requested set", grant.Permissions)
	}
	if grant.ExpiresAt != expiresAt.Unix() {
		t.Errorf("grant expiresAt = %d, want %d", grant.ExpiresAt, expiresAt.Unix())
	}
	if grant.GrantedBy != "admin-1" {
		t.Errorf("grantedBy = %s, want admin-1", grant.GrantedBy)
	}

	stored, _ := store.FindByID(ctx, request.ID)
	if stored.Status != models.RequestApproved {
		t.Errorf("request status = %s, want %s", stored.Status, models.RequestApproved)
	}
	if stored.ReviewedBy != "admin-1" || stored.ReviewNote != "looks fine" {
		t.Errorf("review stamp = %s / %q", stored.ReviewedBy, stored.ReviewNote)
	}
	if got := env.audit.countAction(models.AuditRequestApproved); got != 1 {
		t.Errorf("REQUEST_APPROVED entries = %d, want 1", got)
	}
}

func TestApproveHonorsPermissionOverride(t *testing.T) {
	env := newTestEnv()
	requests, _ := newTestRequests(env)
	ctx := context.Background()

	request, err := requests.Submit(ctx, "user-1", 42, "need everything", []string{"view", "download", "ocr"})
	if err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}

	grant, err := requests.Approve(ctx, request.ID, env.clock.Add(time.Hour), "", "admin-1", []string{"view"})
	if err != nil {
		t.Fatalf("Approve returned error: %s", err)
	}
	if !slices.Equal(grant.Permissions, []string{"view"}) {
		t.Errorf("grant permissions = %v, want the override set", grant.Permissions)
	}
}

func TestApproveIsTerminal(t *testing.T) {
	env := newTestEnv()
	requests, _ := newTestRequests(env)
	ctx := context.Background()

	request, err := requests.Submit(ctx, "user-1", 42, "need it", nil)
	if err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}
	if _, err := requests.Approve(ctx, request.ID, env.clock.Add(time.Hour), "", "admin-1", nil); err != nil {
		t.Fatalf("first Approve returned error: %s", err)
	}

	_, err = requests.Approve(ctx, request.ID, env.clock.Add(time.Hour), "", "admin-2", nil)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("second Approve err = %v, want ErrInvalidTransition", err)
	}
	_, err = requests.Reject(ctx, request.ID, "", "admin-2")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("Reject after approve err = %v, want ErrInvalidTransition", err)
	}
}

func TestApproveLeavesRequestPendingWhenGrantFails(t *testing.T) {
	env := newTestEnv()
	requests, store := newTestRequests(env)
	ctx := context.Background()

	request, err := requests.Submit(ctx, "user-1", 42, "need it", nil)
	if err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}

	env.docs.missing[42] = true
	_, err = requests.Approve(ctx, request.ID, env.clock.Add(time.Hour), "", "admin-1", nil)
	if !errors.Is(err, models.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}

	stored, _ := store.FindByID(ctx, request.ID)
	if stored.Status != models.RequestPending {
		t.Errorf("request status = %s, want still pending", stored.Status)
	}
	if env.store.activeCount() != 0 {
		t.Error("grant created despite failed approval")
	}
}

func TestRejectCreatesNoGrant(t *testing.T) {
	env := newTestEnv()
	requests, store := newTestRequests(env)
	ctx := context.Background()

	request, err := requests.Submit(ctx, "user-1", 42, "need it", nil)
	if err != nil {
		t.Fatalf("setup Submit returned error: %s", err)
	}

	rejected, err := requests.Reject(ctx, request.ID, "not justified", "admin-1")
	if err != nil {
		t.Fatalf("Reject returned error: %s", err)
	}
	if rejected.Status != models.RequestRejected {
		t.Errorf("status = %s, want %s", rejected.Status, models.RequestRejected)
	}
	if env.store.activeCount() != 0 {
		t.Error("reject created a grant")
	}

	stored, _ := store.FindByID(ctx, request.ID)
	if stored.Status != models.RequestRejected {
		t.Errorf("stored status = %s, want %s", stored.Status, models.RequestRejected)
	}
	if got := env.audit.countAction(models.AuditRequestRejected); got != 1 {
		t.Errorf("REQUEST_REJECTED entries = %d, want 1", got)
	}

	// A rejected request no longer blocks a new submission.
	if _, err := requests.Submit(ctx, "user-1", 42, "trying again", nil); err != nil {
		t.Fatalf("resubmit after reject returned error: %s", err)
	}
}

func TestCountPending(t *testing.T) {
	env := newTestEnv()
	requests, _ := newTestRequests(env)
	ctx := context.Background()

	for doc := 1; doc <= 3; doc++ {
		if _, err := requests.Submit(ctx, "user-1", doc, "need it", nil); err != nil {
			t.Fatalf("setup Submit returned error: %s", err)
		}
	}
	request, _ := requests.Submit(ctx, "user-2", 1, "need it", nil)
	if _, err := requests.Reject(ctx, request.ID, "", "admin-1"); err != nil {
		t.Fatalf("setup Reject returned error: %s", err)
	}

	count, err := requests.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending returned error: %s", err)
	}
	if count != 3 {
		t.Errorf("pending count = %d, want 3", count)
	}
}
