package request

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mproulx/herald/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "herald.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestEnqueueNextQueuedFIFO(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Enqueue(ctx, EnqueueRequest{FunctionCode: "FN_ECHO", UserID: "u1"})
	if err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	id2, err := s.Enqueue(ctx, EnqueueRequest{FunctionCode: "FN_ECHO", UserID: "u1"})
	if err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}

	next, ok, err := s.NextQueued(ctx)
	if err != nil || !ok || next != id1 {
		t.Fatalf("NextQueued = (%q, %v, %v), want %q", next, ok, err, id1)
	}

	claimed, err := s.Claim(ctx, id1)
	if err != nil || !claimed {
		t.Fatalf("Claim: (%v, %v)", claimed, err)
	}

	next, ok, err = s.NextQueued(ctx)
	if err != nil || !ok || next != id2 {
		t.Fatalf("NextQueued after claim = (%q, %v, %v), want %q", next, ok, err, id2)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, EnqueueRequest{FunctionCode: "FN_ECHO", UserID: "u1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first, err := s.Claim(ctx, id)
	if err != nil || !first {
		t.Fatalf("first Claim: (%v, %v)", first, err)
	}
	second, err := s.Claim(ctx, id)
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if second {
		t.Fatal("second claim should lose")
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != StatusProcessing || r.StartedAt == nil {
		t.Fatalf("unexpected request state: %#v", r)
	}
}

func TestRejectOnlyFromQueued(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, EnqueueRequest{FunctionCode: "FN_ECHO", UserID: "u1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ok, err := s.Reject(ctx, id, StatusDeniedBilling, []byte(`{"error":"no active subscription"}`))
	if err != nil || !ok {
		t.Fatalf("Reject: (%v, %v)", ok, err)
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != StatusDeniedBilling {
		t.Fatalf("status = %q, want DENIED_BILLING", r.Status)
	}
	if r.ExecutionTimeMS != nil {
		t.Fatal("rejection must not record a duration")
	}
	if r.StartedAt != nil {
		t.Fatal("rejected request must never enter PROCESSING")
	}

	// A terminal request cannot be rejected again.
	ok, err = s.Reject(ctx, id, StatusFailed, []byte(`{"error":"x"}`))
	if err != nil {
		t.Fatalf("second Reject: %v", err)
	}
	if ok {
		t.Fatal("reject of terminal request should be a no-op")
	}
}

func TestFinishRecordsDurationAndResult(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, EnqueueRequest{FunctionCode: "FN_ECHO", UserID: "u1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := s.Claim(ctx, id); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := s.Finish(ctx, id, StatusCompleted, []byte(`{"sent":3}`), 42); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != StatusCompleted {
		t.Fatalf("status = %q", r.Status)
	}
	if r.ExecutionTimeMS == nil || *r.ExecutionTimeMS != 42 {
		t.Fatalf("execution_time_ms = %v, want 42", r.ExecutionTimeMS)
	}
	if r.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	// Terminal state is final.
	if err := s.Finish(ctx, id, StatusFailed, []byte(`{"error":"late"}`), 1); err == nil {
		t.Fatal("expected error finishing a terminal request")
	}
}

func TestGetMissingRequest(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListByCampaignAndOutstanding(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	cid := "cmp-1"
	for i := 0; i < 3; i++ {
		_, err := s.Enqueue(ctx, EnqueueRequest{
			FunctionCode: "FN_MSG_SENDER_V1",
			UserID:       "u1",
			CampaignID:   &cid,
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	reqs, err := s.ListByCampaign(ctx, cid)
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}

	n, err := s.CountOutstandingForCampaign(ctx, cid, "FN_MSG_SENDER_V1")
	if err != nil {
		t.Fatalf("CountOutstandingForCampaign: %v", err)
	}
	if n != 3 {
		t.Fatalf("outstanding = %d, want 3", n)
	}
}
