package campaign

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mproulx/herald/internal/request"
	"github.com/mproulx/herald/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "herald.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateDraftVsScheduled(t *testing.T) {
	t.Parallel()

	s := NewStore(newTestDB(t))
	ctx := context.Background()

	draftID, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "a", TargetListID: "tl-1"})
	require.NoError(t, err)
	draft, err := s.Get(ctx, draftID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, draft.Status)
	assert.Nil(t, draft.ScheduledAt)

	at := time.Now().UTC().Add(time.Hour)
	schedID, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "b", TargetListID: "tl-1", ScheduledAt: &at})
	require.NoError(t, err)
	sched, err := s.Get(ctx, schedID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, sched.Status)
	require.NotNil(t, sched.ScheduledAt)
}

func TestDueSelectsOnlyPastScheduled(t *testing.T) {
	t.Parallel()

	s := NewStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	dueID, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "due", TargetListID: "tl-1", ScheduledAt: &past})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateRequest{UserID: "u1", Name: "later", TargetListID: "tl-1", ScheduledAt: &future})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateRequest{UserID: "u1", Name: "draft", TargetListID: "tl-1"})
	require.NoError(t, err)

	due, err := s.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueID, due[0].ID)
}

func TestPromoteDispatchIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	s := NewStore(db)
	requests := request.New(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	id, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "a", TargetListID: "tl-1", ScheduledAt: &past})
	require.NoError(t, err)
	c, err := s.Get(ctx, id)
	require.NoError(t, err)

	reqID, err := s.PromoteDispatch(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, reqID)

	// The flip and the trigger committed together.
	promoted, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, promoted.Status)

	r, err := requests.Get(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, FunctionDispatch, r.FunctionCode)
	assert.Equal(t, request.StatusQueued, r.Status)

	// A second promotion attempt creates nothing.
	reqID2, err := s.PromoteDispatch(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, reqID2)

	n, err := requests.CountOutstandingForCampaign(ctx, id, FunctionDispatch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkRunningRequiresProcessing(t *testing.T) {
	t.Parallel()

	s := NewStore(newTestDB(t))
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "a", TargetListID: "tl-1"})
	require.NoError(t, err)

	assert.Error(t, s.MarkRunning(ctx, id), "DRAFT cannot go RUNNING")
}

func TestAddProgressCompletesWhenAllAccounted(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	id, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "a", TargetListID: "tl-1", ScheduledAt: &past})
	require.NoError(t, err)
	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	_, err = s.PromoteDispatch(ctx, c)
	require.NoError(t, err)
	require.NoError(t, s.MarkRunning(ctx, id))
	require.NoError(t, s.SetTotalTargets(ctx, id, 10))

	done, err := s.AddProgress(ctx, id, 4, 2)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = s.AddProgress(ctx, id, 3, 1)
	require.NoError(t, err)
	assert.True(t, done)

	final, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 7, final.SentCount)
	assert.Equal(t, 3, final.FailCount)
	assert.NotNil(t, final.EndedAt)
}

func TestMarkFailedNeverOverwritesTerminal(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	id, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "a", TargetListID: "tl-1", ScheduledAt: &past})
	require.NoError(t, err)
	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	_, err = s.PromoteDispatch(ctx, c)
	require.NoError(t, err)
	require.NoError(t, s.MarkRunning(ctx, id))
	require.NoError(t, s.SetTotalTargets(ctx, id, 1))

	done, err := s.AddProgress(ctx, id, 1, 0)
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, s.MarkFailed(ctx, id))
	final, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestStuckProcessing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	id, err := s.Create(ctx, CreateRequest{UserID: "u1", Name: "a", TargetListID: "tl-1", ScheduledAt: &past})
	require.NoError(t, err)
	c, err := s.Get(ctx, id)
	require.NoError(t, err)
	_, err = s.PromoteDispatch(ctx, c)
	require.NoError(t, err)

	stuck, err := s.StuckProcessing(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, id, stuck[0].ID)

	stuck, err = s.StuckProcessing(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stuck)
}
