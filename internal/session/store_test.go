package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mproulx/herald/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "herald.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRegisterStartsUnchecked(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Register(ctx, "u1", "+15550001", "sessions/a.session", "")
	require.NoError(t, err)

	sess, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchecked, sess.Status)
	assert.Nil(t, sess.LastCheckedAt)
}

func TestListActiveFiltersAndOrders(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, phone := range []string{"+1", "+2", "+3"} {
		id, err := s.Register(ctx, "u1", phone, "loc-"+phone, "marketing")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	bannedID, err := s.Register(ctx, "u1", "+4", "loc-4", "marketing")
	require.NoError(t, err)
	otherUserID, err := s.Register(ctx, "u2", "+5", "loc-5", "marketing")
	require.NoError(t, err)

	for _, id := range ids {
		require.NoError(t, s.SetStatus(ctx, id, StatusActive))
	}
	require.NoError(t, s.SetStatus(ctx, bannedID, StatusBanned))
	require.NoError(t, s.SetStatus(ctx, otherUserID, StatusActive))

	active, err := s.ListActive(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, active, 3)
	// Stable order: ascending session_id.
	for i := 1; i < len(active); i++ {
		assert.Less(t, active[i-1].ID, active[i].ID)
	}
	for _, sess := range active {
		assert.Equal(t, StatusActive, sess.Status)
		assert.Equal(t, "u1", sess.UserID)
	}
}

func TestListActiveByTag(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	tagged, err := s.Register(ctx, "u1", "+1", "loc-1", "marketing")
	require.NoError(t, err)
	plain, err := s.Register(ctx, "u1", "+2", "loc-2", "")
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(ctx, tagged, StatusActive))
	require.NoError(t, s.SetStatus(ctx, plain, StatusActive))

	active, err := s.ListActive(ctx, "u1", "marketing")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, tagged, active[0].ID)
}

func TestSetStatusValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Register(ctx, "u1", "+1", "loc-1", "")
	require.NoError(t, err)

	assert.Error(t, s.SetStatus(ctx, id, Status("WEIRD")))
	assert.ErrorIs(t, s.SetStatus(ctx, "ghost", StatusActive), ErrNotFound)

	require.NoError(t, s.SetStatus(ctx, id, StatusLimited))
	sess, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusLimited, sess.Status)
	assert.NotNil(t, sess.LastCheckedAt)
}
