package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsivault/vault-core/internal/adapters/storage/memory"
	"github.com/varsivault/vault-core/internal/domain"
)

var base = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func session(id string, owner string, at time.Time) *domain.Session {
	return &domain.Session{
		ID:        domain.SessionID(id),
		OwnerID:   domain.UserID(owner),
		Subject:   id,
		Mode:      domain.ModeInteractive,
		Status:    domain.StatusActive,
		CreatedAt: at, UpdatedAt: at, LastActiveAt: at,
	}
}

func TestSessionCRUD(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	sess := session("s1", "u1", base)
	require.NoError(t, store.CreateSession(ctx, sess))
	assert.Error(t, store.CreateSession(ctx, sess), "duplicate create rejected")

	got, err := store.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", string(got.ID))

	// Reads are isolated copies: mutating the result never leaks back.
	got.Subject = "mutated"
	again, err := store.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", again.Subject)

	// Partition scoping: the same id under another owner is absent.
	_, err = store.GetSession(ctx, "u2", "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	closed := domain.StatusClosed
	require.NoError(t, store.PatchSession(ctx, "u1", "s1", domain.SessionPatch{Status: &closed}))
	got, err = store.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)

	assert.ErrorIs(t, store.PatchSession(ctx, "u1", "absent", domain.SessionPatch{Status: &closed}), domain.ErrNotFound)

	require.NoError(t, store.DeleteSession(ctx, "u1", "s1"))
	_, err = store.GetSession(ctx, "u1", "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting an absent document is a no-op.
	require.NoError(t, store.DeleteSession(ctx, "u1", "s1"))
}

func TestMirrorRoundTrip(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	sess := session("s1", "u1", base)
	require.NoError(t, store.PutProjection(ctx, sess.Projection()))

	proj, err := store.GetProjection(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.OwnerID, proj.OwnerID)

	assert.ErrorIs(t, store.PatchProjection(ctx, "absent", domain.SessionPatch{}), domain.ErrNotFound)

	require.NoError(t, store.DeleteProjection(ctx, "s1"))
	_, err = store.GetProjection(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, store.DeleteProjection(ctx, "s1"))
}

func TestQueryInactive(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	old := session("old", "u1", base.Add(-48*time.Hour))
	older := session("older", "u1", base.Add(-72*time.Hour))
	fresh := session("fresh", "u1", base.Add(-time.Hour))
	deleted := session("deleted", "u1", base.Add(-96*time.Hour))
	deleted.Status = domain.StatusDeleted

	for _, s := range []*domain.Session{old, older, fresh, deleted} {
		require.NoError(t, store.PutProjection(ctx, s.Projection()))
	}

	got, err := store.QueryInactive(ctx, base.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "fresh and already-deleted rows excluded")
	assert.Equal(t, domain.SessionID("older"), got[0].ID, "oldest first")
	assert.Equal(t, domain.SessionID("old"), got[1].ID)

	limited, err := store.QueryInactive(ctx, base.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, domain.SessionID("older"), limited[0].ID)
}

func TestWatchSessionsSnapshots(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, session("s1", "u1", base)))

	sub, err := store.WatchSessions(ctx, "u1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Registration delivers the current snapshot immediately.
	snap := <-sub.Updates()
	require.Len(t, snap, 1)

	require.NoError(t, store.CreateSession(ctx, session("s2", "u1", base.Add(time.Minute))))
	snap = <-sub.Updates()
	require.Len(t, snap, 2)
	assert.Equal(t, domain.SessionID("s2"), snap[0].ID, "newest first")

	// Other partitions never leak into this watch.
	require.NoError(t, store.CreateSession(ctx, session("s3", "u2", base)))
	select {
	case snap := <-sub.Updates():
		require.Len(t, snap, 2)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchProjectionsFiltered(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	a := session("a", "u1", base)
	b := session("b", "u2", base.Add(time.Minute))
	gone := session("gone", "u1", base.Add(2*time.Minute))
	gone.Status = domain.StatusDeleted
	for _, s := range []*domain.Session{a, b, gone} {
		require.NoError(t, store.PutProjection(ctx, s.Projection()))
	}

	// Owner filter, and deleted rows hidden unless asked for.
	sub, err := store.WatchProjections(ctx, domain.MirrorFilter{OwnerID: "u1"})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	snap := <-sub.Updates()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.SessionID("a"), snap[0].ID)

	all, err := store.WatchProjections(ctx, domain.MirrorFilter{})
	require.NoError(t, err)
	defer all.Unsubscribe()
	snap = <-all.Updates()
	assert.Len(t, snap, 2)

	deletedOnly, err := store.WatchProjections(ctx, domain.MirrorFilter{Status: domain.StatusDeleted})
	require.NoError(t, err)
	defer deletedOnly.Unsubscribe()
	snap = <-deletedOnly.Updates()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.SessionID("gone"), snap[0].ID)
}

func TestWatchMessagesOrder(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	sub, err := store.WatchMessages(ctx, "u1", "s1")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Updates() // empty initial snapshot

	for i, content := range []string{"one", "two", "three"} {
		require.NoError(t, store.AppendMessage(ctx, "u1", &domain.Message{
			ID:        domain.MessageID(content),
			SessionID: "s1",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	var snap []*domain.Message
	for len(snap) < 3 {
		snap = <-sub.Updates()
	}
	assert.Equal(t, "one", snap[0].Content)
	assert.Equal(t, "three", snap[2].Content)
}

func TestInjectFailureFiresOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	boom := errors.New("boom")
	store.InjectFailure("owner.create", boom)

	sess := session("s1", "u1", base)
	assert.ErrorIs(t, store.CreateSession(ctx, sess), boom)
	assert.NoError(t, store.CreateSession(ctx, sess), "injected failure is consumed by the first call")
}
