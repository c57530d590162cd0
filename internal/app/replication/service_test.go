package replication_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmemory "github.com/varsivault/vault-core/internal/adapters/blob/memory"
	memstore "github.com/varsivault/vault-core/internal/adapters/storage/memory"
	filesapp "github.com/varsivault/vault-core/internal/app/files"
	"github.com/varsivault/vault-core/internal/app/replication"
	"github.com/varsivault/vault-core/internal/domain"
)

var (
	student = domain.Actor{ID: "student-1", Role: domain.RoleStudent, Name: "Ada", Email: "ada@example.com"}
	staff   = domain.Actor{ID: "staff-1", Role: domain.RoleStaff, Name: "Max"}
)

type fixture struct {
	store *memstore.Store
	blobs *blobmemory.Store
	files *filesapp.Service
	svc   *replication.Service
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.NewStore()
	blobs := blobmemory.NewStore()
	files := filesapp.NewService(store, blobs, time.Second)
	svc := replication.NewService(store, store, files, replication.Options{
		OpTimeout:    time.Second,
		RetryBackoff: time.Millisecond,
	})

	f := &fixture{store: store, blobs: blobs, files: files, svc: svc,
		clock: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	svc.SetClock(func() time.Time { return f.clock })
	files.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) create(t *testing.T, subject string) *domain.Session {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), replication.CreateSessionInput{
		Actor:   student,
		Subject: subject,
		Mode:    domain.ModeInteractive,
	})
	require.NoError(t, err)
	return session
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.create(t, "Calc I")
	assert.Equal(t, domain.StatusActive, session.Status)
	assert.Equal(t, student.ID, session.OwnerID)
	assert.Equal(t, student.Email, session.OwnerEmail)

	// Both partitions hold the new session, same status.
	stored, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
	proj, err := f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, proj.Status)
	assert.Equal(t, "Calc I", proj.Subject)

	// The session opens with a system welcome message.
	msgs, err := f.svc.ListMessages(ctx, student, student.ID, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleSystem, msgs[0].SenderRole)
	assert.Contains(t, msgs[0].Content, "Interactive Guide")

	// Student asks a question: the floor passes to staff.
	f.advance(time.Minute)
	_, err = f.svc.AddMessage(ctx, replication.AddMessageInput{
		Actor: student, SessionID: session.ID, Content: "help with limits?",
	})
	require.NoError(t, err)

	stored, err = f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForStaff, stored.Status)
	assert.Equal(t, f.clock, stored.UpdatedAt)
	assert.Equal(t, f.clock, stored.LastActiveAt)
	proj, err = f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForStaff, proj.Status)

	// Staff reply hands the floor back.
	f.advance(time.Minute)
	_, err = f.svc.AddMessage(ctx, replication.AddMessageInput{
		Actor: staff, SessionID: session.ID, OwnerID: student.ID, Content: "sure, start with epsilon-delta",
	})
	require.NoError(t, err)

	stored, err = f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
	proj, err = f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, proj.Status)

	msgs, err = f.svc.ListMessages(ctx, staff, student.ID, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, staff.ID, msgs[2].SenderID)
	assert.Equal(t, "Max", msgs[2].SenderName)
}

func TestCreateSessionSurvivesMirrorFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.InjectFailure("mirror.put", errors.New("mirror down"))

	session := f.create(t, "Physics")

	// Owner partition is intact, mirror row absent. Documented window.
	_, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	_, err = f.store.GetProjection(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The next dual write closes the window by recreating nothing: the
	// patch fails on the absent row and is swallowed, but the owner copy
	// keeps advancing.
	_, err = f.svc.AddMessage(ctx, replication.AddMessageInput{
		Actor: student, SessionID: session.ID, Content: "hello?",
	})
	require.NoError(t, err)
	stored, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForStaff, stored.Status)
}

func TestAuthoritativeWriteRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Algebra")

	f.store.InjectFailure("owner.patch", domain.ErrTransientStore)

	subject := "Algebra II"
	err := f.svc.WriteSession(ctx, student.ID, session.ID, domain.SessionPatch{Subject: &subject})
	require.NoError(t, err, "one transient failure is absorbed by the retry")

	stored, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", stored.Subject)
	proj, err := f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", proj.Subject)
}

func TestAuthoritativeWriteGivesUpOnHardFailure(t *testing.T) {
	f := newFixture(t)
	session := f.create(t, "Chemistry")

	boom := errors.New("permission misconfigured")
	f.store.InjectFailure("owner.patch", boom)

	subject := "nope"
	err := f.svc.WriteSession(context.Background(), student.ID, session.ID, domain.SessionPatch{Subject: &subject})
	assert.ErrorIs(t, err, boom, "non-transient failures are not retried")
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Calc I")

	require.ErrorIs(t, f.svc.CloseSession(ctx, student, student.ID, session.ID), domain.ErrPermissionDenied)

	f.advance(time.Hour)
	require.NoError(t, f.svc.CloseSession(ctx, staff, student.ID, session.ID))

	stored, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	assert.Equal(t, f.clock, *stored.ClosedAt)
	proj, err := f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, proj.Status)

	// Closing twice is a no-op.
	require.NoError(t, f.svc.CloseSession(ctx, staff, student.ID, session.ID))

	// Closed sessions reject student writes but stay staff-writable, and
	// a staff message reopens the floor.
	_, err = f.svc.AddMessage(ctx, replication.AddMessageInput{
		Actor: student, SessionID: session.ID, Content: "one more thing",
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.AddMessage(ctx, replication.AddMessageInput{
		Actor: staff, SessionID: session.ID, OwnerID: student.ID, Content: "reopening for a follow-up",
	})
	require.NoError(t, err)
	stored, err = f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
}

func TestToggleVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Calc I")

	require.ErrorIs(t, f.svc.ToggleVisibility(ctx, staff, student.ID, session.ID, true), domain.ErrPermissionDenied)

	before, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)

	f.advance(time.Hour)
	require.NoError(t, f.svc.ToggleVisibility(ctx, student, student.ID, session.ID, true))

	stored, err := f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Hidden)
	assert.Equal(t, before.UpdatedAt, stored.UpdatedAt, "visibility is not activity")

	// The flag never reaches the mirror.
	proj, err := f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, proj.UpdatedAt)
}

func TestDeleteSessionCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Calc I")

	_, err := f.svc.AddMessage(ctx, replication.AddMessageInput{
		Actor: student, SessionID: session.ID, Content: "see attached",
	})
	require.NoError(t, err)
	uploaded, err := f.files.Upload(ctx, filesapp.UploadInput{
		Actor: student, SessionID: session.ID, Name: "notes.pdf",
		ContentType: "application/pdf", Size: 4, Data: strings.NewReader("abcd"),
	})
	require.NoError(t, err)
	require.True(t, f.blobs.Exists(uploaded.StoragePath))

	require.ErrorIs(t, f.svc.DeleteSession(ctx, student, student.ID, session.ID), domain.ErrPermissionDenied)
	require.NoError(t, f.svc.DeleteSession(ctx, staff, student.ID, session.ID))

	_, err = f.store.GetSession(ctx, student.ID, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.GetProjection(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	msgs, err := f.store.ListMessages(ctx, student.ID, session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.False(t, f.blobs.Exists(uploaded.StoragePath))

	// Deleting again converges: every step is a no-op on absent records.
	require.NoError(t, f.svc.DeleteSession(ctx, staff, student.ID, session.ID))
}

func TestDeleteSessionAbortsAndResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Calc I")

	boom := errors.New("owner partition write refused")
	f.store.InjectFailure("owner.deleteMessages", boom)

	err := f.svc.DeleteSession(ctx, staff, student.ID, session.ID)
	var partial *domain.PartialDeletionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, session.ID, partial.SessionID)
	assert.Equal(t, domain.StepMessages, partial.Step)
	assert.ErrorIs(t, err, boom)

	// The step that failed left everything after it untouched.
	_, err = f.store.GetSession(ctx, student.ID, session.ID)
	require.NoError(t, err)
	_, err = f.store.GetProjection(ctx, session.ID)
	require.NoError(t, err)

	// A retried call resumes the cascade from the top and completes.
	require.NoError(t, f.svc.DeleteSession(ctx, staff, student.ID, session.ID))
	_, err = f.store.GetSession(ctx, student.ID, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.GetProjection(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStreamSessionsDeliversSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Calc I")

	sub, err := f.svc.StreamSessions(ctx, student, student.ID)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := waitSnapshot(t, sub.Updates())
	require.Len(t, snap, 1)
	assert.Equal(t, session.ID, snap[0].ID)

	// A second session arrives as a full replacement snapshot, newest
	// first.
	f.advance(time.Minute)
	second := f.create(t, "Calc II")
	snap = waitSnapshot(t, sub.Updates())
	require.Len(t, snap, 2)
	assert.Equal(t, second.ID, snap[0].ID)

	// Students cannot watch another user's list.
	_, err = f.svc.StreamSessions(ctx, student, "someone-else")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestStreamMirrorPinsStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine := f.create(t, "Mine")

	other := domain.Actor{ID: "student-2", Role: domain.RoleStudent}
	_, err := f.svc.CreateSession(ctx, replication.CreateSessionInput{
		Actor: other, Subject: "Theirs", Mode: domain.ModeInteractive,
	})
	require.NoError(t, err)

	// A student asking for the unfiltered mirror gets only their rows.
	sub, err := f.svc.StreamMirror(ctx, student, domain.MirrorFilter{})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := waitSnapshot(t, sub.Updates())
	require.Len(t, snap, 1)
	assert.Equal(t, mine.ID, snap[0].ID)

	// Staff see the whole board.
	staffSub, err := f.svc.StreamMirror(ctx, staff, domain.MirrorFilter{})
	require.NoError(t, err)
	defer staffSub.Unsubscribe()
	snap = waitSnapshot(t, staffSub.Updates())
	assert.Len(t, snap, 2)
}

func TestStreamMessagesOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.create(t, "Calc I")

	sub, err := f.svc.StreamMessages(ctx, student, student.ID, session.ID)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for _, content := range []string{"one", "two", "three"} {
		f.advance(time.Second)
		_, err := f.svc.AddMessage(ctx, replication.AddMessageInput{
			Actor: student, SessionID: session.ID, Content: content,
		})
		require.NoError(t, err)
	}

	// Intermediate snapshots may coalesce; the one that settles is
	// complete and in append order.
	snap := waitSnapshot(t, sub.Updates())
	for len(snap) < 4 {
		snap = waitSnapshot(t, sub.Updates())
	}
	require.Len(t, snap, 4)
	assert.Equal(t, domain.RoleSystem, snap[0].SenderRole)
	assert.Equal(t, "one", snap[1].Content)
	assert.Equal(t, "two", snap[2].Content)
	assert.Equal(t, "three", snap[3].Content)
}

func waitSnapshot[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case snap, open := <-ch:
		require.True(t, open, "subscription closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
