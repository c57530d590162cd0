package domain

import (
	"context"
	"io"
	"time"
)

// OwnerStore is the authoritative partition: session records nested under
// their owning user, with message and file sub-collections. Every write
// here must succeed for the logical operation to succeed.
type OwnerStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, ownerID UserID, id SessionID) (*Session, error)
	PatchSession(ctx context.Context, ownerID UserID, id SessionID, patch SessionPatch) error
	// DeleteSession removes the session document only, never its children.
	// Deleting an absent document is a no-op.
	DeleteSession(ctx context.Context, ownerID UserID, id SessionID) error

	AppendMessage(ctx context.Context, ownerID UserID, m *Message) error
	ListMessages(ctx context.Context, ownerID UserID, id SessionID) ([]*Message, error)
	DeleteMessages(ctx context.Context, ownerID UserID, id SessionID) error

	PutFile(ctx context.Context, ownerID UserID, f *File) error
	ListFiles(ctx context.Context, ownerID UserID, id SessionID) ([]*File, error)
	DeleteFile(ctx context.Context, ownerID UserID, id SessionID, fileID FileID) error

	// WatchSessions streams the owner's sessions ordered by createdAt
	// descending. WatchMessages streams createdAt ascending, WatchFiles
	// createdAt descending.
	WatchSessions(ctx context.Context, ownerID UserID) (*Subscription[*Session], error)
	WatchMessages(ctx context.Context, ownerID UserID, id SessionID) (*Subscription[*Message], error)
	WatchFiles(ctx context.Context, ownerID UserID, id SessionID) (*Subscription[*File], error)
}

// MirrorFilter narrows a mirror query or watch. Zero value means all
// non-deleted sessions.
type MirrorFilter struct {
	OwnerID UserID        // restrict to one owner (student self-queries)
	Status  SessionStatus // restrict to one status
}

// MirrorStore is the flat, globally queryable projection used by staff-wide
// queries. It is a read optimization: writes here are best-effort and
// callers must tolerate a missing or stale counterpart.
type MirrorStore interface {
	PutProjection(ctx context.Context, p *SessionProjection) error
	GetProjection(ctx context.Context, id SessionID) (*SessionProjection, error)
	PatchProjection(ctx context.Context, id SessionID, patch SessionPatch) error
	DeleteProjection(ctx context.Context, id SessionID) error

	// QueryInactive returns up to limit non-deleted projections whose
	// updatedAt is strictly older than cutoff, for the retention sweep.
	QueryInactive(ctx context.Context, cutoff time.Time, limit int) ([]*SessionProjection, error)

	// WatchProjections streams matching projections ordered by createdAt
	// descending (the staff console query).
	WatchProjections(ctx context.Context, filter MirrorFilter) (*Subscription[*SessionProjection], error)
}

// BlobStore holds file contents by storage path.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// Delete is a no-op when the object is already absent.
	Delete(ctx context.Context, path string) error
}
