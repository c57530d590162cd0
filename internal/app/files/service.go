// Package files keeps blob objects and their metadata records paired: the
// blob is written before the metadata and deleted before it too, so a
// metadata record never points at an object that was never there. Orphan
// blobs are tolerated, orphan metadata is not.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/varsivault/vault-core/internal/access"
	"github.com/varsivault/vault-core/internal/domain"
	"github.com/varsivault/vault-core/internal/observability"
)

type Service struct {
	owner domain.OwnerStore
	blobs domain.BlobStore

	opTimeout time.Duration
	now       func() time.Time
}

func NewService(owner domain.OwnerStore, blobs domain.BlobStore, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Service{
		owner:     owner,
		blobs:     blobs,
		opTimeout: opTimeout,
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

type UploadInput struct {
	Actor domain.Actor
	// OwnerID is the owner partition the file lands in. Empty means the
	// actor's own. Staff set it to upload on a student's behalf; the
	// file still records the staff member as uploader.
	OwnerID   domain.UserID
	SessionID domain.SessionID // empty = general upload, unattached
	Name      string
	ContentType string
	Size      int64
	Data      io.Reader
	// Progress, if set, is called as bytes reach the blob store.
	Progress func(written, total int64)
}

// Upload streams the blob first, then writes the metadata record under the
// owner partition. A metadata failure after a successful blob write leaves
// an orphan object behind, which is accepted.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*domain.File, error) {
	ownerID := in.OwnerID
	if ownerID == "" {
		ownerID = in.Actor.ID
	}

	if in.SessionID != "" {
		session, err := s.fetchSession(ctx, ownerID, in.SessionID)
		if err != nil {
			return nil, err
		}
		if err := access.Authorize(in.Actor, access.OpUploadFile, access.SessionResource(session)); err != nil {
			return nil, err
		}
	} else if err := access.Authorize(in.Actor, access.OpUploadFile, access.Resource{SessionOwnerID: ownerID}); err != nil {
		return nil, err
	}

	now := s.now()
	file := &domain.File{
		ID:          domain.FileID(uuid.NewString()),
		SessionID:   in.SessionID,
		OwnerID:     in.Actor.ID,
		Name:        in.Name,
		StoragePath: storagePath(ownerID, in.SessionID, now, in.Name),
		Size:        in.Size,
		ContentType: in.ContentType,
		CreatedAt:   now,
	}

	reader := in.Data
	if in.Progress != nil {
		reader = &progressReader{r: in.Data, total: in.Size, report: in.Progress}
	}
	if err := s.blobs.Put(ctx, file.StoragePath, reader, in.Size, in.ContentType); err != nil {
		return nil, fmt.Errorf("upload %s: %w", file.Name, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.owner.PutFile(opCtx, ownerID, file); err != nil {
		// The blob exists but the metadata doesn't: an orphan object,
		// tolerated per the pairing invariant.
		observability.LoggerFromContext(ctx).Warn("file metadata write failed, blob orphaned",
			"path", file.StoragePath, "error", err)
		return nil, err
	}

	return file, nil
}

// Delete removes the blob, then the metadata record. Only the uploader may
// delete a file; staff file access is read-only. A missing blob is treated
// as already gone so a retried delete converges.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, ownerID domain.UserID, f *domain.File) error {
	var session *domain.Session
	if f.SessionID != "" {
		var err error
		session, err = s.fetchSession(ctx, ownerID, f.SessionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if err := access.Authorize(actor, access.OpDeleteFile, access.FileResource(f, session)); err != nil {
		return err
	}
	return s.deletePair(ctx, ownerID, f)
}

// DeleteAll removes every file pair of a session, staff-only. It is the
// first step of the session-deletion cascade and aborts on the first
// failure so a retry can resume.
func (s *Service) DeleteAll(ctx context.Context, actor domain.Actor, ownerID domain.UserID, sessionID domain.SessionID) error {
	if err := access.Authorize(actor, access.OpDeleteAllFiles, access.Resource{SessionOwnerID: ownerID}); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	files, err := s.owner.ListFiles(opCtx, ownerID, sessionID)
	cancel()
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := s.deletePair(ctx, ownerID, f); err != nil {
			return err
		}
	}
	return nil
}

// List reads a session's file metadata, access-checked.
func (s *Service) List(ctx context.Context, actor domain.Actor, ownerID domain.UserID, sessionID domain.SessionID) ([]*domain.File, error) {
	session, err := s.fetchSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpReadSession, access.SessionResource(session)); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.owner.ListFiles(opCtx, ownerID, sessionID)
}

func (s *Service) deletePair(ctx context.Context, ownerID domain.UserID, f *domain.File) error {
	if err := s.blobs.Delete(ctx, f.StoragePath); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete blob %s: %w", f.StoragePath, err)
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.owner.DeleteFile(opCtx, ownerID, f.SessionID, f.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete file metadata %s: %w", f.ID, err)
	}
	return nil
}

func (s *Service) fetchSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID) (*domain.Session, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.owner.GetSession(opCtx, ownerID, id)
}

// storagePath mirrors the upload layout:
// user_uploads/{owner}/{session|general}/{millis}-{name}
func storagePath(ownerID domain.UserID, sessionID domain.SessionID, now time.Time, name string) string {
	bucket := "general"
	if sessionID != "" {
		bucket = string(sessionID)
	}
	return fmt.Sprintf("user_uploads/%s/%s/%d-%s", ownerID, bucket, now.UnixMilli(), name)
}

type progressReader struct {
	r       io.Reader
	total   int64
	written int64
	report  func(written, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.written += int64(n)
		p.report(p.written, p.total)
	}
	return n, err
}
