package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/varsivault/vault-core/internal/domain"
)

// Store implements both partitions over Firestore: the owner partition at
// users/{uid}/sessions/{sid} with messages and files sub-collections, and
// the flat mirror at sessions/{sid}.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (VAULT_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) userDoc(ownerID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(string(ownerID))
}

func (s *Store) sessionsCol(ownerID domain.UserID) *firestore.CollectionRef {
	return s.userDoc(ownerID).Collection("sessions")
}

func (s *Store) sessionDoc(ownerID domain.UserID, id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol(ownerID).Doc(string(id))
}

func (s *Store) messagesCol(ownerID domain.UserID, id domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(ownerID, id).Collection("messages")
}

// filesCol resolves the files location: under the session when attached,
// under the user for general uploads.
func (s *Store) filesCol(ownerID domain.UserID, id domain.SessionID) *firestore.CollectionRef {
	if id == "" {
		return s.userDoc(ownerID).Collection("files")
	}
	return s.sessionDoc(ownerID, id).Collection("files")
}

func (s *Store) mirrorCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

// mapErr translates Firestore/gRPC failures into the domain taxonomy.
func mapErr(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientStore)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientStore)
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	OwnerID      string     `firestore:"owner_id"`
	OwnerEmail   string     `firestore:"owner_email"`
	Subject      string     `firestore:"subject"`
	Context      string     `firestore:"context"`
	Mode         string     `firestore:"mode"`
	Status       string     `firestore:"status"`
	Hidden       bool       `firestore:"hidden"`
	AutoDeleted  bool       `firestore:"auto_deleted"`
	CreatedAt    time.Time  `firestore:"created_at"`
	UpdatedAt    time.Time  `firestore:"updated_at"`
	LastActiveAt time.Time  `firestore:"last_active_at"`
	ClosedAt     *time.Time `firestore:"closed_at"`
}

type mirrorDoc struct {
	OwnerID      string    `firestore:"owner_id"`
	OwnerEmail   string    `firestore:"owner_email"`
	Subject      string    `firestore:"subject"`
	Context      string    `firestore:"context"`
	Mode         string    `firestore:"mode"`
	Status       string    `firestore:"status"`
	AutoDeleted  bool      `firestore:"auto_deleted"`
	CreatedAt    time.Time `firestore:"created_at"`
	UpdatedAt    time.Time `firestore:"updated_at"`
	LastActiveAt time.Time `firestore:"last_active_at"`
}

type messageDoc struct {
	SessionID  string    `firestore:"session_id"`
	SenderID   string    `firestore:"sender_id"`
	SenderRole string    `firestore:"sender_role"`
	SenderName string    `firestore:"sender_name"`
	Content    string    `firestore:"content"`
	CreatedAt  time.Time `firestore:"created_at"`
}

type fileDoc struct {
	SessionID   string    `firestore:"session_id"`
	OwnerID     string    `firestore:"owner_id"`
	Name        string    `firestore:"name"`
	StoragePath string    `firestore:"storage_path"`
	Size        int64     `firestore:"size"`
	ContentType string    `firestore:"content_type"`
	CreatedAt   time.Time `firestore:"created_at"`
}

func toSessionDoc(sess *domain.Session) sessionDoc {
	return sessionDoc{
		OwnerID:      string(sess.OwnerID),
		OwnerEmail:   sess.OwnerEmail,
		Subject:      sess.Subject,
		Context:      sess.Context,
		Mode:         string(sess.Mode),
		Status:       string(sess.Status),
		Hidden:       sess.Hidden,
		AutoDeleted:  sess.AutoDeleted,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		LastActiveAt: sess.LastActiveAt,
		ClosedAt:     sess.ClosedAt,
	}
}

func (d sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	return &domain.Session{
		ID:           id,
		OwnerID:      domain.UserID(d.OwnerID),
		OwnerEmail:   d.OwnerEmail,
		Subject:      d.Subject,
		Context:      d.Context,
		Mode:         domain.SessionMode(d.Mode),
		Status:       domain.SessionStatus(d.Status),
		Hidden:       d.Hidden,
		AutoDeleted:  d.AutoDeleted,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		LastActiveAt: d.LastActiveAt,
		ClosedAt:     d.ClosedAt,
	}
}

func toMirrorDoc(p *domain.SessionProjection) mirrorDoc {
	return mirrorDoc{
		OwnerID:      string(p.OwnerID),
		OwnerEmail:   p.OwnerEmail,
		Subject:      p.Subject,
		Context:      p.Context,
		Mode:         string(p.Mode),
		Status:       string(p.Status),
		AutoDeleted:  p.AutoDeleted,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		LastActiveAt: p.LastActiveAt,
	}
}

func (d mirrorDoc) toDomain(id domain.SessionID) *domain.SessionProjection {
	return &domain.SessionProjection{
		ID:           id,
		OwnerID:      domain.UserID(d.OwnerID),
		OwnerEmail:   d.OwnerEmail,
		Subject:      d.Subject,
		Context:      d.Context,
		Mode:         domain.SessionMode(d.Mode),
		Status:       domain.SessionStatus(d.Status),
		AutoDeleted:  d.AutoDeleted,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		LastActiveAt: d.LastActiveAt,
	}
}

// patchToMap builds the merge map for the owner-partition copy.
func patchToMap(p domain.SessionPatch) map[string]interface{} {
	m := map[string]interface{}{}
	if p.Subject != nil {
		m["subject"] = *p.Subject
	}
	if p.Status != nil {
		m["status"] = string(*p.Status)
	}
	if p.Hidden != nil {
		m["hidden"] = *p.Hidden
	}
	if p.AutoDeleted != nil {
		m["auto_deleted"] = *p.AutoDeleted
	}
	if p.ClosedAt != nil {
		m["closed_at"] = *p.ClosedAt
	}
	if p.UpdatedAt != nil {
		m["updated_at"] = *p.UpdatedAt
	}
	if p.LastActiveAt != nil {
		m["last_active_at"] = *p.LastActiveAt
	}
	return m
}

// patchToMirrorMap drops the fields the projection never carries.
func patchToMirrorMap(p domain.SessionPatch) map[string]interface{} {
	m := patchToMap(p)
	delete(m, "hidden")
	delete(m, "closed_at")
	return m
}

// ─────────────────────────────────────────
// OwnerStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.sessionDoc(sess.OwnerID, sess.ID).Create(ctx, toSessionDoc(sess))
	if err != nil {
		return mapErr("CreateSession", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(ownerID, id).Get(ctx)
	if err != nil {
		return nil, mapErr("GetSession", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return doc.toDomain(id), nil
}

func (s *Store) PatchSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID, patch domain.SessionPatch) error {
	m := patchToMap(patch)
	if len(m) == 0 {
		return nil
	}
	// The document must exist: a patch is never an upsert, otherwise a
	// half-deleted session would resurrect as a bare patch.
	if _, err := s.sessionDoc(ownerID, id).Get(ctx); err != nil {
		return mapErr("PatchSession", err)
	}
	if _, err := s.sessionDoc(ownerID, id).Set(ctx, m, firestore.MergeAll); err != nil {
		return mapErr("PatchSession", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID) error {
	// Firestore deletes are no-ops on absent documents already.
	if _, err := s.sessionDoc(ownerID, id).Delete(ctx); err != nil {
		return mapErr("DeleteSession", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, ownerID domain.UserID, m *domain.Message) error {
	doc := messageDoc{
		SessionID:  string(m.SessionID),
		SenderID:   string(m.SenderID),
		SenderRole: string(m.SenderRole),
		SenderName: m.SenderName,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
	_, err := s.messagesCol(ownerID, m.SessionID).Doc(string(m.ID)).Set(ctx, doc)
	if err != nil {
		return mapErr("AppendMessage", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, ownerID domain.UserID, id domain.SessionID) ([]*domain.Message, error) {
	q := s.messagesCol(ownerID, id).OrderBy("created_at", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, mapErr("ListMessages", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		out = append(out, &domain.Message{
			ID:         domain.MessageID(snap.Ref.ID),
			SessionID:  id,
			SenderID:   domain.UserID(doc.SenderID),
			SenderRole: domain.Role(doc.SenderRole),
			SenderName: doc.SenderName,
			Content:    doc.Content,
			CreatedAt:  doc.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) DeleteMessages(ctx context.Context, ownerID domain.UserID, id domain.SessionID) error {
	return s.deleteAllDocs(ctx, "DeleteMessages", s.messagesCol(ownerID, id))
}

func (s *Store) PutFile(ctx context.Context, ownerID domain.UserID, f *domain.File) error {
	doc := fileDoc{
		SessionID:   string(f.SessionID),
		OwnerID:     string(f.OwnerID),
		Name:        f.Name,
		StoragePath: f.StoragePath,
		Size:        f.Size,
		ContentType: f.ContentType,
		CreatedAt:   f.CreatedAt,
	}
	_, err := s.filesCol(ownerID, f.SessionID).Doc(string(f.ID)).Set(ctx, doc)
	if err != nil {
		return mapErr("PutFile", err)
	}
	return nil
}

func (s *Store) ListFiles(ctx context.Context, ownerID domain.UserID, id domain.SessionID) ([]*domain.File, error) {
	q := s.filesCol(ownerID, id).OrderBy("created_at", firestore.Desc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.File
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, mapErr("ListFiles", err)
		}

		var doc fileDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode fileDoc: %w", err)
		}
		out = append(out, &domain.File{
			ID:          domain.FileID(snap.Ref.ID),
			SessionID:   domain.SessionID(doc.SessionID),
			OwnerID:     domain.UserID(doc.OwnerID),
			Name:        doc.Name,
			StoragePath: doc.StoragePath,
			Size:        doc.Size,
			ContentType: doc.ContentType,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) DeleteFile(ctx context.Context, ownerID domain.UserID, id domain.SessionID, fileID domain.FileID) error {
	if _, err := s.filesCol(ownerID, id).Doc(string(fileID)).Delete(ctx); err != nil {
		return mapErr("DeleteFile", err)
	}
	return nil
}

// deleteAllDocs removes every document of a collection, one by one. Not
// atomic: a failure leaves the remainder for the retried cascade.
func (s *Store) deleteAllDocs(ctx context.Context, op string, col *firestore.CollectionRef) error {
	iter := col.Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				return nil
			}
			return mapErr(op, err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return mapErr(op, err)
		}
	}
}

// ─────────────────────────────────────────
// MirrorStore implementation
// ─────────────────────────────────────────

func (s *Store) PutProjection(ctx context.Context, p *domain.SessionProjection) error {
	if _, err := s.mirrorCol().Doc(string(p.ID)).Set(ctx, toMirrorDoc(p)); err != nil {
		return mapErr("PutProjection", err)
	}
	return nil
}

func (s *Store) GetProjection(ctx context.Context, id domain.SessionID) (*domain.SessionProjection, error) {
	snap, err := s.mirrorCol().Doc(string(id)).Get(ctx)
	if err != nil {
		return nil, mapErr("GetProjection", err)
	}

	var doc mirrorDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetProjection decode: %w", err)
	}
	return doc.toDomain(id), nil
}

func (s *Store) PatchProjection(ctx context.Context, id domain.SessionID, patch domain.SessionPatch) error {
	m := patchToMirrorMap(patch)
	if len(m) == 0 {
		return nil
	}
	if _, err := s.mirrorCol().Doc(string(id)).Get(ctx); err != nil {
		return mapErr("PatchProjection", err)
	}
	if _, err := s.mirrorCol().Doc(string(id)).Set(ctx, m, firestore.MergeAll); err != nil {
		return mapErr("PatchProjection", err)
	}
	return nil
}

func (s *Store) DeleteProjection(ctx context.Context, id domain.SessionID) error {
	if _, err := s.mirrorCol().Doc(string(id)).Delete(ctx); err != nil {
		return mapErr("DeleteProjection", err)
	}
	return nil
}

func (s *Store) QueryInactive(ctx context.Context, cutoff time.Time, limit int) ([]*domain.SessionProjection, error) {
	// Single range constraint only: the status filter rides client-side
	// because Firestore rejects an inequality on a second field.
	q := s.mirrorCol().
		Where("updated_at", "<", cutoff).
		OrderBy("updated_at", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.SessionProjection
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, mapErr("QueryInactive", err)
		}

		var doc mirrorDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode mirrorDoc: %w", err)
		}
		if domain.SessionStatus(doc.Status) == domain.StatusDeleted {
			continue
		}
		out = append(out, doc.toDomain(domain.SessionID(snap.Ref.ID)))
	}
	return out, nil
}
