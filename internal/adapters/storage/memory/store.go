// Package memory is the in-process record store used in local mode and in
// tests. It implements both partitions, owner-nested documents and the
// flat mirror, with the same watch semantics the
// Firestore adapter provides: full snapshots on every change, in commit
// order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/varsivault/vault-core/internal/domain"
)

type ownerSession struct {
	owner   domain.UserID
	session domain.SessionID
}

type Store struct {
	mu sync.RWMutex

	sessions map[domain.UserID]map[domain.SessionID]*domain.Session
	messages map[ownerSession][]*domain.Message
	files    map[ownerSession]map[domain.FileID]*domain.File
	mirror   map[domain.SessionID]*domain.SessionProjection

	watchers *watchHub

	// failures maps an op name to an error returned (once) by the next
	// call of that op. Test hook for the partial-failure paths.
	failMu   sync.Mutex
	failures map[string]error
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[domain.UserID]map[domain.SessionID]*domain.Session),
		messages: make(map[ownerSession][]*domain.Message),
		files:    make(map[ownerSession]map[domain.FileID]*domain.File),
		mirror:   make(map[domain.SessionID]*domain.SessionProjection),
		watchers: newWatchHub(),
		failures: make(map[string]error),
	}
}

// InjectFailure makes the next call of op fail with err. Op names:
// owner.create, owner.get, owner.patch, owner.delete, owner.appendMessage,
// owner.deleteMessages, owner.putFile, owner.deleteFile, mirror.put,
// mirror.patch, mirror.delete, mirror.query.
func (s *Store) InjectFailure(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures[op] = err
}

func (s *Store) takeFailure(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// ─────────────────────────────────────────
// OwnerStore
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.create"); err != nil {
		return err
	}

	byOwner, ok := s.sessions[sess.OwnerID]
	if !ok {
		byOwner = make(map[domain.SessionID]*domain.Session)
		s.sessions[sess.OwnerID] = byOwner
	}
	if _, exists := byOwner[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	cp := *sess
	byOwner[sess.ID] = &cp

	s.watchers.publishSessions(sess.OwnerID, s.sessionSnapshot(sess.OwnerID))
	return nil
}

func (s *Store) GetSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.takeFailure("owner.get"); err != nil {
		return nil, err
	}

	sess, ok := s.sessions[ownerID][id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) PatchSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID, patch domain.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.patch"); err != nil {
		return err
	}

	sess, ok := s.sessions[ownerID][id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	patch.Apply(sess)

	s.watchers.publishSessions(ownerID, s.sessionSnapshot(ownerID))
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.delete"); err != nil {
		return err
	}

	// Deleting an absent document is a no-op.
	delete(s.sessions[ownerID], id)

	s.watchers.publishSessions(ownerID, s.sessionSnapshot(ownerID))
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, ownerID domain.UserID, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.appendMessage"); err != nil {
		return err
	}

	key := ownerSession{ownerID, m.SessionID}
	cp := *m
	s.messages[key] = append(s.messages[key], &cp)

	s.watchers.publishMessages(key, s.messageSnapshot(key))
	return nil
}

func (s *Store) ListMessages(ctx context.Context, ownerID domain.UserID, id domain.SessionID) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageSnapshot(ownerSession{ownerID, id}), nil
}

func (s *Store) DeleteMessages(ctx context.Context, ownerID domain.UserID, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.deleteMessages"); err != nil {
		return err
	}

	key := ownerSession{ownerID, id}
	delete(s.messages, key)

	s.watchers.publishMessages(key, nil)
	return nil
}

func (s *Store) PutFile(ctx context.Context, ownerID domain.UserID, f *domain.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.putFile"); err != nil {
		return err
	}

	key := ownerSession{ownerID, f.SessionID}
	byID, ok := s.files[key]
	if !ok {
		byID = make(map[domain.FileID]*domain.File)
		s.files[key] = byID
	}
	cp := *f
	byID[f.ID] = &cp

	s.watchers.publishFiles(key, s.fileSnapshot(key))
	return nil
}

func (s *Store) ListFiles(ctx context.Context, ownerID domain.UserID, id domain.SessionID) ([]*domain.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileSnapshot(ownerSession{ownerID, id}), nil
}

func (s *Store) DeleteFile(ctx context.Context, ownerID domain.UserID, id domain.SessionID, fileID domain.FileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("owner.deleteFile"); err != nil {
		return err
	}

	key := ownerSession{ownerID, id}
	delete(s.files[key], fileID)

	s.watchers.publishFiles(key, s.fileSnapshot(key))
	return nil
}

// ─────────────────────────────────────────
// MirrorStore
// ─────────────────────────────────────────

func (s *Store) PutProjection(ctx context.Context, p *domain.SessionProjection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("mirror.put"); err != nil {
		return err
	}

	cp := *p
	s.mirror[p.ID] = &cp

	s.watchers.publishMirror(s.mirrorSnapshotAll())
	return nil
}

func (s *Store) GetProjection(ctx context.Context, id domain.SessionID) (*domain.SessionProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.mirror[id]
	if !ok {
		return nil, fmt.Errorf("mirror %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) PatchProjection(ctx context.Context, id domain.SessionID, patch domain.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("mirror.patch"); err != nil {
		return err
	}

	p, ok := s.mirror[id]
	if !ok {
		return fmt.Errorf("mirror %s: %w", id, domain.ErrNotFound)
	}
	patch.ApplyProjection(p)

	s.watchers.publishMirror(s.mirrorSnapshotAll())
	return nil
}

func (s *Store) DeleteProjection(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("mirror.delete"); err != nil {
		return err
	}

	delete(s.mirror, id)

	s.watchers.publishMirror(s.mirrorSnapshotAll())
	return nil
}

func (s *Store) QueryInactive(ctx context.Context, cutoff time.Time, limit int) ([]*domain.SessionProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.takeFailure("mirror.query"); err != nil {
		return nil, err
	}

	var out []*domain.SessionProjection
	for _, p := range s.mirror {
		if p.Status == domain.StatusDeleted {
			continue
		}
		if !p.UpdatedAt.Before(cutoff) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─────────────────────────────────────────
// Snapshots (callers hold at least the read lock)
// ─────────────────────────────────────────

func (s *Store) sessionSnapshot(ownerID domain.UserID) []*domain.Session {
	var out []*domain.Session
	for _, sess := range s.sessions[ownerID] {
		cp := *sess
		out = append(out, &cp)
	}
	// Newest first, id as tiebreaker to keep delivery deterministic.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) messageSnapshot(key ownerSession) []*domain.Message {
	msgs := s.messages[key]
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		out = append(out, &cp)
	}
	// Append order already matches server-assigned commit timestamps.
	return out
}

func (s *Store) fileSnapshot(key ownerSession) []*domain.File {
	var out []*domain.File
	for _, f := range s.files[key] {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) mirrorSnapshotAll() []*domain.SessionProjection {
	var out []*domain.SessionProjection
	for _, p := range s.mirror {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
