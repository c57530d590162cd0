package memory

import (
	"context"
	"sync"

	"github.com/varsivault/vault-core/internal/domain"
)

// watchHub tracks live subscriptions per topic. Publishing happens while
// the store lock is held, which is what keeps deliveries monotonic in
// commit order; Subscription.Publish never blocks, so holding the lock is
// safe.
type watchHub struct {
	mu     sync.Mutex
	nextID int

	sessions map[domain.UserID]map[int]*domain.Subscription[*domain.Session]
	messages map[ownerSession]map[int]*domain.Subscription[*domain.Message]
	files    map[ownerSession]map[int]*domain.Subscription[*domain.File]
	mirror   map[int]*mirrorWatcher
}

type mirrorWatcher struct {
	sub    *domain.Subscription[*domain.SessionProjection]
	filter domain.MirrorFilter
}

func newWatchHub() *watchHub {
	return &watchHub{
		sessions: make(map[domain.UserID]map[int]*domain.Subscription[*domain.Session]),
		messages: make(map[ownerSession]map[int]*domain.Subscription[*domain.Message]),
		files:    make(map[ownerSession]map[int]*domain.Subscription[*domain.File]),
		mirror:   make(map[int]*mirrorWatcher),
	}
}

func (h *watchHub) publishSessions(owner domain.UserID, snap []*domain.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.sessions[owner] {
		sub.Publish(snap)
	}
}

func (h *watchHub) publishMessages(key ownerSession, snap []*domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.messages[key] {
		sub.Publish(snap)
	}
}

func (h *watchHub) publishFiles(key ownerSession, snap []*domain.File) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.files[key] {
		sub.Publish(snap)
	}
}

func (h *watchHub) publishMirror(snap []*domain.SessionProjection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.mirror {
		w.sub.Publish(filterProjections(snap, w.filter))
	}
}

// filterProjections applies a mirror filter. Deleted rows are hidden
// unless explicitly asked for.
func filterProjections(snap []*domain.SessionProjection, f domain.MirrorFilter) []*domain.SessionProjection {
	out := make([]*domain.SessionProjection, 0, len(snap))
	for _, p := range snap {
		if f.OwnerID != "" && p.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" {
			if p.Status != f.Status {
				continue
			}
		} else if p.Status == domain.StatusDeleted {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ─────────────────────────────────────────
// Store watch methods
// ─────────────────────────────────────────

func (s *Store) WatchSessions(ctx context.Context, ownerID domain.UserID) (*domain.Subscription[*domain.Session], error) {
	s.mu.RLock()
	snap := s.sessionSnapshot(ownerID)
	s.mu.RUnlock()

	h := s.watchers
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := domain.NewSubscription[*domain.Session](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.sessions[ownerID], id)
	})
	if h.sessions[ownerID] == nil {
		h.sessions[ownerID] = make(map[int]*domain.Subscription[*domain.Session])
	}
	h.sessions[ownerID][id] = sub
	sub.Publish(snap)
	return sub, nil
}

func (s *Store) WatchMessages(ctx context.Context, ownerID domain.UserID, sessionID domain.SessionID) (*domain.Subscription[*domain.Message], error) {
	key := ownerSession{ownerID, sessionID}

	s.mu.RLock()
	snap := s.messageSnapshot(key)
	s.mu.RUnlock()

	h := s.watchers
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := domain.NewSubscription[*domain.Message](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.messages[key], id)
	})
	if h.messages[key] == nil {
		h.messages[key] = make(map[int]*domain.Subscription[*domain.Message])
	}
	h.messages[key][id] = sub
	sub.Publish(snap)
	return sub, nil
}

func (s *Store) WatchFiles(ctx context.Context, ownerID domain.UserID, sessionID domain.SessionID) (*domain.Subscription[*domain.File], error) {
	key := ownerSession{ownerID, sessionID}

	s.mu.RLock()
	snap := s.fileSnapshot(key)
	s.mu.RUnlock()

	h := s.watchers
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := domain.NewSubscription[*domain.File](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.files[key], id)
	})
	if h.files[key] == nil {
		h.files[key] = make(map[int]*domain.Subscription[*domain.File])
	}
	h.files[key][id] = sub
	sub.Publish(snap)
	return sub, nil
}

func (s *Store) WatchProjections(ctx context.Context, filter domain.MirrorFilter) (*domain.Subscription[*domain.SessionProjection], error) {
	s.mu.RLock()
	snap := s.mirrorSnapshotAll()
	s.mu.RUnlock()

	h := s.watchers
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := domain.NewSubscription[*domain.SessionProjection](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.mirror, id)
	})
	h.mirror[id] = &mirrorWatcher{sub: sub, filter: filter}
	sub.Publish(filterProjections(snap, filter))
	return sub, nil
}
