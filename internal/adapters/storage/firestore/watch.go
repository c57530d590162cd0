package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/varsivault/vault-core/internal/domain"
)

// The watch methods bridge Firestore snapshot listeners onto the
// Subscription contract: every listener callback re-reads the full ordered
// result set and publishes it as one snapshot. Unsubscribe cancels the
// listener context, which stops the iterator and releases the server-side
// watch.

func (s *Store) WatchSessions(ctx context.Context, ownerID domain.UserID) (*domain.Subscription[*domain.Session], error) {
	q := s.sessionsCol(ownerID).OrderBy("created_at", firestore.Desc)

	watchCtx, cancel := context.WithCancel(ctx)
	sub := domain.NewSubscription[*domain.Session](cancel)

	go watchQuery(watchCtx, q, sub, func(snap *firestore.DocumentSnapshot) (*domain.Session, error) {
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return doc.toDomain(domain.SessionID(snap.Ref.ID)), nil
	})
	return sub, nil
}

func (s *Store) WatchMessages(ctx context.Context, ownerID domain.UserID, id domain.SessionID) (*domain.Subscription[*domain.Message], error) {
	q := s.messagesCol(ownerID, id).OrderBy("created_at", firestore.Asc)

	watchCtx, cancel := context.WithCancel(ctx)
	sub := domain.NewSubscription[*domain.Message](cancel)

	go watchQuery(watchCtx, q, sub, func(snap *firestore.DocumentSnapshot) (*domain.Message, error) {
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return &domain.Message{
			ID:         domain.MessageID(snap.Ref.ID),
			SessionID:  id,
			SenderID:   domain.UserID(doc.SenderID),
			SenderRole: domain.Role(doc.SenderRole),
			SenderName: doc.SenderName,
			Content:    doc.Content,
			CreatedAt:  doc.CreatedAt,
		}, nil
	})
	return sub, nil
}

func (s *Store) WatchFiles(ctx context.Context, ownerID domain.UserID, id domain.SessionID) (*domain.Subscription[*domain.File], error) {
	q := s.filesCol(ownerID, id).OrderBy("created_at", firestore.Desc)

	watchCtx, cancel := context.WithCancel(ctx)
	sub := domain.NewSubscription[*domain.File](cancel)

	go watchQuery(watchCtx, q, sub, func(snap *firestore.DocumentSnapshot) (*domain.File, error) {
		var doc fileDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return &domain.File{
			ID:          domain.FileID(snap.Ref.ID),
			SessionID:   domain.SessionID(doc.SessionID),
			OwnerID:     domain.UserID(doc.OwnerID),
			Name:        doc.Name,
			StoragePath: doc.StoragePath,
			Size:        doc.Size,
			ContentType: doc.ContentType,
			CreatedAt:   doc.CreatedAt,
		}, nil
	})
	return sub, nil
}

func (s *Store) WatchProjections(ctx context.Context, filter domain.MirrorFilter) (*domain.Subscription[*domain.SessionProjection], error) {
	q := s.mirrorCol().Query
	if filter.OwnerID != "" {
		q = q.Where("owner_id", "==", string(filter.OwnerID))
	}
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	q = q.OrderBy("created_at", firestore.Desc)

	watchCtx, cancel := context.WithCancel(ctx)
	sub := domain.NewSubscription[*domain.SessionProjection](cancel)

	hideDeleted := filter.Status == ""
	go watchQuery(watchCtx, q, sub, func(snap *firestore.DocumentSnapshot) (*domain.SessionProjection, error) {
		var doc mirrorDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		p := doc.toDomain(domain.SessionID(snap.Ref.ID))
		if hideDeleted && p.Status == domain.StatusDeleted {
			return nil, nil
		}
		return p, nil
	})
	return sub, nil
}

// watchQuery pumps query snapshots into a subscription until the context
// is cancelled or the stream fails. decode returning (nil, nil) drops the
// document from the snapshot.
func watchQuery[T any](ctx context.Context, q firestore.Query, sub *domain.Subscription[T], decode func(*firestore.DocumentSnapshot) (T, error)) {
	it := q.Snapshots(ctx)
	defer it.Stop()
	defer sub.Unsubscribe()

	for {
		qs, err := it.Next()
		if err != nil {
			return
		}

		var out []T
		docs := qs.Documents
		for {
			d, err := docs.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return
			}
			v, err := decode(d)
			if err != nil {
				continue
			}
			if isNil(v) {
				continue
			}
			out = append(out, v)
		}
		sub.Publish(out)
	}
}

// isNil reports whether a decoded pointer value is the drop sentinel.
func isNil[T any](v T) bool {
	switch p := any(v).(type) {
	case *domain.Session:
		return p == nil
	case *domain.Message:
		return p == nil
	case *domain.File:
		return p == nil
	case *domain.SessionProjection:
		return p == nil
	}
	return false
}
