package replication

import (
	"context"

	"github.com/varsivault/vault-core/internal/access"
	"github.com/varsivault/vault-core/internal/domain"
)

// StreamSessions delivers full snapshots of a user's session list, newest
// first. Staff may watch any user's list; students only their own.
func (s *Service) StreamSessions(ctx context.Context, actor domain.Actor, forUser domain.UserID) (*domain.Subscription[*domain.Session], error) {
	res := access.Resource{SessionOwnerID: forUser}
	if err := access.Authorize(actor, access.OpReadSession, res); err != nil {
		return nil, err
	}
	return s.owner.WatchSessions(ctx, forUser)
}

// StreamMessages delivers full snapshots of a session's messages, oldest
// first. Staff reach a student's messages through the owner partition using
// the session's ownerId; they are never mirrored.
func (s *Service) StreamMessages(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID) (*domain.Subscription[*domain.Message], error) {
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpReadSession, access.SessionResource(session)); err != nil {
		return nil, err
	}
	return s.owner.WatchMessages(ctx, ownerID, id)
}

// StreamFiles delivers full snapshots of a session's file list, newest
// first.
func (s *Service) StreamFiles(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID) (*domain.Subscription[*domain.File], error) {
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpReadSession, access.SessionResource(session)); err != nil {
		return nil, err
	}
	return s.owner.WatchFiles(ctx, ownerID, id)
}

// StreamMirror is the staff-console query: full snapshots of the mirror
// projection, newest first, optionally filtered by status. Students are
// pinned to their own rows regardless of the requested filter.
func (s *Service) StreamMirror(ctx context.Context, actor domain.Actor, filter domain.MirrorFilter) (*domain.Subscription[*domain.SessionProjection], error) {
	if actor.Role != domain.RoleStaff {
		filter.OwnerID = actor.ID
	}
	res := access.Resource{SessionOwnerID: filter.OwnerID}
	if err := access.Authorize(actor, access.OpReadMirror, res); err != nil {
		return nil, err
	}
	return s.mirror.WatchProjections(ctx, filter)
}
