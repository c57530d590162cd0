package replication

import (
	"context"
	"errors"

	"github.com/varsivault/vault-core/internal/access"
	"github.com/varsivault/vault-core/internal/domain"
	"github.com/varsivault/vault-core/internal/observability"
)

// DeleteSession destroys a session across both partitions, in order: file
// pairs, messages, owner-partition document, mirror document. The sequence
// is deliberately non-atomic; a failed step aborts the remainder and
// surfaces a PartialDeletionError, and a retried call resumes safely
// because every step treats an already-absent record as a no-op.
func (s *Service) DeleteSession(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID) error {
	// The session may already be half-deleted from an earlier aborted
	// run, so an absent document does not stop the cascade.
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	res := access.Resource{SessionOwnerID: ownerID}
	if session != nil {
		res = access.SessionResource(session)
	}
	if err := access.Authorize(actor, access.OpDeleteSession, res); err != nil {
		return err
	}

	log := observability.LoggerFromContext(ctx).With("session_id", id, "owner_id", ownerID)
	log.Info("deleting session")

	if err := s.files.DeleteAll(ctx, actor, ownerID, id); err != nil {
		return &domain.PartialDeletionError{SessionID: id, Step: domain.StepFiles, Err: err}
	}

	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.DeleteMessages(ctx, ownerID, id)
	}); err != nil {
		return &domain.PartialDeletionError{SessionID: id, Step: domain.StepMessages, Err: err}
	}

	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.DeleteSession(ctx, ownerID, id)
	}); err != nil {
		return &domain.PartialDeletionError{SessionID: id, Step: domain.StepOwnerDoc, Err: err}
	}

	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.mirror.DeleteProjection(ctx, id)
	}); err != nil {
		return &domain.PartialDeletionError{SessionID: id, Step: domain.StepMirrorDoc, Err: err}
	}

	log.Info("session deleted")
	return nil
}
