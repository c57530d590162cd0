package replication

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/varsivault/vault-core/internal/access"
	"github.com/varsivault/vault-core/internal/domain"
	"github.com/varsivault/vault-core/internal/observability"
)

type AddMessageInput struct {
	Actor     domain.Actor
	SessionID domain.SessionID
	// OwnerID identifies the owner partition. Empty means the actor's
	// own; staff set it to post on a student's session.
	OwnerID domain.UserID
	Content string
}

// AddMessage appends under the owner partition, then dual-writes the
// status/updatedAt/lastActiveAt change. A student message puts the session
// in WaitingForStaff, a staff message back to Active. Messages are ordered
// by server-assigned timestamps, never client clocks.
func (s *Service) AddMessage(ctx context.Context, in AddMessageInput) (*domain.Message, error) {
	ownerID := in.OwnerID
	if ownerID == "" {
		ownerID = in.Actor.ID
	}

	session, err := s.fetchSession(ctx, ownerID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(in.Actor, access.OpAppendMessage, access.SessionResource(session)); err != nil {
		return nil, err
	}

	now := s.now()
	msg := &domain.Message{
		ID:         domain.MessageID(uuid.NewString()),
		SessionID:  session.ID,
		SenderID:   in.Actor.ID,
		SenderRole: in.Actor.Role,
		SenderName: in.Actor.Name,
		Content:    in.Content,
		CreatedAt:  now,
	}

	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.AppendMessage(ctx, ownerID, msg)
	}); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to append message",
			"session_id", session.ID, "error", err)
		return nil, err
	}

	patch := domain.SessionPatch{
		UpdatedAt:    timePtr(now),
		LastActiveAt: timePtr(now),
	}
	if next := domain.StatusAfterMessage(in.Actor.Role, session.Status); next != session.Status {
		patch.Status = &next
	}
	if err := s.WriteSession(ctx, ownerID, session.ID, patch); err != nil {
		return nil, err
	}

	return msg, nil
}

// ListMessages reads the full ordered message history, access-checked.
func (s *Service) ListMessages(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID) ([]*domain.Message, error) {
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpReadSession, access.SessionResource(session)); err != nil {
		return nil, err
	}
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.owner.ListMessages(opCtx, ownerID, id)
}

func timePtr(t time.Time) *time.Time { return &t }
