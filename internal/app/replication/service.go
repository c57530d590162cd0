// Package replication is the consistency manager: every session mutation is
// a best-effort dual write, owner partition authoritative, mirror secondary.
// A failed mirror write is logged and swallowed: the mirror is a read
// optimization, not the source of truth, and callers must never depend on
// it succeeding synchronously.
package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/varsivault/vault-core/internal/access"
	"github.com/varsivault/vault-core/internal/domain"
	"github.com/varsivault/vault-core/internal/observability"
)

// FileRemover is the slice of the file service the deletion cascade needs.
type FileRemover interface {
	DeleteAll(ctx context.Context, actor domain.Actor, ownerID domain.UserID, sessionID domain.SessionID) error
}

type Service struct {
	owner  domain.OwnerStore
	mirror domain.MirrorStore
	files  FileRemover

	opTimeout    time.Duration
	retryBackoff time.Duration
	now          func() time.Time
}

type Options struct {
	// OpTimeout bounds every single store operation; an op that does not
	// complete in time is treated as failed, not hung.
	OpTimeout time.Duration
	// RetryBackoff is the pause before the single retry of an
	// authoritative write that failed transiently.
	RetryBackoff time.Duration
}

func NewService(owner domain.OwnerStore, mirror domain.MirrorStore, files FileRemover, opts Options) *Service {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	return &Service{
		owner:        owner,
		mirror:       mirror,
		files:        files,
		opTimeout:    opts.OpTimeout,
		retryBackoff: opts.RetryBackoff,
		now:          time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// withTimeout bounds a single store op.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// authoritative runs an owner-partition write with one retry on transient
// failure. Any other error is surfaced as-is.
func (s *Service) authoritative(ctx context.Context, op func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(s.retryBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		opCtx, cancel := s.withTimeout(ctx)
		defer cancel()
		err := op(opCtx)
		if errors.Is(err, domain.ErrTransientStore) || errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// mirrorWrite runs a mirror write and swallows any failure after logging
// it. The accepted outcome is an inconsistency window that a later write
// or sweep closes.
func (s *Service) mirrorWrite(ctx context.Context, what string, id domain.SessionID, op func(ctx context.Context) error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := op(opCtx); err != nil {
		observability.LoggerFromContext(ctx).Warn("mirror write failed, continuing",
			"op", what, "session_id", id, "error", err)
	}
}

type CreateSessionInput struct {
	Actor   domain.Actor
	Subject string
	Context string
	Mode    domain.SessionMode
}

// CreateSession writes the owner-partition record, then the mirror
// projection, then the initial system message, sequentially. A failed
// mirror write leaves the session invisible to staff-wide queries until
// reconciled; that is documented behavior, not an error.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	now := s.now()

	log := observability.LoggerFromContext(ctx).With(
		"owner_id", in.Actor.ID,
		"mode", in.Mode,
	)
	log.Info("creating session", "subject", in.Subject)

	session := &domain.Session{
		ID:           domain.SessionID(uuid.NewString()),
		OwnerID:      in.Actor.ID,
		OwnerEmail:   in.Actor.Email,
		Subject:      in.Subject,
		Context:      in.Context,
		Mode:         in.Mode,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}

	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.CreateSession(ctx, session)
	}); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	s.mirrorWrite(ctx, "create", session.ID, func(ctx context.Context) error {
		return s.mirror.PutProjection(ctx, session.Projection())
	})

	welcome := &domain.Message{
		ID:         domain.MessageID(uuid.NewString()),
		SessionID:  session.ID,
		SenderID:   "system",
		SenderRole: domain.RoleSystem,
		SenderName: "VarsiVault",
		Content:    welcomeText(session.Mode),
		CreatedAt:  now,
	}
	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.AppendMessage(ctx, session.OwnerID, welcome)
	}); err != nil {
		log.Error("failed to append welcome message", "error", err)
		return nil, err
	}

	log.Info("session created", "session_id", session.ID)
	return session, nil
}

func welcomeText(mode domain.SessionMode) string {
	channel := "Interactive Guide"
	if mode == domain.ModeFullSolution {
		channel = "Full Solutions"
	}
	return fmt.Sprintf("Welcome to VarsiVault. You are connected to the %s channel. An expert will be with you shortly.", channel)
}

// WriteSession applies a patch to the owner-partition record, then attempts
// the same patch against the mirror. The owner write must succeed or the
// whole operation fails; the mirror write is best-effort.
func (s *Service) WriteSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID, patch domain.SessionPatch) error {
	if patch.IsZero() {
		return nil
	}
	if err := s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.PatchSession(ctx, ownerID, id, patch)
	}); err != nil {
		return err
	}
	s.mirrorWrite(ctx, "patch", id, func(ctx context.Context) error {
		return s.mirror.PatchProjection(ctx, id, patch)
	})
	return nil
}

// GetSession reads the authoritative copy after an access check.
func (s *Service) GetSession(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID) (*domain.Session, error) {
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpReadSession, access.SessionResource(session)); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) fetchSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID) (*domain.Session, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.owner.GetSession(opCtx, ownerID, id)
}

// CloseSession is a staff action: terminal for student write access, the
// session stays visible to the owner read-only and staff-writable.
func (s *Service) CloseSession(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID) error {
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := access.Authorize(actor, access.OpCloseSession, access.SessionResource(session)); err != nil {
		return err
	}
	if session.Status == domain.StatusClosed {
		return nil
	}
	if !domain.CanTransition(session.Status, domain.StatusClosed) {
		return fmt.Errorf("close session %s: status %s: %w", id, session.Status, domain.ErrPermissionDenied)
	}

	now := s.now()
	closed := domain.StatusClosed
	return s.WriteSession(ctx, ownerID, id, domain.SessionPatch{
		Status:    &closed,
		ClosedAt:  &now,
		UpdatedAt: &now,
	})
}

// ToggleVisibility flips the owner-controlled hidden flag. The flag lives
// only in the owner partition, and the timestamps are left alone so the
// two copies keep agreeing outside in-flight writes.
func (s *Service) ToggleVisibility(ctx context.Context, actor domain.Actor, ownerID domain.UserID, id domain.SessionID, hidden bool) error {
	session, err := s.fetchSession(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := access.Authorize(actor, access.OpToggleVisibility, access.SessionResource(session)); err != nil {
		return err
	}
	return s.authoritative(ctx, func(ctx context.Context) error {
		return s.owner.PatchSession(ctx, ownerID, id, domain.SessionPatch{Hidden: &hidden})
	})
}
