// Package retention transitions long-inactive sessions to Deleted across
// both partitions on a schedule.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/varsivault/vault-core/internal/domain"
	"github.com/varsivault/vault-core/internal/observability"
)

// SessionWriter is the slice of the consistency manager the sweep uses:
// its dual-write path, so the mark lands on the owner partition first and
// on the mirror best-effort.
type SessionWriter interface {
	WriteSession(ctx context.Context, ownerID domain.UserID, id domain.SessionID, patch domain.SessionPatch) error
}

type Sweeper struct {
	mirror domain.MirrorStore
	writer SessionWriter

	threshold time.Duration
	batchSize int
}

const (
	// DefaultThreshold is how long a session may sit untouched before
	// the sweep reaps it.
	DefaultThreshold = 24 * time.Hour
	defaultBatchSize = 100
)

func NewSweeper(mirror domain.MirrorStore, writer SessionWriter, threshold time.Duration, batchSize int) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sweeper{
		mirror:    mirror,
		writer:    writer,
		threshold: threshold,
		batchSize: batchSize,
	}
}

// Sweep marks every non-deleted session whose updatedAt is older than the
// inactivity threshold as Deleted with the autoDeleted flag, in batches,
// and reports how many it marked. Re-running is a no-op for already-swept
// records: status Deleted is excluded by the mirror query. A mirror row
// whose owner-partition counterpart is gone is logged and patched in place
// so it stops matching; it never aborts the batch.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	log := observability.LoggerFromContext(ctx)
	cutoff := now.Add(-s.threshold)

	swept := 0
	for {
		batch, err := s.mirror.QueryInactive(ctx, cutoff, s.batchSize)
		if err != nil {
			return swept, err
		}
		if len(batch) == 0 {
			return swept, nil
		}

		for _, p := range batch {
			if err := s.sweepOne(ctx, p, now); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					// Inconsistency window leftover: the mirror row
					// outlived its owner copy.
					log.Warn("mirror row has no owner counterpart, marking mirror only",
						"session_id", p.ID, "error", domain.ErrOrphanedReference)
					s.markMirrorOnly(ctx, p.ID, now)
					continue
				}
				return swept, err
			}
			swept++
		}

		if len(batch) < s.batchSize {
			return swept, nil
		}
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, p *domain.SessionProjection, now time.Time) error {
	deleted := domain.StatusDeleted
	auto := true
	return s.writer.WriteSession(ctx, p.OwnerID, p.ID, domain.SessionPatch{
		Status:      &deleted,
		AutoDeleted: &auto,
		UpdatedAt:   &now,
	})
}

// markMirrorOnly stops an orphaned mirror row from matching future sweeps.
func (s *Sweeper) markMirrorOnly(ctx context.Context, id domain.SessionID, now time.Time) {
	deleted := domain.StatusDeleted
	auto := true
	err := s.mirror.PatchProjection(ctx, id, domain.SessionPatch{
		Status:      &deleted,
		AutoDeleted: &auto,
		UpdatedAt:   &now,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to mark orphaned mirror row",
			"session_id", id, "error", err)
	}
}
