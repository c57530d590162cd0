package domain

import "time"

// SessionPatch is a merge-style partial update applied to a session record.
// Nil fields are left untouched. The same patch is applied to the owner
// partition and to the mirror projection, in that order.
type SessionPatch struct {
	Subject      *string
	Status       *SessionStatus
	Hidden       *bool
	AutoDeleted  *bool
	ClosedAt     *time.Time
	UpdatedAt    *time.Time
	LastActiveAt *time.Time
}

// IsZero reports whether the patch touches nothing.
func (p SessionPatch) IsZero() bool {
	return p.Subject == nil && p.Status == nil && p.Hidden == nil &&
		p.AutoDeleted == nil && p.ClosedAt == nil &&
		p.UpdatedAt == nil && p.LastActiveAt == nil
}

// Apply merges the patch into a session in place.
func (p SessionPatch) Apply(s *Session) {
	if p.Subject != nil {
		s.Subject = *p.Subject
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Hidden != nil {
		s.Hidden = *p.Hidden
	}
	if p.AutoDeleted != nil {
		s.AutoDeleted = *p.AutoDeleted
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		s.ClosedAt = &t
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
	if p.LastActiveAt != nil {
		s.LastActiveAt = *p.LastActiveAt
	}
}

// ApplyProjection merges the mirror-relevant fields into a projection.
// The hidden flag is owner-partition state and is never mirrored.
func (p SessionPatch) ApplyProjection(s *SessionProjection) {
	if p.Subject != nil {
		s.Subject = *p.Subject
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.AutoDeleted != nil {
		s.AutoDeleted = *p.AutoDeleted
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
	if p.LastActiveAt != nil {
		s.LastActiveAt = *p.LastActiveAt
	}
}
