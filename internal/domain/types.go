package domain

import "time"

type SessionID string
type UserID string
type MessageID string
type FileID string

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleStaff   Role = "STAFF"
	RoleSystem  Role = "SYSTEM"
)

type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanPremium Plan = "PREMIUM"
)

type SessionMode string

const (
	ModeInteractive  SessionMode = "INTERACTIVE"   // Pedagogical hints, guided steps
	ModeFullSolution SessionMode = "FULL_SOLUTION" // Step-by-step verified derivation
)

type Timestamp = time.Time

// User is the account record. Created on first authentication,
// never hard-deleted by this core.
type User struct {
	ID       UserID
	Name     string
	Email    string
	Role     Role
	Plan     Plan
	Verified bool
}

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID       UserID
	Name     string
	Email    string
	Role     Role
	Plan     Plan
	Verified bool
}

// Session is the authoritative owner-partition record.
// Its mirror projection must agree on status, subject and timestamps
// except during an in-flight write.
type Session struct {
	ID           SessionID
	OwnerID      UserID
	OwnerEmail   string
	Subject      string
	Context      string
	Mode         SessionMode
	Status       SessionStatus
	Hidden       bool
	AutoDeleted  bool
	CreatedAt    Timestamp
	UpdatedAt    Timestamp
	LastActiveAt Timestamp
	ClosedAt     *Timestamp
}

// SessionProjection is the flat mirror copy used for staff-wide queries.
// It carries session metadata only, never messages or files.
type SessionProjection struct {
	ID           SessionID
	OwnerID      UserID
	OwnerEmail   string
	Subject      string
	Context      string
	Mode         SessionMode
	Status       SessionStatus
	AutoDeleted  bool
	CreatedAt    Timestamp
	UpdatedAt    Timestamp
	LastActiveAt Timestamp
}

// Projection derives the mirror copy from an owner-partition session.
func (s *Session) Projection() *SessionProjection {
	return &SessionProjection{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		OwnerEmail:   s.OwnerEmail,
		Subject:      s.Subject,
		Context:      s.Context,
		Mode:         s.Mode,
		Status:       s.Status,
		AutoDeleted:  s.AutoDeleted,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		LastActiveAt: s.LastActiveAt,
	}
}

// Message lives exclusively under the owner partition and is immutable
// once written. SenderName is denormalized at write time.
type Message struct {
	ID         MessageID
	SessionID  SessionID
	SenderID   UserID
	SenderRole Role
	SenderName string
	Content    string
	CreatedAt  Timestamp
}

// File is the metadata half of a blob/metadata pair. SessionID is empty
// for general uploads not attached to a session. OwnerID is the uploader,
// which may differ from the session owner when staff upload on a
// student's behalf.
type File struct {
	ID          FileID
	SessionID   SessionID
	OwnerID     UserID
	Name        string
	StoragePath string
	Size        int64
	ContentType string
	CreatedAt   Timestamp
}
