// Package access centralizes every permission decision of the session core.
// CanPerform is a pure decision table over (actor, operation, resource):
// total, deterministic and storage-free, so every rule is testable in
// isolation. All mutating entry points call Authorize before touching a
// store; a denial is an explicit error, never a silent no-op.
package access

import (
	"fmt"

	"github.com/varsivault/vault-core/internal/domain"
)

type Operation string

const (
	OpReadMirror       Operation = "read_mirror"
	OpReadSession      Operation = "read_session"
	OpAppendMessage    Operation = "append_message"
	OpUploadFile       Operation = "upload_file"
	OpDeleteFile       Operation = "delete_file"
	OpDeleteAllFiles   Operation = "delete_all_files"
	OpCloseSession     Operation = "close_session"
	OpDeleteSession    Operation = "delete_session"
	OpToggleVisibility Operation = "toggle_visibility"
)

// Resource is the tagged view of whatever the operation targets.
// FileOwnerID is the uploader and only set for file operations.
type Resource struct {
	SessionOwnerID domain.UserID
	SessionStatus  domain.SessionStatus
	FileOwnerID    domain.UserID
}

func SessionResource(s *domain.Session) Resource {
	return Resource{SessionOwnerID: s.OwnerID, SessionStatus: s.Status}
}

func MirrorResource(p *domain.SessionProjection) Resource {
	return Resource{SessionOwnerID: p.OwnerID, SessionStatus: p.Status}
}

// FileResource pairs a file with the session it hangs off. For general
// files (no session) pass a nil session; the uploader is then the owner of
// record.
func FileResource(f *domain.File, s *domain.Session) Resource {
	r := Resource{FileOwnerID: f.OwnerID}
	if s != nil {
		r.SessionOwnerID = s.OwnerID
		r.SessionStatus = s.Status
	} else {
		r.SessionOwnerID = f.OwnerID
	}
	return r
}

// CanPerform evaluates the rules in order; the first match wins and the
// default is deny.
func CanPerform(actor domain.Actor, op Operation, res Resource) bool {
	switch op {
	case OpReadMirror:
		// Staff query the whole mirror; students only their own rows.
		if actor.Role == domain.RoleStaff {
			return true
		}
		return actor.ID == res.SessionOwnerID

	case OpReadSession:
		return actor.ID == res.SessionOwnerID || actor.Role == domain.RoleStaff

	case OpCloseSession, OpDeleteSession, OpDeleteAllFiles:
		return actor.Role == domain.RoleStaff

	case OpDeleteFile:
		// Uploader only. Staff explicitly may NOT delete files: staff
		// access to files is read-only, unlike messages and status.
		return actor.ID == res.FileOwnerID

	case OpAppendMessage, OpUploadFile:
		// Status gates before role: closed sessions reject student
		// writes, deleted sessions reject everyone.
		if res.SessionStatus == domain.StatusDeleted {
			return false
		}
		if res.SessionStatus == domain.StatusClosed && actor.Role == domain.RoleStudent {
			return false
		}
		return actor.ID == res.SessionOwnerID || actor.Role == domain.RoleStaff

	case OpToggleVisibility:
		return actor.ID == res.SessionOwnerID

	default:
		return false
	}
}

// Authorize turns a denial into domain.ErrPermissionDenied with the
// operation attached.
func Authorize(actor domain.Actor, op Operation, res Resource) error {
	if CanPerform(actor, op, res) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, domain.ErrPermissionDenied)
}
