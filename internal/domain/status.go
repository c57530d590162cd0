package domain

type SessionStatus string

const (
	// StatusActive: staff has the floor or nothing is pending.
	StatusActive SessionStatus = "ACTIVE"
	// StatusWaitingForStaff: the last word was the student's.
	StatusWaitingForStaff SessionStatus = "WAITING_FOR_STAFF"
	// StatusClosed: terminal for student write access, staff-writable.
	StatusClosed SessionStatus = "CLOSED"
	// StatusCompleted: reserved terminal state, unused by current flows.
	StatusCompleted SessionStatus = "COMPLETED"
	// StatusDeleted: terminal. Set by staff deletion or the retention sweep.
	StatusDeleted SessionStatus = "DELETED"
)

// Terminal reports whether no further transition may leave the status.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusDeleted
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to SessionStatus) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusWaitingForStaff:
		return from == StatusActive
	case StatusActive:
		// A staff reply reopens the floor, including on a closed session.
		return from == StatusWaitingForStaff || from == StatusClosed
	case StatusClosed:
		return from == StatusActive || from == StatusWaitingForStaff
	case StatusDeleted:
		return from != StatusDeleted
	default:
		return false
	}
}

// StatusAfterMessage gives the status a session takes after a message from
// the given sender role: a student message hands the floor to staff, a
// staff message hands it back. System messages never move the needle.
func StatusAfterMessage(sender Role, current SessionStatus) SessionStatus {
	switch sender {
	case RoleStudent:
		return StatusWaitingForStaff
	case RoleStaff:
		return StatusActive
	default:
		return current
	}
}
