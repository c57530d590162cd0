package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied: access control rejection. Always surfaced,
	// never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound: a referenced session, message or file is absent.
	ErrNotFound = errors.New("not found")

	// ErrTransientStore: a single store operation failed on network or
	// timeout. Authoritative writes retry once; mirror writes swallow it.
	ErrTransientStore = errors.New("transient store failure")

	// ErrOrphanedReference: a mirror or metadata record points at a
	// missing counterpart. Logged and skipped, never fatal.
	ErrOrphanedReference = errors.New("orphaned reference")
)

// DeletionStep names one stage of the ordered session-deletion cascade.
type DeletionStep string

const (
	StepFiles     DeletionStep = "files"
	StepMessages  DeletionStep = "messages"
	StepOwnerDoc  DeletionStep = "owner document"
	StepMirrorDoc DeletionStep = "mirror document"
)

// PartialDeletionError reports a deletion cascade that aborted mid-sequence.
// The failed step is carried so a retried deleteSession can resume; every
// step is idempotent, so re-running completed steps is harmless.
type PartialDeletionError struct {
	SessionID SessionID
	Step      DeletionStep
	Err       error
}

func (e *PartialDeletionError) Error() string {
	return fmt.Sprintf("session %s: deletion aborted at %s step: %v", e.SessionID, e.Step, e.Err)
}

func (e *PartialDeletionError) Unwrap() error { return e.Err }
