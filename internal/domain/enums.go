// Package domain defines the core domain models for model enumeration runs.
package domain

// FailureClass is the driver-level decision for an error surfaced by the session client.
type FailureClass string

const (
	FailureClassFatal      FailureClass = "fatal"
	FailureClassRetry      FailureClass = "retry"
	FailureClassSkip       FailureClass = "skip"
	FailureClassNeedsHuman FailureClass = "needs_human"
)

// Valid reports whether c is one of the known classes.
func (c FailureClass) Valid() bool {
	switch c {
	case FailureClassFatal, FailureClassRetry, FailureClassSkip, FailureClassNeedsHuman:
		return true
	}
	return false
}

// FailureKind is the normalized shape of a client error, fed to the classifier.
type FailureKind string

const (
	FailureKindConnection  FailureKind = "connection"
	FailureKindAuthPending FailureKind = "auth_pending"
	FailureKindAuthFailed  FailureKind = "auth_failed"
	FailureKindBlocked     FailureKind = "blocked"
	FailureKindBusy        FailureKind = "busy"
	FailureKindTimeout     FailureKind = "timeout"
	FailureKindRemote      FailureKind = "remote"
	FailureKindCanceled    FailureKind = "canceled"
	FailureKindUnknown     FailureKind = "unknown"
)

// PauseReason says why the driver is asking the operator to intervene.
type PauseReason string

const (
	PauseReasonStartup  PauseReason = "startup_check"
	PauseReasonPeriodic PauseReason = "periodic_check"
	PauseReasonBlocked  PauseReason = "remote_blocked"
	PauseReasonBusy     PauseReason = "remote_busy"
	PauseReasonTimeout  PauseReason = "timeout"
	PauseReasonUnknown  PauseReason = "unknown_error"
)
