package vts

import (
	"context"
	"fmt"
	"time"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/policy"
)

// ConnectionError means the remote could not be reached, or the connection
// was lost and the single reconnect attempt failed.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindConnection, Message: e.Error()}
}

// AuthPendingError means an authentication popup is already open in the
// remote UI. A human has to approve it before authenticate is called again.
type AuthPendingError struct {
	Message string
}

func (e *AuthPendingError) Error() string {
	return "authentication is waiting for approval in VTube Studio: " + e.Message
}

func (e *AuthPendingError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindAuthPending, Message: e.Message}
}

// AuthFailedError means the token could not be issued or redeemed.
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthFailedError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindAuthFailed, Message: e.Reason}
}

// RemoteError carries the text of an APIError response.
type RemoteError struct {
	RequestType string
	ErrorID     int
	Message     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected (error %d): %s", e.RequestType, e.ErrorID, e.Message)
}

func (e *RemoteError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindRemote, Message: e.Message}
}

// RemoteBlockedError means the remote stopped answering, most likely because
// a modal dialog is open on screen.
type RemoteBlockedError struct {
	Reason string
	Err    error
}

func (e *RemoteBlockedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("VTube Studio appears blocked by a dialog (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("VTube Studio appears blocked by a dialog (%s)", e.Reason)
}

func (e *RemoteBlockedError) Unwrap() error { return e.Err }

func (e *RemoteBlockedError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindBlocked, Message: e.Reason}
}

// RemoteBusyError means the remote refused a model switch because it is
// still in a transition or cooldown.
type RemoteBusyError struct {
	Message string
	Err     error
}

func (e *RemoteBusyError) Error() string {
	return "VTube Studio cannot change model right now: " + e.Message
}

func (e *RemoteBusyError) Unwrap() error { return e.Err }

func (e *RemoteBusyError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindBusy, Message: e.Message}
}

// TimeoutError means a single call did not get its response in time.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
	}
	return e.Op + " timed out"
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

func (e *TimeoutError) Failure() policy.Failure {
	return policy.Failure{Kind: domain.FailureKindTimeout, Message: e.Error()}
}

// LoadError is returned by LoadModel once it gives up. Reason tells the
// caller whether a dialog, a cooldown or a timeout was the last obstacle.
type LoadError struct {
	ModelID   string
	Reason    domain.FailureKind
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s failed after %d attempt(s), %s: %v", e.ModelID, e.Attempts, describeReason(e.Reason), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Failure() policy.Failure {
	switch e.Reason {
	case domain.FailureKindBlocked, domain.FailureKindBusy, domain.FailureKindTimeout:
		return policy.Failure{Kind: e.Reason, Message: e.Err.Error(), Exhausted: e.Exhausted}
	}
	f := policy.Describe(e.Err)
	f.Exhausted = e.Exhausted
	return f
}

func describeReason(kind domain.FailureKind) string {
	switch kind {
	case domain.FailureKindBlocked:
		return "blocked by a dialog"
	case domain.FailureKindBusy:
		return "remote busy or in model cooldown"
	case domain.FailureKindTimeout:
		return "timed out"
	default:
		return "rejected"
	}
}
