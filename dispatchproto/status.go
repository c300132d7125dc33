// Package dispatchproto implements the wire codec and value-boxing layer
// shared by every other package in this module: the message shapes a
// scheduler and this SDK exchange (RunRequest/RunResponse, Call/CallResult,
// Poll/Exit), the opaque envelope that carries application values across
// that wire, and the Status taxonomy attached to every response.
package dispatchproto

import "errors"

// ErrCancelled is the sentinel a cancelled coroutine's Exit error wraps
// (dispatchcontext.ErrCancelled wraps this one), so ClassifyError can map
// it to StatusTimeout without dispatchproto importing dispatchcontext.
var ErrCancelled = errors.New("dispatchproto: coroutine was cancelled")

// Status classifies the outcome of a RunResponse. It doubles as the
// retryability signal spec.md §7 requires: Transient reports whether the
// scheduler is expected to redeliver, Permanent the opposite.
type Status int32

const (
	StatusUnspecified Status = iota
	StatusOK
	StatusTimeout
	StatusThrottled
	StatusInvalidArgument
	StatusInvalidResponse
	StatusTemporaryError
	StatusPermanentError
	StatusIncompatibleState
	StatusDNSError
	StatusTCPError
	StatusTLSError
	StatusHTTPError
	StatusUnauthenticated
	StatusPermissionDenied
	StatusNotFound
)

var statusNames = map[Status]string{
	StatusUnspecified:       "UNSPECIFIED",
	StatusOK:                "OK",
	StatusTimeout:           "TIMEOUT",
	StatusThrottled:         "THROTTLED",
	StatusInvalidArgument:   "INVALID_ARGUMENT",
	StatusInvalidResponse:   "INVALID_RESPONSE",
	StatusTemporaryError:    "TEMPORARY_ERROR",
	StatusPermanentError:    "PERMANENT_ERROR",
	StatusIncompatibleState: "INCOMPATIBLE_STATE",
	StatusDNSError:          "DNS_ERROR",
	StatusTCPError:          "TCP_ERROR",
	StatusTLSError:          "TLS_ERROR",
	StatusHTTPError:         "HTTP_ERROR",
	StatusUnauthenticated:   "UNAUTHENTICATED",
	StatusPermissionDenied:  "PERMISSION_DENIED",
	StatusNotFound:          "NOT_FOUND",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Transient reports whether the scheduler is expected to retry a
// RunResponse carrying this status, per spec.md §7's taxonomy.
func (s Status) Transient() bool {
	switch s {
	case StatusTimeout, StatusThrottled, StatusTemporaryError,
		StatusDNSError, StatusTCPError, StatusTLSError, StatusHTTPError:
		return true
	default:
		return false
	}
}

// Permanent reports whether a RunResponse carrying this status should be
// delivered to the caller without a retry.
func (s Status) Permanent() bool {
	switch s {
	case StatusPermanentError, StatusInvalidArgument, StatusInvalidResponse,
		StatusNotFound, StatusUnauthenticated, StatusPermissionDenied,
		StatusIncompatibleState:
		return true
	default:
		return false
	}
}

// TransientError is the interface user code can implement on a returned
// error to mark it explicitly retryable, overriding the default of
// classifying user errors as permanent (spec.md §7, "User" row).
type TransientError interface {
	error
	Transient() bool
}

// ClassifyError maps an error surfaced by user code (or by the transport)
// to a Status. ErrCancelled maps to TIMEOUT, an error carrying its own
// status through Statuser keeps it, and errors that implement
// TransientError are trusted; anything else defaults to PERMANENT_ERROR,
// matching spec.md §7's rule that user errors are permanent unless the user
// explicitly tags them transient.
func ClassifyError(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, ErrCancelled) {
		return StatusTimeout
	}
	if se, ok := err.(Statuser); ok && se.DispatchStatus() != StatusUnspecified {
		return se.DispatchStatus()
	}
	if te, ok := err.(TransientError); ok && te.Transient() {
		return StatusTemporaryError
	}
	return StatusPermanentError
}
