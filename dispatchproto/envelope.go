package dispatchproto

import (
	"fmt"

	"github.com/dispatchrun/dispatch-go/coroutine"
)

// TypedEnvelope is an opaque, typed payload carried across the wire. It is
// the transport shape for both application values (the "pickled-value"
// family, produced by Box) and protocol-internal messages that already
// have their own raw encoding (the "raw byte" family).
type TypedEnvelope struct {
	TypeURL string
	Bytes   []byte
}

// PickledValueTypeURL identifies the opaque application-value family: any
// Go value handed to Box, round-tripped through coroutine's safe
// reflection-based encoder.
const PickledValueTypeURL = "buf.build/dispatchrun/wire/dispatch.sdk.v1.Pickled"

// ErrorTypeURL identifies an envelope produced by BoxError.
const ErrorTypeURL = "buf.build/dispatchrun/wire/dispatch.sdk.v1.Error"

// Box packages an arbitrary application value into a TypedEnvelope.
// Boxing failures are the caller's responsibility to surface as
// INVALID_ARGUMENT (spec.md §4.B).
func Box(value any) (TypedEnvelope, error) {
	b, err := coroutine.Serialize(value)
	if err != nil {
		return TypedEnvelope{}, fmt.Errorf("dispatchproto: box: %w", err)
	}
	return TypedEnvelope{TypeURL: PickledValueTypeURL, Bytes: b}, nil
}

// Unbox recovers the value packaged by Box. Unboxing failures are the
// caller's responsibility to surface as INVALID_RESPONSE.
func Unbox(env TypedEnvelope) (any, error) {
	if env.TypeURL != PickledValueTypeURL {
		return nil, fmt.Errorf("dispatchproto: unbox: unexpected type url %q", env.TypeURL)
	}
	value, rest, err := coroutine.Deserialize(env.Bytes)
	if err != nil {
		return nil, fmt.Errorf("dispatchproto: unbox: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("dispatchproto: unbox: %d trailing bytes", len(rest))
	}
	return value, nil
}

// Error is a structured, user-visible error: the original type name,
// message, a serialized value (so it can be re-raised faithfully by a
// user-facing client library) and an optional traceback, per spec.md
// §3's TypedEnvelope error fields and §7's "user-visible surface". Status
// carries the classification the error was boxed with, if any, so a
// scheduler-originated error (e.g. a cancellation) survives the box/unbox
// round trip with its Status intact instead of being reclassified from
// scratch as a plain user error.
type Error struct {
	Type      string
	Message   string
	Value     []byte
	Traceback []byte
	Status    Status
}

func (e *Error) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// DispatchStatus makes *Error satisfy Statuser, so ClassifyError preserves
// a status this error was boxed with rather than falling back to the
// Transient/Permanent binary.
func (e *Error) DispatchStatus() Status { return e.Status }

// Statuser is implemented by an error that carries an explicit Status,
// letting BoxError/ClassifyError preserve it exactly across a box/unbox
// round trip instead of collapsing it to the Transient/Permanent binary.
type Statuser interface {
	error
	DispatchStatus() Status
}

// BoxError packages a Go error into an error TypedEnvelope. If err already
// carries a boxed representation captured elsewhere (e.g. it originated
// from a CallResult), callers should prefer that instead of re-boxing. An
// err implementing Statuser has its Status carried along in the envelope.
func BoxError(err error) (TypedEnvelope, error) {
	e := &Error{Type: fmt.Sprintf("%T", err), Message: err.Error()}
	if se, ok := err.(Statuser); ok {
		e.Status = se.DispatchStatus()
	}
	if valueBytes, serr := coroutine.Serialize(err.Error()); serr == nil {
		e.Value = valueBytes
	}
	b, merr := marshalError(e)
	if merr != nil {
		return TypedEnvelope{}, fmt.Errorf("dispatchproto: box error: %w", merr)
	}
	return TypedEnvelope{TypeURL: ErrorTypeURL, Bytes: b}, nil
}

// UnboxError recovers the Error packaged by BoxError.
func UnboxError(env TypedEnvelope) (*Error, error) {
	if env.TypeURL != ErrorTypeURL {
		return nil, fmt.Errorf("dispatchproto: unbox error: unexpected type url %q", env.TypeURL)
	}
	return unmarshalError(env.Bytes)
}
