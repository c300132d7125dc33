package dispatchproto

import "errors"

// ErrInvalidArgument marks a decode/encode failure caused by a message
// that violates one of the wire contracts in spec.md §4.A (e.g. a oneof
// with more than one branch set). Codec functions wrap it with %w so
// callers can match it with errors.Is and attach StatusInvalidArgument.
var ErrInvalidArgument = errors.New("invalid argument")
