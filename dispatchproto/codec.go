package dispatchproto

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// This file hand-encodes the message shapes in message.go with
// protowire's tag/varint/length-delimited primitives directly, rather
// than through generated .pb.go stubs: no .proto source is part of this
// SDK's scope (spec.md §1 treats the wire schema as given data, not
// design work), but the framing itself is real protobuf wire format. Field
// numbers below are this port's own numbering, chosen once and never reused
// for a different field, so a peer decodes these messages only if it uses
// the same numbering.

const (
	fieldEnvelopeTypeURL = 1
	fieldEnvelopeBytes   = 2

	fieldErrorType      = 1
	fieldErrorMessage   = 2
	fieldErrorValue     = 3
	fieldErrorTraceback = 4
	fieldErrorStatus    = 5

	fieldCallCorrelationID = 1
	fieldCallEndpoint      = 2
	fieldCallFunction      = 3
	fieldCallInput         = 4
	fieldCallExpiration    = 5
	fieldCallVersion       = 6

	fieldResultCorrelationID = 1
	fieldResultOutput        = 2
	fieldResultError         = 3
	fieldResultDispatchID    = 4

	fieldPollCoroutineState = 1
	fieldPollCalls          = 2
	fieldPollMinResults     = 3
	fieldPollMaxResults     = 4
	fieldPollMaxWait        = 5

	fieldExitResult   = 1
	fieldExitTailCall = 2

	fieldPollResultCoroutineState = 1
	fieldPollResultResults        = 2
	fieldPollResultError          = 3

	fieldRunRequestFunction       = 1
	fieldRunRequestInput          = 2
	fieldRunRequestPollResult     = 3
	fieldRunRequestCoroutineState = 4
	fieldRunRequestExpiration     = 5

	fieldRunResponseStatus = 1
	fieldRunResponseExit   = 2
	fieldRunResponsePoll   = 3

	fieldDispatchRequestCalls = 1

	fieldDispatchResponseDispatchIDs = 1
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(s))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendEmbedded(b []byte, num protowire.Number, payload []byte) []byte {
	if payload == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

// MarshalTypedEnvelope appends the wire form of a TypedEnvelope.
func MarshalTypedEnvelope(b []byte, env TypedEnvelope) []byte {
	b = appendString(b, fieldEnvelopeTypeURL, env.TypeURL)
	b = appendBytesField(b, fieldEnvelopeBytes, env.Bytes)
	return b
}

// UnmarshalTypedEnvelope decodes a TypedEnvelope from its wire form.
func UnmarshalTypedEnvelope(b []byte) (TypedEnvelope, error) {
	var env TypedEnvelope
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return env, fmt.Errorf("dispatchproto: invalid envelope tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldEnvelopeTypeURL:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return env, fmt.Errorf("dispatchproto: invalid envelope type_url: code %d", n)
			}
			env.TypeURL = string(v)
			b = b[n:]
		case fieldEnvelopeBytes:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return env, fmt.Errorf("dispatchproto: invalid envelope bytes: code %d", n)
			}
			env.Bytes = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return env, fmt.Errorf("dispatchproto: invalid envelope field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return env, nil
}

func marshalError(e *Error) ([]byte, error) {
	var b []byte
	b = appendString(b, fieldErrorType, e.Type)
	b = appendString(b, fieldErrorMessage, e.Message)
	b = appendBytesField(b, fieldErrorValue, e.Value)
	b = appendBytesField(b, fieldErrorTraceback, e.Traceback)
	b = appendVarint(b, fieldErrorStatus, uint64(e.Status))
	return b, nil
}

func unmarshalError(b []byte) (*Error, error) {
	e := &Error{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("dispatchproto: invalid error tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldErrorType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("dispatchproto: invalid error type: code %d", n)
			}
			e.Type = string(v)
			b = b[n:]
		case fieldErrorMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("dispatchproto: invalid error message: code %d", n)
			}
			e.Message = string(v)
			b = b[n:]
		case fieldErrorValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("dispatchproto: invalid error value: code %d", n)
			}
			e.Value = append([]byte(nil), v...)
			b = b[n:]
		case fieldErrorTraceback:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("dispatchproto: invalid error traceback: code %d", n)
			}
			e.Traceback = append([]byte(nil), v...)
			b = b[n:]
		case fieldErrorStatus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("dispatchproto: invalid error status: code %d", n)
			}
			e.Status = Status(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("dispatchproto: invalid error field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return e, nil
}

// MarshalCall appends the wire form of a Call.
func MarshalCall(b []byte, c Call) []byte {
	b = appendVarint(b, fieldCallCorrelationID, c.CorrelationID)
	b = appendString(b, fieldCallEndpoint, c.Endpoint)
	b = appendString(b, fieldCallFunction, c.Function)
	b = appendEmbedded(b, fieldCallInput, MarshalTypedEnvelope(nil, c.Input))
	b = appendVarint(b, fieldCallExpiration, uint64(c.Expiration))
	b = appendString(b, fieldCallVersion, c.Version)
	return b
}

// UnmarshalCall decodes a Call from its wire form.
func UnmarshalCall(b []byte) (Call, error) {
	var c Call
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, fmt.Errorf("dispatchproto: invalid call tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldCallCorrelationID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call correlation_id: code %d", n)
			}
			c.CorrelationID = v
			b = b[n:]
		case fieldCallEndpoint:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call endpoint: code %d", n)
			}
			c.Endpoint = string(v)
			b = b[n:]
		case fieldCallFunction:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call function: code %d", n)
			}
			c.Function = string(v)
			b = b[n:]
		case fieldCallInput:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call input: code %d", n)
			}
			env, err := UnmarshalTypedEnvelope(v)
			if err != nil {
				return c, err
			}
			c.Input = env
			b = b[n:]
		case fieldCallExpiration:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call expiration: code %d", n)
			}
			c.Expiration = time.Duration(v)
			b = b[n:]
		case fieldCallVersion:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call version: code %d", n)
			}
			c.Version = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return c, fmt.Errorf("dispatchproto: invalid call field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return c, nil
}

// MarshalCallResult appends the wire form of a CallResult. It rejects
// results that violate the "exactly one of output/error" invariant when
// both are set (spec.md §4.A).
func MarshalCallResult(b []byte, r CallResult) ([]byte, error) {
	if r.Output != nil && r.Error != nil {
		return nil, fmt.Errorf("dispatchproto: %w: call result has both output and error", ErrInvalidArgument)
	}
	b = appendVarint(b, fieldResultCorrelationID, r.CorrelationID)
	if r.Output != nil {
		b = appendEmbedded(b, fieldResultOutput, MarshalTypedEnvelope(nil, *r.Output))
	}
	if r.Error != nil {
		b = appendEmbedded(b, fieldResultError, MarshalTypedEnvelope(nil, *r.Error))
	}
	b = appendString(b, fieldResultDispatchID, r.DispatchID)
	return b, nil
}

// UnmarshalCallResult decodes a CallResult from its wire form, rejecting
// messages where both output and error are set.
func UnmarshalCallResult(b []byte) (CallResult, error) {
	var r CallResult
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("dispatchproto: invalid call result tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldResultCorrelationID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid result correlation_id: code %d", n)
			}
			r.CorrelationID = v
			b = b[n:]
		case fieldResultOutput:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid result output: code %d", n)
			}
			env, err := UnmarshalTypedEnvelope(v)
			if err != nil {
				return r, err
			}
			r.Output = &env
			b = b[n:]
		case fieldResultError:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid result error: code %d", n)
			}
			env, err := UnmarshalTypedEnvelope(v)
			if err != nil {
				return r, err
			}
			r.Error = &env
			b = b[n:]
		case fieldResultDispatchID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid result dispatch_id: code %d", n)
			}
			r.DispatchID = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid result field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	if r.Output != nil && r.Error != nil {
		return r, fmt.Errorf("dispatchproto: %w: call result has both output and error", ErrInvalidArgument)
	}
	return r, nil
}

// MarshalPoll appends the wire form of a Poll.
func MarshalPoll(b []byte, p Poll) ([]byte, error) {
	b = appendBytesField(b, fieldPollCoroutineState, p.CoroutineState)
	for _, c := range p.Calls {
		b = appendEmbedded(b, fieldPollCalls, MarshalCall(nil, c))
	}
	b = appendVarint(b, fieldPollMinResults, uint64(p.MinResults))
	b = appendVarint(b, fieldPollMaxResults, uint64(p.MaxResults))
	b = appendVarint(b, fieldPollMaxWait, uint64(p.MaxWait))
	return b, nil
}

// UnmarshalPoll decodes a Poll from its wire form.
func UnmarshalPoll(b []byte) (Poll, error) {
	var p Poll
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("dispatchproto: invalid poll tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldPollCoroutineState:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll coroutine_state: code %d", n)
			}
			p.CoroutineState = append([]byte(nil), v...)
			b = b[n:]
		case fieldPollCalls:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll call: code %d", n)
			}
			c, err := UnmarshalCall(v)
			if err != nil {
				return p, err
			}
			p.Calls = append(p.Calls, c)
			b = b[n:]
		case fieldPollMinResults:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll min_results: code %d", n)
			}
			p.MinResults = uint32(v)
			b = b[n:]
		case fieldPollMaxResults:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll max_results: code %d", n)
			}
			p.MaxResults = uint32(v)
			b = b[n:]
		case fieldPollMaxWait:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll max_wait: code %d", n)
			}
			p.MaxWait = time.Duration(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return p, nil
}

// MarshalExit appends the wire form of an Exit, rejecting one that sets
// both Result and TailCall (violates the "exactly one" oneof).
func MarshalExit(b []byte, e Exit) ([]byte, error) {
	if e.Result != nil && e.TailCall != nil {
		return nil, fmt.Errorf("dispatchproto: %w: exit has both result and tail_call", ErrInvalidArgument)
	}
	if e.Result != nil {
		rb, err := MarshalCallResult(nil, *e.Result)
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, fieldExitResult, rb)
	}
	if e.TailCall != nil {
		b = appendEmbedded(b, fieldExitTailCall, MarshalCall(nil, *e.TailCall))
	}
	return b, nil
}

// UnmarshalExit decodes an Exit from its wire form.
func UnmarshalExit(b []byte) (Exit, error) {
	var e Exit
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("dispatchproto: invalid exit tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldExitResult:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("dispatchproto: invalid exit result: code %d", n)
			}
			r, err := UnmarshalCallResult(v)
			if err != nil {
				return e, err
			}
			e.Result = &r
			b = b[n:]
		case fieldExitTailCall:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("dispatchproto: invalid exit tail_call: code %d", n)
			}
			c, err := UnmarshalCall(v)
			if err != nil {
				return e, err
			}
			e.TailCall = &c
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, fmt.Errorf("dispatchproto: invalid exit field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	if e.Result != nil && e.TailCall != nil {
		return e, fmt.Errorf("dispatchproto: %w: exit has both result and tail_call", ErrInvalidArgument)
	}
	return e, nil
}

// MarshalPollResult appends the wire form of a PollResult.
func MarshalPollResult(b []byte, p PollResult) ([]byte, error) {
	b = appendBytesField(b, fieldPollResultCoroutineState, p.CoroutineState)
	for _, r := range p.Results {
		rb, err := MarshalCallResult(nil, r)
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, fieldPollResultResults, rb)
	}
	if p.Error != nil {
		b = appendEmbedded(b, fieldPollResultError, MarshalTypedEnvelope(nil, *p.Error))
	}
	return b, nil
}

// UnmarshalPollResult decodes a PollResult from its wire form.
func UnmarshalPollResult(b []byte) (PollResult, error) {
	var p PollResult
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("dispatchproto: invalid poll result tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldPollResultCoroutineState:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll result coroutine_state: code %d", n)
			}
			p.CoroutineState = append([]byte(nil), v...)
			b = b[n:]
		case fieldPollResultResults:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll result entry: code %d", n)
			}
			r, err := UnmarshalCallResult(v)
			if err != nil {
				return p, err
			}
			p.Results = append(p.Results, r)
			b = b[n:]
		case fieldPollResultError:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll result error: code %d", n)
			}
			env, err := UnmarshalTypedEnvelope(v)
			if err != nil {
				return p, err
			}
			p.Error = &env
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("dispatchproto: invalid poll result field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return p, nil
}

// MarshalRunRequest appends the wire form of a RunRequest, rejecting one
// that sets both Input and PollResult.
func MarshalRunRequest(b []byte, r RunRequest) ([]byte, error) {
	if r.Input != nil && r.PollResult != nil {
		return nil, fmt.Errorf("dispatchproto: %w: run request has both input and poll_result", ErrInvalidArgument)
	}
	b = appendString(b, fieldRunRequestFunction, r.Function)
	if r.Input != nil {
		b = appendEmbedded(b, fieldRunRequestInput, MarshalTypedEnvelope(nil, *r.Input))
	}
	if r.PollResult != nil {
		pb, err := MarshalPollResult(nil, *r.PollResult)
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, fieldRunRequestPollResult, pb)
	}
	b = appendBytesField(b, fieldRunRequestCoroutineState, r.CoroutineState)
	b = appendVarint(b, fieldRunRequestExpiration, uint64(r.Expiration))
	return b, nil
}

// UnmarshalRunRequest decodes a RunRequest from its wire form.
func UnmarshalRunRequest(b []byte) (RunRequest, error) {
	var r RunRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("dispatchproto: invalid run request tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldRunRequestFunction:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run request function: code %d", n)
			}
			r.Function = string(v)
			b = b[n:]
		case fieldRunRequestInput:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run request input: code %d", n)
			}
			env, err := UnmarshalTypedEnvelope(v)
			if err != nil {
				return r, err
			}
			r.Input = &env
			b = b[n:]
		case fieldRunRequestPollResult:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run request poll_result: code %d", n)
			}
			pr, err := UnmarshalPollResult(v)
			if err != nil {
				return r, err
			}
			r.PollResult = &pr
			b = b[n:]
		case fieldRunRequestCoroutineState:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run request coroutine_state: code %d", n)
			}
			r.CoroutineState = append([]byte(nil), v...)
			b = b[n:]
		case fieldRunRequestExpiration:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run request expiration: code %d", n)
			}
			r.Expiration = time.Duration(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run request field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	if r.Input != nil && r.PollResult != nil {
		return r, fmt.Errorf("dispatchproto: %w: run request has both input and poll_result", ErrInvalidArgument)
	}
	return r, nil
}

// MarshalRunResponse appends the wire form of a RunResponse, rejecting one
// that sets both Exit and Poll.
func MarshalRunResponse(b []byte, r RunResponse) ([]byte, error) {
	if r.Exit != nil && r.Poll != nil {
		return nil, fmt.Errorf("dispatchproto: %w: run response has both exit and poll", ErrInvalidArgument)
	}
	b = appendVarint(b, fieldRunResponseStatus, uint64(r.Status))
	if r.Exit != nil {
		eb, err := MarshalExit(nil, *r.Exit)
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, fieldRunResponseExit, eb)
	}
	if r.Poll != nil {
		pb, err := MarshalPoll(nil, *r.Poll)
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, fieldRunResponsePoll, pb)
	}
	return b, nil
}

// UnmarshalRunResponse decodes a RunResponse from its wire form.
func UnmarshalRunResponse(b []byte) (RunResponse, error) {
	var r RunResponse
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("dispatchproto: invalid run response tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldRunResponseStatus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run response status: code %d", n)
			}
			r.Status = Status(v)
			b = b[n:]
		case fieldRunResponseExit:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run response exit: code %d", n)
			}
			e, err := UnmarshalExit(v)
			if err != nil {
				return r, err
			}
			r.Exit = &e
			b = b[n:]
		case fieldRunResponsePoll:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run response poll: code %d", n)
			}
			p, err := UnmarshalPoll(v)
			if err != nil {
				return r, err
			}
			r.Poll = &p
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid run response field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	if r.Exit != nil && r.Poll != nil {
		return r, fmt.Errorf("dispatchproto: %w: run response has both exit and poll", ErrInvalidArgument)
	}
	return r, nil
}

// MarshalDispatchRequest appends the wire form of a DispatchRequest.
func MarshalDispatchRequest(b []byte, r DispatchRequest) []byte {
	for _, c := range r.Calls {
		b = appendEmbedded(b, fieldDispatchRequestCalls, MarshalCall(nil, c))
	}
	return b
}

// UnmarshalDispatchRequest decodes a DispatchRequest from its wire form.
func UnmarshalDispatchRequest(b []byte) (DispatchRequest, error) {
	var r DispatchRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("dispatchproto: invalid dispatch request tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldDispatchRequestCalls:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid dispatch request call: code %d", n)
			}
			c, err := UnmarshalCall(v)
			if err != nil {
				return r, err
			}
			r.Calls = append(r.Calls, c)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid dispatch request field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// MarshalDispatchResponse appends the wire form of a DispatchResponse.
func MarshalDispatchResponse(b []byte, r DispatchResponse) []byte {
	for _, id := range r.DispatchIDs {
		b = appendString(b, fieldDispatchResponseDispatchIDs, id)
	}
	return b
}

// UnmarshalDispatchResponse decodes a DispatchResponse from its wire form.
func UnmarshalDispatchResponse(b []byte) (DispatchResponse, error) {
	var r DispatchResponse
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("dispatchproto: invalid dispatch response tag: code %d", n)
		}
		b = b[n:]
		switch num {
		case fieldDispatchResponseDispatchIDs:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid dispatch response id: code %d", n)
			}
			r.DispatchIDs = append(r.DispatchIDs, string(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("dispatchproto: invalid dispatch response field %d: code %d", num, n)
			}
			b = b[n:]
		}
	}
	return r, nil
}
