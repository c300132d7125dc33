package dispatchcontext

import (
	"encoding/binary"
	"fmt"

	"github.com/dispatchrun/dispatch-go/coroutine"
	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// PollOutcome is the Serializable value a suspended frame's Storage slot
// holds once the Engine has resolved it: the CallResults for that
// directive's children, reordered into submission order, plus an optional
// scheduler-injected error (e.g. on cancellation, spec.md §3's PollResult).
type PollOutcome struct {
	Results []dispatchproto.CallResult
	Error   *dispatchproto.TypedEnvelope
}

func (o PollOutcome) MarshalAppend(b []byte) ([]byte, error) {
	b = binary.AppendVarint(b, int64(len(o.Results)))
	for _, r := range o.Results {
		rb, err := dispatchproto.MarshalCallResult(nil, r)
		if err != nil {
			return nil, err
		}
		b = binary.AppendVarint(b, int64(len(rb)))
		b = append(b, rb...)
	}

	var errBlob []byte
	if o.Error != nil {
		errBlob = append(errBlob, 1)
		errBlob = dispatchproto.MarshalTypedEnvelope(errBlob, *o.Error)
	} else {
		errBlob = append(errBlob, 0)
	}
	b = binary.AppendVarint(b, int64(len(errBlob)))
	b = append(b, errBlob...)
	return b, nil
}

func (o *PollOutcome) Unmarshal(b []byte) (int, error) {
	var n int

	count, cn := binary.Varint(b)
	if cn <= 0 {
		return 0, fmt.Errorf("dispatchcontext: invalid poll outcome result count")
	}
	b = b[cn:]
	n += cn

	results := make([]dispatchproto.CallResult, count)
	for i := range results {
		ln, ln2 := binary.Varint(b)
		if ln2 <= 0 {
			return 0, fmt.Errorf("dispatchcontext: invalid poll outcome result length")
		}
		b = b[ln2:]
		n += ln2

		r, err := dispatchproto.UnmarshalCallResult(b[:ln])
		if err != nil {
			return 0, err
		}
		results[i] = r
		b = b[ln:]
		n += int(ln)
	}

	errLen, en := binary.Varint(b)
	if en <= 0 {
		return 0, fmt.Errorf("dispatchcontext: invalid poll outcome error length")
	}
	b = b[en:]
	n += en

	errBlob := b[:errLen]
	n += int(errLen)
	if len(errBlob) > 0 && errBlob[0] == 1 {
		env, err := dispatchproto.UnmarshalTypedEnvelope(errBlob[1:])
		if err != nil {
			return 0, err
		}
		o.Error = &env
	} else {
		o.Error = nil
	}

	o.Results = results
	return n, nil
}

func init() {
	coroutine.RegisterSerializable(PollOutcome{})
}
