package coroutine

import (
	"encoding/binary"
	"fmt"
	"math"
)

// This file defines Serializable wrappers for builtin Go types, so that
// simple coroutine locals don't need to round-trip through the reflection
// based encoder in serde.go.

// Int is a Serializable int.
type Int int

var _ Serializable = Int(0)
var _ Deserializable = (*Int)(nil)

func (i Int) MarshalAppend(b []byte) ([]byte, error) {
	return binary.AppendVarint(b, int64(i)), nil
}

func (i *Int) Unmarshal(b []byte) (int, error) {
	value, n := binary.Varint(b)
	if n <= 0 || int64(Int(value)) != value {
		return 0, fmt.Errorf("invalid Int: %v", b)
	}
	*i = Int(value)
	return n, nil
}

func UnmarshalInt(b []byte) (_ Serializable, n int, err error) {
	var value Int
	n, err = value.Unmarshal(b)
	return value, n, err
}

// Bool is a Serializable bool.
type Bool bool

var _ Serializable = Bool(false)
var _ Deserializable = (*Bool)(nil)

func (x Bool) MarshalAppend(b []byte) ([]byte, error) {
	if x {
		return append(b, 1), nil
	}
	return append(b, 0), nil
}

func (x *Bool) Unmarshal(b []byte) (int, error) {
	if len(b) == 0 || (b[0] != 0 && b[0] != 1) {
		return 0, fmt.Errorf("invalid Bool: %v", b)
	}
	*x = b[0] == 1
	return 1, nil
}

func UnmarshalBool(b []byte) (_ Serializable, n int, err error) {
	var value Bool
	n, err = value.Unmarshal(b)
	return value, n, err
}

// String is a Serializable string.
type String string

var _ Serializable = String("")
var _ Deserializable = (*String)(nil)

func (x String) MarshalAppend(b []byte) ([]byte, error) {
	b = binary.AppendVarint(b, int64(len(x)))
	return append(b, x...), nil
}

func (x *String) Unmarshal(b []byte) (int, error) {
	size, n := binary.Varint(b)
	if n <= 0 || int64(int(size)) != size || n+int(size) > len(b) {
		return 0, fmt.Errorf("invalid String: %v", b)
	}
	*x = String(b[n : n+int(size)])
	return n + int(size), nil
}

func UnmarshalString(b []byte) (_ Serializable, n int, err error) {
	var value String
	n, err = value.Unmarshal(b)
	return value, n, err
}

// Float64 is a Serializable float64.
type Float64 float64

var _ Serializable = Float64(0)
var _ Deserializable = (*Float64)(nil)

func (x Float64) MarshalAppend(b []byte) ([]byte, error) {
	return binary.AppendUvarint(b, math.Float64bits(float64(x))), nil
}

func (x *Float64) Unmarshal(b []byte) (int, error) {
	bits, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, fmt.Errorf("invalid Float64: %v", b)
	}
	*x = Float64(math.Float64frombits(bits))
	return n, nil
}

func UnmarshalFloat64(b []byte) (_ Serializable, n int, err error) {
	var value Float64
	n, err = value.Unmarshal(b)
	return value, n, err
}

// Bytes is a Serializable []byte.
type Bytes []byte

var _ Serializable = Bytes(nil)
var _ Deserializable = (*Bytes)(nil)

func (x Bytes) MarshalAppend(b []byte) ([]byte, error) {
	b = binary.AppendVarint(b, int64(len(x)))
	return append(b, x...), nil
}

func (x *Bytes) Unmarshal(b []byte) (int, error) {
	size, n := binary.Varint(b)
	if n <= 0 || int64(int(size)) != size || n+int(size) > len(b) {
		return 0, fmt.Errorf("invalid Bytes: %v", b)
	}
	*x = Bytes(b[n : n+int(size)])
	return n + int(size), nil
}

func UnmarshalBytes(b []byte) (_ Serializable, n int, err error) {
	var value Bytes
	n, err = value.Unmarshal(b)
	return value, n, err
}

func init() {
	RegisterSerializableConstructor(Int(0), UnmarshalInt)
	RegisterSerializableConstructor(Bool(false), UnmarshalBool)
	RegisterSerializableConstructor(String(""), UnmarshalString)
	RegisterSerializableConstructor(Float64(0), UnmarshalFloat64)
	RegisterSerializableConstructor(Bytes(nil), UnmarshalBytes)
}
