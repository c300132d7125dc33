package coroutine

// serde.go contains a reflection based encoder/decoder for arbitrary
// application values, used whenever a coroutine local (or, via
// dispatchproto.Box, a boxed call argument) isn't itself one of the
// builtin Serializable wrappers in builtin.go.
//
// This mirrors the shape of the teacher's original reflection engine
// (a registered type map, varint-tagged type ids, one
// serialize/deserialize pair per reflect.Kind) but works purely in terms
// of reflect.Value instead of unsafe.Pointer. The teacher's version
// additionally preserves pointer identity across a value's full object
// graph, which a coroutine's locals can in principle need (two locals
// might alias the same heap object) but which a single boxed call
// argument or a single coroutine local never does in this SDK: nothing
// here shares a captured value across slots. Dropping that machinery
// removes an entire class of unsafe code that can't be exercised without
// running the toolchain.

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Value wraps an arbitrary Go value so it can be stored in a Storage slot
// or boxed into a TypedEnvelope.
type Value struct {
	V any
}

var _ Serializable = Value{}
var _ Deserializable = (*Value)(nil)

// Any wraps v for serialization.
func Any(v any) Value { return Value{V: v} }

func (v Value) MarshalAppend(b []byte) ([]byte, error) {
	return serializeAny(v.V, b)
}

func (v *Value) Unmarshal(b []byte) (int, error) {
	x, n, err := deserializeAny(b)
	if err != nil {
		return 0, err
	}
	v.V = x
	return n, nil
}

func UnmarshalValue(b []byte) (Serializable, int, error) {
	var v Value
	n, err := v.Unmarshal(b)
	return v, n, err
}

func init() {
	RegisterSerializableConstructor(Value{}, UnmarshalValue)
}

// RegisterType makes T and *T known to the reflection encoder, so values
// of an interface or struct field typed T can be serialized. Generated
// registration calls are out of scope for this SDK (spec.md §1 treats
// codegen as out of scope); call this explicitly for every application
// type that can appear inside a boxed value.
func RegisterType[T any]() {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type; nothing concrete to register.
		return
	}
	tm.add(t)
	tm.add(reflect.PointerTo(t))
}

// Serialize encodes an arbitrary application value.
func Serialize(x any) ([]byte, error) {
	return serializeAny(x, nil)
}

// Deserialize decodes a value produced by Serialize, returning any
// trailing bytes.
func Deserialize(b []byte) (any, []byte, error) {
	x, n, err := deserializeAny(b)
	if err != nil {
		return nil, nil, err
	}
	return x, b[n:], nil
}

const (
	kindNil = iota
	kindBool
	kindInt
	kindInt8
	kindInt16
	kindInt32
	kindInt64
	kindUint
	kindUint8
	kindUint16
	kindUint32
	kindUint64
	kindFloat32
	kindFloat64
	kindString
	kindBytes
	kindSlice
	kindArray
	kindMap
	kindPointer
	kindStruct
	kindRegistered // a registered named type, encoded as tag + underlying kind
)

func serializeAny(x any, b []byte) ([]byte, error) {
	if x == nil {
		return append(b, kindNil), nil
	}
	v := reflect.ValueOf(x)
	t := v.Type()
	if id, ok := tm.idOf(t); ok {
		b = append(b, kindRegistered)
		b = binary.AppendVarint(b, int64(id))
		return serializeValue(v, b)
	}
	return serializeValue(v, b)
}

func deserializeAny(b []byte) (any, int, error) {
	if len(b) == 0 {
		return nil, 0, fmt.Errorf("empty buffer")
	}
	switch b[0] {
	case kindNil:
		return nil, 1, nil
	case kindRegistered:
		id, n := binary.Varint(b[1:])
		if n <= 0 {
			return nil, 0, fmt.Errorf("invalid registered type id")
		}
		t, ok := tm.typeOf(int(id))
		if !ok {
			return nil, 0, fmt.Errorf("registered type %d unknown; call coroutine.RegisterType before deserializing", id)
		}
		v, vn, err := deserializeValue(t, b[1+n:])
		if err != nil {
			return nil, 0, err
		}
		return v.Interface(), 1 + n + vn, nil
	default:
		v, n, err := deserializeValueByTag(b)
		if err != nil {
			return nil, 0, err
		}
		return v.Interface(), n, nil
	}
}

func serializeValue(v reflect.Value, b []byte) ([]byte, error) {
	switch v.Kind() {
	case reflect.Bool:
		b = append(b, kindBool)
		if v.Bool() {
			return append(b, 1), nil
		}
		return append(b, 0), nil
	case reflect.Int:
		return binary.AppendVarint(append(b, kindInt), v.Int()), nil
	case reflect.Int8:
		return binary.AppendVarint(append(b, kindInt8), v.Int()), nil
	case reflect.Int16:
		return binary.AppendVarint(append(b, kindInt16), v.Int()), nil
	case reflect.Int32:
		return binary.AppendVarint(append(b, kindInt32), v.Int()), nil
	case reflect.Int64:
		return binary.AppendVarint(append(b, kindInt64), v.Int()), nil
	case reflect.Uint:
		return binary.AppendUvarint(append(b, kindUint), v.Uint()), nil
	case reflect.Uint8:
		return binary.AppendUvarint(append(b, kindUint8), v.Uint()), nil
	case reflect.Uint16:
		return binary.AppendUvarint(append(b, kindUint16), v.Uint()), nil
	case reflect.Uint32:
		return binary.AppendUvarint(append(b, kindUint32), v.Uint()), nil
	case reflect.Uint64:
		return binary.AppendUvarint(append(b, kindUint64), v.Uint()), nil
	case reflect.Float32:
		return binary.AppendUvarint(append(b, kindFloat32), uint64(math.Float32bits(float32(v.Float())))), nil
	case reflect.Float64:
		return binary.AppendUvarint(append(b, kindFloat64), math.Float64bits(v.Float())), nil
	case reflect.String:
		b = append(b, kindString)
		s := v.String()
		b = binary.AppendVarint(b, int64(len(s)))
		return append(b, s...), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b = append(b, kindBytes)
			bs := v.Bytes()
			b = binary.AppendVarint(b, int64(len(bs)))
			return append(b, bs...), nil
		}
		b = append(b, kindSlice)
		if v.IsNil() {
			return binary.AppendVarint(b, -1), nil
		}
		b = binary.AppendVarint(b, int64(v.Len()))
		var err error
		for i := 0; i < v.Len(); i++ {
			b, err = serializeAny(v.Index(i).Interface(), b)
			if err != nil {
				return nil, err
			}
		}
		return b, nil
	case reflect.Array:
		b = append(b, kindArray)
		var err error
		for i := 0; i < v.Len(); i++ {
			b, err = serializeAny(v.Index(i).Interface(), b)
			if err != nil {
				return nil, err
			}
		}
		return b, nil
	case reflect.Map:
		b = append(b, kindMap)
		if v.IsNil() {
			return binary.AppendVarint(b, -1), nil
		}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		b = binary.AppendVarint(b, int64(len(keys)))
		var err error
		for _, k := range keys {
			b, err = serializeAny(k.Interface(), b)
			if err != nil {
				return nil, err
			}
			b, err = serializeAny(v.MapIndex(k).Interface(), b)
			if err != nil {
				return nil, err
			}
		}
		return b, nil
	case reflect.Pointer:
		b = append(b, kindPointer)
		if v.IsNil() {
			return append(b, 0), nil
		}
		b = append(b, 1)
		return serializeAny(v.Elem().Interface(), b)
	case reflect.Struct:
		b = append(b, kindStruct)
		t := v.Type()
		b = binary.AppendVarint(b, int64(t.NumField()))
		var err error
		for i := 0; i < t.NumField(); i++ {
			fv := v.Field(i)
			if !fv.CanInterface() {
				// Unexported fields can't be captured portably; skip them,
				// matching the documented constraint that only
				// application-marked-serializable values round-trip.
				b, err = serializeAny(nil, b)
			} else {
				b, err = serializeAny(fv.Interface(), b)
			}
			if err != nil {
				return nil, err
			}
		}
		return b, nil
	case reflect.Interface:
		return serializeAny(v.Interface(), b)
	default:
		return nil, fmt.Errorf("value of kind %s cannot be serialized", v.Kind())
	}
}

func deserializeValueByTag(b []byte) (reflect.Value, int, error) {
	if len(b) == 0 {
		return reflect.Value{}, 0, fmt.Errorf("empty buffer")
	}
	switch b[0] {
	case kindBool:
		if len(b) < 2 {
			return reflect.Value{}, 0, fmt.Errorf("invalid bool")
		}
		return reflect.ValueOf(b[1] == 1), 2, nil
	case kindInt:
		x, n := binary.Varint(b[1:])
		return reflect.ValueOf(int(x)), 1 + n, checkVarint(n)
	case kindInt8:
		x, n := binary.Varint(b[1:])
		return reflect.ValueOf(int8(x)), 1 + n, checkVarint(n)
	case kindInt16:
		x, n := binary.Varint(b[1:])
		return reflect.ValueOf(int16(x)), 1 + n, checkVarint(n)
	case kindInt32:
		x, n := binary.Varint(b[1:])
		return reflect.ValueOf(int32(x)), 1 + n, checkVarint(n)
	case kindInt64:
		x, n := binary.Varint(b[1:])
		return reflect.ValueOf(int64(x)), 1 + n, checkVarint(n)
	case kindUint:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(uint(x)), 1 + n, checkVarint(n)
	case kindUint8:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(uint8(x)), 1 + n, checkVarint(n)
	case kindUint16:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(uint16(x)), 1 + n, checkVarint(n)
	case kindUint32:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(uint32(x)), 1 + n, checkVarint(n)
	case kindUint64:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(uint64(x)), 1 + n, checkVarint(n)
	case kindFloat32:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(math.Float32frombits(uint32(x))), 1 + n, checkVarint(n)
	case kindFloat64:
		x, n := binary.Uvarint(b[1:])
		return reflect.ValueOf(math.Float64frombits(x)), 1 + n, checkVarint(n)
	case kindString:
		size, n := binary.Varint(b[1:])
		if n <= 0 || 1+n+int(size) > len(b) {
			return reflect.Value{}, 0, fmt.Errorf("invalid string")
		}
		s := string(b[1+n : 1+n+int(size)])
		return reflect.ValueOf(s), 1 + n + int(size), nil
	case kindBytes:
		size, n := binary.Varint(b[1:])
		if n <= 0 || 1+n+int(size) > len(b) {
			return reflect.Value{}, 0, fmt.Errorf("invalid bytes")
		}
		buf := make([]byte, size)
		copy(buf, b[1+n:1+n+int(size)])
		return reflect.ValueOf(buf), 1 + n + int(size), nil
	case kindSlice:
		size, n := binary.Varint(b[1:])
		if n <= 0 {
			return reflect.Value{}, 0, fmt.Errorf("invalid slice length")
		}
		off := 1 + n
		if size < 0 {
			return reflect.ValueOf([]any(nil)), off, nil
		}
		elems := make([]any, size)
		for i := range elems {
			x, xn, err := deserializeAny(b[off:])
			if err != nil {
				return reflect.Value{}, 0, err
			}
			elems[i] = x
			off += xn
		}
		return reflect.ValueOf(elems), off, nil
	case kindArray:
		return reflect.Value{}, 0, fmt.Errorf("arrays require a registered concrete type")
	case kindMap:
		size, n := binary.Varint(b[1:])
		if n <= 0 {
			return reflect.Value{}, 0, fmt.Errorf("invalid map length")
		}
		off := 1 + n
		m := make(map[any]any, max64(size, 0))
		for i := int64(0); i < size; i++ {
			k, kn, err := deserializeAny(b[off:])
			if err != nil {
				return reflect.Value{}, 0, err
			}
			off += kn
			val, vn, err := deserializeAny(b[off:])
			if err != nil {
				return reflect.Value{}, 0, err
			}
			off += vn
			m[k] = val
		}
		return reflect.ValueOf(m), off, nil
	case kindPointer:
		if len(b) < 2 {
			return reflect.Value{}, 0, fmt.Errorf("invalid pointer")
		}
		if b[1] == 0 {
			return reflect.ValueOf((*any)(nil)), 2, nil
		}
		x, n, err := deserializeAny(b[2:])
		if err != nil {
			return reflect.Value{}, 0, err
		}
		p := new(any)
		*p = x
		return reflect.ValueOf(p), 2 + n, nil
	case kindStruct:
		return reflect.Value{}, 0, fmt.Errorf("anonymous structs require a registered concrete type")
	default:
		return reflect.Value{}, 0, fmt.Errorf("unknown type tag %d", b[0])
	}
}

func checkVarint(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid varint")
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// deserializeValue decodes a value known to be of concrete type t (a
// registered type), so structs and arrays can be reconstructed precisely
// instead of falling back to map[any]any/[]any.
func deserializeValue(t reflect.Type, b []byte) (reflect.Value, int, error) {
	switch t.Kind() {
	case reflect.Struct:
		if len(b) == 0 || b[0] != kindStruct {
			return reflect.Value{}, 0, fmt.Errorf("expected struct tag")
		}
		count, n := binary.Varint(b[1:])
		if n <= 0 {
			return reflect.Value{}, 0, fmt.Errorf("invalid struct field count")
		}
		off := 1 + n
		out := reflect.New(t).Elem()
		for i := 0; i < int(count) && i < t.NumField(); i++ {
			x, xn, err := deserializeAny(b[off:])
			if err != nil {
				return reflect.Value{}, 0, err
			}
			off += xn
			f := out.Field(i)
			if f.CanSet() && x != nil {
				xv := reflect.ValueOf(x)
				if xv.Type().AssignableTo(f.Type()) {
					f.Set(xv)
				} else if xv.Type().ConvertibleTo(f.Type()) {
					f.Set(xv.Convert(f.Type()))
				}
			}
		}
		return out, off, nil
	case reflect.Pointer:
		if len(b) < 2 || b[0] != kindPointer {
			return reflect.Value{}, 0, fmt.Errorf("expected pointer tag")
		}
		if b[1] == 0 {
			return reflect.Zero(t), 2, nil
		}
		elem, n, err := deserializeValue(t.Elem(), b[2:])
		if err != nil {
			return reflect.Value{}, 0, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, 2 + n, nil
	case reflect.Array:
		if len(b) == 0 || b[0] != kindArray {
			return reflect.Value{}, 0, fmt.Errorf("expected array tag")
		}
		off := 1
		out := reflect.New(t).Elem()
		for i := 0; i < t.Len(); i++ {
			x, xn, err := deserializeAny(b[off:])
			if err != nil {
				return reflect.Value{}, 0, err
			}
			off += xn
			if x != nil {
				out.Index(i).Set(reflect.ValueOf(x).Convert(t.Elem()))
			}
		}
		return out, off, nil
	case reflect.Slice:
		v, n, err := deserializeValueByTag(b)
		if err != nil {
			return reflect.Value{}, 0, err
		}
		if v.Kind() != reflect.Slice {
			return reflect.Value{}, 0, fmt.Errorf("cannot convert slice to %s", t)
		}
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i).Interface()
			if elem != nil {
				out.Index(i).Set(reflect.ValueOf(elem).Convert(t.Elem()))
			}
		}
		return out, n, nil
	default:
		v, n, err := deserializeValueByTag(b)
		if err != nil {
			return reflect.Value{}, 0, err
		}
		if v.Type() != t && v.Type().ConvertibleTo(t) {
			v = v.Convert(t)
		}
		return v, n, nil
	}
}

// typeMap is a process-wide, write-mostly-at-startup registry of
// application types that can appear inside a boxed value or coroutine
// local. Neither registration nor reads (idOf/typeOf) take a lock, so
// RegisterType calls belong at startup, before any value is boxed.
type typeMap struct {
	byType map[reflect.Type]int
	byID   []reflect.Type
}

var tm = &typeMap{byType: map[reflect.Type]int{}}

func (m *typeMap) add(t reflect.Type) {
	if _, ok := m.byType[t]; ok {
		return
	}
	id := len(m.byID)
	m.byID = append(m.byID, t)
	m.byType[t] = id
}

func (m *typeMap) idOf(t reflect.Type) (int, bool) {
	id, ok := m.byType[t]
	return id, ok
}

func (m *typeMap) typeOf(id int) (reflect.Type, bool) {
	if id < 0 || id >= len(m.byID) {
		return nil, false
	}
	return m.byID[id], true
}
