// Package value implements the self-describing dynamic value codec used by
// event payloads (see SPEC_FULL.md §6.5). A Value is a tagged union over
// null, bool, signed/unsigned integers, float64, string, bytes, an ordered
// array, and an insertion-ordered string-keyed map.
package value

import (
	"fmt"

	"github.com/orbitlink-io/orbitlink-core/codes"
	"github.com/orbitlink-io/orbitlink-core/internal/bufcodec"
)

// Kind identifies which alternative of the tagged union a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindArray
	KindMap
)

// Guard against allocation bombs from a malformed or hostile peer.
const (
	maxStringLen = 64 * 1024
	maxBytesLen  = 64 * 1024
	maxElements  = 4096
)

// Value is an immutable dynamic value. The zero Value is KindNull.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	s     string
	bytes []byte
	arr   []Value
	m     *Map
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Uint(u uint64) Value        { return Value{kind: KindUint, u: u} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value       { return Value{kind: KindBytes, bytes: b} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }
func FromMap(m *Map) Value       { return Value{kind: KindMap, m: m} }

// Kind returns which alternative v holds.
func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) Uint() (uint64, bool)     { return v.u, v.kind == KindUint }
func (v Value) Float() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) BytesVal() ([]byte, bool) { return v.bytes, v.kind == KindBytes }
func (v Value) Array() ([]Value, bool)   { return v.arr, v.kind == KindArray }
func (v Value) Map() (*Map, bool)        { return v.m, v.kind == KindMap }

// Equal reports whether v and other encode the same value, recursively.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindUint:
		return v.u == other.u
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindBytes:
		if len(v.bytes) != len(other.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.m == nil || other.m == nil {
			return v.m == other.m
		}
		if v.m.Len() != other.m.Len() {
			return false
		}
		for _, k := range v.m.Keys() {
			a, _ := v.m.Get(k)
			bv, ok := other.m.Get(k)
			if !ok || !a.Equal(bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Map is an insertion-ordered string-keyed map of Values.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set inserts or updates key. Existing keys keep their original position.
func (m *Map) Set(key string, v Value) *Map {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
	return m
}

// Get returns the value stored at key, if any.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []string { return m.keys }

// Len returns the number of entries in the map.
func (m *Map) Len() int { return len(m.keys) }

// Encode serializes v to its binary tagged-union representation.
func Encode(v Value) ([]byte, error) {
	buf := bufcodec.NewBuffer(16)
	if err := encodeInto(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeInto(buf *bufcodec.Buffer, v Value) error {
	buf.WriteUint8(uint8(v.kind))
	switch v.kind {
	case KindNull:
	case KindBool:
		if v.b {
			buf.WriteUint8(1)
		} else {
			buf.WriteUint8(0)
		}
	case KindInt:
		buf.WriteVarint(zigzagEncode(v.i))
	case KindUint:
		buf.WriteVarint(v.u)
	case KindFloat:
		buf.WriteFloat64(v.f)
	case KindString:
		buf.WriteString(v.s)
	case KindBytes:
		buf.WriteBytes(v.bytes)
	case KindArray:
		buf.WriteVarint(uint64(len(v.arr)))
		for _, item := range v.arr {
			if err := encodeInto(buf, item); err != nil {
				return err
			}
		}
	case KindMap:
		if v.m == nil {
			buf.WriteVarint(0)
			return nil
		}
		buf.WriteVarint(uint64(v.m.Len()))
		for _, k := range v.m.Keys() {
			buf.WriteString(k)
			item, _ := v.m.Get(k)
			if err := encodeInto(buf, item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown value kind %d", codes.ErrEncodingFailed, v.kind)
	}
	return nil
}

// Decode parses a Value from the front of data, returning the value and the
// number of bytes consumed.
func Decode(data []byte) (Value, int, error) {
	r := bufcodec.NewReader(data)
	v, err := decodeFrom(r)
	if err != nil {
		return Value{}, 0, err
	}
	return v, r.Offset(), nil
}

func decodeFrom(r *bufcodec.Reader) (Value, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return Value{}, err
	}
	switch Kind(tag) {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.ReadUint8()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt:
		u, err := r.ReadVarint()
		if err != nil {
			return Value{}, err
		}
		return Int(zigzagDecode(u)), nil
	case KindUint:
		u, err := r.ReadVarint()
		if err != nil {
			return Value{}, err
		}
		return Uint(u), nil
	case KindFloat:
		f, err := r.ReadFloat64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case KindString:
		s, err := r.ReadString(maxStringLen)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindBytes:
		b, err := r.ReadBytes(maxBytesLen)
		if err != nil {
			return Value{}, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return Bytes(cp), nil
	case KindArray:
		n, err := r.ReadVarint()
		if err != nil {
			return Value{}, err
		}
		if n > maxElements {
			return Value{}, fmt.Errorf("%w: array length %d exceeds limit", codes.ErrBadData, n)
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := decodeFrom(r)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil
	case KindMap:
		n, err := r.ReadVarint()
		if err != nil {
			return Value{}, err
		}
		if n > maxElements {
			return Value{}, fmt.Errorf("%w: map length %d exceeds limit", codes.ErrBadData, n)
		}
		m := NewMap()
		for i := uint64(0); i < n; i++ {
			key, err := r.ReadString(maxStringLen)
			if err != nil {
				return Value{}, err
			}
			item, err := decodeFrom(r)
			if err != nil {
				return Value{}, err
			}
			m.Set(key, item)
		}
		return FromMap(m), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown value tag %d", codes.ErrBadData, tag)
	}
}

func zigzagEncode(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }
