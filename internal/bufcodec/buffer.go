// Package bufcodec provides the little-endian, length-prefixed byte buffer
// primitives shared by the value and wire packages. The Buffer/Reader split
// and growth strategy follow strandbuf's encoder/decoder pair; this package
// additionally provides varint helpers for the tag-length-value layouts that
// value and wire build on top of.
package bufcodec

import (
	"encoding/binary"
	"math"
)

// Buffer is a growable byte buffer for binary encoding.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty Buffer pre-allocated with the given capacity.
func NewBuffer(capHint int) *Buffer {
	return &Buffer{data: make([]byte, 0, capHint)}
}

// Bytes returns the accumulated encoded bytes.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) grow(n int) int {
	off := len(b.data)
	need := off + n
	if need <= cap(b.data) {
		b.data = b.data[:need]
		return off
	}
	newCap := cap(b.data) * 2
	if newCap < need {
		newCap = need
	}
	tmp := make([]byte, need, newCap)
	copy(tmp, b.data)
	b.data = tmp
	return off
}

// WriteUint8 appends a single byte.
func (b *Buffer) WriteUint8(v uint8) {
	off := b.grow(1)
	b.data[off] = v
}

// WriteUint32 appends a 32-bit unsigned integer in little-endian order.
func (b *Buffer) WriteUint32(v uint32) {
	off := b.grow(4)
	binary.LittleEndian.PutUint32(b.data[off:], v)
}

// WriteUint64 appends a 64-bit unsigned integer in little-endian order.
func (b *Buffer) WriteUint64(v uint64) {
	off := b.grow(8)
	binary.LittleEndian.PutUint64(b.data[off:], v)
}

// WriteFloat64 appends a 64-bit IEEE 754 float in little-endian order.
func (b *Buffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// WriteRaw appends p verbatim, with no length prefix.
func (b *Buffer) WriteRaw(p []byte) {
	off := b.grow(len(p))
	copy(b.data[off:], p)
}

// WriteVarint appends v as a LEB128 unsigned varint.
func (b *Buffer) WriteVarint(v uint64) {
	for v >= 0x80 {
		b.WriteUint8(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteUint8(byte(v))
}

// WriteString appends a varint-length-prefixed UTF-8 string.
func (b *Buffer) WriteString(s string) {
	b.WriteVarint(uint64(len(s)))
	b.WriteRaw([]byte(s))
}

// WriteBytes appends a varint-length-prefixed byte slice.
func (b *Buffer) WriteBytes(p []byte) {
	b.WriteVarint(uint64(len(p)))
	b.WriteRaw(p)
}
