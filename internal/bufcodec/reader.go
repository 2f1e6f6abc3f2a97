package bufcodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/orbitlink-io/orbitlink-core/codes"
)

// maxVarintBytes bounds varint decoding the same way frame's getUvarint does.
const maxVarintBytes = 10

// Reader provides sequential, zero-copy decoding of Buffer-encoded data.
type Reader struct {
	data   []byte
	offset int
}

// NewReader wraps an existing byte slice for decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.offset }

// Offset returns the current read position.
func (r *Reader) Offset() int { return r.offset }

func (r *Reader) need(n int) (int, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return 0, codes.ErrNotEnoughData
	}
	off := r.offset
	r.offset += n
	return off, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	off, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return r.data[off], nil
}

// ReadUint32 reads a 32-bit unsigned integer in little-endian order.
func (r *Reader) ReadUint32() (uint32, error) {
	off, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.data[off:]), nil
}

// ReadUint64 reads a 64-bit unsigned integer in little-endian order.
func (r *Reader) ReadUint64() (uint64, error) {
	off, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.data[off:]), nil
}

// ReadFloat64 reads a 64-bit IEEE 754 float in little-endian order.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadVarint reads a LEB128 unsigned varint.
func (r *Reader) ReadVarint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		if i == maxVarintBytes {
			return 0, fmt.Errorf("%w: varint overflow", codes.ErrBadData)
		}
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			v |= uint64(b) << shift
			return v, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
}

// ReadRaw reads exactly n bytes verbatim.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	off, err := r.need(n)
	if err != nil {
		return nil, err
	}
	return r.data[off : off+n], nil
}

// ReadString reads a varint-length-prefixed UTF-8 string, bounded by maxLen.
func (r *Reader) ReadString(maxLen int) (string, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	if int(n) > maxLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit", codes.ErrBadData, n)
	}
	raw, err := r.ReadRaw(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ReadBytes reads a varint-length-prefixed byte slice, bounded by maxLen.
// The returned slice is a sub-slice of the Reader's underlying buffer.
func (r *Reader) ReadBytes(maxLen int) ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if int(n) > maxLen {
		return nil, fmt.Errorf("%w: byte length %d exceeds limit", codes.ErrBadData, n)
	}
	return r.ReadRaw(int(n))
}
