// Package frame implements the tag-packed header codec for the OrbitLink
// cloud messaging protocol. See SPEC_FULL.md §4.1 for the wire contract.
//
// Header layout (flags byte, then varints):
//
//	[0]     flags   uint8  (bit0=has_frame_type, bits1-2=frame_type, bit3=has_request_id)
//	[1..]   code    zig-zag varint  (opcode for requests, result code for responses)
//	[..]    id      unsigned varint (present only when bit3 of flags is set)
//
// A peer that sends an all-zero flags byte is signalling "no frame_type, no
// request_id" — decoded with HasType and HasReqID false and RequestID 0, so
// EffectiveType reports the Request default. The channel treats such a
// frame as REQUEST_NO_RESPONSE, since it carries no id to answer.
package frame

import (
	"fmt"

	"github.com/orbitlink-io/orbitlink-core/codes"
)

// Type identifies how a frame participates in request/response correlation.
type Type uint8

const (
	// Request is the default frame type when a header's HasType is false.
	Request Type = iota
	RequestNoResponse
	Response
)

const (
	flagHasType  uint8 = 1 << 0
	flagTypeShift      = 1
	flagHasReqID uint8 = 1 << 3
)

const (
	// MaxFrameHeaderSize bounds the number of bytes Encode ever writes.
	MaxFrameHeaderSize = 8

	// MaxRequestID is the largest outbound request id; the id counter wraps
	// to 0 after it.
	MaxRequestID = 1<<16 - 1
)

// Header is the logical content of a frame's wire header.
//
// HasType distinguishes "no frame_type on the wire" (peer default: Request)
// from an explicit Type value of Request; HasReqID similarly distinguishes
// an absent id from an id of 0.
type Header struct {
	HasType   bool
	Type      Type
	HasReqID  bool
	RequestID uint32
	Code      int32 // opcode for requests, result code for responses
}

// WithType returns a copy of h with an explicit frame type set.
func (h Header) WithType(t Type) Header {
	h.HasType = true
	h.Type = t
	return h
}

// WithRequestID returns a copy of h with a request id attached.
func (h Header) WithRequestID(id uint32) Header {
	h.HasReqID = true
	h.RequestID = id
	return h
}

// EffectiveType returns h.Type if HasType is set, otherwise Request.
func (h Header) EffectiveType() Type {
	if !h.HasType {
		return Request
	}
	return h.Type
}

// Encode writes h's wire representation to the front of dst, returning the
// number of bytes written. Returns codes.ErrBufferTooSmall if dst cannot
// hold the encoded header.
func Encode(dst []byte, h Header) (int, error) {
	var flags uint8
	if h.HasType {
		flags |= flagHasType
		flags |= uint8(h.Type) << flagTypeShift
	}
	if h.HasReqID {
		flags |= flagHasReqID
	}

	need := 1 + zigzagVarintLen(int64(h.Code))
	if h.HasReqID {
		need += uvarintLen(uint64(h.RequestID))
	}
	if need > len(dst) {
		return 0, codes.ErrBufferTooSmall
	}

	dst[0] = flags
	n := 1
	n += putZigzagVarint(dst[n:], int64(h.Code))
	if h.HasReqID {
		n += putUvarint(dst[n:], uint64(h.RequestID))
	}
	return n, nil
}

// Decode parses a header from the front of src, returning the header and the
// number of bytes consumed. Returns codes.ErrNotEnoughData if src is shorter
// than the encoded header, codes.ErrBadData on a malformed varint.
func Decode(src []byte) (Header, int, error) {
	if len(src) < 1 {
		return Header{}, 0, codes.ErrNotEnoughData
	}
	flags := src[0]
	off := 1

	var h Header
	h.HasType = flags&flagHasType != 0
	h.Type = Type((flags >> flagTypeShift) & 0x3)
	h.HasReqID = flags&flagHasReqID != 0

	code, n, err := getZigzagVarint(src[off:])
	if err != nil {
		return Header{}, 0, err
	}
	h.Code = int32(code)
	off += n

	if h.HasReqID {
		id, n, err := getUvarint(src[off:])
		if err != nil {
			return Header{}, 0, err
		}
		h.RequestID = uint32(id)
		off += n
	}

	return h, off, nil
}

func zigzagEncode(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

func putUvarint(dst []byte, v uint64) int {
	n := 0
	for v >= 0x80 {
		dst[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	dst[n] = byte(v)
	return n + 1
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func getUvarint(src []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, b := range src {
		if i == 9 && b >= 0x80 {
			return 0, 0, fmt.Errorf("%w: varint overflow", codes.ErrBadData)
		}
		if b < 0x80 {
			v |= uint64(b) << shift
			return v, i + 1, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, 0, codes.ErrNotEnoughData
}

func putZigzagVarint(dst []byte, v int64) int { return putUvarint(dst, zigzagEncode(v)) }
func zigzagVarintLen(v int64) int             { return uvarintLen(zigzagEncode(v)) }

func getZigzagVarint(src []byte) (int64, int, error) {
	u, n, err := getUvarint(src)
	if err != nil {
		return 0, 0, err
	}
	return zigzagDecode(u), n, nil
}
