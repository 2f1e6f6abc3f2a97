// Package wire implements the three length-delimited, field-tagged message
// schemas carried as request/response payloads (see SPEC_FULL.md §6.4):
// EventRequest, DiagnosticsRequest, and DiagnosticsResponse. Each message is
// a sequence of (tag byte, varint length, value bytes) records, in the
// manner of a minimal tag-length-value schema such as protocol buffers,
// built on the same little-endian Buffer/Reader primitives as the value
// package.
package wire

import (
	"fmt"

	"github.com/orbitlink-io/orbitlink-core/codes"
	"github.com/orbitlink-io/orbitlink-core/internal/bufcodec"
)

const maxFieldPayload = 64 * 1024
const maxIDs = 4096

const (
	tagEventCode = 0x01
	tagEventData = 0x02
)

// EventRequest carries an application event code and an optional
// self-describing value payload, encoded separately by the value package.
type EventRequest struct {
	Code int32
	Data []byte // value.Encode output; nil/empty when the event carries no value
}

// Encode serializes e to its wire representation.
func (e EventRequest) Encode() []byte {
	buf := bufcodec.NewBuffer(16)
	codeBuf := bufcodec.NewBuffer(8)
	codeBuf.WriteVarint(zigzagEncode(int64(e.Code)))
	writeField(buf, tagEventCode, codeBuf.Bytes())
	if len(e.Data) > 0 {
		writeField(buf, tagEventData, e.Data)
	}
	return buf.Bytes()
}

// DecodeEventRequest parses an EventRequest from data.
func DecodeEventRequest(data []byte) (EventRequest, error) {
	fields, err := readFields(data)
	if err != nil {
		return EventRequest{}, err
	}
	var e EventRequest
	haveCode := false
	for _, f := range fields {
		switch f.tag {
		case tagEventCode:
			r := bufcodec.NewReader(f.payload)
			u, err := r.ReadVarint()
			if err != nil {
				return EventRequest{}, err
			}
			e.Code = int32(zigzagDecode(u))
			haveCode = true
		case tagEventData:
			e.Data = f.payload
		}
	}
	if !haveCode {
		return EventRequest{}, fmt.Errorf("%w: EventRequest missing code field", codes.ErrBadData)
	}
	return e, nil
}

const (
	tagDiagIDs        = 0x01
	tagDiagCategories = 0x02
)

// DiagnosticsRequest carries the set of diagnostic ids a peer is asking
// about. Categories is decoded but never interpreted (see SPEC_FULL.md §9).
type DiagnosticsRequest struct {
	IDs        []uint32
	Categories []byte
}

// Encode serializes d to its wire representation.
func (d DiagnosticsRequest) Encode() []byte {
	buf := bufcodec.NewBuffer(16)
	idsBuf := bufcodec.NewBuffer(8 * len(d.IDs))
	idsBuf.WriteVarint(uint64(len(d.IDs)))
	for _, id := range d.IDs {
		idsBuf.WriteVarint(uint64(id))
	}
	writeField(buf, tagDiagIDs, idsBuf.Bytes())
	if len(d.Categories) > 0 {
		writeField(buf, tagDiagCategories, d.Categories)
	}
	return buf.Bytes()
}

// DecodeDiagnosticsRequest parses a DiagnosticsRequest from data.
func DecodeDiagnosticsRequest(data []byte) (DiagnosticsRequest, error) {
	fields, err := readFields(data)
	if err != nil {
		return DiagnosticsRequest{}, err
	}
	var d DiagnosticsRequest
	for _, f := range fields {
		switch f.tag {
		case tagDiagIDs:
			r := bufcodec.NewReader(f.payload)
			count, err := r.ReadVarint()
			if err != nil {
				return DiagnosticsRequest{}, err
			}
			if count > maxIDs {
				return DiagnosticsRequest{}, fmt.Errorf("%w: id count %d exceeds limit", codes.ErrBadData, count)
			}
			d.IDs = make([]uint32, 0, count)
			for i := uint64(0); i < count; i++ {
				id, err := r.ReadVarint()
				if err != nil {
					return DiagnosticsRequest{}, err
				}
				d.IDs = append(d.IDs, uint32(id))
			}
		case tagDiagCategories:
			d.Categories = f.payload
		}
	}
	return d, nil
}

const tagDiagSources = 0x01

// DiagnosticsSource is one (id, serialized value) entry in a response.
type DiagnosticsSource struct {
	ID   uint32
	Data []byte
}

// DiagnosticsResponse lists the resolved diagnostic values, in request order.
type DiagnosticsResponse struct {
	Sources []DiagnosticsSource
}

// Encode serializes d to its wire representation.
func (d DiagnosticsResponse) Encode() []byte {
	buf := bufcodec.NewBuffer(16)
	srcBuf := bufcodec.NewBuffer(16 * len(d.Sources))
	srcBuf.WriteVarint(uint64(len(d.Sources)))
	for _, s := range d.Sources {
		srcBuf.WriteVarint(uint64(s.ID))
		srcBuf.WriteBytes(s.Data)
	}
	writeField(buf, tagDiagSources, srcBuf.Bytes())
	return buf.Bytes()
}

// DecodeDiagnosticsResponse parses a DiagnosticsResponse from data.
func DecodeDiagnosticsResponse(data []byte) (DiagnosticsResponse, error) {
	fields, err := readFields(data)
	if err != nil {
		return DiagnosticsResponse{}, err
	}
	var d DiagnosticsResponse
	for _, f := range fields {
		if f.tag != tagDiagSources {
			continue
		}
		r := bufcodec.NewReader(f.payload)
		count, err := r.ReadVarint()
		if err != nil {
			return DiagnosticsResponse{}, err
		}
		if count > maxIDs {
			return DiagnosticsResponse{}, fmt.Errorf("%w: source count %d exceeds limit", codes.ErrBadData, count)
		}
		d.Sources = make([]DiagnosticsSource, 0, count)
		for i := uint64(0); i < count; i++ {
			id, err := r.ReadVarint()
			if err != nil {
				return DiagnosticsResponse{}, err
			}
			data, err := r.ReadBytes(maxFieldPayload)
			if err != nil {
				return DiagnosticsResponse{}, err
			}
			cp := make([]byte, len(data))
			copy(cp, data)
			d.Sources = append(d.Sources, DiagnosticsSource{ID: uint32(id), Data: cp})
		}
	}
	return d, nil
}

type field struct {
	tag     uint8
	payload []byte
}

func writeField(buf *bufcodec.Buffer, tag uint8, payload []byte) {
	buf.WriteUint8(tag)
	buf.WriteBytes(payload)
}

func readFields(data []byte) ([]field, error) {
	r := bufcodec.NewReader(data)
	var fields []field
	for r.Remaining() > 0 {
		tag, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadBytes(maxFieldPayload)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field{tag: tag, payload: payload})
	}
	return fields, nil
}

func zigzagEncode(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }
