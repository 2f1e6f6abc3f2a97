// Package channel implements the request/response state machine described
// in SPEC_FULL.md §4.2: outbound request tracking with deadline-based
// timeout, inbound request dispatch with session-guarded response closures,
// and reset/cancellation semantics. It is single-threaded and cooperative —
// every public method runs to completion on the caller's goroutine.
package channel

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/orbitlink-io/orbitlink-core/codes"
	"github.com/orbitlink-io/orbitlink-core/frame"
)

const (
	// DefaultPort is the app port used when a caller doesn't specify one.
	DefaultPort uint8 = 223
	// MinAppPort and MaxAppPort bound the inclusive range of valid app ports.
	MinAppPort uint8 = 1
	MaxAppPort uint8 = 223

	// DefaultRequestTimeout is applied when RequestOptions.Timeout is zero.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultMaxRequestID is the largest outbound request id before the
	// counter wraps to 0, per spec.md §6.7's "e.g., 2^16-1" suggestion.
	DefaultMaxRequestID = frame.MaxRequestID
)

// SendFunc is the transport-facing send primitive. onAck is optional and
// reserved for future acknowledgment delivery; it may be nil.
type SendFunc func(buf []byte, port uint8, onAck func(error)) error

// OnResponseFunc is handed to an inbound request handler. It must be called
// at most once; if the request expects a response, calling it sends a
// RESPONSE frame carrying resultCode and data. Calling it on a
// request-no-response frame, or after a Reset has invalidated the session
// that captured it, is a safe no-op that returns codes.ErrCancelled in the
// latter case.
type OnResponseFunc func(resultCode int32, data []byte) error

// RequestHandler dispatches an inbound REQUEST or REQUEST_NO_RESPONSE frame.
type RequestHandler func(reqType int32, data []byte, onResponse OnResponseFunc)

// OnCompletionFunc is the terminal callback for an outbound request. err is
// nil on success (data/resultCode carry the peer's response), or one of
// codes.ErrTimeout / codes.ErrCancelled.
type OnCompletionFunc func(err error, resultCode int32, data []byte)

// RequestOptions configures a single outbound request.
type RequestOptions struct {
	NoResponse bool
	Timeout    time.Duration
	OnAck      func(error)
}

// Config configures a MessageChannel. OnSend is required; Port must lie in
// [MinAppPort, MaxAppPort], and zero selects DefaultPort. OnRequest may be
// nil if the embedder never expects inbound requests.
type Config struct {
	OnSend    SendFunc
	OnRequest RequestHandler
	Port      uint8

	// MaxRequestID bounds the id wraparound counter. Defaults to
	// DefaultMaxRequestID.
	MaxRequestID uint32

	// Now returns the current time; defaults to time.Now. Tests inject a
	// deterministic clock here.
	Now func() time.Time

	Logger *slog.Logger
}

type outboundRequest struct {
	onResponse OnCompletionFunc
	noResponse bool
	deadline   time.Time
}

// MessageChannel is the request/response engine atop the frame codec.
type MessageChannel struct {
	cfg         Config
	initialized bool

	nextOutReqID uint32
	sessionID    uint64
	outReqs      map[uint32]*outboundRequest

	maxPayloadSize int // 0 means unbounded
}

// New returns an uninitialized MessageChannel. Call Init before use.
func New() *MessageChannel {
	return &MessageChannel{outReqs: make(map[uint32]*outboundRequest)}
}

// Init validates cfg and prepares the channel for use. It may be called
// again to reconfigure; doing so does not reset in-flight requests.
func (m *MessageChannel) Init(cfg Config) error {
	if cfg.OnSend == nil {
		return fmt.Errorf("%w: OnSend is required", codes.ErrInvalidArgument)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < MinAppPort || cfg.Port > MaxAppPort {
		return fmt.Errorf("%w: port %d out of range [%d, %d]", codes.ErrInvalidArgument, cfg.Port, MinAppPort, MaxAppPort)
	}
	if cfg.MaxRequestID == 0 {
		cfg.MaxRequestID = DefaultMaxRequestID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m.cfg = cfg
	m.initialized = true
	return nil
}

// ChangeMaxPayloadSize sets a cap on future outbound payloads; SendRequest
// rejects a larger payload with codes.ErrInvalidArgument. Zero means
// unbounded.
func (m *MessageChannel) ChangeMaxPayloadSize(size int) error {
	if size < 0 {
		return fmt.Errorf("%w: negative payload size", codes.ErrInvalidArgument)
	}
	m.maxPayloadSize = size
	return nil
}

// SendRequest assigns the next request id, encodes a frame carrying reqType
// and payload, and hands it to the configured OnSend. No-response requests
// also consume an id, but their frame carries none and they are never
// tracked for a reply. It returns the assigned id and any error.
func (m *MessageChannel) SendRequest(reqType int32, payload []byte, onResponse OnCompletionFunc, opts *RequestOptions) (uint32, error) {
	if !m.initialized {
		return 0, fmt.Errorf("%w: channel not initialized", codes.ErrInvalidState)
	}
	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	if m.maxPayloadSize > 0 && len(payload) > m.maxPayloadSize {
		return 0, fmt.Errorf("%w: payload %d bytes exceeds max %d", codes.ErrInvalidArgument, len(payload), m.maxPayloadSize)
	}

	id := m.nextOutReqID
	m.nextOutReqID++
	if uint64(m.nextOutReqID) > uint64(m.cfg.MaxRequestID) {
		m.nextOutReqID = 0
	}

	hdr := frame.Header{Code: reqType}
	if opts.NoResponse {
		hdr = hdr.WithType(frame.RequestNoResponse)
	} else {
		hdr = hdr.WithType(frame.Request).WithRequestID(id)
	}

	buf, err := encodeFrame(hdr, payload)
	if err != nil {
		return 0, err
	}

	if !opts.NoResponse {
		m.outReqs[id] = &outboundRequest{
			onResponse: onResponse,
			noResponse: false,
			deadline:   m.cfg.Now().Add(timeout),
		}
	}

	if err := m.cfg.OnSend(buf, m.cfg.Port, opts.OnAck); err != nil {
		if !opts.NoResponse {
			delete(m.outReqs, id)
		}
		return 0, err
	}

	return id, nil
}

// Receive decodes an inbound datagram and dispatches it: REQUEST and
// REQUEST_NO_RESPONSE frames go to the configured RequestHandler; RESPONSE
// frames complete the matching outbound record, if any. Malformed input is
// dropped silently, matching spec.md §7's NOT_ENOUGH_DATA/BAD_DATA policy.
func (m *MessageChannel) Receive(data []byte, port uint8) error {
	hdr, n, err := frame.Decode(data)
	if err != nil {
		m.cfg.logger().Debug("dropping malformed frame", "error", err)
		return nil
	}
	payload := data[n:]

	if hdr.EffectiveType() == frame.Response {
		return m.receiveResponse(hdr, payload)
	}
	return m.receiveRequest(hdr, payload, port)
}

func (m *MessageChannel) receiveResponse(hdr frame.Header, payload []byte) error {
	if !hdr.HasReqID {
		m.cfg.logger().Debug("dropping response frame with no request id")
		return nil
	}
	rec, ok := m.outReqs[hdr.RequestID]
	if !ok {
		return nil
	}
	delete(m.outReqs, hdr.RequestID)
	if rec.onResponse != nil {
		rec.onResponse(nil, hdr.Code, payload)
	}
	return nil
}

func (m *MessageChannel) receiveRequest(hdr frame.Header, payload []byte, port uint8) error {
	expectsResponse := hdr.EffectiveType() != frame.RequestNoResponse && hdr.HasReqID
	capturedSession := m.sessionID
	capturedID := hdr.RequestID

	var responded bool
	onResponse := func(resultCode int32, data []byte) error {
		if responded {
			return fmt.Errorf("%w: response already sent for this request", codes.ErrInvalidState)
		}
		responded = true
		if capturedSession != m.sessionID {
			return codes.ErrCancelled
		}
		if !expectsResponse {
			return nil
		}
		respHdr := frame.Header{Code: resultCode}.WithType(frame.Response).WithRequestID(capturedID)
		buf, err := encodeFrame(respHdr, data)
		if err != nil {
			return err
		}
		return m.cfg.OnSend(buf, port, nil)
	}

	if m.cfg.OnRequest == nil {
		m.cfg.logger().Warn("no request handler registered", "opcode", hdr.Code)
		return nil
	}
	m.cfg.OnRequest(hdr.Code, payload, onResponse)
	return nil
}

// Run fires TIMEOUT for every outbound request whose deadline has elapsed,
// in ascending id order. It never blocks.
func (m *MessageChannel) Run() {
	now := m.cfg.Now()
	var expired []uint32
	for id, rec := range m.outReqs {
		if !rec.deadline.After(now) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	for _, id := range expired {
		rec := m.outReqs[id]
		delete(m.outReqs, id)
		if rec.onResponse != nil {
			rec.onResponse(codes.ErrTimeout, 0, nil)
		}
	}
}

// Reset cancels every in-flight outbound request with CANCELLED, in
// ascending id order, and advances the session id so that inbound response
// closures captured before the reset become no-ops.
func (m *MessageChannel) Reset() {
	old := m.outReqs
	m.outReqs = make(map[uint32]*outboundRequest)
	m.sessionID++

	ids := make([]uint32, 0, len(old))
	for id := range old {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		rec := old[id]
		if rec.noResponse {
			continue
		}
		if rec.onResponse != nil {
			rec.onResponse(codes.ErrCancelled, 0, nil)
		}
	}
}

// SessionID returns the current session id, incremented by every Reset.
func (m *MessageChannel) SessionID() uint64 { return m.sessionID }

// PendingCount returns the number of outbound requests awaiting a response.
func (m *MessageChannel) PendingCount() int { return len(m.outReqs) }

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func encodeFrame(hdr frame.Header, payload []byte) ([]byte, error) {
	buf := make([]byte, frame.MaxFrameHeaderSize+len(payload))
	n, err := frame.Encode(buf, hdr)
	if err != nil {
		return nil, err
	}
	copy(buf[n:], payload)
	return buf[:n+len(payload)], nil
}
