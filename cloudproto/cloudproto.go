// Package cloudproto implements the application-visible cloud protocol atop
// the message channel (see SPEC_FULL.md §4.3): connection lifecycle, event
// publish/subscribe with a self-describing value payload, and a
// diagnostics request responder.
package cloudproto

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitlink-io/orbitlink-core/channel"
	"github.com/orbitlink-io/orbitlink-core/codes"
	"github.com/orbitlink-io/orbitlink-core/diag"
	"github.com/orbitlink-io/orbitlink-core/value"
	"github.com/orbitlink-io/orbitlink-core/wire"
)

// Request opcodes dispatched by an inbound REQUEST frame's code field.
const (
	OpHello       int32 = 1
	OpEvent       int32 = 2
	OpDiagnostics int32 = 3
)

// State is the protocol's connection lifecycle phase.
type State uint8

const (
	StateNew State = iota
	StateDisconnected
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// EventHandler receives a published event's code and decoded value.
type EventHandler func(code int32, v value.Value)

// Config configures a CloudProtocol instance.
type Config struct {
	OnSend      channel.SendFunc
	Port        uint8
	Diagnostics diag.Provider

	MaxRequestID uint32
	Now          func() time.Time
	Logger       *slog.Logger
}

// CloudProtocol is the device-side application surface of the cloud
// messaging core.
type CloudProtocol struct {
	cfg   Config
	state State
	ch    *channel.MessageChannel
	subs  map[int32]EventHandler
}

// New returns a CloudProtocol in state NEW. Call Init before use.
func New() *CloudProtocol {
	return &CloudProtocol{
		ch:   channel.New(),
		subs: make(map[int32]EventHandler),
	}
}

// Init validates cfg, wires the underlying channel's inbound dispatch to
// this instance, and transitions NEW to DISCONNECTED. Calling Init again
// is idempotent: it reconfigures the channel but does not change state.
func (p *CloudProtocol) Init(cfg Config) error {
	if cfg.OnSend == nil {
		return fmt.Errorf("%w: OnSend is required", codes.ErrInvalidArgument)
	}
	p.cfg = cfg
	if err := p.ch.Init(channel.Config{
		OnSend:       cfg.OnSend,
		OnRequest:    p.dispatch,
		Port:         cfg.Port,
		MaxRequestID: cfg.MaxRequestID,
		Now:          cfg.Now,
		Logger:       cfg.Logger,
	}); err != nil {
		return err
	}
	if p.state == StateNew {
		p.state = StateDisconnected
	}
	return nil
}

// Connect transitions DISCONNECTED to CONNECTED. It is idempotent when
// already CONNECTED and fails with codes.ErrInvalidState from NEW.
func (p *CloudProtocol) Connect() error {
	if p.state == StateNew {
		return fmt.Errorf("%w: Connect called before Init", codes.ErrInvalidState)
	}
	p.state = StateConnected
	return nil
}

// Disconnect resets the channel, cancelling any in-flight requests, and
// returns to DISCONNECTED. Subscriptions are not cleared.
func (p *CloudProtocol) Disconnect() error {
	if p.state == StateNew {
		return fmt.Errorf("%w: Disconnect called before Init", codes.ErrInvalidState)
	}
	p.ch.Reset()
	p.state = StateDisconnected
	return nil
}

// State returns the current lifecycle phase.
func (p *CloudProtocol) State() State { return p.state }

// Receive forwards an inbound datagram to the underlying channel.
func (p *CloudProtocol) Receive(data []byte, port uint8) error {
	return p.ch.Receive(data, port)
}

// Run forwards to the underlying channel's timer processing.
func (p *CloudProtocol) Run() {
	p.ch.Run()
}

// Publish sends an EVENT request carrying code with no value payload.
func (p *CloudProtocol) Publish(code int32) error {
	return p.publish(code, nil)
}

// PublishValue sends an EVENT request carrying code and v, encoded with the
// self-describing value codec.
func (p *CloudProtocol) PublishValue(code int32, v value.Value) error {
	data, err := value.Encode(v)
	if err != nil {
		return err
	}
	return p.publish(code, data)
}

func (p *CloudProtocol) publish(code int32, data []byte) error {
	if p.state != StateConnected {
		return fmt.Errorf("%w: publish requires CONNECTED", codes.ErrInvalidState)
	}
	payload := wire.EventRequest{Code: code, Data: data}.Encode()
	_, err := p.ch.SendRequest(OpEvent, payload, func(err error, resultCode int32, _ []byte) {
		switch {
		case err != nil:
			p.logger().Warn("publish failed", "code", code, "error", err)
		case resultCode != 0:
			p.logger().Warn("publish rejected", "code", code, "result_code", resultCode)
		default:
			p.logger().Debug("publish acked", "code", code)
		}
	}, nil)
	return err
}

// RequestDiagnostics sends a DIAGNOSTICS request for ids to the peer and
// decodes the reply before invoking onComplete. onComplete receives a
// non-nil err if the request timed out, was cancelled by a Disconnect, or
// the reply could not be decoded. resp is nil in those cases and when the
// peer answers with a nonzero resultCode; otherwise resp holds whatever
// sources the peer could answer (ids it has no source for are simply
// absent, not an error).
func (p *CloudProtocol) RequestDiagnostics(ids []uint32, onComplete func(err error, resultCode int32, resp *wire.DiagnosticsResponse)) error {
	if p.state != StateConnected {
		return fmt.Errorf("%w: RequestDiagnostics requires CONNECTED", codes.ErrInvalidState)
	}
	payload := wire.DiagnosticsRequest{IDs: ids}.Encode()
	_, err := p.ch.SendRequest(OpDiagnostics, payload, func(err error, resultCode int32, data []byte) {
		if err != nil || resultCode != 0 {
			onComplete(err, resultCode, nil)
			return
		}
		resp, decErr := wire.DecodeDiagnosticsResponse(data)
		if decErr != nil {
			onComplete(decErr, resultCode, nil)
			return
		}
		onComplete(nil, resultCode, &resp)
	}, nil)
	return err
}

// Subscribe registers handler for code, replacing any existing registration.
// The handler persists across Disconnect/Connect and later Init calls; only
// another Subscribe for the same code replaces it.
func (p *CloudProtocol) Subscribe(code int32, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler is required", codes.ErrInvalidArgument)
	}
	p.subs[code] = handler
	return nil
}

func (p *CloudProtocol) dispatch(reqType int32, data []byte, onResponse channel.OnResponseFunc) {
	switch reqType {
	case OpHello:
		// Reserved; accepted and answered with success if a response was
		// expected (channel.OnResponseFunc no-ops otherwise).
		onResponse(0, nil)

	case OpEvent:
		p.dispatchEvent(data, onResponse)

	case OpDiagnostics:
		p.dispatchDiagnostics(data, onResponse)

	default:
		p.logger().Debug("unhandled opcode, no response sent", "opcode", reqType)
	}
}

func (p *CloudProtocol) dispatchEvent(data []byte, onResponse channel.OnResponseFunc) {
	req, err := wire.DecodeEventRequest(data)
	if err != nil {
		p.logger().Warn("dropping malformed event request", "error", err)
		return
	}

	// The response is sent before the subscription handler runs so handler
	// latency never influences the protocol round-trip time.
	if err := onResponse(0, nil); err != nil {
		p.logger().Debug("event response suppressed", "code", req.Code, "error", err)
	}

	handler, ok := p.subs[req.Code]
	if !ok {
		p.logger().Warn("no subscriber for event code", "code", req.Code)
		return
	}

	v := value.Null()
	if len(req.Data) > 0 {
		decoded, _, err := value.Decode(req.Data)
		if err != nil {
			p.logger().Warn("dropping malformed event value", "code", req.Code, "error", err)
			return
		}
		v = decoded
	}
	handler(req.Code, v)
}

func (p *CloudProtocol) dispatchDiagnostics(data []byte, onResponse channel.OnResponseFunc) {
	req, err := wire.DecodeDiagnosticsRequest(data)
	if err != nil {
		p.logger().Warn("dropping malformed diagnostics request", "error", err)
		return
	}

	var sources []wire.DiagnosticsSource
	for _, id := range req.IDs {
		if p.cfg.Diagnostics == nil {
			continue
		}
		src, ok := p.cfg.Diagnostics.Source(id)
		if !ok {
			continue
		}
		encoded, ok := src.EncodeValue()
		if !ok {
			continue
		}
		sources = append(sources, wire.DiagnosticsSource{ID: id, Data: encoded})
	}

	resp := wire.DiagnosticsResponse{Sources: sources}
	if err := onResponse(0, resp.Encode()); err != nil {
		p.logger().Debug("diagnostics response suppressed", "error", err)
	}
}

func (p *CloudProtocol) logger() *slog.Logger {
	if p.cfg.Logger == nil {
		return slog.Default()
	}
	return p.cfg.Logger
}
