// Package transport provides a non-production datagram transport used by
// cross-package tests and the demo binaries to drive two protocol engines
// against each other without a real radio. It is explicitly outside the
// core's single-threaded concurrency domain; Loopback may use goroutines
// and buffered channels internally the same way the teacher SDK's
// readLoop/writeLoop goroutines sit outside its frame codec.
package transport

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by Endpoint.OnSend when the receiving side's
// queue has not been drained.
var ErrQueueFull = errors.New("transport: loopback queue full")

type datagram struct {
	buf  []byte
	port uint8
}

// Loopback is an in-process, bidirectional byte-pipe connecting two
// endpoints, A and B. Datagrams sent on one side queue up for delivery on
// the other.
type Loopback struct {
	aToB chan datagram
	bToA chan datagram
}

// NewLoopback returns a Loopback whose per-direction queue holds up to
// queueSize datagrams before OnSend reports ErrQueueFull.
func NewLoopback(queueSize int) *Loopback {
	return &Loopback{
		aToB: make(chan datagram, queueSize),
		bToA: make(chan datagram, queueSize),
	}
}

// Endpoint is one side of a Loopback, usable as a channel.SendFunc via
// OnSend and drained into a core's Receive via Pump or RunUntil.
type Endpoint struct {
	send chan datagram
	recv chan datagram
}

// SideA returns the A-side endpoint: sends enqueue for SideB to receive.
func (l *Loopback) SideA() *Endpoint { return &Endpoint{send: l.aToB, recv: l.bToA} }

// SideB returns the B-side endpoint: sends enqueue for SideA to receive.
func (l *Loopback) SideB() *Endpoint { return &Endpoint{send: l.bToA, recv: l.aToB} }

// OnSend implements channel.SendFunc / cloudproto.Config.OnSend. It copies
// buf (the caller retains ownership of the slice it passed in) and enqueues
// it for delivery to the other side. onAck, if non-nil, fires synchronously
// with a nil error once the datagram is queued.
func (e *Endpoint) OnSend(buf []byte, port uint8, onAck func(error)) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case e.send <- datagram{buf: cp, port: port}:
		if onAck != nil {
			onAck(nil)
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Receiver matches the signature of channel.MessageChannel.Receive and
// cloudproto.CloudProtocol.Receive.
type Receiver func(data []byte, port uint8) error

// Pump synchronously delivers every currently queued datagram to receiver,
// one at a time, and reports how many were delivered. It returns as soon as
// the queue is empty or receiver returns an error.
func (e *Endpoint) Pump(receiver Receiver) (int, error) {
	n := 0
	for {
		select {
		case d := <-e.recv:
			if err := receiver(d.buf, d.port); err != nil {
				return n, err
			}
			n++
		default:
			return n, nil
		}
	}
}

// RunUntil pumps datagrams to receiver as they arrive until ctx is
// cancelled. Each datagram is delivered synchronously and in arrival order;
// this preserves the core's serialized-Receive guarantee even though
// RunUntil itself typically runs on its own goroutine.
func RunUntil(ctx context.Context, e *Endpoint, receiver Receiver) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-e.recv:
			if err := receiver(d.buf, d.port); err != nil {
				return err
			}
		}
	}
}
