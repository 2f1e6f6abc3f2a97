// Package codes defines the closed error taxonomy shared by every layer of
// the cloud messaging core (frame codec, message channel, cloud protocol).
// Every sentinel here corresponds to a row in the core's error table; they
// are meant to be compared with errors.Is, not switched on by value.
package codes

import "errors"

var (
	// ErrInvalidState means the caller invoked an operation from the wrong
	// lifecycle phase (e.g. sending before Init, or Connect from NEW).
	ErrInvalidState = errors.New("orbitlink: invalid state")

	// ErrInvalidArgument means a config value or argument was malformed,
	// e.g. a missing OnSend callback or an out-of-range port.
	ErrInvalidArgument = errors.New("orbitlink: invalid argument")

	// ErrNoMemory means an allocation failed. The core surfaces this rather
	// than panicking so embedders on constrained devices can recover.
	ErrNoMemory = errors.New("orbitlink: no memory")

	// ErrNotEnoughData means the input buffer was shorter than the header
	// or message it claimed to encode. Frames are dropped silently.
	ErrNotEnoughData = errors.New("orbitlink: not enough data")

	// ErrBadData means the input violated the wire format's syntax.
	ErrBadData = errors.New("orbitlink: bad data")

	// ErrEncodingFailed means an outbound value could not be serialized.
	ErrEncodingFailed = errors.New("orbitlink: encoding failed")

	// ErrTimeout is delivered to an outbound request's completion callback
	// when its deadline elapses before a response arrives.
	ErrTimeout = errors.New("orbitlink: request timed out")

	// ErrCancelled is delivered to completion callbacks cancelled by a
	// channel reset, and returned by inbound response closures captured
	// before a reset that fire afterward.
	ErrCancelled = errors.New("orbitlink: cancelled")

	// ErrNotSupported marks a reserved but unimplemented operation.
	ErrNotSupported = errors.New("orbitlink: not supported")

	// ErrBufferTooSmall means the destination buffer passed to Encode
	// cannot hold the encoded header.
	ErrBufferTooSmall = errors.New("orbitlink: buffer too small")
)
