package cloudproto

import (
	"testing"

	"github.com/orbitlink-io/orbitlink-core/diag"
	"github.com/orbitlink-io/orbitlink-core/transport"
	"github.com/orbitlink-io/orbitlink-core/value"
	"github.com/orbitlink-io/orbitlink-core/wire"
)

// wirePair connects two CloudProtocol instances over a Loopback and drives
// delivery manually (no goroutines) so tests stay deterministic.
type wirePair struct {
	lb   *transport.Loopback
	a, b *transport.Endpoint
}

func newWirePair(t *testing.T, cfgA, cfgB Config) (*CloudProtocol, *CloudProtocol, *wirePair) {
	t.Helper()
	lb := transport.NewLoopback(16)
	sideA := lb.SideA()
	sideB := lb.SideB()

	a, b := New(), New()
	cfgA.OnSend = sideA.OnSend
	cfgB.OnSend = sideB.OnSend

	if err := a.Init(cfgA); err != nil {
		t.Fatalf("init A: %v", err)
	}
	if err := b.Init(cfgB); err != nil {
		t.Fatalf("init B: %v", err)
	}
	if err := a.Connect(); err != nil {
		t.Fatalf("connect A: %v", err)
	}
	if err := b.Connect(); err != nil {
		t.Fatalf("connect B: %v", err)
	}

	return a, b, &wirePair{lb: lb, a: sideA, b: sideB}
}

// drain pumps everything A has sent into B's Receive, and vice versa,
// until both queues are empty. Each CloudProtocol.Receive call can itself
// produce a reply that must then be pumped back, so this alternates until
// a full round produces no deliveries.
func (p *wirePair) drain(t *testing.T, a, b *CloudProtocol) {
	t.Helper()
	for i := 0; i < 10; i++ {
		nAB, err := p.b.Pump(func(data []byte, port uint8) error { return b.Receive(data, port) })
		if err != nil {
			t.Fatalf("deliver A->B: %v", err)
		}
		nBA, err := p.a.Pump(func(data []byte, port uint8) error { return a.Receive(data, port) })
		if err != nil {
			t.Fatalf("deliver B->A: %v", err)
		}
		if nAB == 0 && nBA == 0 {
			return
		}
	}
	t.Fatal("drain did not converge")
}

func TestEventPublishRoundTrip(t *testing.T) {
	a, b, pair := newWirePair(t, Config{}, Config{})

	var gotCode int32
	var gotValue value.Value
	handlerFired := false
	if err := b.Subscribe(42, func(code int32, v value.Value) {
		handlerFired = true
		gotCode = code
		gotValue = v
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m := value.NewMap()
	m.Set("count", value.Int(7))
	m.Set("lat", value.Float(37.5))

	if err := a.PublishValue(42, value.FromMap(m)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	pair.drain(t, a, b)

	if !handlerFired {
		t.Fatal("expected B's subscription handler to fire")
	}
	if gotCode != 42 {
		t.Errorf("code: got %d, want 42", gotCode)
	}
	decMap, ok := gotValue.Map()
	if !ok {
		t.Fatalf("expected a map value, got kind %v", gotValue.Kind())
	}
	count, ok := decMap.Get("count")
	if !ok {
		t.Fatal("missing count key")
	}
	if iv, _ := count.Int(); iv != 7 {
		t.Errorf("count: got %v, want 7", iv)
	}
}

func TestDiagnosticsRequestTwoIDs(t *testing.T) {
	reg := diag.NewRegistry()
	reg.Register(0x10, diag.NewUint32Source(func() (uint32, bool) { return 1, true }))
	reg.Register(0x20, diag.NewInt32Source(func() (int32, bool) { return -2, true }))

	a, b, pair := newWirePair(t, Config{}, Config{Diagnostics: reg})

	var gotErr error
	var gotResultCode int32
	var gotData []byte
	_, err := a.ch.SendRequest(OpDiagnostics, diagRequestPayload(t, 0x10, 0x20, 0x30), func(err error, resultCode int32, data []byte) {
		gotErr, gotResultCode, gotData = err, resultCode, data
	}, nil)
	if err != nil {
		t.Fatalf("send diagnostics request: %v", err)
	}
	pair.drain(t, a, b)

	if gotErr != nil {
		t.Fatalf("completion error: %v", gotErr)
	}
	if gotResultCode != 0 {
		t.Fatalf("result code: got %d, want 0", gotResultCode)
	}
	if gotData == nil {
		t.Fatal("expected a response payload")
	}
}

func TestMinimalHeaderCompatibilityOverLoopback(t *testing.T) {
	var handlerInvoked bool
	a, b, pair := newWirePair(t, Config{}, Config{})
	if err := b.Subscribe(2, func(code int32, v value.Value) { handlerInvoked = true }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// A minimal flags-only header: no frame_type, no request_id, opcode=EVENT.
	minimal := []byte{0x00, byte(2 << 1)} // zigzag(2) == 4
	if err := pair.a.OnSend(minimal, 223, nil); err != nil {
		t.Fatalf("send minimal frame: %v", err)
	}
	pair.drain(t, a, b)

	if handlerInvoked {
		t.Fatal("expected no subscriber dispatch: the minimal frame has no valid EventRequest body")
	}
}

func diagRequestPayload(t *testing.T, ids ...uint32) []byte {
	t.Helper()
	return wire.DiagnosticsRequest{IDs: ids}.Encode()
}
