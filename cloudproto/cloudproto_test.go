package cloudproto

import (
	"errors"
	"testing"

	"github.com/orbitlink-io/orbitlink-core/codes"
	"github.com/orbitlink-io/orbitlink-core/diag"
	"github.com/orbitlink-io/orbitlink-core/frame"
	"github.com/orbitlink-io/orbitlink-core/value"
	"github.com/orbitlink-io/orbitlink-core/wire"
)

func noopSend([]byte, uint8, func(error)) error { return nil }

func TestLifecycleMonotonicity(t *testing.T) {
	p := New()
	if err := p.Connect(); !errors.Is(err, codes.ErrInvalidState) {
		t.Fatalf("Connect from NEW: got %v, want ErrInvalidState", err)
	}
	if err := p.Disconnect(); !errors.Is(err, codes.ErrInvalidState) {
		t.Fatalf("Disconnect from NEW: got %v, want ErrInvalidState", err)
	}
	if err := p.Publish(1); !errors.Is(err, codes.ErrInvalidState) {
		t.Fatalf("Publish from NEW: got %v, want ErrInvalidState", err)
	}

	if err := p.Init(Config{OnSend: noopSend}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.State() != StateDisconnected {
		t.Fatalf("state after init: got %v, want DISCONNECTED", p.State())
	}
	if err := p.Publish(1); !errors.Is(err, codes.ErrInvalidState) {
		t.Fatalf("Publish from DISCONNECTED: got %v, want ErrInvalidState", err)
	}

	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if p.State() != StateConnected {
		t.Fatalf("state after connect: got %v, want CONNECTED", p.State())
	}
	// Idempotent.
	if err := p.Connect(); err != nil {
		t.Fatalf("second connect: %v", err)
	}
}

func TestInitRejectsMissingOnSend(t *testing.T) {
	p := New()
	if err := p.Init(Config{}); !errors.Is(err, codes.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestDisconnectResetsChannelButKeepsSubscriptions(t *testing.T) {
	p := New()
	if err := p.Init(Config{OnSend: noopSend}); err != nil {
		t.Fatalf("init: %v", err)
	}
	called := false
	if err := p.Subscribe(42, func(code int32, v value.Value) { called = true }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := p.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if p.State() != StateDisconnected {
		t.Fatalf("state: got %v, want DISCONNECTED", p.State())
	}
	// Re-dispatch an event for the same code: the subscription must survive.
	p.dispatch(OpEvent, wire.EventRequest{Code: 42}.Encode(), func(int32, []byte) error { return nil })
	if !called {
		t.Error("expected subscription for code 42 to survive Disconnect")
	}
}

func TestHelloDispatchAnswersSuccessWhenExpected(t *testing.T) {
	var sentHeader []byte
	onSend := func(buf []byte, port uint8, onAck func(error)) error {
		sentHeader = append([]byte{}, buf...)
		return nil
	}
	p := New()
	if err := p.Init(Config{OnSend: onSend}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var responded bool
	p.dispatch(OpHello, nil, func(resultCode int32, data []byte) error {
		responded = true
		if resultCode != 0 {
			t.Errorf("result code: got %d, want 0", resultCode)
		}
		return nil
	})
	if !responded {
		t.Error("expected HELLO to invoke onResponse")
	}
	_ = sentHeader
}

func TestHelloAsNoResponseIsNoOp(t *testing.T) {
	sendCount := 0
	onSend := func([]byte, uint8, func(error)) error {
		sendCount++
		return nil
	}
	p := New()
	if err := p.Init(Config{OnSend: onSend}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	hdr := frame.Header{Code: OpHello}.WithType(frame.RequestNoResponse)
	buf := make([]byte, frame.MaxFrameHeaderSize)
	n, err := frame.Encode(buf, hdr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := p.Receive(buf[:n], 0); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if sendCount != 0 {
		t.Errorf("HELLO as REQUEST_NO_RESPONSE should send nothing, got %d sends", sendCount)
	}
}

func TestDiagnosticsDispatchBuildsResponseInOrder(t *testing.T) {
	reg := diag.NewRegistry()
	reg.Register(0x10, diag.NewUint32Source(func() (uint32, bool) { return 1, true }))
	reg.Register(0x20, diag.NewInt32Source(func() (int32, bool) { return -2, true }))

	p := New()
	if err := p.Init(Config{OnSend: noopSend, Diagnostics: reg}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	req := wire.DiagnosticsRequest{IDs: []uint32{0x10, 0x20, 0x30}}.Encode()

	var gotData []byte
	p.dispatch(OpDiagnostics, req, func(resultCode int32, data []byte) error {
		gotData = data
		return nil
	})
	if gotData == nil {
		t.Fatal("expected a response payload")
	}

	resp, err := wire.DecodeDiagnosticsResponse(gotData)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2 (0x30 should be absent)", len(resp.Sources))
	}
	if resp.Sources[0].ID != 0x10 || string(resp.Sources[0].Data) != string([]byte{0, 0, 0, 1}) {
		t.Errorf("source 0: %+v", resp.Sources[0])
	}
	if resp.Sources[1].ID != 0x20 || string(resp.Sources[1].Data) != string([]byte{0xFF, 0xFF, 0xFF, 0xFE}) {
		t.Errorf("source 1: %+v", resp.Sources[1])
	}
}
