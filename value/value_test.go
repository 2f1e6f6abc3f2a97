package value

import "testing"

func TestRoundTripScalars(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(-42),
		Int(0),
		Uint(1<<63 + 7),
		Float(37.5),
		Float(-0.001),
		String("hello"),
		String(""),
		Bytes([]byte{0x01, 0x02, 0xff}),
		Bytes(nil),
	}
	for i, v := range cases {
		enc, err := Encode(v)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		dec, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if n != len(enc) {
			t.Errorf("case %d: consumed %d, want %d", i, n, len(enc))
		}
		if !v.Equal(dec) {
			t.Errorf("case %d: round trip mismatch: got %+v, want %+v", i, dec, v)
		}
	}
}

func TestRoundTripArray(t *testing.T) {
	v := Array(Int(1), String("two"), Bool(true), Null())
	enc, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, _, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Equal(dec) {
		t.Errorf("round trip mismatch: got %+v, want %+v", dec, v)
	}
}

func TestRoundTripMapPreservesOrder(t *testing.T) {
	m := NewMap()
	m.Set("count", Int(7))
	m.Set("lat", Float(37.5))
	v := FromMap(m)

	enc, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, _, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Equal(dec) {
		t.Errorf("round trip mismatch: got %+v, want %+v", dec, v)
	}
	decMap, ok := dec.Map()
	if !ok {
		t.Fatalf("decoded value is not a map")
	}
	keys := decMap.Keys()
	if len(keys) != 2 || keys[0] != "count" || keys[1] != "lat" {
		t.Errorf("key order not preserved: got %v", keys)
	}
}

func TestRoundTripNestedStructure(t *testing.T) {
	inner := NewMap()
	inner.Set("a", Bool(true))
	v := Array(FromMap(inner), Array(Int(1), Int(2)), String("x"))

	enc, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, _, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Equal(dec) {
		t.Errorf("round trip mismatch: got %+v, want %+v", dec, v)
	}
}

func TestDecodeTruncatedInput(t *testing.T) {
	// A string tag claiming length 10 with no following bytes.
	enc, err := Encode(String("0123456789"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, err = Decode(enc[:len(enc)-3])
	if err == nil {
		t.Fatal("expected error decoding truncated input")
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, _, err := Decode([]byte{0xff})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
}
