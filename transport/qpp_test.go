package transport

import "testing"

func TestQPPCodecRoundTrip(t *testing.T) {
	a := newQPPCodec("a shared session seed", 61)
	b := newQPPCodec("a shared session seed", 61)

	for _, msg := range []string{"first packet", "second packet", "third packet"} {
		framed := a.encode([]byte(msg))
		out, err := b.decode(framed)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(out) != msg {
			t.Fatalf("round trip mismatch: got %q want %q", out, msg)
		}
	}
}

func TestQPPCodecTolerantOfReordering(t *testing.T) {
	a := newQPPCodec("a shared session seed", 61)
	b := newQPPCodec("a shared session seed", 61)

	framed1 := a.encode([]byte("packet one"))
	framed2 := a.encode([]byte("packet two"))

	// arrives out of order: packet two decodes before packet one
	out2, err := b.decode(framed2)
	if err != nil {
		t.Fatalf("decode framed2: %v", err)
	}
	if string(out2) != "packet two" {
		t.Fatalf("got %q want %q", out2, "packet two")
	}

	out1, err := b.decode(framed1)
	if err != nil {
		t.Fatalf("decode framed1: %v", err)
	}
	if string(out1) != "packet one" {
		t.Fatalf("got %q want %q", out1, "packet one")
	}
}

func TestQPPCodecRejectsShortFrame(t *testing.T) {
	a := newQPPCodec("seed", 61)
	if _, err := a.decode([]byte("short")); err == nil {
		t.Fatalf("expected an error decoding a frame shorter than the counter prefix")
	}
}

func TestValidateQPPParamsRejectsZeroCount(t *testing.T) {
	if _, err := ValidateQPPParams(0, "key"); err == nil {
		t.Fatalf("expected an error for QPPCount <= 0")
	}
}
