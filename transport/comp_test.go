package transport

import (
	"bytes"
	"testing"
)

func TestCompressPacketRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("compressed payload"), 64)

	compressed := compressPacket(payload)
	if bytes.Equal(compressed, payload) {
		t.Fatalf("compressed output identical to input, compression did not run")
	}

	out, err := decompressPacket(compressed)
	if err != nil {
		t.Fatalf("decompressPacket: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", out, payload)
	}
}

func TestDecompressPacketRejectsGarbage(t *testing.T) {
	if _, err := decompressPacket([]byte("not a snappy frame")); err == nil {
		t.Fatalf("expected an error decompressing garbage")
	}
}
