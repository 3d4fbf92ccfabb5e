package transport

import (
	"bytes"
	"testing"
)

func TestSelectBlockCryptAESRoundTrip(t *testing.T) {
	block, name := SelectBlockCrypt("aes-128", DeriveKey("a shared passphrase"))
	if name != "aes-128" {
		t.Fatalf("expected effective name aes-128, got %q", name)
	}
	codec := newCryptCodec(block, name)

	payload := []byte("sixteen byte msg")
	enc := codec.encrypt(payload)
	if bytes.Equal(enc, payload) {
		t.Fatalf("ciphertext identical to plaintext")
	}

	dec, err := codec.decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(dec, payload) {
		t.Fatalf("round trip mismatch: got %x want %x", dec, payload)
	}
}

func TestSelectBlockCryptNullPassesThrough(t *testing.T) {
	block, name := SelectBlockCrypt("null", []byte("key"))
	if name != "null" {
		t.Fatalf("expected effective name null, got %q", name)
	}
	codec := newCryptCodec(block, name)

	payload := []byte("unchanged")
	enc := codec.encrypt(payload)
	if !bytes.Equal(enc, payload) {
		t.Fatalf("null cipher must not transform the payload")
	}
}

func TestSelectBlockCryptUnknownFallsBackToAES(t *testing.T) {
	_, name := SelectBlockCrypt("made-up-cipher", DeriveKey("pass"))
	if name != "aes-128" {
		t.Fatalf("expected fallback to aes-128, got %q", name)
	}
}
