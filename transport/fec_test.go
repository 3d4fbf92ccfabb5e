package transport

import (
	"bytes"
	"testing"
)

func packets(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = bytes.Repeat([]byte{byte('a' + i)}, 10+i)
	}
	return out
}

func TestFECNoLossFastPath(t *testing.T) {
	enc, err := newFECEncoder(4, 2)
	if err != nil {
		t.Fatalf("newFECEncoder: %v", err)
	}
	dec := newFECDecoder()

	var recovered [][]byte
	for _, pkt := range packets(4) {
		for _, tagged := range enc.Encode(pkt) {
			recovered = append(recovered, dec.Decode(tagged)...)
		}
	}

	want := packets(4)
	if len(recovered) != len(want) {
		t.Fatalf("got %d packets, want %d", len(recovered), len(want))
	}
	for i, w := range want {
		if !bytes.Equal(recovered[i], w) {
			t.Fatalf("packet %d mismatch: got %x want %x", i, recovered[i], w)
		}
	}
}

func TestFECReconstructsFromParityAfterLoss(t *testing.T) {
	enc, err := newFECEncoder(4, 2)
	if err != nil {
		t.Fatalf("newFECEncoder: %v", err)
	}
	dec := newFECDecoder()

	want := packets(4)
	var tagged [][]byte
	for _, pkt := range want {
		tagged = append(tagged, enc.Encode(pkt)...)
	}
	if len(tagged) != 6 {
		t.Fatalf("expected 4 data + 2 parity shards, got %d", len(tagged))
	}

	// drop shard 1 (a data shard); feed the rest, including both parity
	// shards, so reconstruction has exactly dataShards (4) of 6 to work with.
	var recovered [][]byte
	for i, pkt := range tagged {
		if i == 1 {
			continue
		}
		recovered = append(recovered, dec.Decode(pkt)...)
	}

	if len(recovered) != len(want) {
		t.Fatalf("got %d recovered packets, want %d", len(recovered), len(want))
	}
	byContent := make(map[string]bool)
	for _, r := range recovered {
		byContent[string(r)] = true
	}
	for _, w := range want {
		if !byContent[string(w)] {
			t.Fatalf("missing reconstructed packet %x", w)
		}
	}
}

func TestFECGivesUpBelowDataShardThreshold(t *testing.T) {
	enc, err := newFECEncoder(4, 2)
	if err != nil {
		t.Fatalf("newFECEncoder: %v", err)
	}
	dec := newFECDecoder()

	want := packets(4)
	var tagged [][]byte
	for _, pkt := range want {
		tagged = append(tagged, enc.Encode(pkt)...)
	}

	// drop two data shards and one parity shard: only 3 of 6 arrive, one
	// short of reconstructible.
	var recovered [][]byte
	for i, pkt := range tagged {
		if i == 0 || i == 1 || i == 4 {
			continue
		}
		recovered = append(recovered, dec.Decode(pkt)...)
	}
	if len(recovered) != 0 {
		t.Fatalf("expected no recovered packets with insufficient shards, got %d", len(recovered))
	}
}
