package receiver

import (
	"bytes"
	"testing"

	"github.com/xtaci/utcp/segment"
)

// S4 from the spec's seed scenarios.
func TestS4Receiver(t *testing.T) {
	r := New(4000)

	if r.WindowSize() != 4000 {
		t.Fatalf("initial window = %d, want 4000", r.WindowSize())
	}
	if _, ok := r.Ackno(); ok {
		t.Fatal("ackno should be unset before SYN")
	}

	r.SegmentReceived(segment.Segment{SYN: true, Seqno: 0})
	ack, ok := r.Ackno()
	if !ok || ack != 1 {
		t.Fatalf("ackno after SYN = %v, ok=%v, want 1", ack, ok)
	}
	if r.WindowSize() != 4000 {
		t.Fatalf("window after SYN = %d, want 4000", r.WindowSize())
	}

	r.SegmentReceived(segment.Segment{Seqno: 1, Payload: []byte("abcd")})
	ack, _ = r.Ackno()
	if ack != 5 {
		t.Fatalf("ackno after abcd = %v, want 5", ack)
	}
	if got := r.StreamOut().PeekOutput(4); !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("stream = %q, want %q", got, "abcd")
	}

	// out of order: seqno 9 ("ijkl") arrives before seqno 5 ("efgh")
	r.SegmentReceived(segment.Segment{Seqno: 9, Payload: []byte("ijkl")})
	ack, _ = r.Ackno()
	if ack != 5 {
		t.Fatalf("ackno after out-of-order ijkl = %v, want 5", ack)
	}
	if r.WindowSize() != 4000-4 {
		t.Fatalf("window after ijkl = %d, want %d", r.WindowSize(), 4000-4)
	}

	r.SegmentReceived(segment.Segment{Seqno: 5, Payload: []byte("efgh")})
	ack, _ = r.Ackno()
	if ack != 13 {
		t.Fatalf("ackno after efgh fills gap = %v, want 13", ack)
	}
	if r.WindowSize() != 4000-12 {
		t.Fatalf("window after efgh = %d, want %d", r.WindowSize(), 4000-12)
	}
}

func TestSynAndFinTogetherIsImmediateEOF(t *testing.T) {
	r := New(100)
	r.SegmentReceived(segment.Segment{SYN: true, FIN: true, Seqno: 42})
	if !r.StreamOut().EOF() {
		t.Fatal("SYN+FIN with no payload should be immediate EOF")
	}
	ack, ok := r.Ackno()
	if !ok || ack != 44 {
		t.Fatalf("ackno = %v ok=%v, want 44", ack, ok)
	}
}

func TestSegmentBeforeSynDiscarded(t *testing.T) {
	r := New(100)
	r.SegmentReceived(segment.Segment{Seqno: 1, Payload: []byte("early")})
	if _, ok := r.Ackno(); ok {
		t.Fatal("ackno should remain unset: segment arrived before SYN")
	}
	if r.UnassembledBytes() != 0 {
		t.Fatal("pre-SYN segment should not be buffered")
	}
}

func TestPureAckSegmentIsNoop(t *testing.T) {
	r := New(100)
	r.SegmentReceived(segment.Segment{SYN: true, Seqno: 0})
	before, _ := r.Ackno()
	r.SegmentReceived(segment.Segment{ACK: true, Seqno: 1, Ackno: 1})
	after, _ := r.Ackno()
	if before != after {
		t.Fatalf("pure ACK segment changed ackno: before=%v after=%v", before, after)
	}
}
