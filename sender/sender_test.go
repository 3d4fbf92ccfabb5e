package sender

import (
	"bytes"
	"testing"

	"github.com/xtaci/utcp/segment"
	"github.com/xtaci/utcp/seqno"
)

func isn(n uint32) *seqno.Seqno {
	s := seqno.Seqno(n)
	return &s
}

// S5 from the spec's seed scenarios.
func TestS5FillWindowRespectsAdvertisedWindow(t *testing.T) {
	const X = 1000
	s := New(16, 1000, isn(X))
	s.StreamIn().Write([]byte("01234567"))

	s.FillWindow()
	segs := s.PopSegments()
	if len(segs) != 1 || !segs[0].SYN || len(segs[0].Payload) != 0 {
		t.Fatalf("first fill = %+v, want lone SYN segment", segs)
	}
	if segs[0].Seqno != seqno.Seqno(X) {
		t.Fatalf("SYN seqno = %v, want %d", segs[0].Seqno, X)
	}

	s.AckReceived(seqno.Wrap(1, seqno.Seqno(X)), 3)
	segs = s.PopSegments()
	if len(segs) != 1 || !bytes.Equal(segs[0].Payload, []byte("012")) {
		t.Fatalf("after first ack = %+v, want payload 012", segs)
	}
	if segs[0].Seqno != seqno.Seqno(X+1) {
		t.Fatalf("seqno = %v, want %d", segs[0].Seqno, X+1)
	}

	s.AckReceived(seqno.Wrap(4, seqno.Seqno(X)), 3)
	segs = s.PopSegments()
	if len(segs) != 1 || !bytes.Equal(segs[0].Payload, []byte("345")) {
		t.Fatalf("after second ack = %+v, want payload 345", segs)
	}

	s.AckReceived(seqno.Wrap(7, seqno.Seqno(X)), 3)
	segs = s.PopSegments()
	if len(segs) != 1 || !bytes.Equal(segs[0].Payload, []byte("67")) {
		t.Fatalf("after third ack = %+v, want payload 67", segs)
	}

	s.AckReceived(seqno.Wrap(9, seqno.Seqno(X)), 3)
	segs = s.PopSegments()
	if len(segs) != 0 {
		t.Fatalf("after fourth ack = %+v, want nothing emitted", segs)
	}
}

// S6 from the spec's seed scenarios.
func TestS6RetransmissionBackoff(t *testing.T) {
	const R = 100
	s := New(16, R, isn(0))

	s.FillWindow()
	s.PopSegments() // drain the initial SYN

	s.Tick(R - 1)
	if got := s.PopSegments(); len(got) != 0 {
		t.Fatalf("tick at R-1 emitted %+v, want nothing", got)
	}
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("counter = %d, want 0", s.ConsecutiveRetransmissions())
	}

	s.Tick(1) // total elapsed R
	got := s.PopSegments()
	if len(got) != 1 || !got[0].SYN {
		t.Fatalf("tick at R emitted %+v, want retransmitted SYN", got)
	}
	if s.ConsecutiveRetransmissions() != 1 {
		t.Fatalf("counter = %d, want 1", s.ConsecutiveRetransmissions())
	}

	s.Tick(2 * R) // total elapsed R + 2R = 3R
	got = s.PopSegments()
	if len(got) != 1 || !got[0].SYN {
		t.Fatalf("tick at 3R emitted %+v, want retransmitted SYN", got)
	}
	if s.ConsecutiveRetransmissions() != 2 {
		t.Fatalf("counter = %d, want 2", s.ConsecutiveRetransmissions())
	}

	s.AckReceived(seqno.Wrap(1, seqno.Seqno(0)), 1)
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("counter after new-data ack = %d, want 0", s.ConsecutiveRetransmissions())
	}
}

func TestZeroWindowSuppressesBackoff(t *testing.T) {
	s := New(16, 100, isn(0))
	s.FillWindow() // lone SYN, outstanding
	s.PopSegments()

	// Ack that acknowledges nothing new but reports a zero window.
	s.AckReceived(seqno.Wrap(0, seqno.Seqno(0)), 0)

	s.Tick(100)
	got := s.PopSegments()
	if len(got) != 1 {
		t.Fatalf("expected the SYN to be retransmitted once, got %+v", got)
	}
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatal("zero window must not increment the retransmission counter")
	}
}

func TestAckAboveNextSeqnoIgnored(t *testing.T) {
	s := New(16, 100, isn(0))
	s.FillWindow()
	s.PopSegments()

	before := s.NextSeqnoAbsolute()
	s.AckReceived(seqno.Wrap(500, seqno.Seqno(0)), 10)
	if s.NextSeqnoAbsolute() != before {
		t.Fatal("ack above next_absolute_seqno should not change sender state")
	}
	if s.BytesInFlight() != 1 {
		t.Fatalf("bytes_in_flight = %d, want 1 (SYN still outstanding)", s.BytesInFlight())
	}
}

func TestSendEmptySegmentNotTracked(t *testing.T) {
	s := New(16, 100, isn(0))
	before := s.BytesInFlight()
	s.SendEmptySegment()
	segs := s.PopSegments()
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].SYN || segs[0].FIN || segs[0].ACK || len(segs[0].Payload) != 0 {
		t.Fatalf("empty segment should carry no flags or payload, got %+v", segs[0])
	}
	if s.BytesInFlight() != before {
		t.Fatal("send_empty_segment must not affect bytes_in_flight")
	}
}

func TestFillWindowStopsOnEmptySegment(t *testing.T) {
	s := New(16, 100, isn(0))
	s.FillWindow()
	if len(s.PopSegments()) != 1 {
		t.Fatal("expected exactly the SYN")
	}
	// nothing written to the input stream and no ack yet: a second
	// FillWindow call must not manufacture an empty segment
	s.FillWindow()
	if got := s.PopSegments(); len(got) != 0 {
		t.Fatalf("got %+v, want no further segments", got)
	}
}

func TestLengthInSequenceSpaceHelper(t *testing.T) {
	seg := segment.Segment{SYN: true, Payload: []byte("ab"), FIN: true}
	if seg.LengthInSequenceSpace() != 4 {
		t.Fatalf("got %d, want 4", seg.LengthInSequenceSpace())
	}
}
