package segment

import (
	"bytes"
	"net"
	"testing"

	"github.com/xtaci/utcp/seqno"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")

	s := Segment{
		SrcPort: 1234,
		DstPort: 80,
		Seqno:   seqno.Seqno(1000),
		Ackno:   seqno.Seqno(2000),
		ACK:     true,
		PSH:     true,
		Window:  65535,
		Payload: []byte("hello, world"),
	}

	tcpLen := HeaderLength + len(s.Payload)
	pseudo, err := PseudoHeaderSum(src, dst, tcpLen)
	if err != nil {
		t.Fatalf("PseudoHeaderSum: %v", err)
	}

	raw := s.Serialize(pseudo)
	got, err := Parse(raw, pseudo)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.SrcPort != s.SrcPort || got.DstPort != s.DstPort {
		t.Fatalf("ports mismatch: got %+v", got)
	}
	if got.Seqno != s.Seqno || got.Ackno != s.Ackno {
		t.Fatalf("seq/ack mismatch: got %+v", got)
	}
	if !got.ACK || !got.PSH || got.SYN || got.FIN || got.RST {
		t.Fatalf("flags mismatch: got %+v", got)
	}
	if got.Window != s.Window {
		t.Fatalf("window mismatch: got %d want %d", got.Window, s.Window)
	}
	if !bytes.Equal(got.Payload, s.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload, s.Payload)
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	src := net.ParseIP("127.0.0.1")
	dst := net.ParseIP("127.0.0.1")
	s := Segment{SYN: true, Seqno: seqno.Seqno(5)}
	pseudo, _ := PseudoHeaderSum(src, dst, HeaderLength)

	raw := s.Serialize(pseudo)
	raw[16] ^= 0xff // corrupt checksum byte

	if _, err := Parse(raw, pseudo); err != ErrBadChecksum {
		t.Fatalf("err = %v, want ErrBadChecksum", err)
	}
}

func TestParseRejectsShortPacket(t *testing.T) {
	if _, err := Parse(make([]byte, 10), 0); err != ErrPacketTooShort {
		t.Fatalf("err = %v, want ErrPacketTooShort", err)
	}
}

func TestParseRejectsShortDataOffset(t *testing.T) {
	raw := make([]byte, HeaderLength)
	raw[12] = 4 << 4 // doff=4, claims less than the fixed 20-byte header
	if _, err := Parse(raw, 0); err != ErrHeaderTooShort {
		t.Fatalf("err = %v, want ErrHeaderTooShort", err)
	}
}

func TestPseudoHeaderSumRejectsIPv6(t *testing.T) {
	src := net.ParseIP("::1")
	dst := net.ParseIP("::1")
	if _, err := PseudoHeaderSum(src, dst, HeaderLength); err != ErrWrongIPVersion {
		t.Fatalf("err = %v, want ErrWrongIPVersion", err)
	}
}

func TestLengthInSequenceSpace(t *testing.T) {
	cases := []struct {
		s    Segment
		want int
	}{
		{Segment{}, 0},
		{Segment{SYN: true}, 1},
		{Segment{FIN: true}, 1},
		{Segment{SYN: true, FIN: true}, 2},
		{Segment{Payload: []byte("abcd")}, 4},
		{Segment{SYN: true, Payload: []byte("abcd"), FIN: true}, 6},
	}
	for _, c := range cases {
		if got := c.s.LengthInSequenceSpace(); got != c.want {
			t.Fatalf("LengthInSequenceSpace(%+v) = %d, want %d", c.s, got, c.want)
		}
	}
}
