package transport

import (
	"net"
	"testing"
	"time"

	"github.com/xtaci/utcp/segment"
	"github.com/xtaci/utcp/seqno"
)

func udpPair(t *testing.T) (a, b *net.UDPConn) {
	t.Helper()
	laddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	a, err := net.ListenUDP("udp", laddr)
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	b, err = net.ListenUDP("udp", laddr)
	if err != nil {
		a.Close()
		t.Fatalf("listen b: %v", err)
	}
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestSocketRoundTripPlain(t *testing.T) {
	a, b := udpPair(t)

	sockA, err := NewSocket(a, Options{})
	if err != nil {
		t.Fatalf("NewSocket a: %v", err)
	}
	sockB, err := NewSocket(b, Options{})
	if err != nil {
		t.Fatalf("NewSocket b: %v", err)
	}

	seg := segment.Segment{SYN: true, Seqno: 100, Payload: []byte("hello over udp")}
	if err := sockA.Send(seg, b.LocalAddr()); err != nil {
		t.Fatalf("send: %v", err)
	}

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, _, err := sockB.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got.Payload) != "hello over udp" || !got.SYN || got.Seqno != 100 {
		t.Fatalf("unexpected segment: %+v", got)
	}
}

func TestSocketRoundTripWithAllLayers(t *testing.T) {
	a, b := udpPair(t)

	opt := Options{
		Compress:     true,
		QPPKey:       "shared session seed",
		QPPCount:     61,
		CryptName:    "aes-128",
		CryptKey:     DeriveKey("shared passphrase"),
		DataShards:   2,
		ParityShards: 1,
	}

	sockA, err := NewSocket(a, opt)
	if err != nil {
		t.Fatalf("NewSocket a: %v", err)
	}
	sockB, err := NewSocket(b, opt)
	if err != nil {
		t.Fatalf("NewSocket b: %v", err)
	}

	payloads := []string{"first segment over the wire", "second segment, completes the FEC group"}
	for i, p := range payloads {
		seg := segment.Segment{Seqno: seqno.Seqno(i), ACK: true, Payload: []byte(p)}
		if err := sockA.Send(seg, b.LocalAddr()); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []string
	for len(got) < len(payloads) {
		seg, _, err := sockB.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		got = append(got, string(seg.Payload))
	}

	for i, p := range payloads {
		if got[i] != p {
			t.Fatalf("segment %d: got %q want %q", i, got[i], p)
		}
	}
}
