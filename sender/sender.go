// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package sender turns a ByteStream into outbound segments, tracks what's
// outstanding, and retransmits on an exponential-back-off timer.
package sender

import (
	"fmt"
	"math/rand"

	"github.com/xtaci/utcp/bytestream"
	"github.com/xtaci/utcp/segment"
	"github.com/xtaci/utcp/seqno"
)

// MaxPayloadSize bounds how many payload bytes a single segment carries.
// It does not bound a segment's length in sequence space (SYN/FIN are
// free of this limit).
const MaxPayloadSize = 1452

// MaxRetxAttempts is the consecutive-retransmission count above which
// external glue should treat the connection as dead.
const MaxRetxAttempts = 8

// StateSummary classifies sender state for tests and debug logging only.
type StateSummary int

const (
	StateClosed StateSummary = iota
	StateSynSent
	StateSynAcked
	StateFinSent
	StateFinAcked
)

func (s StateSummary) String() string {
	switch s {
	case StateClosed:
		return "closed (no SYN sent)"
	case StateSynSent:
		return "SYN sent, not yet acked"
	case StateSynAcked:
		return "established"
	case StateFinSent:
		return "FIN sent, not yet acked"
	case StateFinAcked:
		return "FIN acked, stream fully sent"
	default:
		return fmt.Sprintf("StateSummary(%d)", int(s))
	}
}

type outstandingSegment struct {
	absSeqno uint64
	seg      segment.Segment
}

type timer struct {
	running      bool
	elapsedMs    uint64
	currentRTOMs uint64
}

func (t *timer) start() {
	t.running = true
	t.elapsedMs = 0
}

func (t *timer) stop() {
	t.running = false
}

// Sender produces outbound segments from an input ByteStream and manages
// retransmission of unacknowledged ones.
type Sender struct {
	isn        seqno.Seqno
	initialRTO uint64
	in         *bytestream.ByteStream

	nextAbsoluteSeqno uint64
	windowSize        int
	bytesInFlight     int
	synSent           bool
	finSent           bool
	outstanding       []outstandingSegment

	t               timer
	consecutiveRetx int

	segmentsOut []segment.Segment
}

// New creates a Sender reading from an input stream of the given capacity.
// initialRTOMs is RTO₀. If fixedISN is non-nil, it is used verbatim instead
// of a random ISN (for testability).
func New(capacity int, initialRTOMs uint64, fixedISN *seqno.Seqno) *Sender {
	isn := seqno.Seqno(rand.Uint32())
	if fixedISN != nil {
		isn = *fixedISN
	}
	return &Sender{
		isn:        isn,
		initialRTO: initialRTOMs,
		in:         bytestream.New(capacity),
		windowSize: 1, // peer's window is unknown until the first ACK; 1 lets the SYN out
		t:          timer{currentRTOMs: initialRTOMs},
	}
}

// StreamIn returns the sender's input ByteStream, written to by the
// application and drained here by FillWindow.
func (s *Sender) StreamIn() *bytestream.ByteStream {
	return s.in
}

// NextSeqnoAbsolute returns the absolute sequence number of the next byte
// to be sent.
func (s *Sender) NextSeqnoAbsolute() uint64 {
	return s.nextAbsoluteSeqno
}

// NextSeqno returns the wire-wrapped form of NextSeqnoAbsolute.
func (s *Sender) NextSeqno() seqno.Seqno {
	return seqno.Wrap(s.nextAbsoluteSeqno, s.isn)
}

// BytesInFlight returns the total sequence-space length of all outstanding
// (sent, unacknowledged) segments.
func (s *Sender) BytesInFlight() int {
	return s.bytesInFlight
}

// ConsecutiveRetransmissions returns how many retransmissions have fired
// back to back since the last new data was acknowledged.
func (s *Sender) ConsecutiveRetransmissions() int {
	return s.consecutiveRetx
}

// PopSegments drains and returns all segments queued for the wire since
// the last call.
func (s *Sender) PopSegments() []segment.Segment {
	out := s.segmentsOut
	s.segmentsOut = nil
	return out
}

func (s *Sender) effectiveWindow() int {
	if s.windowSize < 1 {
		return 1
	}
	return s.windowSize
}

// FillWindow produces as many segments as the effective window allows,
// draining the input stream and tracking each as outstanding.
func (s *Sender) FillWindow() {
	for s.bytesInFlight < s.effectiveWindow() {
		var seg segment.Segment
		if !s.synSent {
			seg.SYN = true
		}

		allowed := s.effectiveWindow() - s.bytesInFlight
		if seg.SYN {
			allowed--
		}
		if allowed > MaxPayloadSize {
			allowed = MaxPayloadSize
		}
		if allowed < 0 {
			allowed = 0
		}
		if allowed > 0 {
			seg.Payload = s.in.Read(allowed)
		}

		lengthSoFar := len(seg.Payload)
		if seg.SYN {
			lengthSoFar++
		}
		if !s.finSent && s.in.EOF() && lengthSoFar+s.bytesInFlight < s.effectiveWindow() {
			seg.FIN = true
		}

		length := seg.LengthInSequenceSpace()
		if length == 0 {
			break
		}

		seg.Seqno = seqno.Wrap(s.nextAbsoluteSeqno, s.isn)
		s.segmentsOut = append(s.segmentsOut, seg)
		s.outstanding = append(s.outstanding, outstandingSegment{absSeqno: s.nextAbsoluteSeqno, seg: seg})

		s.nextAbsoluteSeqno += uint64(length)
		s.bytesInFlight += length
		if seg.SYN {
			s.synSent = true
		}
		if seg.FIN {
			s.finSent = true
		}
		if !s.t.running {
			s.t.start()
		}
	}
}

// AckReceived processes a peer ack/window update: drops fully-acknowledged
// outstanding segments, resets the retransmission timer on new progress,
// and lets FillWindow exploit any newly available window.
func (s *Sender) AckReceived(ackno seqno.Seqno, windowSize int) {
	checkpoint := s.nextAbsoluteSeqno
	absAck := seqno.Unwrap(ackno, s.isn, checkpoint)
	if absAck > s.nextAbsoluteSeqno {
		return
	}

	s.windowSize = windowSize

	removedAny := false
	for len(s.outstanding) > 0 {
		o := s.outstanding[0]
		finalAbs := o.absSeqno + uint64(o.seg.LengthInSequenceSpace()) - 1
		if finalAbs >= absAck {
			break
		}
		s.outstanding = s.outstanding[1:]
		s.bytesInFlight -= o.seg.LengthInSequenceSpace()
		removedAny = true
	}

	if removedAny {
		s.t.currentRTOMs = s.initialRTO
		s.consecutiveRetx = 0
		if len(s.outstanding) > 0 {
			s.t.start()
		} else {
			s.t.stop()
		}
	}

	s.FillWindow()
}

// Tick advances the retransmission timer by ms milliseconds, retransmitting
// the oldest outstanding segment and backing off when it fires.
func (s *Sender) Tick(ms uint64) {
	if !s.t.running {
		return
	}
	s.t.elapsedMs += ms
	if s.t.elapsedMs < s.t.currentRTOMs {
		return
	}

	if len(s.outstanding) > 0 {
		s.segmentsOut = append(s.segmentsOut, s.outstanding[0].seg)
	}
	if s.windowSize > 0 {
		s.t.currentRTOMs *= 2
		s.consecutiveRetx++
	}
	s.t.elapsedMs = 0
}

// SendEmptySegment emits a bare ACK: current seqno, no flags, no payload.
// It is not tracked in outstanding and does not touch the timer.
func (s *Sender) SendEmptySegment() {
	s.segmentsOut = append(s.segmentsOut, segment.Segment{
		Seqno: seqno.Wrap(s.nextAbsoluteSeqno, s.isn),
	})
}

// StateSummary classifies the sender's current state, for tests and debug
// logging only.
func (s *Sender) StateSummary() StateSummary {
	if s.nextAbsoluteSeqno == 0 {
		return StateClosed
	}
	if s.nextAbsoluteSeqno == uint64(s.bytesInFlight) {
		return StateSynSent
	}
	if !s.in.EOF() || s.nextAbsoluteSeqno < s.in.BytesWritten()+2 {
		return StateSynAcked
	}
	if s.bytesInFlight > 0 {
		return StateFinSent
	}
	return StateFinAcked
}
