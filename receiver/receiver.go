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

// Package receiver translates inbound TCP segments into pushes against a
// reassembler, and derives the ackno/window to report back to the peer.
package receiver

import (
	"fmt"

	"github.com/xtaci/utcp/bytestream"
	"github.com/xtaci/utcp/reassembler"
	"github.com/xtaci/utcp/segment"
	"github.com/xtaci/utcp/seqno"
)

// StateSummary is a human-readable classification of receiver state,
// used only for tests and debug logging.
type StateSummary int

const (
	// StateListen: no SYN observed yet, ackno is empty.
	StateListen StateSummary = iota
	// StateSynReceived: ackno exists and input hasn't ended.
	StateSynReceived
	// StateFinReceived: input to the stream has ended.
	StateFinReceived
	// StateError: the output stream suffered an error.
	StateError
)

func (s StateSummary) String() string {
	switch s {
	case StateError:
		return "error (connection was reset)"
	case StateListen:
		return "waiting for SYN: ackno is empty"
	case StateSynReceived:
		return "SYN received (ackno exists), and input to stream hasn't ended"
	case StateFinReceived:
		return "input to stream has ended"
	default:
		return fmt.Sprintf("StateSummary(%d)", int(s))
	}
}

// Receiver maps inbound segments onto a Reassembler and computes the
// ackno/window to advertise back to the sender.
type Receiver struct {
	capacity    int
	reassembler *reassembler.Reassembler

	synReceived bool
	isn         seqno.Seqno
}

// New creates a Receiver whose reassembly window holds up to capacity
// bytes.
func New(capacity int) *Receiver {
	return &Receiver{
		capacity:    capacity,
		reassembler: reassembler.New(capacity),
	}
}

// StreamOut returns the receiver's assembled output stream.
func (r *Receiver) StreamOut() *bytestream.ByteStream {
	return r.reassembler.StreamOut()
}

// UnassembledBytes returns the number of bytes currently pending in the
// reassembler.
func (r *Receiver) UnassembledBytes() int {
	return r.reassembler.UnassembledBytes()
}

// SegmentReceived adopts seg's seqno as the ISN on the first SYN seen,
// discards any segment before SYN is observed, and otherwise translates
// the segment's wire seqno into a stream index and pushes its payload
// (and FIN flag) into the reassembler.
func (r *Receiver) SegmentReceived(seg segment.Segment) {
	if !r.synReceived {
		if !seg.SYN {
			return
		}
		r.isn = seg.Seqno
		r.synReceived = true
	}

	checkpoint := r.StreamOut().BytesWritten() + 1
	abs := seqno.Unwrap(seg.Seqno, r.isn, checkpoint)

	streamIndex := abs - 1
	if seg.SYN {
		streamIndex++
	}

	r.reassembler.PushSubstring(seg.Payload, streamIndex, seg.FIN)
}

// Ackno returns the next sequence number the receiver expects, or false
// if no SYN has been observed yet.
func (r *Receiver) Ackno() (seqno.Seqno, bool) {
	if !r.synReceived {
		return 0, false
	}
	abs := r.StreamOut().BytesWritten() + 1
	if r.StreamOut().InputEnded() {
		abs++
	}
	return seqno.Wrap(abs, r.isn), true
}

// WindowSize returns how many more bytes of new data the receiver can
// currently accept.
func (r *Receiver) WindowSize() int {
	return r.capacity - r.StreamOut().BufferSize()
}

// StateSummary classifies the receiver's current state, for tests and
// debug logging only.
func (r *Receiver) StateSummary() StateSummary {
	if r.StreamOut().Error() {
		return StateError
	}
	if !r.synReceived {
		return StateListen
	}
	if r.StreamOut().InputEnded() {
		return StateFinReceived
	}
	return StateSynReceived
}
