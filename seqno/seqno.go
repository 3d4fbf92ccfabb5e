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

// Package seqno implements 32-bit wrapping TCP sequence-number arithmetic.
//
// A stream's bytes are indexed by a 64-bit absolute position (SYN is 0,
// the first payload byte is 1, FIN is one past the last payload byte).
// The wire only carries a 32-bit field, offset by a random per-connection
// ISN, so every absolute position must be wrapped before it goes out and
// unwrapped relative to a checkpoint when it comes back in.
package seqno

// Seqno is a 32-bit sequence number relative to an arbitrary initial
// sequence number (ISN). It is used for both TCP seqno and ackno fields.
type Seqno uint32

// Wrap converts a 64-bit absolute sequence number into its 32-bit wire
// form, offset by isn. Go's uint32 arithmetic already wraps modulo 2^32,
// so this is a plain truncating add.
func Wrap(absolute uint64, isn Seqno) Seqno {
	return Seqno(uint32(absolute)) + isn
}

// Unwrap converts a wire-form sequence number back into the unique 64-bit
// absolute value closest to checkpoint. Ties (the absolute value is
// exactly 2^31 away from checkpoint on both sides) resolve to the smaller
// candidate.
func Unwrap(wrapped, isn Seqno, checkpoint uint64) uint64 {
	offset := uint64(uint32(wrapped) - uint32(isn))

	if offset >= checkpoint {
		return offset
	}

	// offset < checkpoint: find how many multiples of 2^32 to add to
	// offset so that the result lands nearest checkpoint. Adding
	// (1<<31) before the integer division rounds to the nearest wrap
	// count; subtracting 1 before dividing makes an exact tie floor to
	// the smaller candidate instead of rounding up to the larger one.
	const wrapSpan = uint64(1) << 32
	distance := checkpoint - offset + (wrapSpan >> 1)
	wraps := (distance - 1) / wrapSpan
	return offset + wraps*wrapSpan
}
