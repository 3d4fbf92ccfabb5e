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

// Package reassembler merges out-of-order (index, bytes, eof) fragments
// into a single in-order ByteStream. It never fails: malformed or
// out-of-window fragments are silently discarded, as required of a
// network-facing component (spec taxon 1, "silent discards").
package reassembler

import (
	"math"
	"sort"

	"github.com/xtaci/utcp/bytestream"
)

// fragment is one pending, not-yet-writable run of bytes, keyed by its
// absolute start index.
type fragment struct {
	start uint64
	data  []byte
}

func (f fragment) end() uint64 { return f.start + uint64(len(f.data)) }

// Reassembler owns one output ByteStream of capacity C and holds the set
// of pending fragments that arrived ahead of the next expected byte.
type Reassembler struct {
	capacity uint64
	out      *bytestream.ByteStream

	pending []fragment // sorted by start, pairwise disjoint

	eofSet   bool
	eofIndex uint64
}

// New creates a Reassembler whose output stream has the given capacity.
func New(capacity int) *Reassembler {
	return &Reassembler{
		capacity: uint64(capacity),
		out:      bytestream.New(capacity),
		eofIndex: math.MaxUint64,
	}
}

// StreamOut returns the reassembler's output ByteStream.
func (r *Reassembler) StreamOut() *bytestream.ByteStream {
	return r.out
}

// UnassembledBytes returns the number of bytes currently held in pending
// fragments (not yet written to the output stream).
func (r *Reassembler) UnassembledBytes() int {
	n := 0
	for _, f := range r.pending {
		n += len(f.data)
	}
	return n
}

// IsEmpty reports whether there are no pending fragments.
func (r *Reassembler) IsEmpty() bool {
	return len(r.pending) == 0
}

// firstUnassembled is the absolute index of the next byte the
// reassembler expects: it always equals the output stream's write
// counter, since this package is the only writer of that stream.
func (r *Reassembler) firstUnassembled() uint64 {
	return r.out.BytesWritten()
}

// PushSubstring attempts to merge data, which starts at the given
// absolute index, into the output stream. If eof is set, absoluteIndex+
// len(data) marks one past the last byte of the stream.
func (r *Reassembler) PushSubstring(data []byte, absoluteIndex uint64, eof bool) {
	u := r.firstUnassembled()
	// The window's far edge tracks the stream's actual remaining room
	// (capacity - buffer_size), not a fixed U+C: an unread buffer already
	// occupies part of the capacity, so the window here must shrink by
	// exactly that much to keep unassembled_bytes <= C - buffer_size an
	// invariant rather than a best case.
	windowEnd := u + uint64(r.out.RemainingCapacity())

	lo0 := absoluteIndex
	hi0 := absoluteIndex + uint64(len(data))

	lo := lo0
	if lo < u {
		lo = u
	}
	hi := hi0
	if hi > windowEnd {
		hi = windowEnd
	}
	if hi < lo {
		hi = lo
	}

	if hi > lo {
		trimmed := data[lo-lo0 : hi-lo0]
		r.merge(lo, trimmed)
		r.flush()
		if eof {
			r.setEOF(hi)
		}
	} else {
		// Trimmed to nothing: either genuinely empty input, or the
		// fragment fell entirely outside the window. Its EOF marker is
		// still recorded when the fragment ends at or before the
		// window's right edge (a stale fragment, or an empty one
		// anywhere up to that edge); one that fell off the right edge
		// is simply discarded along with its EOF flag.
		if eof && hi0 <= windowEnd {
			r.setEOF(hi0)
		}
	}

	if r.eofSet && r.firstUnassembled() >= r.eofIndex {
		r.out.EndInput()
	}
}

func (r *Reassembler) setEOF(idx uint64) {
	if !r.eofSet {
		r.eofSet = true
		r.eofIndex = idx
	}
}

// merge removes or shrinks any pending fragment overlapping [lo, lo+len(data)),
// then inserts the new fragment.
func (r *Reassembler) merge(lo uint64, data []byte) {
	hi := lo + uint64(len(data))

	old := r.pending
	kept := make([]fragment, 0, len(old)+1)
	for _, f := range old {
		fs, fe := f.start, f.end()
		if fe <= lo || fs >= hi {
			kept = append(kept, f) // disjoint, untouched
			continue
		}
		// overlaps: keep whatever non-overlapping head/tail remains
		if fs < lo {
			kept = append(kept, fragment{start: fs, data: f.data[:lo-fs]})
		}
		if fe > hi {
			kept = append(kept, fragment{start: hi, data: f.data[hi-fs:]})
		}
	}
	r.pending = kept

	r.insert(fragment{start: lo, data: data})
}

func (r *Reassembler) insert(f fragment) {
	i := sort.Search(len(r.pending), func(i int) bool {
		return r.pending[i].start >= f.start
	})
	r.pending = append(r.pending, fragment{})
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = f
}

// flush writes every pending fragment starting exactly at the next
// expected byte into the output stream, for as long as the stream has
// room and such a fragment exists.
func (r *Reassembler) flush() {
	for {
		u := r.firstUnassembled()
		i := sort.Search(len(r.pending), func(i int) bool {
			return r.pending[i].start >= u
		})
		if i >= len(r.pending) || r.pending[i].start != u {
			return
		}
		if r.out.RemainingCapacity() == 0 {
			return
		}

		f := r.pending[i]
		n := r.out.Write(f.data)
		if n == 0 {
			return
		}
		if n == len(f.data) {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
		} else {
			r.pending[i] = fragment{start: u + uint64(n), data: f.data[n:]}
			return
		}
	}
}
