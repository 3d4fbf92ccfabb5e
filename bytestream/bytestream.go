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

// Package bytestream implements a bounded, single-threaded FIFO byte pipe
// with EOF and error sticky flags. It is the common output buffer of the
// reassembler and the common input buffer of the sender.
package bytestream

// ByteStream is a bounded circular buffer of bytes with four observable
// counters (bytesWritten, bytesRead, buffer size, remaining capacity) and
// two sticky flags (inputEnded, err). It is not safe for concurrent use.
type ByteStream struct {
	buf  []byte // capacity+1 slots; classic full/empty disambiguation
	head int    // next byte to read
	tail int    // next slot to write

	capacity int

	inputEnded bool
	err        bool

	bytesWritten uint64
	bytesRead    uint64
}

// New creates a ByteStream able to hold up to capacity bytes at once.
func New(capacity int) *ByteStream {
	return &ByteStream{
		buf:      make([]byte, capacity+1),
		capacity: capacity,
	}
}

func (b *ByteStream) realCapacity() int {
	return len(b.buf)
}

// BufferSize returns the number of bytes currently held, readable via
// Peek/Pop.
func (b *ByteStream) BufferSize() int {
	if b.err {
		return 0
	}
	if b.tail >= b.head {
		return b.tail - b.head
	}
	return b.realCapacity() - b.head + b.tail
}

// RemainingCapacity returns how many more bytes Write will currently accept.
func (b *ByteStream) RemainingCapacity() int {
	return b.capacity - b.BufferSize()
}

// Write appends up to RemainingCapacity bytes of data and returns the
// number actually accepted. It is a no-op returning 0 once EndInput or
// SetError has been called.
func (b *ByteStream) Write(data []byte) int {
	if b.inputEnded || b.err {
		return 0
	}

	n := len(data)
	if room := b.RemainingCapacity(); n > room {
		n = room
	}
	if n == 0 {
		return 0
	}

	rc := b.realCapacity()
	toEnd := rc - b.tail
	first := n
	if first > toEnd {
		first = toEnd
	}
	copy(b.buf[b.tail:b.tail+first], data[:first])
	if rest := n - first; rest > 0 {
		copy(b.buf[0:rest], data[first:first+rest])
		b.tail = rest
	} else {
		b.tail = (b.tail + first) % rc
	}

	b.bytesWritten += uint64(n)
	return n
}

// PeekOutput returns up to min(len, BufferSize) bytes from the head
// without removing them. Returns nil once SetError has been called.
func (b *ByteStream) PeekOutput(n int) []byte {
	if b.err {
		return nil
	}
	if avail := b.BufferSize(); n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}

	out := make([]byte, n)
	rc := b.realCapacity()
	toEnd := rc - b.head
	first := n
	if first > toEnd {
		first = toEnd
	}
	copy(out[:first], b.buf[b.head:b.head+first])
	if rest := n - first; rest > 0 {
		copy(out[first:], b.buf[0:rest])
	}
	return out
}

// PopOutput removes up to min(len, BufferSize) bytes from the head.
func (b *ByteStream) PopOutput(n int) {
	if b.err {
		return
	}
	if avail := b.BufferSize(); n > avail {
		n = avail
	}
	if n <= 0 {
		return
	}
	b.head = (b.head + n) % b.realCapacity()
	b.bytesRead += uint64(n)
}

// Read is PeekOutput followed by PopOutput of the same length.
func (b *ByteStream) Read(n int) []byte {
	out := b.PeekOutput(n)
	b.PopOutput(len(out))
	return out
}

// EndInput marks the write side closed. No further Write calls succeed.
func (b *ByteStream) EndInput() {
	b.inputEnded = true
}

// SetError marks the stream as failed. This is irreversible; both sides
// stop producing further work.
func (b *ByteStream) SetError() {
	b.err = true
}

// InputEnded reports whether EndInput has been called.
func (b *ByteStream) InputEnded() bool {
	return b.inputEnded
}

// Error reports whether SetError has been called.
func (b *ByteStream) Error() bool {
	return b.err
}

// EOF reports whether the input has ended and every written byte has been
// read out.
func (b *ByteStream) EOF() bool {
	return b.inputEnded && b.BufferSize() == 0
}

// BytesWritten returns the total number of bytes ever accepted by Write.
func (b *ByteStream) BytesWritten() uint64 {
	return b.bytesWritten
}

// BytesRead returns the total number of bytes ever removed by Pop/Read.
func (b *ByteStream) BytesRead() uint64 {
	return b.bytesRead
}
