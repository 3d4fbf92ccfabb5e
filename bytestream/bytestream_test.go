package bytestream

import (
	"bytes"
	"testing"
)

// S1: capacity 2, write "cat".
func TestCapacityTruncatesWrite(t *testing.T) {
	bs := New(2)
	if n := bs.Write([]byte("cat")); n != 2 {
		t.Fatalf("Write(cat) = %d, want 2", n)
	}
	if got := bs.PeekOutput(2); !bytes.Equal(got, []byte("ca")) {
		t.Fatalf("PeekOutput(2) = %q, want %q", got, "ca")
	}
	if n := bs.Write([]byte("t")); n != 0 {
		t.Fatalf("Write(t) on full stream = %d, want 0", n)
	}
	if bs.BytesWritten() != 2 {
		t.Fatalf("BytesWritten() = %d, want 2", bs.BytesWritten())
	}
}

func TestWriteReadIdempotence(t *testing.T) {
	bs := New(100)
	data := []byte("hello, world")
	if n := bs.Write(data); n != len(data) {
		t.Fatalf("Write = %d, want %d", n, len(data))
	}
	got := bs.Read(len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("Read = %q, want %q", got, data)
	}
}

func TestInvariants(t *testing.T) {
	bs := New(4)
	bs.Write([]byte("ab"))
	bs.Read(1)
	bs.Write([]byte("cde")) // wraps around the ring
	if bs.BytesWritten() != bs.BytesRead()+uint64(bs.BufferSize()) {
		t.Fatalf("invariant broken: written=%d read=%d buffer=%d", bs.BytesWritten(), bs.BytesRead(), bs.BufferSize())
	}
	if bs.RemainingCapacity()+bs.BufferSize() != 4 {
		t.Fatalf("remaining+buffer != capacity: remaining=%d buffer=%d", bs.RemainingCapacity(), bs.BufferSize())
	}
}

func TestEndInputAndEOF(t *testing.T) {
	bs := New(10)
	bs.Write([]byte("hi"))
	if bs.EOF() {
		t.Fatal("EOF true before EndInput")
	}
	bs.EndInput()
	if !bs.InputEnded() {
		t.Fatal("InputEnded should be true")
	}
	if bs.EOF() {
		t.Fatal("EOF should be false while buffer non-empty")
	}
	bs.Read(2)
	if !bs.EOF() {
		t.Fatal("EOF should be true once buffer drained after EndInput")
	}
	if n := bs.Write([]byte("more")); n != 0 {
		t.Fatalf("Write after EndInput = %d, want 0", n)
	}
}

func TestSetError(t *testing.T) {
	bs := New(10)
	bs.Write([]byte("data"))
	bs.SetError()
	if !bs.Error() {
		t.Fatal("Error() should be true")
	}
	if got := bs.PeekOutput(10); got != nil {
		t.Fatalf("PeekOutput after error = %v, want nil", got)
	}
	if n := bs.Write([]byte("x")); n != 0 {
		t.Fatalf("Write after error = %d, want 0", n)
	}
}

func TestSplitAroundRingBoundary(t *testing.T) {
	bs := New(4)
	bs.Write([]byte("abcd"))
	bs.Read(3)           // head now at 3, tail at 4%5=4
	bs.Write([]byte("ef")) // splits: "e" at index4, "f" wraps to index0
	if got := bs.Read(3); !bytes.Equal(got, []byte("def")) {
		t.Fatalf("Read after wraparound = %q, want %q", got, "def")
	}
}
