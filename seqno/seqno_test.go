package seqno

import "testing"

func TestWrap(t *testing.T) {
	cases := []struct {
		absolute uint64
		isn      Seqno
		want     Seqno
	}{
		{0, 0, 0},
		{1, 0, 1},
		{1, 1, 2},
		{1 << 32, 0, 0},
		{3 * (uint64(1) << 32), 0, 0},
	}
	for _, c := range cases {
		if got := Wrap(c.absolute, c.isn); got != c.want {
			t.Errorf("Wrap(%d, %d) = %d, want %d", c.absolute, c.isn, got, c.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cases := []struct {
		name       string
		wrapped    Seqno
		isn        Seqno
		checkpoint uint64
		want       uint64
	}{
		{"s3-isn0", Wrap(3*(uint64(1)<<32), 0), 0, 3 * (uint64(1) << 32), 3 * (uint64(1) << 32)},
		{"s3-isn16", 15, 16, 0, (uint64(1) << 32) - 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Unwrap(c.wrapped, c.isn, c.checkpoint); got != c.want {
				t.Errorf("Unwrap(%d, %d, %d) = %d, want %d", c.wrapped, c.isn, c.checkpoint, got, c.want)
			}
		})
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	isns := []Seqno{0, 1, 12345, 0xFFFFFFFF, 0x80000000}
	absolutes := []uint64{0, 1, 100, 1 << 16, 1 << 31, 1 << 32, (1 << 32) + 5, 10 * (uint64(1) << 32)}
	for _, isn := range isns {
		for _, a := range absolutes {
			wrapped := Wrap(a, isn)
			got := Unwrap(wrapped, isn, a)
			if got != a {
				t.Errorf("round trip failed: isn=%d a=%d wrapped=%d got=%d", isn, a, wrapped, got)
			}
		}
	}
}

func TestUnwrapNearestCheckpoint(t *testing.T) {
	// checkpoints within +/- 2^31 of a should always recover a exactly.
	isn := Seqno(1000)
	a := uint64(10 * (uint64(1) << 32))
	wrapped := Wrap(a, isn)
	for _, delta := range []int64{-(1 << 30), -1, 0, 1, 1 << 30} {
		checkpoint := uint64(int64(a) + delta)
		got := Unwrap(wrapped, isn, checkpoint)
		if got != a {
			t.Errorf("Unwrap near checkpoint delta=%d: got %d want %d", delta, got, a)
		}
	}
}
