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

// Package tcpconn is the connection glue: it owns one sender.Sender and
// one receiver.Receiver, pumps segments to and from a transport.Socket,
// and is the only place in this module where the core's single-threaded
// components are touched from more than one goroutine (guarded by a
// mutex, since none of seqno/bytestream/reassembler/receiver/sender is
// safe for concurrent use by itself).
package tcpconn

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/utcp/config"
	"github.com/xtaci/utcp/internal/stats"
	"github.com/xtaci/utcp/receiver"
	"github.com/xtaci/utcp/segment"
	"github.com/xtaci/utcp/sender"
	"github.com/xtaci/utcp/transport"
)

// tickInterval is how often the sender's retransmission timer is driven.
const tickInterval = 20 * time.Millisecond

// lingerTimeout bounds how long Close waits for the peer to ack our FIN
// before tearing down the socket unconditionally.
const lingerTimeout = 10 * time.Second

// Conn is one reliable bidirectional byte stream running over a
// transport.Socket. It implements io.ReadWriteCloser.
type Conn struct {
	mu  sync.Mutex
	snd *sender.Sender
	rcv *receiver.Receiver

	sock     transport.Socket
	peer     net.Addr
	counters *stats.Counters

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// New wires up a Conn against an already-open transport.Socket. If
// active is true, the connection opens by sending a SYN immediately
// (outbound dial); otherwise it waits for one (inbound accept).
func New(cfg *config.Config, sock transport.Socket, peer net.Addr, active bool, counters *stats.Counters) *Conn {
	c := &Conn{
		snd:      sender.New(cfg.SendCapacity, uint64(cfg.RTOMillis), cfg.FixedSeqno()),
		rcv:      receiver.New(cfg.RecvCapacity),
		sock:     sock,
		peer:     peer,
		counters: counters,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if counters == nil {
		c.counters = &stats.Counters{}
	}

	go c.recvLoop()
	go c.tickLoop()

	if active {
		c.mu.Lock()
		c.snd.FillWindow()
		c.mu.Unlock()
		c.flushOutbound()
	}
	return c
}

// Read pulls assembled application bytes off the receiver's output
// stream, blocking until at least one byte or EOF/error is available.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		c.mu.Lock()
		out := c.rcv.StreamOut()
		if out.Error() {
			c.mu.Unlock()
			return 0, errors.New("tcpconn: connection reset")
		}
		if out.BufferSize() > 0 {
			n := len(p)
			got := out.Read(n)
			c.mu.Unlock()
			return copy(p, got), nil
		}
		if out.EOF() {
			c.mu.Unlock()
			return 0, io.EOF
		}
		c.mu.Unlock()

		select {
		case <-time.After(tickInterval):
		case <-c.done:
			return 0, errors.New("tcpconn: connection closed")
		}
	}
}

// Write enqueues p on the sender's input stream and immediately attempts
// to push whatever of it the current window allows onto the wire.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	in := c.snd.StreamIn()
	if in.Error() {
		c.mu.Unlock()
		return 0, errors.New("tcpconn: connection reset")
	}
	n := in.Write(p)
	c.snd.FillWindow()
	c.mu.Unlock()
	c.flushOutbound()
	if n == 0 && len(p) > 0 {
		return 0, errors.New("tcpconn: send window full")
	}
	return n, nil
}

// Close half-closes the outbound side (EndInput on the sender's stream,
// which lets FillWindow emit a FIN once everything written has drained)
// and lingers briefly for the peer's ack before releasing the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.snd.StreamIn().EndInput()
		c.snd.FillWindow()
		c.mu.Unlock()
		c.flushOutbound()

		deadline := time.After(lingerTimeout)
	lingerLoop:
		for {
			c.mu.Lock()
			finAcked := c.snd.StateSummary() == sender.StateFinAcked
			c.mu.Unlock()
			if finAcked {
				break
			}
			select {
			case <-deadline:
				break lingerLoop
			case <-time.After(tickInterval):
			}
		}

		close(c.closed)
		err = c.sock.Close()
		<-c.done
	})
	return err
}

// recvLoop pulls inbound segments off the socket and feeds them through
// the receiver/sender state machine until the socket is closed.
func (c *Conn) recvLoop() {
	defer close(c.done)
	for {
		seg, _, err := c.sock.Recv()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.mu.Lock()
			c.rcv.StreamOut().SetError()
			c.snd.StreamIn().SetError()
			c.mu.Unlock()
			return
		}
		c.counters.IncSegmentsIn(1)

		c.mu.Lock()
		if seg.RST {
			c.rcv.StreamOut().SetError()
			c.snd.StreamIn().SetError()
			c.mu.Unlock()
			continue
		}
		c.rcv.SegmentReceived(seg)
		if seg.ACK {
			c.snd.AckReceived(seg.Ackno, int(seg.Window))
		}
		if c.snd.ConsecutiveRetransmissions() > sender.MaxRetxAttempts {
			c.rcv.StreamOut().SetError()
			c.snd.StreamIn().SetError()
			c.mu.Unlock()
			c.sendRST()
			continue
		}
		c.mu.Unlock()
		c.flushOutbound()
	}
}

// tickLoop drives the sender's retransmission timer at a fixed cadence.
func (c *Conn) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.snd.Tick(uint64(tickInterval / time.Millisecond))
			retx := c.snd.ConsecutiveRetransmissions()
			c.mu.Unlock()
			if retx > sender.MaxRetxAttempts {
				c.mu.Lock()
				c.rcv.StreamOut().SetError()
				c.snd.StreamIn().SetError()
				c.mu.Unlock()
				c.sendRST()
				continue
			}
			c.flushOutbound()
		case <-c.closed:
			return
		}
	}
}

// flushOutbound drains whatever the sender has queued, stamps each
// segment with the current ackno/window, and writes it to the socket.
func (c *Conn) flushOutbound() {
	c.mu.Lock()
	segs := c.snd.PopSegments()
	if ack, ok := c.rcv.Ackno(); ok {
		for i := range segs {
			segs[i].ACK = true
			segs[i].Ackno = ack
		}
	}
	for i := range segs {
		segs[i].Window = uint16(clampWindow(c.rcv.WindowSize()))
	}
	c.mu.Unlock()

	for _, seg := range segs {
		if err := c.sock.Send(seg, c.peer); err != nil {
			return
		}
		c.counters.IncSegmentsOut(1)
	}
}

func (c *Conn) sendRST() {
	c.mu.Lock()
	seg := segment.Segment{RST: true, Seqno: c.snd.NextSeqno()}
	c.mu.Unlock()
	c.sock.Send(seg, c.peer)
}

func clampWindow(n int) int {
	if n < 0 {
		return 0
	}
	if n > 0xffff {
		return 0xffff
	}
	return n
}
