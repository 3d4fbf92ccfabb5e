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

package transport

import (
	"math/rand"
	"net"
	"time"
)

// lossyPacketConn drops a percentage of outgoing and incoming datagrams,
// the way the original's FdAdapterConfig carried loss_rate_up/loss_rate_dn
// for its (unimplemented-in-the-filtered-source) LossyFdAdapter. It is a
// debug aid: neither the core nor the cmd binaries install it.
type lossyPacketConn struct {
	net.PacketConn
	outPercent int
	inPercent  int
	rng        *rand.Rand
}

// NewLossyPacketConn wraps conn so outPercent% of WriteTo calls and
// inPercent% of ReadFrom results are silently dropped.
func NewLossyPacketConn(conn net.PacketConn, outPercent, inPercent int) net.PacketConn {
	if outPercent <= 0 && inPercent <= 0 {
		return conn
	}
	return &lossyPacketConn{
		PacketConn: conn,
		outPercent: outPercent,
		inPercent:  inPercent,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *lossyPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.outPercent > 0 && c.rng.Intn(100) < c.outPercent {
		return len(p), nil // pretend it went out fine
	}
	return c.PacketConn.WriteTo(p, addr)
}

func (c *lossyPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		n, addr, err := c.PacketConn.ReadFrom(p)
		if err != nil {
			return n, addr, err
		}
		if c.inPercent > 0 && c.rng.Intn(100) < c.inPercent {
			continue // dropped, read the next one
		}
		return n, addr, nil
	}
}
