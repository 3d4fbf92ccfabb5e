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
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/tcpraw"
)

// AcquirePacketConn opens the underlying net.PacketConn a Socket is built
// on: a plain UDP socket, or one disguised as TCP via tcpraw when tcp is
// true. Unlike the teacher's listen.go/listen_linux.go split (kcp.ServeConn
// only exists behind a Linux build tag), tcpraw.Listen itself is
// cross-platform — its non-Linux build returns a plain "os not supported"
// error — so one file covers both here.
func AcquirePacketConn(listen string, tcp bool) (net.PacketConn, error) {
	if tcp {
		conn, err := tcpraw.Listen("tcp", listen)
		if err != nil {
			return nil, errors.Wrap(err, "transport: tcpraw.Listen")
		}
		return conn, nil
	}

	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, errors.Wrap(err, "transport: resolve listen address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: net.ListenUDP")
	}
	return conn, nil
}
