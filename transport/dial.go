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

// DialPacketConn opens a client-side net.PacketConn toward remote (plain
// UDP, or disguised as TCP via tcpraw) and resolves remote into the
// net.Addr every outbound Socket.Send call should target.
func DialPacketConn(remote string, tcp bool) (net.PacketConn, net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, nil, errors.Wrap(err, "transport: resolve remote address")
	}

	if tcp {
		conn, err := tcpraw.Dial("tcp", remote)
		if err != nil {
			return nil, nil, errors.Wrap(err, "transport: tcpraw.Dial")
		}
		return conn, addr, nil
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "transport: net.ListenUDP")
	}
	return conn, addr, nil
}
