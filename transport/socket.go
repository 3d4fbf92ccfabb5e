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

// Package transport acquires the underlying net.PacketConn (plain UDP or
// disguised-as-TCP via tcpraw) and layers optional compression, QPP
// payload permutation, block-cipher encryption and forward error
// correction around the segment bytes the core hands it. None of this
// is part of the reliability core: it is the "socket/file-descriptor
// adaptor" spec.md's scope section calls out as an external collaborator.
package transport

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/utcp/segment"
)

// Socket sends and receives whole segments, applying whatever codec
// stack (compression/QPP/crypt/FEC) it was built with.
type Socket interface {
	Send(seg segment.Segment, addr net.Addr) error
	Recv() (seg segment.Segment, addr net.Addr, err error)
	LocalAddr() net.Addr
	Close() error
}

// Options selects which optional layers a Socket applies, outermost
// first on send (comp -> qpp -> crypt -> fec) and the mirror order on
// receive.
type Options struct {
	Compress bool

	QPPKey   string // empty disables QPP
	QPPCount int

	CryptName string // empty or "none"/"null" disables encryption
	CryptKey  []byte

	DataShards, ParityShards int // ParityShards == 0 disables FEC

	MaxDatagram int // read buffer size, default 65536
}

type packetSocket struct {
	conn net.PacketConn
	opt  Options

	qpp     *qppCodec
	crypt   *cryptCodec
	fecEnc  *fecEncoder
	fecDec  *fecDecoder
	readBuf []byte

	pending     [][]byte // decoded-but-not-yet-returned packets from a multi-shard FEC group
	pendingAddr net.Addr
}

// NewSocket wraps an already-open net.PacketConn with the codec layers
// named in opt.
func NewSocket(conn net.PacketConn, opt Options) (Socket, error) {
	s := &packetSocket{conn: conn, opt: opt}

	if opt.QPPKey != "" {
		s.qpp = newQPPCodec(opt.QPPKey, opt.QPPCount)
	}

	if opt.CryptName != "" && opt.CryptName != "none" && opt.CryptName != "null" {
		block, effective := SelectBlockCrypt(opt.CryptName, opt.CryptKey)
		cc := newCryptCodec(block, effective)
		s.crypt = &cc
	}

	if opt.ParityShards > 0 {
		ds, ps := opt.DataShards, opt.ParityShards
		if ds <= 0 {
			ds = 4
		}
		enc, err := newFECEncoder(ds, ps)
		if err != nil {
			return nil, errors.Wrap(err, "transport: fec encoder")
		}
		s.fecEnc = enc
		s.fecDec = newFECDecoder()
	}

	bufSize := opt.MaxDatagram
	if bufSize == 0 {
		bufSize = 65536
	}
	s.readBuf = make([]byte, bufSize)

	return s, nil
}

func (s *packetSocket) Send(seg segment.Segment, addr net.Addr) error {
	pseudo, err := pseudoHeaderSum(s.conn.LocalAddr(), addr, segment.HeaderLength+len(seg.Payload))
	if err != nil {
		return err
	}
	raw := seg.Serialize(pseudo)

	if s.opt.Compress {
		raw = compressPacket(raw)
	}
	if s.qpp != nil {
		raw = s.qpp.encode(raw)
	}
	if s.crypt != nil {
		raw = s.crypt.encrypt(raw)
	}

	if s.fecEnc != nil {
		for _, pkt := range s.fecEnc.Encode(raw) {
			if _, err := s.conn.WriteTo(pkt, addr); err != nil {
				return err
			}
		}
		return nil
	}

	_, err = s.conn.WriteTo(raw, addr)
	return err
}

func (s *packetSocket) Recv() (segment.Segment, net.Addr, error) {
	for {
		var pkt []byte
		var addr net.Addr

		if len(s.pending) > 0 {
			pkt = s.pending[0]
			s.pending = s.pending[1:]
			addr = s.pendingAddr
		} else {
			n, from, err := s.conn.ReadFrom(s.readBuf)
			if err != nil {
				return segment.Segment{}, nil, err
			}
			raw := append([]byte(nil), s.readBuf[:n]...)

			var candidates [][]byte
			if s.fecDec != nil {
				candidates = s.fecDec.Decode(raw)
				if len(candidates) == 0 {
					continue // shard buffered, awaiting more of its group
				}
			} else {
				candidates = [][]byte{raw}
			}

			pkt = candidates[0]
			if len(candidates) > 1 {
				s.pending = append(s.pending, candidates[1:]...)
				s.pendingAddr = from
			}
			addr = from
		}

		if s.crypt != nil {
			var derr error
			pkt, derr = s.crypt.decrypt(pkt)
			if derr != nil {
				return segment.Segment{}, nil, derr
			}
		}
		if s.qpp != nil {
			var derr error
			pkt, derr = s.qpp.decode(pkt)
			if derr != nil {
				return segment.Segment{}, nil, derr
			}
		}
		if s.opt.Compress {
			var derr error
			pkt, derr = decompressPacket(pkt)
			if derr != nil {
				return segment.Segment{}, nil, derr
			}
		}

		pseudo, err := pseudoHeaderSum(s.conn.LocalAddr(), addr, len(pkt))
		if err != nil {
			return segment.Segment{}, nil, err
		}
		seg, err := segment.Parse(pkt, pseudo)
		if err != nil {
			return segment.Segment{}, nil, err
		}
		return seg, addr, nil
	}
}

func (s *packetSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *packetSocket) Close() error        { return s.conn.Close() }

// pseudoHeaderSum derives the RFC793 pseudo-header sum from whatever IP
// is embedded in local/remote net.Addr (UDPAddr or tcpraw's TCPAddr).
// This overlay never touches a real IP stack, so 0.0.0.0 is used when an
// address carries none (e.g. a Unix socket in tests).
func pseudoHeaderSum(local, remote net.Addr, tcpLength int) (uint32, error) {
	return segment.PseudoHeaderSum(ipFromAddr(local), ipFromAddr(remote), tcpLength)
}

func ipFromAddr(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		if a.IP != nil {
			return a.IP
		}
	case *net.TCPAddr:
		if a.IP != nil {
			return a.IP
		}
	}
	return net.IPv4zero
}
