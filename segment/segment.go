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

// Package segment is the wire-neutral record type the core modules
// consume and produce. Parsing/serialization of the TCP/IPv4 wire header
// is explicitly out of the reliability core's scope (spec §1) but a
// runnable implementation still needs a concrete header codec, so it
// lives here as an external collaborator.
package segment

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/utcp/seqno"
)

// Named parse-error kinds, returned unwrapped from Parse (ErrWrongIPVersion
// from PseudoHeaderSum), so callers can compare them with ==.
var (
	ErrPacketTooShort  = errors.New("segment: packet shorter than fixed TCP header")
	ErrHeaderTooShort  = errors.New("segment: data offset claims fewer than 20 bytes")
	ErrTruncatedPacket = errors.New("segment: data offset claims more bytes than present")
	ErrBadChecksum     = errors.New("segment: checksum mismatch")
	ErrWrongIPVersion  = errors.New("segment: pseudo-header source/destination must be 4 bytes (IPv4)")
	ErrUnsupported     = errors.New("segment: TCP options are not supported")
)

// Flag bits within byte 13 of the TCP header, matching RFC 793.
const (
	flagFIN byte = 0b0000_0001
	flagSYN byte = 0b0000_0010
	flagRST byte = 0b0000_0100
	flagPSH byte = 0b0000_1000
	flagACK byte = 0b0001_0000
	flagURG byte = 0b0010_0000
)

// HeaderLength is the fixed TCP header length this package produces
// (no options on output; doff is always 5).
const HeaderLength = 20

// Segment is a TCP segment: header fields plus payload. It carries no
// transport logic of its own.
type Segment struct {
	SrcPort, DstPort uint16
	Seqno, Ackno     seqno.Seqno
	DataOffset       uint8 // in 32-bit words; options present when > 5
	URG, ACK, PSH    bool
	RST, SYN, FIN    bool
	Window           uint16
	Checksum         uint16
	UrgentPointer    uint16
	Payload          []byte
}

// LengthInSequenceSpace is the amount of sequence space this segment
// occupies: its payload, plus one slot each for SYN and FIN.
func (s Segment) LengthInSequenceSpace() int {
	n := len(s.Payload)
	if s.SYN {
		n++
	}
	if s.FIN {
		n++
	}
	return n
}

func (s Segment) flags() byte {
	var f byte
	if s.URG {
		f |= flagURG
	}
	if s.ACK {
		f |= flagACK
	}
	if s.PSH {
		f |= flagPSH
	}
	if s.RST {
		f |= flagRST
	}
	if s.SYN {
		f |= flagSYN
	}
	if s.FIN {
		f |= flagFIN
	}
	return f
}

// Serialize encodes the segment's header and payload for the wire,
// computing the checksum over the given IPv4-pseudo-header partial sum.
func (s Segment) Serialize(pseudoHeaderSum uint32) []byte {
	out := make([]byte, HeaderLength+len(s.Payload))

	binary.BigEndian.PutUint16(out[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(out[2:4], s.DstPort)
	binary.BigEndian.PutUint32(out[4:8], uint32(s.Seqno))
	binary.BigEndian.PutUint32(out[8:12], uint32(s.Ackno))
	out[12] = 5 << 4 // doff=5, reserved bits zero
	out[13] = s.flags()
	binary.BigEndian.PutUint16(out[14:16], s.Window)
	out[16], out[17] = 0, 0 // checksum filled below
	binary.BigEndian.PutUint16(out[18:20], s.UrgentPointer)
	copy(out[HeaderLength:], s.Payload)

	cksum := Checksum(pseudoHeaderSum, out)
	binary.BigEndian.PutUint16(out[16:18], cksum)
	return out
}

// PseudoHeaderSum folds the RFC 793 IPv4 TCP pseudo-header (source addr,
// destination addr, zero, protocol=6, TCP length) into a running 32-bit
// one's-complement partial sum, suitable for passing to Checksum/Serialize
// and for accumulating into Checksum alongside the segment bytes.
func PseudoHeaderSum(src, dst net.IP, tcpLength int) (uint32, error) {
	src4 := src.To4()
	dst4 := dst.To4()
	if src4 == nil || dst4 == nil {
		return 0, ErrWrongIPVersion
	}
	var sum uint32
	sum += uint32(src4[0])<<8 | uint32(src4[1])
	sum += uint32(src4[2])<<8 | uint32(src4[3])
	sum += uint32(dst4[0])<<8 | uint32(dst4[1])
	sum += uint32(dst4[2])<<8 | uint32(dst4[3])
	sum += 6 // protocol number for TCP
	sum += uint32(tcpLength)
	return sum, nil
}

// Checksum computes the RFC 1071 one's-complement internet checksum of
// data, folding in an initial partial sum (typically a PseudoHeaderSum).
// It is symmetric: running it again over a buffer whose checksum field
// already holds the correct value yields zero.
func Checksum(initial uint32, data []byte) uint16 {
	sum := initial
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Parse decodes a TCP segment from its wire form, validating the checksum
// against pseudoHeaderSum. TCP options (doff > 5) are rejected rather than
// skipped: this repo never emits them, and silently discarding unknown
// options would hide a peer the protocol doesn't actually support.
func Parse(raw []byte, pseudoHeaderSum uint32) (Segment, error) {
	if len(raw) < HeaderLength {
		return Segment{}, ErrPacketTooShort
	}

	doff := raw[12] >> 4
	if doff < 5 {
		return Segment{}, ErrHeaderTooShort
	}
	headerLen := int(doff) * 4
	if headerLen > len(raw) {
		return Segment{}, ErrTruncatedPacket
	}
	if headerLen != HeaderLength {
		return Segment{}, ErrUnsupported
	}

	if Checksum(pseudoHeaderSum, raw) != 0 {
		return Segment{}, ErrBadChecksum
	}

	flags := raw[13]
	s := Segment{
		SrcPort:       binary.BigEndian.Uint16(raw[0:2]),
		DstPort:       binary.BigEndian.Uint16(raw[2:4]),
		Seqno:         seqno.Seqno(binary.BigEndian.Uint32(raw[4:8])),
		Ackno:         seqno.Seqno(binary.BigEndian.Uint32(raw[8:12])),
		DataOffset:    doff,
		URG:           flags&flagURG != 0,
		ACK:           flags&flagACK != 0,
		PSH:           flags&flagPSH != 0,
		RST:           flags&flagRST != 0,
		SYN:           flags&flagSYN != 0,
		FIN:           flags&flagFIN != 0,
		Window:        binary.BigEndian.Uint16(raw[14:16]),
		Checksum:      binary.BigEndian.Uint16(raw[16:18]),
		UrgentPointer: binary.BigEndian.Uint16(raw[18:20]),
	}
	if payload := raw[HeaderLength:]; len(payload) > 0 {
		s.Payload = append([]byte(nil), payload...)
	}
	return s, nil
}
