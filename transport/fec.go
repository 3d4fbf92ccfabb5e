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

// Forward error correction for the packet socket. kcp-go's own FEC codec
// (vendor/github.com/xtaci/kcp-go/v5/fec.go) is not exported, so this is
// built directly on the Reed-Solomon primitive it sits on top of,
// github.com/klauspost/reedsolomon, with a wire protocol of our own.
package transport

import (
	"encoding/binary"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
)

// fecHeaderSize: groupID(4) shard(1) dataShards(1) parityShards(1) origLen(2).
const fecHeaderSize = 9

// maxPendingGroups bounds how many incomplete groups the decoder buffers at
// once; a group that never completes (too many shards lost) is evicted
// oldest-first rather than held forever.
const maxPendingGroups = 64

func putFECHeader(dst []byte, groupID uint32, shard, dataShards, parityShards uint8, origLen uint16) {
	binary.BigEndian.PutUint32(dst[0:4], groupID)
	dst[4] = shard
	dst[5] = dataShards
	dst[6] = parityShards
	binary.BigEndian.PutUint16(dst[7:9], origLen)
}

func getFECHeader(src []byte) (groupID uint32, shard, dataShards, parityShards uint8, origLen uint16) {
	groupID = binary.BigEndian.Uint32(src[0:4])
	shard = src[4]
	dataShards = src[5]
	parityShards = src[6]
	origLen = binary.BigEndian.Uint16(src[7:9])
	return
}

// fecEncoder batches outgoing packets into groups of dataShards, tags and
// emits each data packet immediately, then once a group fills computes and
// emits parityShards parity packets for it.
type fecEncoder struct {
	dataShards, parityShards int
	enc                      reedsolomon.Encoder

	groupID  uint32
	count    int
	pkts     [][]byte
	origLens []int
}

func newFECEncoder(dataShards, parityShards int) (*fecEncoder, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, errors.Wrap(err, "transport: reedsolomon.New")
	}
	return &fecEncoder{
		dataShards:   dataShards,
		parityShards: parityShards,
		enc:          enc,
		pkts:         make([][]byte, dataShards),
		origLens:     make([]int, dataShards),
	}, nil
}

// Encode tags pkt as the next data shard of the current group and returns
// it ready to send; once the group reaches dataShards packets it also
// returns the computed parity shards, then starts a fresh group.
func (f *fecEncoder) Encode(pkt []byte) [][]byte {
	idx := f.count
	f.pkts[idx] = append([]byte(nil), pkt...)
	f.origLens[idx] = len(pkt)
	f.count++

	tagged := make([]byte, fecHeaderSize+len(pkt))
	putFECHeader(tagged, f.groupID, uint8(idx), uint8(f.dataShards), uint8(f.parityShards), uint16(len(pkt)))
	copy(tagged[fecHeaderSize:], pkt)
	out := [][]byte{tagged}

	if f.count < f.dataShards {
		return out
	}

	maxLen := 0
	for _, n := range f.origLens {
		if n > maxLen {
			maxLen = n
		}
	}
	cellSize := maxLen + 2

	cells := make([][]byte, f.dataShards+f.parityShards)
	for i, p := range f.pkts {
		cell := make([]byte, cellSize)
		binary.BigEndian.PutUint16(cell[:2], uint16(f.origLens[i]))
		copy(cell[2:], p)
		cells[i] = cell
	}
	for i := f.dataShards; i < len(cells); i++ {
		cells[i] = make([]byte, cellSize)
	}

	if err := f.enc.Encode(cells); err == nil {
		for i := f.dataShards; i < len(cells); i++ {
			tagged := make([]byte, fecHeaderSize+cellSize)
			putFECHeader(tagged, f.groupID, uint8(i), uint8(f.dataShards), uint8(f.parityShards), 0)
			copy(tagged[fecHeaderSize:], cells[i])
			out = append(out, tagged)
		}
	}

	f.groupID++
	f.count = 0
	f.pkts = make([][]byte, f.dataShards)
	f.origLens = make([]int, f.dataShards)
	return out
}

// fecGroup tracks the shards seen so far for one group on the decode side.
type fecGroup struct {
	dataShards, parityShards int
	cellSize                 int // 0 until a parity shard has arrived
	have                     []bool
	delivered                []bool
	origLen                  []int
	raw                      [][]byte
}

func newFECGroup(dataShards, parityShards int) *fecGroup {
	n := dataShards + parityShards
	return &fecGroup{
		dataShards:   dataShards,
		parityShards: parityShards,
		have:         make([]bool, n),
		delivered:    make([]bool, dataShards),
		origLen:      make([]int, dataShards),
		raw:          make([][]byte, n),
	}
}

func (g *fecGroup) dataComplete() bool {
	for i := 0; i < g.dataShards; i++ {
		if !g.have[i] {
			return false
		}
	}
	return true
}

func (g *fecGroup) haveCount() int {
	n := 0
	for _, ok := range g.have {
		if ok {
			n++
		}
	}
	return n
}

func buildCell(payload []byte, origLen, cellSize int) []byte {
	cell := make([]byte, cellSize)
	binary.BigEndian.PutUint16(cell[:2], uint16(origLen))
	copy(cell[2:], payload[:origLen])
	return cell
}

// fecDecoder reassembles groups across out-of-order/lossy arrival, using
// Reed-Solomon reconstruction once enough shards of a group are present.
type fecDecoder struct {
	groups   map[uint32]*fecGroup
	order    []uint32 // insertion order, for maxPendingGroups eviction
	encoders map[[2]int]reedsolomon.Encoder
}

func newFECDecoder() *fecDecoder {
	return &fecDecoder{
		groups:   make(map[uint32]*fecGroup),
		encoders: make(map[[2]int]reedsolomon.Encoder),
	}
}

func (d *fecDecoder) encoderFor(dataShards, parityShards int) (reedsolomon.Encoder, error) {
	key := [2]int{dataShards, parityShards}
	if enc, ok := d.encoders[key]; ok {
		return enc, nil
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	d.encoders[key] = enc
	return enc, nil
}

func (d *fecDecoder) evictIfFull() {
	for len(d.order) > maxPendingGroups {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.groups, oldest)
	}
}

// Decode feeds one received (tagged) datagram into its group and returns
// whatever original packets that completed as a result. Data packets are
// held until the group can be completed: nothing is returned while the
// group is still incomplete, and every not-yet-returned data packet of the
// group comes back at once when the last data shard arrives or when
// Reed-Solomon reconstruction succeeds.
func (d *fecDecoder) Decode(raw []byte) [][]byte {
	if len(raw) < fecHeaderSize {
		return nil
	}
	groupID, shard, dataShards, parityShards, origLen := getFECHeader(raw)
	payload := raw[fecHeaderSize:]

	g, ok := d.groups[groupID]
	if !ok {
		g = newFECGroup(int(dataShards), int(parityShards))
		d.groups[groupID] = g
		d.order = append(d.order, groupID)
		d.evictIfFull()
	}

	if int(shard) >= len(g.have) {
		return nil
	}
	g.have[shard] = true
	g.raw[shard] = append([]byte(nil), payload...)
	if int(shard) < g.dataShards {
		g.origLen[shard] = int(origLen)
	} else if g.cellSize == 0 {
		g.cellSize = len(payload)
	}

	var out [][]byte

	if g.dataComplete() {
		for i := 0; i < g.dataShards; i++ {
			if !g.delivered[i] {
				g.delivered[i] = true
				out = append(out, g.raw[i])
			}
		}
		delete(d.groups, groupID)
		return out
	}

	if g.cellSize == 0 || g.haveCount() < g.dataShards {
		return nil // not enough shards yet, or no parity seen to learn cell size
	}

	enc, err := d.encoderFor(g.dataShards, g.parityShards)
	if err != nil {
		return nil
	}

	cells := make([][]byte, g.dataShards+g.parityShards)
	for i := 0; i < g.dataShards; i++ {
		if g.have[i] {
			cells[i] = buildCell(g.raw[i], g.origLen[i], g.cellSize)
		}
	}
	for i := g.dataShards; i < len(cells); i++ {
		if g.have[i] {
			cells[i] = g.raw[i]
		}
	}

	if err := enc.Reconstruct(cells); err != nil {
		return nil
	}

	allDelivered := true
	for i := 0; i < g.dataShards; i++ {
		if g.delivered[i] {
			continue
		}
		n := int(binary.BigEndian.Uint16(cells[i][:2]))
		out = append(out, append([]byte(nil), cells[i][2:2+n]...))
		g.delivered[i] = true
	}
	for _, ok := range g.delivered {
		if !ok {
			allDelivered = false
			break
		}
	}
	if allDelivered {
		delete(d.groups, groupID)
	}
	return out
}
