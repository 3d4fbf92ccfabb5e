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
	"encoding/binary"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/xtaci/qpp"
)

// qppPower is the permutation dimension, matching the teacher's choice.
const qppPower = 8

// qppCounterSize is the width of the per-packet counter prefixed to every
// QPP-coded datagram.
const qppCounterSize = 8

// ValidateQPPParams inspects the caller-provided QPP settings, exactly as
// the teacher's std/qpp.go does, returning non-fatal warnings plus a fatal
// error for a nonsensical count.
func ValidateQPPParams(count int, key string) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("QPPCount must be greater than 0 when QPP is enabled")
	}

	var warnings []string

	minSeedLength := qpp.QPPMinimumSeedLength(qppPower)
	if len(key) < minSeedLength {
		warnings = append(warnings, fmt.Sprintf("QPP Warning: 'key' has size of %d bytes, required %d bytes at least", len(key), minSeedLength))
	}

	minPads := qpp.QPPMinimumPads(qppPower)
	if count < minPads {
		warnings = append(warnings, fmt.Sprintf("QPP Warning: QPPCount %d, required %d at least", count, minPads))
	}

	if new(big.Int).GCD(nil, nil, big.NewInt(int64(count)), big.NewInt(qppPower)).Int64() != 1 {
		warnings = append(warnings, fmt.Sprintf("QPP Warning: QPPCount %d, choose a prime number for security", count))
	}

	return warnings, nil
}

// qppCodec permutes each datagram independently under its own PRNG state
// derived from a per-packet counter, unlike the teacher's QPPPort which
// keeps one running PRNG across an ordered stream. A KCP/smux stream is
// always delivered in order to the port, so a continuously advancing PRNG
// works; UDP datagrams here arrive out of order, so the counter travels
// with the packet instead of living only in local state.
type qppCodec struct {
	pad     *qpp.QuantumPermutationPad
	seed    []byte
	counter uint64 // next outgoing counter, advanced atomically
}

func newQPPCodec(key string, count int) *qppCodec {
	return &qppCodec{
		pad:  qpp.NewQPP([]byte(key), uint16(count)),
		seed: []byte(key),
	}
}

func (q *qppCodec) packetSeed(counter uint64) []byte {
	seed := make([]byte, len(q.seed)+qppCounterSize)
	copy(seed, q.seed)
	binary.BigEndian.PutUint64(seed[len(q.seed):], counter)
	return seed
}

// encode prefixes raw with its counter and permutes the payload under a
// PRNG seeded from that counter.
func (q *qppCodec) encode(raw []byte) []byte {
	counter := atomic.AddUint64(&q.counter, 1) - 1
	out := make([]byte, qppCounterSize+len(raw))
	binary.BigEndian.PutUint64(out[:qppCounterSize], counter)
	copy(out[qppCounterSize:], raw)

	prng := qpp.CreatePRNG(q.packetSeed(counter))
	q.pad.EncryptWithPRNG(out[qppCounterSize:], prng)
	return out
}

// decode reads the counter prefix back out and reverses the permutation
// under the matching per-packet PRNG state.
func (q *qppCodec) decode(framed []byte) ([]byte, error) {
	if len(framed) < qppCounterSize {
		return nil, errors.New("transport: qpp frame shorter than counter prefix")
	}
	counter := binary.BigEndian.Uint64(framed[:qppCounterSize])
	payload := append([]byte(nil), framed[qppCounterSize:]...)

	prng := qpp.CreatePRNG(q.packetSeed(counter))
	q.pad.DecryptWithPRNG(payload, prng)
	return payload, nil
}
