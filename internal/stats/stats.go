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

// Package stats holds the protocol-level counters for a connection and
// periodically dumps them to a CSV file, the way the teacher's SnmpLogger
// dumps kcp.DefaultSnmp.
package stats

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters are the protocol-level events worth tracking per connection.
// All fields are updated with atomic ops since a connection's read and
// write sides may be driven from different goroutines by external glue
// even though the core itself is single-threaded.
type Counters struct {
	SegmentsOut        uint64
	SegmentsIn         uint64
	Retransmits        uint64
	FastAcks           uint64
	ReassemblerDiscard uint64
	ChecksumErrors     uint64
}

func (c *Counters) IncSegmentsOut(n uint64)        { atomic.AddUint64(&c.SegmentsOut, n) }
func (c *Counters) IncSegmentsIn(n uint64)          { atomic.AddUint64(&c.SegmentsIn, n) }
func (c *Counters) IncRetransmits(n uint64)         { atomic.AddUint64(&c.Retransmits, n) }
func (c *Counters) IncFastAcks(n uint64)            { atomic.AddUint64(&c.FastAcks, n) }
func (c *Counters) IncReassemblerDiscard(n uint64)  { atomic.AddUint64(&c.ReassemblerDiscard, n) }
func (c *Counters) IncChecksumErrors(n uint64)      { atomic.AddUint64(&c.ChecksumErrors, n) }

// Header names the CSV columns ToSlice produces, in order.
func (c *Counters) Header() []string {
	return []string{"SegmentsOut", "SegmentsIn", "Retransmits", "FastAcks", "ReassemblerDiscard", "ChecksumErrors"}
}

// ToSlice snapshots the counters as strings, for a single CSV row.
func (c *Counters) ToSlice() []string {
	return []string{
		fmt.Sprint(atomic.LoadUint64(&c.SegmentsOut)),
		fmt.Sprint(atomic.LoadUint64(&c.SegmentsIn)),
		fmt.Sprint(atomic.LoadUint64(&c.Retransmits)),
		fmt.Sprint(atomic.LoadUint64(&c.FastAcks)),
		fmt.Sprint(atomic.LoadUint64(&c.ReassemblerDiscard)),
		fmt.Sprint(atomic.LoadUint64(&c.ChecksumErrors)),
	}
}

// Logger periodically appends a CSV row of c's counters to path, one row
// per interval. Generalized line-for-line from the teacher's
// std/snmp.go:SnmpLogger, swapping kcp.DefaultSnmp for our own Counters.
func Logger(c *Counters, path string, interval int) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}

		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, c.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, c.ToSlice()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
