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

// Package config holds the on-disk/CLI-overridable settings shared by
// both utcpc and utcpd.
package config

import (
	"encoding/json"
	"os"

	"github.com/xtaci/utcp/seqno"
)

// Defaults, named the way the core components name their own config
// knobs (spec §6).
const (
	DefaultRecvCapacity  = 64000
	DefaultSendCapacity  = 64000
	DefaultRTOMillis     = 1000
	DefaultMaxPayload    = 1452
	DefaultMaxRetxAttmpt = 8
)

// Config is the JSON-loadable configuration for a utcp endpoint. Fields
// default to the zero value of their type when absent from the file;
// ApplyDefaults fills in the protocol defaults afterward.
type Config struct {
	Listen string `json:"listen"`
	Remote string `json:"remote"`
	Target string `json:"target"`

	Key   string `json:"key"`
	Crypt string `json:"crypt"`

	TCP bool `json:"tcp"` // disguise the UDP flow as TCP via tcpraw

	NoComp bool `json:"nocomp"`

	QPP      bool `json:"qpp"`
	QPPCount int  `json:"qpp-count"`

	DataShard   int `json:"datashard"`
	ParityShard int `json:"parityshard"`

	LossyOutPercent int `json:"lossy-out-percent"` // debug only, for transport.NewLossyPacketConn; the cmd binaries do not apply it
	LossyInPercent  int `json:"lossy-in-percent"`

	RecvCapacity  int `json:"recv_capacity"`
	SendCapacity  int `json:"send_capacity"`
	RTOMillis     int `json:"rt_timeout_ms"`
	MaxPayload    int `json:"max_payload_size"`
	MaxRetxAttmpt int `json:"max_retx_attempts"`
	FixedISN      *uint32 `json:"fixed_isn,omitempty"`

	SnmpLog    string `json:"snmplog"`
	SnmpPeriod int    `json:"snmpperiod"`

	Quiet bool `json:"quiet"`
}

// ApplyDefaults fills protocol-level fields left unset (zero) with the
// spec's defaults. Listen/Remote/Target/Key are left alone: they have
// no meaningful default.
func (c *Config) ApplyDefaults() {
	if c.RecvCapacity == 0 {
		c.RecvCapacity = DefaultRecvCapacity
	}
	if c.SendCapacity == 0 {
		c.SendCapacity = DefaultSendCapacity
	}
	if c.RTOMillis == 0 {
		c.RTOMillis = DefaultRTOMillis
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	if c.MaxRetxAttmpt == 0 {
		c.MaxRetxAttmpt = DefaultMaxRetxAttmpt
	}
	if c.Crypt == "" {
		c.Crypt = "aes"
	}
	if c.QPPCount == 0 {
		c.QPPCount = 61
	}
}

// FixedSeqno converts the optional JSON fixed_isn into a *seqno.Seqno for
// sender.New/receiver use, or nil when unset (random ISN).
func (c *Config) FixedSeqno() *seqno.Seqno {
	if c.FixedISN == nil {
		return nil
	}
	s := seqno.Seqno(*c.FixedISN)
	return &s
}

// Load reads and decodes a JSON config file, generalized from the
// teacher's server/config.go parseJSONConfig (open, decode, defer close).
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var c Config
	if err := json.NewDecoder(file).Decode(&c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	return &c, nil
}
