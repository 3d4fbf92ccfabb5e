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

package main

import (
	"log"
	"net"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/xtaci/utcp/config"
	"github.com/xtaci/utcp/internal/stats"
	"github.com/xtaci/utcp/segment"
	"github.com/xtaci/utcp/tcpconn"
	"github.com/xtaci/utcp/transport"
)

// VERSION is injected by buildflags, matching the teacher's server/main.go.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "utcpd"
	app.Usage = "server: accept utcp connections, relay each to target"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen,l", Value: ":29900", Usage: "utcp server listen address"},
		cli.StringFlag{Name: "target,t", Value: "127.0.0.1:80", Usage: "target address to relay each connection to"},
		cli.StringFlag{Name: "key", Value: "it's a secret", Usage: "pre-shared secret", EnvVar: "UTCP_KEY"},
		cli.StringFlag{Name: "crypt", Value: "aes-128", Usage: "aes-128, aes-192, aes-128-gcm, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.BoolFlag{Name: "qpp", Usage: "enable Quantum Permutation Pads"},
		cli.IntFlag{Name: "qppcount", Value: 61, Usage: "number of QPP pads, pick a prime"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable snappy compression"},
		cli.IntFlag{Name: "datashard,ds", Value: 0, Usage: "FEC data shards, 0 disables FEC"},
		cli.IntFlag{Name: "parityshard,ps", Value: 0, Usage: "FEC parity shards, 0 disables FEC"},
		cli.BoolFlag{Name: "tcp", Usage: "accept the link disguised as TCP via tcpraw (linux)"},
		cli.StringFlag{Name: "snmplog", Value: "", Usage: "collect protocol counters to a CSV file"},
		cli.IntFlag{Name: "snmpperiod", Value: 60, Usage: "snmp collect period, in seconds"},
		cli.BoolFlag{Name: "quiet", Usage: "suppress per-connection open/close log lines"},
		cli.StringFlag{Name: "c", Value: "", Usage: "load settings from a JSON config file, overriding flags"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(c *cli.Context) error {
	cfg := &config.Config{
		Listen:      c.String("listen"),
		Target:      c.String("target"),
		Key:         c.String("key"),
		Crypt:       c.String("crypt"),
		QPP:         c.Bool("qpp"),
		QPPCount:    c.Int("qppcount"),
		NoComp:      c.Bool("nocomp"),
		DataShard:   c.Int("datashard"),
		ParityShard: c.Int("parityshard"),
		TCP:         c.Bool("tcp"),
		SnmpLog:     c.String("snmplog"),
		SnmpPeriod:  c.Int("snmpperiod"),
		Quiet:       c.Bool("quiet"),
	}
	if path := c.String("c"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		cfg = loaded
	}
	cfg.ApplyDefaults()

	if cfg.QPP {
		warnings, err := transport.ValidateQPPParams(cfg.QPPCount, cfg.Key)
		if err != nil {
			return errors.Wrap(err, "qpp params")
		}
		for _, w := range warnings {
			color.Red(w)
		}
	}

	log.Println("listening on:", cfg.Listen)
	log.Println("target address:", cfg.Target)
	log.Println("encryption:", cfg.Crypt)
	log.Println("qpp:", cfg.QPP, "qppcount:", cfg.QPPCount)
	log.Println("compression:", !cfg.NoComp)
	log.Println("fec datashard/parityshard:", cfg.DataShard, cfg.ParityShard)
	log.Println("tcp disguise:", cfg.TCP)

	counters := &stats.Counters{}
	go stats.Logger(counters, cfg.SnmpLog, cfg.SnmpPeriod)

	key := cfg.Key
	if cfg.Crypt != "null" && cfg.Crypt != "none" {
		key = string(transport.DeriveKey(cfg.Key))
	}

	pconn, err := transport.AcquirePacketConn(cfg.Listen, cfg.TCP)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	defer pconn.Close()

	sock, err := transport.NewSocket(pconn, transport.Options{
		Compress:     !cfg.NoComp,
		QPPKey:       qppKeyOf(cfg),
		QPPCount:     cfg.QPPCount,
		CryptName:    cfg.Crypt,
		CryptKey:     []byte(key),
		DataShards:   cfg.DataShard,
		ParityShards: cfg.ParityShard,
	})
	if err != nil {
		return errors.Wrap(err, "socket")
	}

	serve(cfg, sock, counters)
	return nil
}

func qppKeyOf(cfg *config.Config) string {
	if !cfg.QPP {
		return ""
	}
	return cfg.Key
}

// peerSocket adapts the shared transport.Socket to one fixed remote peer,
// the shape tcpconn.Conn expects, by handing it a private inbox fed by the
// demux loop in serve below.
type peerSocket struct {
	sock  transport.Socket
	peer  net.Addr
	inbox chan inboundSegment
}

type inboundSegment struct {
	seg segment.Segment
	err error
}

func (p *peerSocket) Send(seg segment.Segment, _ net.Addr) error { return p.sock.Send(seg, p.peer) }
func (p *peerSocket) LocalAddr() net.Addr                        { return p.sock.LocalAddr() }
func (p *peerSocket) Close() error                               { return nil } // the shared conn outlives any one peer

func (p *peerSocket) Recv() (segment.Segment, net.Addr, error) {
	m, ok := <-p.inbox
	if !ok {
		return segment.Segment{}, nil, errors.New("utcpd: peer connection closed")
	}
	return m.seg, p.peer, m.err
}

// serve runs the single demultiplexing loop over the one shared
// net.PacketConn: since this repo dropped kcp's UDPSession/Listener
// abstraction (see DESIGN.md), a new segment from an unseen source address
// carrying SYN starts a fresh tcpconn.Conn + relay goroutine; segments from
// a known address are routed to that peer's inbox.
func serve(cfg *config.Config, sock transport.Socket, counters *stats.Counters) {
	var mu sync.Mutex
	peers := make(map[string]*peerSocket)

	for {
		seg, addr, err := sock.Recv()
		if err != nil {
			log.Printf("%+v", err)
			mu.Lock()
			for _, p := range peers {
				close(p.inbox)
			}
			mu.Unlock()
			return
		}

		key := addr.String()
		mu.Lock()
		p, known := peers[key]
		if !known {
			if !seg.SYN {
				mu.Unlock()
				continue
			}
			p = &peerSocket{sock: sock, peer: addr, inbox: make(chan inboundSegment, 64)}
			peers[key] = p
			mu.Unlock()
			go handlePeer(cfg, p, counters, func() {
				mu.Lock()
				delete(peers, key)
				mu.Unlock()
			})
		} else {
			mu.Unlock()
		}

		select {
		case p.inbox <- inboundSegment{seg: seg}:
		default: // peer's inbox is saturated, drop rather than block the demux loop
		}
	}
}

// handlePeer dials target and bridges it to the reliable connection until
// either side closes, then runs cleanup to forget the peer.
func handlePeer(cfg *config.Config, p *peerSocket, counters *stats.Counters, cleanup func()) {
	defer cleanup()

	target, err := net.Dial("tcp", cfg.Target)
	if err != nil {
		logln(cfg, "dial target:", err)
		return
	}
	defer target.Close()

	conn := tcpconn.New(cfg, p, p.peer, false, counters)
	logln(cfg, "stream opened", "peer:", p.peer, "target:", cfg.Target)
	defer logln(cfg, "stream closed", "peer:", p.peer, "target:", cfg.Target)

	tcpconn.Pipe(target, conn)
}

func logln(cfg *config.Config, v ...any) {
	if !cfg.Quiet {
		log.Println(v...)
	}
}
