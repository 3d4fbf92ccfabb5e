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

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/xtaci/utcp/config"
	"github.com/xtaci/utcp/internal/stats"
	"github.com/xtaci/utcp/tcpconn"
	"github.com/xtaci/utcp/transport"
)

// VERSION is injected by buildflags, matching the teacher's client/main.go.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "utcpc"
	app.Usage = "client: accept local TCP, carry each connection over utcp"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "localaddr,l", Value: ":12948", Usage: "local listen address"},
		cli.StringFlag{Name: "remoteaddr,r", Value: "127.0.0.1:29900", Usage: "utcp server address"},
		cli.StringFlag{Name: "key", Value: "it's a secret", Usage: "pre-shared secret", EnvVar: "UTCP_KEY"},
		cli.StringFlag{Name: "crypt", Value: "aes-128", Usage: "aes-128, aes-192, aes-128-gcm, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.BoolFlag{Name: "qpp", Usage: "enable Quantum Permutation Pads"},
		cli.IntFlag{Name: "qppcount", Value: 61, Usage: "number of QPP pads, pick a prime"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable snappy compression"},
		cli.IntFlag{Name: "datashard,ds", Value: 0, Usage: "FEC data shards, 0 disables FEC"},
		cli.IntFlag{Name: "parityshard,ps", Value: 0, Usage: "FEC parity shards, 0 disables FEC"},
		cli.BoolFlag{Name: "tcp", Usage: "disguise the link as TCP via tcpraw (linux)"},
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
		Listen:      c.String("localaddr"),
		Remote:      c.String("remoteaddr"),
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
	log.Println("remote address:", cfg.Remote)
	log.Println("encryption:", cfg.Crypt)
	log.Println("qpp:", cfg.QPP, "qppcount:", cfg.QPPCount)
	log.Println("compression:", !cfg.NoComp)
	log.Println("fec datashard/parityshard:", cfg.DataShard, cfg.ParityShard)
	log.Println("tcp disguise:", cfg.TCP)

	counters := &stats.Counters{}
	go stats.Logger(counters, cfg.SnmpLog, cfg.SnmpPeriod)

	addr, err := net.ResolveTCPAddr("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "resolve local listen address")
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen locally")
	}
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "accept")
		}
		go handleLocal(cfg, counters, conn)
	}
}

// handleLocal dials the utcp server fresh for every accepted local
// connection (no stream multiplexing, see DESIGN.md: this repo's
// tcpconn.Conn already is the one reliable stream per spec) and pipes the
// two together until either side closes.
func handleLocal(cfg *config.Config, counters *stats.Counters, local net.Conn) {
	defer local.Close()

	key := cfg.Key
	if cfg.Crypt != "null" && cfg.Crypt != "none" {
		key = string(transport.DeriveKey(cfg.Key))
	}

	pconn, remoteAddr, err := transport.DialPacketConn(cfg.Remote, cfg.TCP)
	if err != nil {
		logln(cfg, "dial:", err)
		return
	}

	sock, err := transport.NewSocket(pconn, socketOptions(cfg, key))
	if err != nil {
		logln(cfg, "socket:", err)
		pconn.Close()
		return
	}

	conn := tcpconn.New(cfg, sock, remoteAddr, true, counters)
	logln(cfg, "stream opened", "in:", local.RemoteAddr(), "out:", remoteAddr)
	defer logln(cfg, "stream closed", "in:", local.RemoteAddr(), "out:", remoteAddr)

	tcpconn.Pipe(local, conn)
}

func socketOptions(cfg *config.Config, key string) transport.Options {
	return transport.Options{
		Compress:     !cfg.NoComp,
		QPPKey:       qppKeyOf(cfg),
		QPPCount:     cfg.QPPCount,
		CryptName:    cfg.Crypt,
		CryptKey:     []byte(key),
		DataShards:   cfg.DataShard,
		ParityShards: cfg.ParityShard,
	}
}

func qppKeyOf(cfg *config.Config) string {
	if !cfg.QPP {
		return ""
	}
	return cfg.Key
}

func logln(cfg *config.Config, v ...any) {
	if !cfg.Quiet {
		log.Println(v...)
	}
}
