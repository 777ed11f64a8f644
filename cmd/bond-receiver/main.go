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
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/bondrelay/bond/config"
	"github.com/bondrelay/bond/netio"
	"github.com/bondrelay/bond/stats"
	"github.com/bondrelay/bond/transport"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "bond-receiver"
	app.Usage = "bonded low-latency media transport receiver"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen",
			Value: ":29900",
			Usage: "comma-separated list of local addr:port to listen on, one per bonded link; a single entry may expand to a port range, e.g. \":29900-29903\"",
		},
		cli.IntFlag{
			Name:  "generation",
			Value: 16,
			Usage: "FEC source-symbol window size (K) the sender is using",
		},
		cli.StringFlag{
			Name:  "config",
			Value: "",
			Usage: "path to a JSON config file (see config.Input)",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "path to append periodic CSV telemetry rows to (supports time.Format layout tokens in the filename)",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		color.Red("bond-receiver: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger := log.New(os.Stderr, "[receiver] ", log.LstdFlags)
	receiver := transport.NewReceiver(cfg, c.Int("generation"), logger)

	id := 1
	for _, spec := range strings.Split(c.String("listen"), ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		pr, err := netio.ParsePortRange(spec)
		if err != nil {
			return errors.Wrapf(err, "parse listen spec %q", spec)
		}
		for _, addr := range pr.Addrs() {
			laddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				return errors.Wrapf(err, "resolve listen addr %s", addr)
			}
			conn, err := net.ListenUDP("udp", laddr)
			if err != nil {
				return errors.Wrapf(err, "listen %s", addr)
			}
			color.Green("link %d listening on %s", id, addr)
			go pump(conn, receiver)
			id++
		}
	}

	if path := c.String("statslog"); path != "" {
		go stats.CSVLog(path, time.Second, func() stats.Snapshot { return receiver.Stats() })
	}
	go dumpStatsOnSIGUSR1(logger, func() stats.Snapshot { return receiver.Stats() })

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		receiver.Tick(now)
		drainPayloads(receiver)
	}
	return nil
}

func pump(conn *net.UDPConn, receiver *transport.Receiver) {
	buf := make([]byte, 65536)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		receiver.HandleRaw(time.Now(), raw)
	}
}

func drainPayloads(receiver *transport.Receiver) {
	for {
		select {
		case pkt := <-receiver.Payloads():
			_ = pkt // handed to the media pipeline in a full deployment
		default:
			return
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Resolve(config.Input{Version: config.CurrentVersion})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "read config file")
	}
	return config.ParseJSON(data)
}
