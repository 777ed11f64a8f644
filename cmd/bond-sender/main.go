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
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/bondrelay/bond/config"
	"github.com/bondrelay/bond/link"
	"github.com/bondrelay/bond/netio"
	"github.com/bondrelay/bond/sched"
	"github.com/bondrelay/bond/stats"
	"github.com/bondrelay/bond/transport"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "bond-sender"
	app.Usage = "bonded low-latency media transport sender"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "links",
			Value: "127.0.0.1:29900",
			Usage: "comma-separated list of remote addr:port per bonded link; a single entry may expand to a port range, e.g. \"relay:29900-29903\"",
		},
		cli.IntFlag{
			Name:  "bitrate",
			Value: 2000,
			Usage: "nominal bitrate in kbps; the adaptation envelope is set to half and twice this value",
		},
		cli.IntFlag{
			Name:  "ratelimit",
			Value: 0,
			Usage: "per-link outbound pacing ceiling in bytes/sec (0 disables pacing)",
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
		color.Red("bond-sender: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if rl := c.Int("ratelimit"); rl > 0 {
		cfg.Scheduler.LinkRateCeilingBps = rl
	}

	logger := log.New(os.Stderr, "[sender] ", log.LstdFlags)
	sender := transport.NewSender(cfg, logger)

	id := uint8(1)
	for _, spec := range strings.Split(c.String("links"), ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		pr, err := netio.ParsePortRange(spec)
		if err != nil {
			return errors.Wrapf(err, "parse link spec %q", spec)
		}
		for _, addr := range pr.Addrs() {
			udp, err := netio.DialUDPLink(id, addr, cfg.Scheduler.LinkRateCeilingBps)
			if err != nil {
				return errors.Wrapf(err, "dial link %d (%s)", id, addr)
			}
			sender.AddLink(id, addr, udp)
			color.Green("link %d bonded to %s", id, addr)
			id++
		}
	}

	sender.SetAdaptationEnvelope(uint32(c.Int("bitrate"))/2, uint32(c.Int("bitrate"))*2)

	if path := c.String("statslog"); path != "" {
		go stats.CSVLog(path, time.Second, func() stats.Snapshot { return sender.Stats() })
	}
	go dumpStatsOnSIGUSR1(logger, func() stats.Snapshot { return sender.Stats() })

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	seq := uint64(0)
	for range ticker.C {
		now := time.Now()
		raw := map[uint8]link.Metrics{}
		sender.RefreshMetrics(now, raw)

		payload := []byte(fmt.Sprintf("frame-%d", seq))
		seq++
		if err := sender.Send(context.Background(), payload, transport.PacketProfile{SizeBytes: len(payload)}); err != nil {
			if errors.Is(err, sched.ErrAllLinksDead{}) {
				color.Yellow("all links dead, waiting for recovery")
				continue
			}
			logger.Printf("send error: %v", err)
		}
	}
	return nil
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
