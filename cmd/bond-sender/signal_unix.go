//go:build linux || darwin || freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bondrelay/bond/stats"
)

// dumpStatsOnSIGUSR1 logs the current telemetry snapshot whenever the
// process receives SIGUSR1, for ad hoc inspection without a statslog file.
func dumpStatsOnSIGUSR1(logger *log.Logger, load func() stats.Snapshot) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		logger.Printf("stats: %+v", load())
	}
}
