//go:build !linux && !darwin && !freebsd

package main

import (
	"log"

	"github.com/bondrelay/bond/stats"
)

// dumpStatsOnSIGUSR1 is a no-op on platforms without SIGUSR1.
func dumpStatsOnSIGUSR1(logger *log.Logger, load func() stats.Snapshot) {}
