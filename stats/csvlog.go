package stats

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Snapshot is anything CSVLog can append a row for: a column header and a
// value row, both in matching order.
type Snapshot interface {
	Header() []string
	Row() []string
}

// CSVLog periodically appends load()'s current snapshot to a CSV file at
// path, one row per tick. path is passed through time.Format before each
// write so callers can roll files by day/hour (e.g. "bond-%Y%m%d.csv"
// equivalents using Go's reference-time layout). Runs until the process
// exits; intended to be started in its own goroutine.
func CSVLog(path string, interval time.Duration, load func() Snapshot) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		dir, file := filepath.Split(path)
		f, err := os.OpenFile(dir+time.Now().Format(file), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			continue
		}
		snap := load()
		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, snap.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, snap.Row()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}

func formatUint(v uint64) string  { return strconv.FormatUint(v, 10) }
func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func formatBool(v bool) string     { return strconv.FormatBool(v) }
