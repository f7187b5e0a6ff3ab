package rendezvous

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Counters tracks per-operation totals for a running Holepuncher.
// Safe for concurrent use; a Holepuncher updates it from its single
// dispatch goroutine while CSVLogger reads it from a separate ticker
// goroutine.
type Counters struct {
	Registers         uint64
	Joins             uint64
	SessionNotFounds  uint64
	HelloReqs         uint64
	Interrupts        uint64
	MalformedDropped  uint64
	UnexpectedDropped uint64
}

// bump increments the named field by one. A nil *Counters is a
// no-op, so call sites don't need to guard every increment on
// whether a caller opted into metrics at all.
func (c *Counters) bump(field *uint64) {
	if c == nil {
		return
	}
	atomic.AddUint64(field, 1)
}

func (c *Counters) header() []string {
	return []string{"registers", "joins", "sessionNotFounds", "helloReqs", "interrupts", "malformedDropped", "unexpectedDropped"}
}

func (c *Counters) row() []string {
	return []string{
		fmt.Sprint(atomic.LoadUint64(&c.Registers)),
		fmt.Sprint(atomic.LoadUint64(&c.Joins)),
		fmt.Sprint(atomic.LoadUint64(&c.SessionNotFounds)),
		fmt.Sprint(atomic.LoadUint64(&c.HelloReqs)),
		fmt.Sprint(atomic.LoadUint64(&c.Interrupts)),
		fmt.Sprint(atomic.LoadUint64(&c.MalformedDropped)),
		fmt.Sprint(atomic.LoadUint64(&c.UnexpectedDropped)),
	}
}

// CSVLogger periodically appends a timestamped snapshot of counters
// to path, creating the file and a header row if it doesn't exist
// yet. It runs until ctx is canceled. A no-op if path is empty or
// interval <= 0, so callers can leave stats collection disabled by
// default.
func CSVLogger(ctx context.Context, path string, interval time.Duration, counters *Counters, log logrus.FieldLogger) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := appendSnapshot(path, counters); err != nil {
				log.WithError(err).Warn("failed to write counters snapshot")
			}
		}
	}
}

func appendSnapshot(path string, counters *Counters) error {
	dir, file := filepath.Split(path)
	f, err := os.OpenFile(filepath.Join(dir, time.Now().Format(file)), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(append([]string{"unix"}, counters.header()...)); err != nil {
			return err
		}
	}
	if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, counters.row()...)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
