package rendezvous

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// dropLogInterval bounds how often a single engine will log about
// decode failures or foreign/unexpected datagrams. These are dropped
// silently in terms of protocol behavior, but a completely silent
// operator has no way to notice a flood happening, so we log at a
// capped rate instead of either extreme.
const dropLogInterval = time.Second

// dropLogger rate-limits Debug-level logging of dropped/malformed
// datagrams so a flood of garbage can't also flood the log.
type dropLogger struct {
	log      logrus.FieldLogger
	mu       sync.Mutex
	lastLog  time.Time
	suppress int
}

func newDropLogger(log logrus.FieldLogger) *dropLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &dropLogger{log: log}
}

func (d *dropLogger) drop(reason string, fields logrus.Fields) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !d.lastLog.IsZero() && now.Sub(d.lastLog) < dropLogInterval {
		d.suppress++
		return
	}

	entry := d.log.WithFields(fields)
	if d.suppress > 0 {
		entry = entry.WithField("suppressed", d.suppress)
	}
	entry.Debug(reason)
	d.lastLog = now
	d.suppress = 0
}
