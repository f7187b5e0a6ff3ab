package rendezvous

import "github.com/sirupsen/logrus"

// Option configures optional, non-protocol-affecting behavior of a
// role engine (currently: where it logs dropped/malformed datagrams,
// and which Counters a Holepuncher tallies into).
type Option func(*engineOptions)

type engineOptions struct {
	log      logrus.FieldLogger
	counters *Counters
}

func newEngineOptions(opts []Option) engineOptions {
	o := engineOptions{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger directs an engine's drop/error diagnostics to log
// instead of the default standard logrus logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *engineOptions) {
		o.log = log
	}
}

// WithCounters has a Holepuncher tally its dispatch outcomes into
// counters, typically paired with CSVLogger for periodic snapshots.
func WithCounters(counters *Counters) Option {
	return func(o *engineOptions) {
		o.counters = counters
	}
}
