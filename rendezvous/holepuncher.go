package rendezvous

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/valentindimov/rendezvous/protocol"
	"github.com/valentindimov/rendezvous/registry"
	"github.com/valentindimov/rendezvous/transport"
)

// Holepuncher is the publicly reachable rendezvous point. It owns one
// datagram endpoint and the session registry; no other component
// mutates the registry.
type Holepuncher struct {
	endpoint *transport.Endpoint
	store    registry.Store
	drops    *dropLogger
	log      logrus.FieldLogger
	counters *Counters
}

// NewHolepuncher binds listenAddr and returns a Holepuncher ready to
// Serve. store is typically a fresh registry.NewMapStore(), or a
// registry.NewLRU(capacity) to bound memory.
func NewHolepuncher(listenAddr string, store registry.Store, opts ...Option) (*Holepuncher, error) {
	o := newEngineOptions(opts)

	endpoint, err := transport.Bind(listenAddr)
	if err != nil {
		return nil, errors.Wrap(err, "bind holepuncher listen address")
	}

	return &Holepuncher{
		endpoint: endpoint,
		store:    store,
		drops:    newDropLogger(o.log),
		log:      o.log,
		counters: o.counters,
	}, nil
}

// Close releases the holepuncher's socket.
func (h *Holepuncher) Close() error {
	return h.endpoint.Close()
}

// LocalPort returns the bound listen port.
func (h *Holepuncher) LocalPort() (int, error) {
	return h.endpoint.LocalPort()
}

// Serve processes incoming datagrams until one of:
//   - deadline elapses (deadline <= 0 means unbounded),
//   - a LocalInterrupt arrives from loopback and allowInterrupt is true,
//   - ctx is canceled,
//   - a fatal I/O or send error occurs.
//
// Register adds/overwrites a session; Join introduces the requester
// and the registered server to each other with a pair of PeerInfo
// messages (the actual "hole punch"); HelloReq lets any peer probe
// the holepuncher itself; everything else is dropped.
func (h *Holepuncher) Serve(ctx context.Context, deadline time.Duration, allowInterrupt bool) error {
	const ctxPollInterval = 500 * time.Millisecond
	var returnAt time.Time
	if deadline > 0 {
		returnAt = time.Now().Add(deadline)
	}

	for {
		select {
		case <-ctx.Done():
			h.endpoint.SetReadDeadline(0)
			return ctx.Err()
		default:
		}

		// Each receive waits at most ctxPollInterval, so a canceled ctx
		// is noticed even while no datagrams arrive.
		now := time.Now()
		wait := ctxPollInterval
		if !returnAt.IsZero() {
			if !now.Before(returnAt) {
				h.endpoint.SetReadDeadline(0)
				return nil
			}
			if remaining := returnAt.Sub(now); remaining < wait {
				wait = remaining
			}
		}
		h.endpoint.SetReadDeadline(wait)

		msg, source, err := h.endpoint.Receive()
		if err != nil {
			if _, ok := err.(*transport.DecodeError); ok {
				h.counters.bump(&h.counters.MalformedDropped)
				h.drops.drop("dropping malformed datagram", logrus.Fields{"source": source})
				continue
			}
			if transport.IsFatal(err) {
				return errors.Wrap(err, "fatal receive error")
			}
			continue
		}

		if err := h.dispatch(msg, source, allowInterrupt); err != nil {
			if err == errInterrupted {
				h.endpoint.SetReadDeadline(0)
				return nil
			}
			return err
		}
	}
}

// errInterrupted is an internal sentinel used to unwind Serve's loop
// on a valid LocalInterrupt without treating it as a failure.
var errInterrupted = errors.New("rendezvous: interrupted")

func (h *Holepuncher) dispatch(msg protocol.Message, source *net.UDPAddr, allowInterrupt bool) error {
	switch m := msg.(type) {
	case protocol.Register:
		h.counters.bump(&h.counters.Registers)
		h.store.Insert(m.SessionID, source)
		if err := h.endpoint.Send(protocol.RegisterAck{SessionID: m.SessionID}, source); err != nil {
			return errors.Wrap(err, "send RegisterAck")
		}
	case protocol.Join:
		h.counters.bump(&h.counters.Joins)
		server, ok := h.store.Lookup(m.SessionID)
		if !ok {
			h.counters.bump(&h.counters.SessionNotFounds)
			if err := h.endpoint.Send(protocol.SessionNotFound{SessionID: m.SessionID}, source); err != nil {
				return errors.Wrap(err, "send SessionNotFound")
			}
			return nil
		}
		if err := h.endpoint.Send(protocol.PeerInfo{Addr: protocol.NewPeerAddr(server)}, source); err != nil {
			return errors.Wrap(err, "send PeerInfo to joiner")
		}
		if err := h.endpoint.Send(protocol.PeerInfo{Addr: protocol.NewPeerAddr(source)}, server); err != nil {
			return errors.Wrap(err, "send PeerInfo to server")
		}
	case protocol.HelloReq:
		h.counters.bump(&h.counters.HelloReqs)
		if err := h.endpoint.Send(protocol.HelloResp{}, source); err != nil {
			return errors.Wrap(err, "send HelloResp")
		}
	case protocol.LocalInterrupt:
		if allowInterrupt && source.IP.IsLoopback() {
			h.counters.bump(&h.counters.Interrupts)
			return errInterrupted
		}
	default:
		h.counters.bump(&h.counters.UnexpectedDropped)
		h.drops.drop("dropping unexpected message", logrus.Fields{"type": msg.Type(), "source": source})
	}
	return nil
}
