package rendezvous

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/valentindimov/rendezvous/protocol"
	"github.com/valentindimov/rendezvous/transport"
)

// Server is the passive role engine that owns a session: it registers
// the session with a holepuncher, then serves datagrams from whoever
// the holepuncher introduces to it.
type Server struct {
	endpoint    *transport.Endpoint
	holepuncher *net.UDPAddr
	sessionID   []byte

	keepaliveInterval time.Duration
	nextKeepaliveAt   time.Time

	drops *dropLogger
}

// NewServer binds an ephemeral socket and performs the Register
// handshake against holepuncher: send Register, retransmit every
// interSendInterval, wait up to handshakeDeadline total for a
// matching RegisterAck.
func NewServer(ctx context.Context, holepuncher *net.UDPAddr, sessionID []byte, opts ...Option) (*Server, error) {
	o := newEngineOptions(opts)

	endpoint, err := transport.Bind("0.0.0.0:0")
	if err != nil {
		return nil, errors.Wrap(err, "bind server socket")
	}

	s := &Server{
		endpoint:    endpoint,
		holepuncher: holepuncher,
		sessionID:   sessionID,
		drops:       newDropLogger(o.log),
	}

	if err := s.registerHandshake(ctx); err != nil {
		endpoint.Close()
		return nil, err
	}

	s.endpoint.SetReadDeadline(0)
	s.keepaliveInterval = keepaliveInterval
	s.nextKeepaliveAt = time.Now().Add(keepaliveInterval)
	return s, nil
}

func (s *Server) registerHandshake(ctx context.Context) error {
	endAt := time.Now().Add(handshakeDeadline)
	request := protocol.Register{SessionID: s.sessionID}

	if err := s.endpoint.Send(request, s.holepuncher); err != nil {
		return errors.Wrap(err, "send Register")
	}
	nextRetryAt := time.Now().Add(interSendInterval)

	for time.Now().Before(endAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(nextRetryAt) {
			if err := s.endpoint.Send(request, s.holepuncher); err != nil {
				return errors.Wrap(err, "send Register")
			}
			nextRetryAt = time.Now().Add(interSendInterval)
		}

		s.endpoint.SetReadDeadline(perReceiveDeadline)
		msg, source, err := s.endpoint.Receive()
		if err != nil {
			if _, ok := err.(*transport.DecodeError); ok {
				continue
			}
			if transport.IsFatal(err) {
				return errors.Wrap(err, "fatal receive error during register handshake")
			}
			continue
		}

		ack, ok := msg.(protocol.RegisterAck)
		if !ok {
			continue
		}
		if !addrEqual(source, s.holepuncher) {
			continue
		}
		if !bytes.Equal(ack.SessionID, s.sessionID) {
			continue
		}
		return nil
	}

	return ErrHandshakeTimedOut
}

// Close releases the server's socket.
func (s *Server) Close() error {
	return s.endpoint.Close()
}

// LocalPort returns the bound port.
func (s *Server) LocalPort() (int, error) {
	return s.endpoint.LocalPort()
}

// SendDatagram sends an opaque application payload to to.
func (s *Server) SendDatagram(to *net.UDPAddr, data []byte) error {
	return errors.Wrap(s.endpoint.Send(protocol.Data{Payload: data}, to), "send Data")
}

// WaitForData runs the steady-state scheduler until a Data message
// arrives, timeout elapses (returns nil, nil, nil), or, if
// allowInterrupt, a loopback LocalInterrupt arrives (also nil, nil,
// nil). Every keepaliveInterval it re-sends Register to the
// holepuncher, both refreshing the registry entry and keeping the NAT
// mapping toward the holepuncher alive. A PeerInfo from the
// holepuncher triggers exactly one HelloReq to the named peer, the
// server's half of the hole punch with a joining client.
func (s *Server) WaitForData(timeout time.Duration, allowInterrupt bool) (*net.UDPAddr, []byte, error) {
	var returnAt time.Time
	if timeout > 0 {
		returnAt = time.Now().Add(timeout)
	}

	for {
		now := time.Now()

		if now.After(s.nextKeepaliveAt) {
			if err := s.endpoint.Send(protocol.Register{SessionID: s.sessionID}, s.holepuncher); err != nil {
				return nil, nil, errors.Wrap(err, "send keepalive Register")
			}
			now = time.Now()
			s.nextKeepaliveAt = now.Add(s.keepaliveInterval)
		}

		if !returnAt.IsZero() && now.After(returnAt) {
			s.endpoint.SetReadDeadline(0)
			return nil, nil, nil
		}

		nextWakeup := s.nextKeepaliveAt
		if !returnAt.IsZero() && returnAt.Before(nextWakeup) {
			nextWakeup = returnAt
		}

		if !nextWakeup.After(now) {
			continue
		}
		s.endpoint.SetReadDeadline(nextWakeup.Sub(now))

		msg, source, err := s.endpoint.Receive()
		if err != nil {
			if _, ok := err.(*transport.DecodeError); ok {
				s.drops.drop("dropping malformed datagram", logrus.Fields{"source": source})
				continue
			}
			if transport.IsFatal(err) {
				return nil, nil, errors.Wrap(err, "fatal receive error")
			}
			continue
		}

		switch m := msg.(type) {
		case protocol.HelloReq:
			if err := s.endpoint.Send(protocol.HelloResp{}, source); err != nil {
				return nil, nil, errors.Wrap(err, "send HelloResp")
			}
		case protocol.PeerInfo:
			if !addrEqual(source, s.holepuncher) {
				continue
			}
			peer := m.Addr.UDPAddr()
			if err := s.endpoint.Send(protocol.HelloReq{}, peer); err != nil {
				return nil, nil, errors.Wrap(err, "send HelloReq to peer")
			}
		case protocol.Data:
			s.endpoint.SetReadDeadline(0)
			return source, m.Payload, nil
		case protocol.LocalInterrupt:
			if allowInterrupt && source.IP.IsLoopback() {
				s.endpoint.SetReadDeadline(0)
				return nil, nil, nil
			}
		default:
			s.drops.drop("dropping unexpected message", logrus.Fields{"type": msg.Type(), "source": source})
		}
	}
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
