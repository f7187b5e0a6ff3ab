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

// Client is the passive role engine that knows a session id and asks
// the holepuncher to introduce it to whoever owns that session.
type Client struct {
	endpoint    *transport.Endpoint
	holepuncher *net.UDPAddr
	server      *net.UDPAddr

	keepaliveInterval time.Duration
	nextKeepaliveAt   time.Time

	drops *dropLogger
}

// NewClient binds an ephemeral socket and runs the Join+Hello
// handshake against holepuncher for sessionID:
//
//   - Phase J: send Join, retransmit every interSendInterval, wait for
//     either PeerInfo (advance to Phase H) or SessionNotFound (fail).
//   - Phase H: send HelloReq to the peer named by PeerInfo, retrying
//     up to helloRetries times (spaced interSendInterval apart); a
//     matching HelloResp completes the handshake. If retries are
//     exhausted before the overall deadline, fall back to Phase J,
//     since the holepuncher may have a fresher PeerInfo to offer.
//
// The whole process fails with ErrHandshakeTimedOut if it does not
// complete within handshakeDeadline of the first Join.
func NewClient(ctx context.Context, holepuncher *net.UDPAddr, sessionID []byte, opts ...Option) (*Client, error) {
	o := newEngineOptions(opts)

	endpoint, err := transport.Bind("0.0.0.0:0")
	if err != nil {
		return nil, errors.Wrap(err, "bind client socket")
	}

	c := &Client{
		endpoint:    endpoint,
		holepuncher: holepuncher,
		drops:       newDropLogger(o.log),
	}

	server, err := c.joinHandshake(ctx, sessionID)
	if err != nil {
		endpoint.Close()
		return nil, err
	}

	c.server = server
	c.endpoint.SetReadDeadline(0)
	c.keepaliveInterval = keepaliveInterval
	c.nextKeepaliveAt = time.Now().Add(keepaliveInterval)
	return c, nil
}

func (c *Client) joinHandshake(ctx context.Context, sessionID []byte) (*net.UDPAddr, error) {
	endAt := time.Now().Add(handshakeDeadline)

	for {
		if !time.Now().Before(endAt) {
			return nil, ErrHandshakeTimedOut
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		peer, err := c.phaseJoin(ctx, sessionID, endAt)
		if err != nil {
			return nil, err
		}

		server, err := c.phaseHello(ctx, peer, endAt)
		if err != nil {
			return nil, err
		}
		if server != nil {
			return server, nil
		}
		// Hello retries exhausted without exceeding the deadline;
		// loop back into Phase J for a fresh PeerInfo.
	}
}

// phaseJoin sends Join and waits for PeerInfo or SessionNotFound,
// retransmitting every interSendInterval until endAt.
func (c *Client) phaseJoin(ctx context.Context, sessionID []byte, endAt time.Time) (*net.UDPAddr, error) {
	request := protocol.Join{SessionID: sessionID}
	if err := c.endpoint.Send(request, c.holepuncher); err != nil {
		return nil, errors.Wrap(err, "send Join")
	}
	nextRetryAt := time.Now().Add(interSendInterval)

	for time.Now().Before(endAt) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(nextRetryAt) {
			if err := c.endpoint.Send(request, c.holepuncher); err != nil {
				return nil, errors.Wrap(err, "send Join")
			}
			nextRetryAt = time.Now().Add(interSendInterval)
		}

		c.endpoint.SetReadDeadline(perReceiveDeadline)
		msg, source, err := c.endpoint.Receive()
		if err != nil {
			if _, ok := err.(*transport.DecodeError); ok {
				continue
			}
			if transport.IsFatal(err) {
				return nil, errors.Wrap(err, "fatal receive error during join")
			}
			continue
		}

		switch m := msg.(type) {
		case protocol.PeerInfo:
			if !addrEqual(source, c.holepuncher) {
				continue
			}
			return m.Addr.UDPAddr(), nil
		case protocol.SessionNotFound:
			if !bytes.Equal(m.SessionID, sessionID) {
				continue
			}
			return nil, ErrSessionNotFound
		default:
			continue
		}
	}

	return nil, ErrHandshakeTimedOut
}

// phaseHello sends HelloReq to peer, retrying up to helloRetries
// times, spaced interSendInterval apart, and only once
// nextHelloRetryAt has actually elapsed. Returns the peer on success,
// or (nil, nil) if retries were exhausted without the overall
// deadline passing (caller should retry Phase J).
func (c *Client) phaseHello(ctx context.Context, peer *net.UDPAddr, endAt time.Time) (*net.UDPAddr, error) {
	if err := c.endpoint.Send(protocol.HelloReq{}, peer); err != nil {
		return nil, errors.Wrap(err, "send HelloReq")
	}
	nextHelloRetryAt := time.Now().Add(interSendInterval)
	attempts := 1

	for attempts < helloRetries && time.Now().Before(endAt) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !time.Now().Before(nextHelloRetryAt) {
			if err := c.endpoint.Send(protocol.HelloReq{}, peer); err != nil {
				return nil, errors.Wrap(err, "send HelloReq")
			}
			nextHelloRetryAt = time.Now().Add(interSendInterval)
			attempts++
		}

		c.endpoint.SetReadDeadline(perReceiveDeadline)
		msg, source, err := c.endpoint.Receive()
		if err != nil {
			if _, ok := err.(*transport.DecodeError); ok {
				continue
			}
			if transport.IsFatal(err) {
				return nil, errors.Wrap(err, "fatal receive error during hello")
			}
			continue
		}

		if _, ok := msg.(protocol.HelloResp); !ok {
			continue
		}
		if !addrEqual(source, peer) {
			continue
		}
		return peer, nil
	}

	if !time.Now().Before(endAt) {
		return nil, ErrHandshakeTimedOut
	}
	return nil, nil
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.endpoint.Close()
}

// LocalPort returns the bound port.
func (c *Client) LocalPort() (int, error) {
	return c.endpoint.LocalPort()
}

// Server returns the address of the server this client is connected to.
func (c *Client) Server() *net.UDPAddr {
	return c.server
}

// SendDatagram sends an opaque application payload to to.
func (c *Client) SendDatagram(to *net.UDPAddr, data []byte) error {
	return errors.Wrap(c.endpoint.Send(protocol.Data{Payload: data}, to), "send Data")
}

// WaitForData mirrors Server.WaitForData, substituting the client's
// own keepalive: HelloReq to the peer server (not Register to the
// holepuncher), since the NAT pinhole that matters here is the one
// toward the peer. Holepuncher-sourced PeerInfo is still treated as a
// hole-punch trigger, redundant once connected, but harmless.
func (c *Client) WaitForData(timeout time.Duration, allowInterrupt bool) (*net.UDPAddr, []byte, error) {
	var returnAt time.Time
	if timeout > 0 {
		returnAt = time.Now().Add(timeout)
	}

	for {
		now := time.Now()

		if now.After(c.nextKeepaliveAt) {
			if err := c.endpoint.Send(protocol.HelloReq{}, c.server); err != nil {
				return nil, nil, errors.Wrap(err, "send keepalive HelloReq")
			}
			now = time.Now()
			c.nextKeepaliveAt = now.Add(c.keepaliveInterval)
		}

		if !returnAt.IsZero() && now.After(returnAt) {
			c.endpoint.SetReadDeadline(0)
			return nil, nil, nil
		}

		nextWakeup := c.nextKeepaliveAt
		if !returnAt.IsZero() && returnAt.Before(nextWakeup) {
			nextWakeup = returnAt
		}

		if !nextWakeup.After(now) {
			continue
		}
		c.endpoint.SetReadDeadline(nextWakeup.Sub(now))

		msg, source, err := c.endpoint.Receive()
		if err != nil {
			if _, ok := err.(*transport.DecodeError); ok {
				c.drops.drop("dropping malformed datagram", logrus.Fields{"source": source})
				continue
			}
			if transport.IsFatal(err) {
				return nil, nil, errors.Wrap(err, "fatal receive error")
			}
			continue
		}

		switch m := msg.(type) {
		case protocol.HelloReq:
			if err := c.endpoint.Send(protocol.HelloResp{}, source); err != nil {
				return nil, nil, errors.Wrap(err, "send HelloResp")
			}
		case protocol.PeerInfo:
			if !addrEqual(source, c.holepuncher) {
				continue
			}
			peer := m.Addr.UDPAddr()
			if err := c.endpoint.Send(protocol.HelloReq{}, peer); err != nil {
				return nil, nil, errors.Wrap(err, "send HelloReq to peer")
			}
		case protocol.Data:
			c.endpoint.SetReadDeadline(0)
			return source, m.Payload, nil
		case protocol.LocalInterrupt:
			if allowInterrupt && source.IP.IsLoopback() {
				c.endpoint.SetReadDeadline(0)
				return nil, nil, nil
			}
		default:
			c.drops.drop("dropping unexpected message", logrus.Fields{"type": msg.Type(), "source": source})
		}
	}
}
