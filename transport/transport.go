// Package transport wraps a UDP socket with the minimal contract the
// rendezvous role engines need: bind, send a Message, receive a
// (Message, source) pair with a deadline, and classify receive
// failures as fatal or transient.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/valentindimov/rendezvous/protocol"
)

// maxDatagramSize is the largest UDP datagram this package will ever
// read; anything bigger is impossible to produce under the codec's
// own caps, but the receive buffer still has to be sized for the
// worst case a raw socket can deliver.
const maxDatagramSize = 65536

// Endpoint owns exactly one UDP socket. The caller is responsible for
// routing all sends/receives for a given role engine through one
// Endpoint, and for calling Close when the engine is torn down.
type Endpoint struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket on addr ("0.0.0.0:0" for an ephemeral port,
// or a specific host:port for the holepuncher).
func Bind(addr string) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve bind address")
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "bind udp socket")
	}
	return &Endpoint{conn: conn}, nil
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// LocalPort returns the bound port, used by tests and diagnostics.
func (e *Endpoint) LocalPort() (int, error) {
	addr, ok := e.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, errors.New("transport: local address is not a UDP address")
	}
	return addr.Port, nil
}

// SetReadDeadline arms the deadline for the next Receive call. A zero
// duration clears the deadline (unbounded wait).
func (e *Endpoint) SetReadDeadline(d time.Duration) error {
	if d <= 0 {
		return e.conn.SetReadDeadline(time.Time{})
	}
	return e.conn.SetReadDeadline(time.Now().Add(d))
}

// Send encodes msg and writes it to dest in a single datagram.
// ShortSendError is returned distinctly from a generic I/O error
// because a partial UDP write violates the transport's own
// datagram-atomicity guarantee and callers may want to react to that
// specifically.
func (e *Endpoint) Send(msg protocol.Message, dest *net.UDPAddr) error {
	encoded, err := protocol.Encode(msg)
	if err != nil {
		return &EncodeError{Err: err}
	}
	n, err := e.conn.WriteToUDP(encoded, dest)
	if err != nil {
		return &IOSendError{Err: err}
	}
	if n != len(encoded) {
		return &ShortSendError{Written: n, Total: len(encoded)}
	}
	return nil
}

// Receive waits (subject to the armed read deadline) for the next
// datagram, decodes it, and returns it with its source address.
// Decode failures are a distinct, always-transient error: a malformed
// datagram from the open internet must never abort a serve loop.
func (e *Endpoint) Receive() (protocol.Message, *net.UDPAddr, error) {
	buf := make([]byte, maxDatagramSize)
	n, srcAddr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, classifyReceiveError(err)
	}

	msg, err := protocol.Decode(buf[:n])
	if err != nil {
		return nil, srcAddr, &DecodeError{Err: err}
	}
	return msg, srcAddr, nil
}

func classifyReceiveError(err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return &TransientReceiveError{Err: err}
	}
	if errors.Is(err, net.ErrClosed) {
		return &FatalReceiveError{Err: err}
	}
	return &FatalReceiveError{Err: err}
}
