// Package rendezvous implements the three role-specific state
// machines of the rendezvous protocol: Holepuncher, Server, and
// Client, sharing a single-threaded deadline/keepalive scheduler.
package rendezvous

import "time"

// Protocol timing constants.
const (
	// handshakeDeadline bounds the total time a Register or Join
	// handshake may take before it's considered failed.
	handshakeDeadline = 10 * time.Second
	// perReceiveDeadline is how long a single Receive call waits
	// during a handshake before the caller retries or retransmits.
	perReceiveDeadline = 500 * time.Millisecond
	// interSendInterval is the minimum spacing between retransmits of
	// the same request during a handshake.
	interSendInterval = 400 * time.Millisecond
	// helloRetries caps the number of HelloReq attempts per Join
	// before falling back to a fresh Join.
	helloRetries = 3
	// keepaliveInterval is how often the steady-state scheduler sends
	// its keepalive (Register to the holepuncher, or HelloReq to the
	// peer, depending on role).
	keepaliveInterval = 10 * time.Second
)
