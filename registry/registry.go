// Package registry implements the holepuncher's session store: a
// mapping from opaque session-id bytes to the last transport address
// that registered under that id.
package registry

import "net"

// Store is the contract the Holepuncher engine uses to remember and
// look up sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Insert records addr as the current owner of sessionID,
	// overwriting any previous entry. Idempotent.
	Insert(sessionID []byte, addr *net.UDPAddr)
	// Lookup returns the address currently registered under
	// sessionID, or ok == false if none is registered.
	Lookup(sessionID []byte) (addr *net.UDPAddr, ok bool)
}

// key turns a session-id into a comparable map key. Session-ids are
// compared byte-exact with no normalization, so a plain string
// conversion is the right equality semantics.
func key(sessionID []byte) string {
	return string(sessionID)
}
