package rendezvous

import "github.com/pkg/errors"

// Sentinel errors a caller can match with errors.Is instead of
// parsing a diagnostic string.
var (
	// ErrSessionNotFound means the holepuncher reported that no
	// server holds the requested session id.
	ErrSessionNotFound = errors.New("rendezvous: session not found")
	// ErrHandshakeTimedOut means the 10s absolute handshake deadline
	// elapsed before Register/Join+Hello completed.
	ErrHandshakeTimedOut = errors.New("rendezvous: handshake timed out")
)
