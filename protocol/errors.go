package protocol

import "github.com/pkg/errors"

// Sentinel errors returned by Encode/Decode. Wrap with
// github.com/pkg/errors where extra context helps a caller building
// a diagnostic, but callers should compare against these with
// errors.Is rather than matching strings.
var (
	// ErrSessionIDTooLarge means a session-id exceeded MaxSessionIDSize.
	ErrSessionIDTooLarge = errors.New("protocol: session id exceeds maximum size")
	// ErrDataTooLarge means a Data payload exceeded MaxDataSize.
	ErrDataTooLarge = errors.New("protocol: data payload exceeds maximum size")
	// ErrMessageTooLarge means the encoded message would not fit in the u16 length field.
	ErrMessageTooLarge = errors.New("protocol: encoded message exceeds 65535 bytes")

	// ErrShortDatagram means the input is smaller than the 4-byte header.
	ErrShortDatagram = errors.New("protocol: datagram shorter than header")
	// ErrLengthMismatch means the declared length field doesn't match the datagram size.
	ErrLengthMismatch = errors.New("protocol: declared length does not match datagram size")
	// ErrUnknownType means the type code doesn't match any known variant.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformedPayload means a fixed-size or PeerInfo variant has an invalid payload.
	ErrMalformedPayload = errors.New("protocol: malformed payload for message type")
)
