// Package protocol implements the wire codec for the rendezvous
// message set: a 4-byte length+type header followed by a
// variant-dependent payload, all big-endian, one message per UDP
// datagram.
package protocol

// Type codes, as carried in bytes 2..4 of every encoded message.
const (
	TypeLocalInterrupt   uint16 = 1
	TypeRegister         uint16 = 2
	TypeJoin             uint16 = 3
	TypePeerInfo         uint16 = 4
	TypeData             uint16 = 5
	TypeRegisterAck      uint16 = 6
	TypeSessionNotFound  uint16 = 7
	TypeHelloReq         uint16 = 8
	TypeHelloResp        uint16 = 9
)

// Size limits enforced by both Encode and Decode.
const (
	// MaxSessionIDSize bounds Register/Join/RegisterAck/SessionNotFound payloads.
	MaxSessionIDSize = 20
	// MaxDataSize bounds Data payloads.
	MaxDataSize = 1024
	// headerLen is the length+type prefix present on every message.
	headerLen = 4
	// peerInfoV4Len is the total encoded length of a v4 PeerInfo message.
	peerInfoV4Len = 11
	// peerInfoV6Len is the total encoded length of a v6 PeerInfo message.
	peerInfoV6Len = 23
	familyV4      = 4
	familyV6      = 6
)

// Message is implemented by every wire variant. Type returns the
// variant's type code, matching the constants above.
type Message interface {
	Type() uint16
}

// LocalInterrupt asks a role engine's serve loop to return. Only
// honored when sourced from loopback and the engine permits interrupts.
type LocalInterrupt struct{}

// Register asks the holepuncher to remember the sender's external
// address under SessionID. Also used as the Server's keepalive.
type Register struct {
	SessionID []byte
}

// Join asks the holepuncher to introduce the sender to whoever last
// registered SessionID.
type Join struct {
	SessionID []byte
}

// PeerInfo carries one peer's externally-visible transport address.
// Sent by the holepuncher to both sides of a successful Join.
type PeerInfo struct {
	Addr PeerAddr
}

// Data is an opaque application payload exchanged between Server and
// Client once the hole punch has succeeded.
type Data struct {
	Payload []byte
}

// RegisterAck confirms a Register was stored.
type RegisterAck struct {
	SessionID []byte
}

// SessionNotFound tells a joining Client that no Server holds
// SessionID.
type SessionNotFound struct {
	SessionID []byte
}

// HelloReq probes a peer (or the holepuncher itself) to see if it's
// reachable. Also used as the Client's keepalive to its server.
type HelloReq struct{}

// HelloResp answers a HelloReq.
type HelloResp struct{}

func (LocalInterrupt) Type() uint16   { return TypeLocalInterrupt }
func (Register) Type() uint16         { return TypeRegister }
func (Join) Type() uint16             { return TypeJoin }
func (PeerInfo) Type() uint16         { return TypePeerInfo }
func (Data) Type() uint16             { return TypeData }
func (RegisterAck) Type() uint16      { return TypeRegisterAck }
func (SessionNotFound) Type() uint16  { return TypeSessionNotFound }
func (HelloReq) Type() uint16         { return TypeHelloReq }
func (HelloResp) Type() uint16        { return TypeHelloResp }
