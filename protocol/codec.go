package protocol

import (
	"encoding/binary"
	"net"
)

// Encode serializes m into its wire form. It fails when m's
// session-id exceeds MaxSessionIDSize, its data exceeds MaxDataSize,
// or the resulting length would not fit in a uint16.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case LocalInterrupt:
		return fixedHeader(TypeLocalInterrupt), nil
	case HelloReq:
		return fixedHeader(TypeHelloReq), nil
	case HelloResp:
		return fixedHeader(TypeHelloResp), nil
	case Register:
		return encodeSessionID(TypeRegister, msg.SessionID)
	case RegisterAck:
		return encodeSessionID(TypeRegisterAck, msg.SessionID)
	case Join:
		return encodeSessionID(TypeJoin, msg.SessionID)
	case SessionNotFound:
		return encodeSessionID(TypeSessionNotFound, msg.SessionID)
	case Data:
		return encodeData(msg.Payload)
	case PeerInfo:
		return encodePeerInfo(msg.Addr)
	default:
		return nil, ErrUnknownType
	}
}

// Decode parses a single received datagram into a Message. Decode is
// pure: it never mutates from and has no side effects.
func Decode(from []byte) (Message, error) {
	if len(from) < headerLen {
		return nil, ErrShortDatagram
	}

	declaredLen := binary.BigEndian.Uint16(from[0:2])
	if int(declaredLen) != len(from) {
		return nil, ErrLengthMismatch
	}
	msgType := binary.BigEndian.Uint16(from[2:4])

	switch msgType {
	case TypeLocalInterrupt:
		return decodeFixed(from, LocalInterrupt{})
	case TypeHelloReq:
		return decodeFixed(from, HelloReq{})
	case TypeHelloResp:
		return decodeFixed(from, HelloResp{})
	case TypeRegister:
		id, err := decodeSessionID(from)
		if err != nil {
			return nil, err
		}
		return Register{SessionID: id}, nil
	case TypeRegisterAck:
		id, err := decodeSessionID(from)
		if err != nil {
			return nil, err
		}
		return RegisterAck{SessionID: id}, nil
	case TypeJoin:
		id, err := decodeSessionID(from)
		if err != nil {
			return nil, err
		}
		return Join{SessionID: id}, nil
	case TypeSessionNotFound:
		id, err := decodeSessionID(from)
		if err != nil {
			return nil, err
		}
		return SessionNotFound{SessionID: id}, nil
	case TypeData:
		data, err := decodeData(from)
		if err != nil {
			return nil, err
		}
		return Data{Payload: data}, nil
	case TypePeerInfo:
		return decodePeerInfo(from)
	default:
		return nil, ErrUnknownType
	}
}

func fixedHeader(msgType uint16) []byte {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint16(buf[0:2], headerLen)
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	return buf
}

func decodeFixed(from []byte, m Message) (Message, error) {
	if len(from) != headerLen {
		return nil, ErrMalformedPayload
	}
	return m, nil
}

func encodeSessionID(msgType uint16, sessionID []byte) ([]byte, error) {
	if len(sessionID) > MaxSessionIDSize {
		return nil, ErrSessionIDTooLarge
	}
	return serializePayloadCarrier(msgType, sessionID)
}

func decodeSessionID(from []byte) ([]byte, error) {
	sessionIDLen := len(from) - headerLen
	if sessionIDLen > MaxSessionIDSize {
		return nil, ErrSessionIDTooLarge
	}
	return copyPayload(from), nil
}

func encodeData(data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, ErrDataTooLarge
	}
	return serializePayloadCarrier(TypeData, data)
}

func decodeData(from []byte) ([]byte, error) {
	dataLen := len(from) - headerLen
	if dataLen > MaxDataSize {
		return nil, ErrDataTooLarge
	}
	return copyPayload(from), nil
}

// serializePayloadCarrier builds the common [length][type][payload]
// shape shared by Register/Join/RegisterAck/SessionNotFound/Data.
func serializePayloadCarrier(msgType uint16, payload []byte) ([]byte, error) {
	totalLen := len(payload) + headerLen
	if totalLen > 0xffff {
		return nil, ErrMessageTooLarge
	}
	buf := make([]byte, totalLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[headerLen:], payload)
	return buf, nil
}

func copyPayload(from []byte) []byte {
	payload := make([]byte, len(from)-headerLen)
	copy(payload, from[headerLen:])
	return payload
}

func encodePeerInfo(addr PeerAddr) ([]byte, error) {
	if isV4(addr.IP) {
		v4 := addr.IP.To4()
		buf := make([]byte, peerInfoV4Len)
		binary.BigEndian.PutUint16(buf[0:2], peerInfoV4Len)
		binary.BigEndian.PutUint16(buf[2:4], TypePeerInfo)
		buf[4] = familyV4
		copy(buf[5:9], v4)
		binary.BigEndian.PutUint16(buf[9:11], uint16(addr.Port))
		return buf, nil
	}

	v6 := addr.IP.To16()
	if v6 == nil {
		return nil, ErrMalformedPayload
	}
	buf := make([]byte, peerInfoV6Len)
	binary.BigEndian.PutUint16(buf[0:2], peerInfoV6Len)
	binary.BigEndian.PutUint16(buf[2:4], TypePeerInfo)
	buf[4] = familyV6
	copy(buf[5:21], v6)
	binary.BigEndian.PutUint16(buf[21:23], uint16(addr.Port))
	return buf, nil
}

func decodePeerInfo(from []byte) (Message, error) {
	switch {
	case len(from) == peerInfoV4Len && from[4] == familyV4:
		ip := net.IP(append([]byte(nil), from[5:9]...))
		port := binary.BigEndian.Uint16(from[9:11])
		return PeerInfo{Addr: PeerAddr{IP: ip, Port: int(port)}}, nil
	case len(from) == peerInfoV6Len && from[4] == familyV6:
		ip := net.IP(append([]byte(nil), from[5:21]...))
		port := binary.BigEndian.Uint16(from[21:23])
		return PeerInfo{Addr: PeerAddr{IP: ip, Port: int(port)}}, nil
	default:
		return nil, ErrMalformedPayload
	}
}
