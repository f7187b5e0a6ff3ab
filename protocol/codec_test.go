package protocol

import (
	"bytes"
	"net"
	"testing"
	"testing/quick"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode(%#v) returned error: %v", m, err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode(Encode(%#v)) returned error: %v", m, err)
	}
	return decoded
}

func TestRoundTripFixedVariants(t *testing.T) {
	for _, m := range []Message{LocalInterrupt{}, HelloReq{}, HelloResp{}} {
		if got := roundTrip(t, m); got != m {
			t.Errorf("round trip of %#v produced %#v", m, got)
		}
	}
}

func TestRoundTripSessionIDVariants(t *testing.T) {
	id := []byte("abc")
	cases := []Message{
		Register{SessionID: id},
		RegisterAck{SessionID: id},
		Join{SessionID: id},
		SessionNotFound{SessionID: id},
	}
	for _, m := range cases {
		got := roundTrip(t, m)
		switch v := got.(type) {
		case Register:
			if !bytes.Equal(v.SessionID, id) {
				t.Errorf("Register round trip mismatch: %v", v.SessionID)
			}
		case RegisterAck:
			if !bytes.Equal(v.SessionID, id) {
				t.Errorf("RegisterAck round trip mismatch: %v", v.SessionID)
			}
		case Join:
			if !bytes.Equal(v.SessionID, id) {
				t.Errorf("Join round trip mismatch: %v", v.SessionID)
			}
		case SessionNotFound:
			if !bytes.Equal(v.SessionID, id) {
				t.Errorf("SessionNotFound round trip mismatch: %v", v.SessionID)
			}
		default:
			t.Fatalf("unexpected decoded type %T", got)
		}
	}
}

func TestRoundTripEmptySessionID(t *testing.T) {
	got := roundTrip(t, Register{SessionID: []byte{}})
	reg, ok := got.(Register)
	if !ok {
		t.Fatalf("unexpected type %T", got)
	}
	if len(reg.SessionID) != 0 {
		t.Fatalf("expected empty session id, got %v", reg.SessionID)
	}
}

func TestRoundTripData(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 37)
	got := roundTrip(t, Data{Payload: payload})
	data, ok := got.(Data)
	if !ok {
		t.Fatalf("unexpected type %T", got)
	}
	if !bytes.Equal(data.Payload, payload) {
		t.Fatalf("data round trip mismatch")
	}
}

func TestRoundTripDataBoundary(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, MaxDataSize)
	if _, err := Encode(Data{Payload: payload}); err != nil {
		t.Fatalf("expected MaxDataSize payload to encode, got %v", err)
	}

	tooBig := bytes.Repeat([]byte{0x01}, MaxDataSize+1)
	if _, err := Encode(Data{Payload: tooBig}); err == nil {
		t.Fatalf("expected MaxDataSize+1 payload to fail encoding")
	}
}

func TestEncodeSessionIDTooLarge(t *testing.T) {
	id := bytes.Repeat([]byte{0x02}, MaxSessionIDSize+1)
	if _, err := Encode(Register{SessionID: id}); err == nil {
		t.Fatalf("expected oversized session id to fail encoding")
	}
}

func TestRoundTripPeerInfoV4(t *testing.T) {
	addr := PeerAddr{IP: net.IPv4(203, 0, 113, 7), Port: 51820}
	got := roundTrip(t, PeerInfo{Addr: addr})
	pi, ok := got.(PeerInfo)
	if !ok {
		t.Fatalf("unexpected type %T", got)
	}
	if !pi.Addr.IP.Equal(addr.IP) || pi.Addr.Port != addr.Port {
		t.Fatalf("PeerInfo v4 round trip mismatch: got %+v want %+v", pi.Addr, addr)
	}
}

func TestRoundTripPeerInfoV6(t *testing.T) {
	addr := PeerAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}
	got := roundTrip(t, PeerInfo{Addr: addr})
	pi, ok := got.(PeerInfo)
	if !ok {
		t.Fatalf("unexpected type %T", got)
	}
	if !pi.Addr.IP.Equal(addr.IP) || pi.Addr.Port != addr.Port {
		t.Fatalf("PeerInfo v6 round trip mismatch: got %+v want %+v", pi.Addr, addr)
	}
}

func TestDecodeRejectsShortDatagram(t *testing.T) {
	if _, err := Decode([]byte{0x00, 0x01, 0x02}); err != ErrShortDatagram {
		t.Fatalf("expected ErrShortDatagram, got %v", err)
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	buf := []byte{0x00, 99, 0x00, byte(TypeRegister), 1, 2, 3, 4, 5, 6}
	if _, err := Decode(buf); err != ErrLengthMismatch {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	buf := []byte{0x00, 0x04, 0x27, 0x0f} // type 9999
	if _, err := Decode(buf); err != ErrUnknownType {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeRejectsNonEmptyFixedPayload(t *testing.T) {
	buf, _ := serializePayloadCarrier(TypeHelloReq, []byte{0x01})
	if _, err := Decode(buf); err != ErrMalformedPayload {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestDecodeRejectsMalformedPeerInfo(t *testing.T) {
	buf := []byte{0x00, 0x0b, 0x00, byte(TypePeerInfo), 5, 1, 2, 3, 4, 0, 1}
	if _, err := Decode(buf); err != ErrMalformedPayload {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

// TestDecodeEncodeInverse checks that for every byte string b,
// Decode(b) is either an error or yields m with Encode(m) == b.
func TestDecodeEncodeInverse(t *testing.T) {
	f := func(b []byte) bool {
		m, err := Decode(b)
		if err != nil {
			return true
		}
		reencoded, err := Encode(m)
		if err != nil {
			return false
		}
		return bytes.Equal(reencoded, b)
	}
	if err := quick.Check(f, &quick.Config{MaxLen: 64}); err != nil {
		t.Error(err)
	}
}

func TestDecodeAnyLengthMismatchIsRejected(t *testing.T) {
	f := func(prefixByte byte, b []byte) bool {
		if len(b) < 2 {
			return true
		}
		declared := uint16(b[0])<<8 | uint16(b[1])
		if int(declared) == len(b) {
			return true // not a mismatch case
		}
		_, err := Decode(b)
		return err != nil
	}
	if err := quick.Check(f, &quick.Config{MaxLen: 64}); err != nil {
		t.Error(err)
	}
}
