package transport

import (
	"net"
	"testing"
	"time"

	"github.com/valentindimov/rendezvous/protocol"
)

func mustBindLoopback(t *testing.T) *Endpoint {
	t.Helper()
	ep, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	t.Cleanup(func() { ep.Close() })
	return ep
}

func TestSendReceiveRoundTrip(t *testing.T) {
	a := mustBindLoopback(t)
	b := mustBindLoopback(t)

	portB, err := b.LocalPort()
	if err != nil {
		t.Fatalf("LocalPort: %v", err)
	}
	dest := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portB}

	if err := a.Send(protocol.HelloReq{}, dest); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := b.SetReadDeadline(2 * time.Second); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	msg, _, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if _, ok := msg.(protocol.HelloReq); !ok {
		t.Fatalf("expected HelloReq, got %#v", msg)
	}
}

func TestReceiveTimeoutIsTransient(t *testing.T) {
	ep := mustBindLoopback(t)
	if err := ep.SetReadDeadline(50 * time.Millisecond); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, _, err := ep.Receive()
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if IsFatal(err) {
		t.Fatalf("expected timeout to classify as transient, got fatal: %v", err)
	}
}

func TestReceiveDecodeErrorIsNeverFatal(t *testing.T) {
	a := mustBindLoopback(t)
	b := mustBindLoopback(t)

	portB, err := b.LocalPort()
	if err != nil {
		t.Fatalf("LocalPort: %v", err)
	}
	dest := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portB}

	// Hand-craft a malformed datagram (declares length 99, actual length 5).
	malformed := []byte{0x00, 99, 0x00, byte(protocol.TypeRegister), 0x01}
	if _, err := a.conn.WriteToUDP(malformed, dest); err != nil {
		t.Fatalf("raw write failed: %v", err)
	}

	if err := b.SetReadDeadline(2 * time.Second); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, _, err = b.Receive()
	if err == nil {
		t.Fatalf("expected a decode error")
	}
	if IsFatal(err) {
		t.Fatalf("decode errors must never be fatal, got: %v", err)
	}
}

func TestSendEncodeErrorSurfacesDistinctly(t *testing.T) {
	a := mustBindLoopback(t)
	b := mustBindLoopback(t)
	portB, _ := b.LocalPort()
	dest := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portB}

	oversized := make([]byte, protocol.MaxDataSize+1)
	err := a.Send(protocol.Data{Payload: oversized}, dest)
	if err == nil {
		t.Fatalf("expected encode error for oversized payload")
	}
	if _, ok := err.(*EncodeError); !ok {
		t.Fatalf("expected *EncodeError, got %T: %v", err, err)
	}
}
