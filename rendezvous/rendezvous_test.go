package rendezvous

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/valentindimov/rendezvous/protocol"
	"github.com/valentindimov/rendezvous/registry"
	"github.com/valentindimov/rendezvous/transport"
)

func startHolepuncher(t *testing.T) (*Holepuncher, *net.UDPAddr) {
	t.Helper()
	hp, err := NewHolepuncher("127.0.0.1:0", registry.NewMapStore())
	require.NoError(t, err)
	t.Cleanup(func() { hp.Close() })

	port, err := hp.LocalPort()
	require.NoError(t, err)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}

	go hp.Serve(context.Background(), 0, true)
	t.Cleanup(func() {
		interruptEndpoint, _ := transport.Bind("127.0.0.1:0")
		defer interruptEndpoint.Close()
		interruptEndpoint.Send(protocol.LocalInterrupt{}, addr)
	})

	return hp, addr
}

// Scenario 1: happy rendezvous.
func TestHappyRendezvous(t *testing.T) {
	_, hpAddr := startHolepuncher(t)

	srv, err := NewServer(context.Background(), hpAddr, []byte("abc"))
	require.NoError(t, err)
	defer srv.Close()

	// The server answers the client's HelloReq only from inside
	// WaitForData, so it has to be waiting while the client connects.
	type received struct {
		addr *net.UDPAddr
		data []byte
		err  error
	}
	done := make(chan received, 1)
	go func() {
		addr, data, err := srv.WaitForData(2*time.Second, false)
		done <- received{addr, data, err}
	}()

	cli, err := NewClient(context.Background(), hpAddr, []byte("abc"))
	require.NoError(t, err)
	defer cli.Close()

	require.NoError(t, cli.SendDatagram(cli.Server(), []byte("hello")))

	got := <-done
	require.NoError(t, got.err)
	require.NotNil(t, got.addr)
	require.Equal(t, []byte("hello"), got.data)
}

// Scenario 2: session not found.
func TestSessionNotFound(t *testing.T) {
	_, hpAddr := startHolepuncher(t)

	_, err := NewClient(context.Background(), hpAddr, []byte("zzz"))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

// Scenario 3: handshake timeout against a black hole address.
func TestHandshakeTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping >=10s handshake timeout test in short mode")
	}
	blackHole := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 19321}

	start := time.Now()
	_, err := NewClient(context.Background(), blackHole, []byte("abc"))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrHandshakeTimedOut)
	require.GreaterOrEqual(t, elapsed, handshakeDeadline)
}

// Scenario 4: keepalive refresh. The holepuncher's registry entry
// for a session is refreshed on every Register it receives, observed
// here as repeated RegisterAcks across a 25s window at the Server's
// own keepalive cadence (a Server's steady-state scheduler sends
// exactly this Register on every keepaliveInterval tick).
func TestKeepaliveRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 25s keepalive window test in short mode")
	}
	_, hpAddr := startHolepuncher(t)

	probe, err := transport.Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer probe.Close()

	sessionID := []byte("k")
	require.NoError(t, probe.Send(protocol.Register{SessionID: sessionID}, hpAddr))

	acks := 0
	deadline := time.Now().Add(25 * time.Second)
	nextRegisterAt := time.Now().Add(keepaliveInterval)
	for time.Now().Before(deadline) {
		if time.Now().After(nextRegisterAt) {
			require.NoError(t, probe.Send(protocol.Register{SessionID: sessionID}, hpAddr))
			nextRegisterAt = time.Now().Add(keepaliveInterval)
		}
		wait := time.Until(nextRegisterAt)
		if untilEnd := time.Until(deadline); untilEnd < wait {
			wait = untilEnd
		}
		if wait <= 0 {
			continue
		}
		require.NoError(t, probe.SetReadDeadline(wait))
		msg, source, err := probe.Receive()
		if err != nil {
			continue
		}
		if ack, ok := msg.(protocol.RegisterAck); ok && addrEqual(source, hpAddr) && bytes.Equal(ack.SessionID, sessionID) {
			acks++
		}
	}
	require.GreaterOrEqual(t, acks, 2)
}

// Scenario 5: malformed datagram resilience.
func TestMalformedDatagramResilience(t *testing.T) {
	_, hpAddr := startHolepuncher(t)

	// A raw socket lets us send bytes transport.Endpoint.Send would
	// itself refuse to construct via protocol.Encode.
	rawConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer rawConn.Close()

	// 1. a 3-byte datagram
	_, err = rawConn.WriteToUDP([]byte{0x00, 0x01, 0x02}, hpAddr)
	require.NoError(t, err)
	// 2. declared length 99, actual length 10
	_, err = rawConn.WriteToUDP([]byte{0x00, 99, 0x00, byte(protocol.TypeRegister), 1, 2, 3, 4, 5, 6}, hpAddr)
	require.NoError(t, err)
	// 3. unknown type 9999
	_, err = rawConn.WriteToUDP([]byte{0x00, 0x04, 0x27, 0x0f}, hpAddr)
	require.NoError(t, err)

	// 4. a valid Register, via the real codec+endpoint.
	probe, err := transport.Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer probe.Close()
	require.NoError(t, probe.Send(protocol.Register{SessionID: []byte("ok")}, hpAddr))

	require.NoError(t, probe.SetReadDeadline(2*time.Second))
	msg, source, err := probe.Receive()
	require.NoError(t, err)
	require.True(t, addrEqual(source, hpAddr))
	ack, ok := msg.(protocol.RegisterAck)
	require.True(t, ok)
	require.True(t, bytes.Equal(ack.SessionID, []byte("ok")))
}
