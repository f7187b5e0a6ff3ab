package protocol

import "net"

// PeerAddr is the wire representation of a transport address: an IP
// (either 4 or 16 octets) and a port. It deliberately does not carry
// flow-info or scope-id; the v6 PeerInfo payload omits them, and they
// are reconstructed as zero on decode.
type PeerAddr struct {
	IP   net.IP
	Port int
}

// UDPAddr converts a PeerAddr to the stdlib net.UDPAddr used by the
// transport package to actually send datagrams.
func (p PeerAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: p.IP, Port: p.Port}
}

// NewPeerAddr builds a PeerAddr from a *net.UDPAddr, the only address
// type the transport package ever hands back from a receive.
func NewPeerAddr(addr *net.UDPAddr) PeerAddr {
	return PeerAddr{IP: addr.IP, Port: addr.Port}
}

// isV4 reports whether ip should be encoded using the 4-octet
// PeerInfo layout.
func isV4(ip net.IP) bool {
	return ip.To4() != nil
}
