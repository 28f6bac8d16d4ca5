package node

import (
	"fmt"
	"net"
	"time"

	"github.com/netmesh/timesync/wire"
)

// PacketConn is the bound datagram endpoint the core consumes (spec §1:
// socket creation/binding is an external collaborator's concern — this is
// the interface boundary). Satisfied by *net.UDPConn; tests substitute an
// in-memory fake. Grounded on the UDPConn abstraction in
// ptp/simpleclient/client.go, built for the same reason.
type PacketConn interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// toUDPAddr converts a wire.Endpoint into a *net.UDPAddr for WriteTo.
func toUDPAddr(ep wire.Endpoint) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(ep.Addr[0], ep.Addr[1], ep.Addr[2], ep.Addr[3]), Port: int(ep.Port)}
}

// toEndpoint converts a received net.Addr into a wire.Endpoint. Only IPv4
// addresses are representable (spec §1 non-goal: no IPv6).
func toEndpoint(addr net.Addr) (wire.Endpoint, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return wire.Endpoint{}, fmt.Errorf("node: unsupported address type %T", addr)
	}
	v4 := udpAddr.IP.To4()
	if v4 == nil {
		return wire.Endpoint{}, fmt.Errorf("node: non-IPv4 address %v unsupported", udpAddr.IP)
	}
	var ep wire.Endpoint
	copy(ep.Addr[:], v4)
	ep.Port = uint16(udpAddr.Port)
	return ep, nil
}
