package node

import (
	"errors"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/netmesh/timesync/wire"
)

// send writes payload to ep. Transient would-block errors are logged and
// swallowed (spec §7: "do not retry; continue"); other send errors are
// likewise logged and swallowed, never propagated to the caller, since a
// failed send must not stall the event loop.
func (n *Node) send(ep wire.Endpoint, payload []byte) {
	_, err := n.conn.WriteTo(payload, toUDPAddr(ep))
	if err == nil {
		if log.IsLevelEnabled(log.DebugLevel) {
			logSent(wire.Kind(payload[0]), ep, "%d bytes", len(payload))
		}
		return
	}
	if isTransient(err) {
		log.Warningf("send to %s: transient error: %v", ep, err)
		return
	}
	log.Errorf("send to %s: %v", ep, err)
}

// isTransient reports whether err indicates a transient would-block
// condition rather than a hard failure.
func isTransient(err error) bool {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
