package node

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// EnableDSCP marks outgoing datagrams on fd with the given DSCP codepoint,
// so SYNC_START/DELAY_REQUEST exchanges get priority queuing on networks
// that honor it. Grounded on sptp/client/dscp.go's enableDSCP, generalized
// to return the underlying errno instead of swallowing it silently.
func EnableDSCP(fd int, localAddr net.IP, dscp int) error {
	if dscp == 0 {
		return nil
	}
	if localAddr.To4() == nil {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, dscp<<2); err != nil {
			return fmt.Errorf("node: set IPV6_TCLASS: %w", err)
		}
		return nil
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, dscp<<2); err != nil {
		return fmt.Errorf("node: set IP_TOS: %w", err)
	}
	return nil
}
