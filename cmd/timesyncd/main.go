// Command timesyncd runs the peer-to-peer clock synchronization daemon:
// it binds a UDP socket, optionally bootstraps against a configured peer,
// and drives the protocol engine until signalled to stop.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/netmesh/timesync/node"
	"github.com/netmesh/timesync/stats"
	"github.com/netmesh/timesync/wire"
)

func main() {
	var (
		bindAddr    string
		bindPort    int
		peerAddr    string
		peerPort    int
		logLevel    string
		dscp        int
		metricsPort int
	)

	flag.StringVar(&bindAddr, "b", "0.0.0.0", "Local address to bind")
	flag.IntVar(&bindPort, "p", 0, "Local port to bind, 0 means OS-assigned")
	flag.StringVar(&peerAddr, "a", "", "Bootstrap peer address, must be given together with -r")
	flag.IntVar(&peerPort, "r", 0, "Bootstrap peer port, must be given together with -a")
	flag.StringVar(&logLevel, "loglevel", "info", "Log level: debug, info, warning, error")
	flag.IntVar(&dscp, "dscp", 0, "DSCP codepoint to mark outgoing datagrams with, 0 to disable")
	flag.IntVar(&metricsPort, "metrics-port", 0, "Port to serve JSON counters on, 0 to disable")
	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", logLevel)
	}

	// -a and -r must be given together or not at all (spec.md §6; matches
	// peer-time-sync.cpp's parse_parameters check on a_value/r_value).
	if (peerAddr != "") != (peerPort != 0) {
		log.Fatalf("both -a and -r must be specified together")
	}

	laddr := &net.UDPAddr{IP: net.ParseIP(bindAddr), Port: bindPort}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		log.Fatalf("listen on %s: %v", laddr, err)
	}
	defer conn.Close()
	// Startup ordering: the event loop must only start after the socket is
	// confirmed bound, so a configured bootstrap peer never races an
	// unbound local endpoint (supplemented from the original ordering; see
	// node/doc.go).
	log.Infof("bound %s", conn.LocalAddr())

	if dscp != 0 {
		if err := markDSCP(conn, laddr.IP, dscp); err != nil {
			log.Warningf("DSCP marking failed, continuing unmarked: %v", err)
		}
	}

	var bootstrapEP *wire.Endpoint
	if peerAddr != "" {
		ep, err := parseEndpoint(peerAddr, peerPort)
		if err != nil {
			log.Fatalf("bootstrap peer %s:%d: %v", peerAddr, peerPort, err)
		}
		bootstrapEP = &ep
	}

	st := stats.New()
	go st.Serve(metricsPort)

	n := node.New(conn, node.NewSystemClock(), bootstrapEP, st)
	n.Bootstrap()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM)

	stop := make(chan struct{})
	go func() {
		<-sigCh
		log.Warning("graceful shutdown")
		close(stop)
		cancel()
	}()

	if err := n.Run(ctx, stop); err != nil && ctx.Err() == nil {
		log.Fatalf("run: %v", err)
	}
}

// markDSCP resolves conn's file descriptor and applies node.EnableDSCP to
// it (grounded on sptp/client/dscp.go; the descriptor lookup follows
// timestamp.ConnFd's SyscallConn pattern).
func markDSCP(conn *net.UDPConn, localAddr net.IP, dscp int) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var ctrlErr error
	err = sc.Control(func(fd uintptr) {
		ctrlErr = node.EnableDSCP(int(fd), localAddr, dscp)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// parseEndpoint resolves an IPv4 host and a port into a wire.Endpoint.
func parseEndpoint(host string, port int) (wire.Endpoint, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return wire.Endpoint{}, err
	}
	var v4 net.IP
	for _, ip := range ips {
		if v := ip.To4(); v != nil {
			v4 = v
			break
		}
	}
	if v4 == nil {
		return wire.Endpoint{}, net.InvalidAddrError("no IPv4 address found for " + host)
	}
	var ep wire.Endpoint
	copy(ep.Addr[:], v4)
	ep.Port = uint16(port)
	return ep, nil
}
