package node

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netmesh/timesync/peer"
	"github.com/netmesh/timesync/stats"
	"github.com/netmesh/timesync/wire"
)

const (
	recvBufSize = 65535
	sendBufSize = 65535
	// recvPollTimeout is the short receive timeout the loop polls with
	// between tick evaluations (spec §4.3 "the loop then calls receive
	// with a 1-second timeout").
	recvPollTimeout = time.Second
)

// Node owns all mutable daemon state: the peer table, sync state,
// exchange state, and timers (spec §9: "a single owned state record...
// or methods on a Node value"). No package-level mutable state is used.
type Node struct {
	conn      PacketConn
	clock     Clock
	bootstrap *wire.Endpoint // configured (-a, -r) peer, if any
	stats     *stats.Counters

	peers *peer.Table
	sync  SyncState
	exch  ExchangeState
	tm    timers

	recvBuf []byte
}

// New constructs a Node bound to conn, using clock for all timestamps.
// bootstrap is the (-a, -r) CLI-configured peer, or nil if neither flag
// was supplied.
func New(conn PacketConn, clock Clock, bootstrap *wire.Endpoint, st *stats.Counters) *Node {
	if st == nil {
		st = stats.New()
	}
	return &Node{
		conn:      conn,
		clock:     clock,
		bootstrap: bootstrap,
		stats:     st,
		peers:     peer.New(),
		sync:      newSyncState(),
		tm:        newTimers(clock.NowMs()),
		recvBuf:   make([]byte, recvBufSize),
	}
}

// Bootstrap sends the single HELLO to the configured bootstrap peer, if
// any. No retries (spec §4.4).
func (n *Node) Bootstrap() {
	if n.bootstrap == nil {
		return
	}
	log.Infof("bootstrap: sending HELLO to %s", n.bootstrap)
	n.send(*n.bootstrap, wire.EncodeHello())
}

// Run drives the event loop until stop is closed or ctx is cancelled
// (spec §5: the main loop observes the stop signal between iterations and
// exits after the current message is handled).
func (n *Node) Run(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		n.tick()

		if err := n.conn.SetReadDeadline(time.Now().Add(recvPollTimeout)); err != nil {
			return err
		}
		raw, addr, err := n.conn.ReadFrom(n.recvBuf)
		if err != nil {
			if isTransient(err) {
				continue
			}
			return err
		}
		sender, err := toEndpoint(addr)
		if err != nil {
			log.Errorf("ERROR MSG %s", wire.HexDump(n.recvBuf[:raw]))
			continue
		}
		n.dispatch(sender, append([]byte(nil), n.recvBuf[:raw]...))
	}
}

// tick evaluates the three periodic conditions (spec §4.3 "Periodic
// tick"): broadcast cadence, recv-liveness timeout, and exchange timeout.
func (n *Node) tick() {
	now := n.clock.NowMs()

	if n.sync.Level < LevelReservedBound && now >= n.tm.broadcastDueMs && now >= n.tm.broadcastHoldMs {
		n.broadcastSyncStart(now)
		n.tm.scheduleNextBroadcast(now)
	}

	if n.sync.Level > LevelRoot && n.sync.Level < LevelReservedBound && now-n.tm.recvTimeoutAtMs >= recvTimeoutMs {
		log.Infof("recv timeout: desynchronizing (was level=%d source=%s)", n.sync.Level, n.sync.SourceEndpoint)
		n.sync.desync()
		n.tm.resetRecvTimeout(now)
		n.stats.Inc("desync.recv_timeout")
	}

	if n.exch.Active && now-n.tm.exchangeStartMs >= exchangeTimeoutMs {
		log.Infof("exchange with %s timed out, aborting and desynchronizing", n.exch.Partner)
		n.exch.abort()
		n.sync.Level = LevelUnsynchronized
		n.sync.SourceEndpoint = invalidEndpoint
		n.stats.Inc("exchange.timeout")
	}
}

// broadcastSyncStart sends SYNC_START to every known peer, each stamped
// with its own fresh t1 just before sending (spec §4.3).
func (n *Node) broadcastSyncStart(now int64) {
	for _, ep := range n.peers.Entries() {
		t1 := n.clock.NowMs() - n.sync.OffsetMs
		n.send(ep, wire.EncodeSyncStart(n.sync.Level, t1))
	}
}
