package node

import (
	log "github.com/sirupsen/logrus"

	"github.com/netmesh/timesync/peer"
	"github.com/netmesh/timesync/wire"
)

// dispatch validates framing and routes a received datagram to its
// handler (spec §4.3: "All handlers reject messages that fail
// validate_length").
func (n *Node) dispatch(sender wire.Endpoint, raw []byte) {
	if len(raw) == 0 {
		n.dropRaw(raw, "empty datagram")
		return
	}
	kind := wire.Kind(raw[0])
	if err := wire.ValidateLength(kind, len(raw)); err != nil {
		n.dropRaw(raw, err.Error())
		return
	}
	msg, err := wire.Decode(raw)
	if err != nil {
		n.dropRaw(raw, err.Error())
		return
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		logReceive(kind, sender, "%d bytes", len(raw))
	}

	switch kind {
	case wire.KindHello:
		n.handleHello(sender, raw)
	case wire.KindHelloReply:
		n.handleHelloReply(sender, msg, raw)
	case wire.KindConnect:
		n.handleConnect(sender, raw)
	case wire.KindAckConnect:
		n.handleAckConnect(sender, raw)
	case wire.KindSyncStart:
		n.handleSyncStart(sender, msg, raw)
	case wire.KindDelayRequest:
		n.handleDelayRequest(sender, raw)
	case wire.KindDelayResponse:
		n.handleDelayResponse(sender, msg, raw)
	case wire.KindLeader:
		n.handleLeader(msg, raw)
	case wire.KindGetTime:
		n.handleGetTime(sender)
	case wire.KindTime:
		// TIME is a reply-only message; this node never issues GET_TIME
		// itself, so an incoming TIME has no handler semantics defined.
		n.dropRaw(raw, "unexpected TIME message")
	default:
		n.dropRaw(raw, "unknown kind")
	}
}

// dropRaw logs the "ERROR MSG " diagnostic (spec §4.1/§6) for a message
// that failed validation before it could be classified, and for a TIME
// message, which this node has no handler for.
func (n *Node) dropRaw(raw []byte, reason string) {
	log.Errorf("ERROR MSG %s (%s)", wire.HexDump(raw), reason)
	n.stats.Inc("drops.invalid")
}

// drop logs the diagnostic for a structurally valid message rejected by a
// handler's acceptance rules.
func (n *Node) drop(kind wire.Kind, raw []byte, reason string) {
	log.Errorf("ERROR MSG %s (%s: %s)", wire.HexDump(raw), kind, reason)
	n.stats.Inc("drops." + kind.String())
}

// handleHello implements spec §4.3 HELLO.
func (n *Node) handleHello(sender wire.Endpoint, raw []byte) {
	if n.peers.Contains(sender) || n.peers.Full() {
		n.drop(wire.KindHello, raw, "duplicate or full")
		return
	}
	reply, err := wire.EncodeHelloReply(n.peers.Entries())
	if err != nil {
		log.Errorf("HELLO_REPLY for %s: %v", sender, err)
		n.stats.Inc("drops.HELLO_REPLY_overflow")
		return
	}
	n.send(sender, reply)
	n.peers.Append(sender)
	log.Infof("HELLO from %s: replied with %d peers, appended", sender, n.peers.Len()-1)
}

// handleHelloReply implements spec §4.3 HELLO_REPLY.
func (n *Node) handleHelloReply(sender wire.Endpoint, msg wire.Message, raw []byte) {
	if n.bootstrap == nil || !sender.Equal(*n.bootstrap) {
		n.drop(wire.KindHelloReply, raw, "sender is not the configured bootstrap peer")
		return
	}
	if n.peers.Len()+1+len(msg.Peers) > peer.MaxEntries {
		n.drop(wire.KindHelloReply, raw, "would exceed peer table cap")
		return
	}
	n.peers.Append(sender)
	for _, ep := range msg.Peers {
		n.send(ep, wire.EncodeConnect())
	}
	log.Infof("HELLO_REPLY from %s: %d peers offered, sent CONNECT to each", sender, len(msg.Peers))
}

// handleConnect implements spec §4.3 CONNECT.
func (n *Node) handleConnect(sender wire.Endpoint, raw []byte) {
	if n.peers.Contains(sender) || n.peers.Full() {
		n.drop(wire.KindConnect, raw, "duplicate or full")
		return
	}
	n.peers.Append(sender)
	n.send(sender, wire.EncodeAckConnect())
	log.Infof("CONNECT from %s: appended, sent ACK_CONNECT", sender)
}

// handleAckConnect implements spec §4.3 ACK_CONNECT.
func (n *Node) handleAckConnect(sender wire.Endpoint, raw []byte) {
	if n.peers.Contains(sender) || n.peers.Full() {
		n.drop(wire.KindAckConnect, raw, "duplicate or full")
		return
	}
	n.peers.Append(sender)
	log.Infof("ACK_CONNECT from %s: appended", sender)
}

// handleSyncStart implements spec §4.3 SYNC_START, including the
// acceptance predicate and anti-oscillation rule.
func (n *Node) handleSyncStart(sender wire.Endpoint, msg wire.Message, raw []byte) {
	t2 := n.clock.NowMs()
	level := msg.SyncLevel
	t1 := msg.T1Ms

	if n.exch.Active {
		n.drop(wire.KindSyncStart, raw, "exchange already active")
		return
	}

	if sender.Equal(n.sync.SourceEndpoint) && level == n.sync.SourceLevel {
		n.tm.resetRecvTimeout(t2)
	}

	if !n.acceptSyncStart(sender, level, raw) {
		return
	}

	t3 := n.clock.NowMs()
	n.exch.start(sender, level, t1, t2, t3)
	n.tm.armExchangeDue(t3)
	n.send(sender, wire.EncodeDelayRequest())
	log.Infof("SYNC_START from %s (level=%d): exchange started", sender, level)
}

// acceptSyncStart implements the acceptance predicate from spec §4.3.
func (n *Node) acceptSyncStart(sender wire.Endpoint, level uint8, raw []byte) bool {
	if !n.peers.Contains(sender) {
		n.drop(wire.KindSyncStart, raw, "sender is not a peer")
		return false
	}
	if level >= LevelReservedBound {
		n.drop(wire.KindSyncStart, raw, "partner level >= reserved bound")
		return false
	}
	if sender.Equal(n.sync.SourceEndpoint) {
		if level < n.sync.Level {
			return true
		}
		n.drop(wire.KindSyncStart, raw, "refinement does not improve level")
		return false
	}
	if level+2 <= n.sync.Level {
		return true
	}
	n.drop(wire.KindSyncStart, raw, "alternate source does not clear anti-oscillation gap")
	return false
}

// handleDelayRequest implements spec §4.3 DELAY_REQUEST.
func (n *Node) handleDelayRequest(sender wire.Endpoint, raw []byte) {
	t4 := n.clock.NowMs()
	if !n.peers.Contains(sender) || n.sync.Level >= LevelReservedBound {
		n.drop(wire.KindDelayRequest, raw, "sender is not a peer, or own level is unpropagatable")
		return
	}
	n.send(sender, wire.EncodeDelayResponse(n.sync.Level, t4-n.sync.OffsetMs))
	log.Infof("DELAY_REQUEST from %s: replied with DELAY_RESPONSE", sender)
}

// handleDelayResponse implements spec §4.3 DELAY_RESPONSE, including the
// offset computation and commit.
func (n *Node) handleDelayResponse(sender wire.Endpoint, msg wire.Message, raw []byte) {
	if !n.exch.Active || !n.exch.Partner.Equal(sender) {
		n.drop(wire.KindDelayResponse, raw, "no matching active exchange")
		return
	}
	level := msg.DelayLevel
	t4 := msg.T4Ms

	if level != n.exch.PartnerLevel {
		log.Infof("DELAY_RESPONSE from %s: partner level changed (%d -> %d), aborting exchange", sender, n.exch.PartnerLevel, level)
		n.exch.abort()
		n.stats.Inc("exchange.aborted_level_changed")
		return
	}

	if t4-n.exch.T1Ms > exchangeTimeoutMs {
		log.Infof("DELAY_RESPONSE from %s: t4-t1 exceeds bound, aborting and desynchronizing", sender)
		n.exch.abort()
		n.sync.Level = LevelUnsynchronized
		n.stats.Inc("exchange.aborted_bound_violation")
		return
	}

	offset := ((n.exch.T2Ms - n.exch.T1Ms) + (n.exch.T3Ms - t4)) / 2
	n.sync.SourceEndpoint = sender
	n.sync.SourceLevel = n.exch.PartnerLevel
	n.sync.Level = n.exch.PartnerLevel + 1
	n.sync.OffsetMs = offset
	now := n.clock.NowMs()
	n.exch.abort()
	n.tm.resetRecvTimeout(now)
	n.stats.Inc("exchange.committed")
	log.Infof("DELAY_RESPONSE from %s: committed level=%d offset=%dms", sender, n.sync.Level, n.sync.OffsetMs)
}

// handleLeader implements spec §4.3 LEADER.
func (n *Node) handleLeader(msg wire.Message, raw []byte) {
	switch msg.LeaderValue {
	case 0:
		n.sync.becomeRoot()
		n.tm.armBroadcastHold(n.clock.NowMs())
		log.Infof("LEADER(0): became root")
	case 255:
		if n.sync.Level == LevelRoot {
			n.sync.Level = LevelUnsynchronized
			log.Infof("LEADER(255): stepped down")
			return
		}
		n.drop(wire.KindLeader, raw, "LEADER(255) received while not root")
	default:
		n.drop(wire.KindLeader, raw, "unsupported LEADER value")
	}
}

// handleGetTime implements spec §4.3 GET_TIME.
func (n *Node) handleGetTime(sender wire.Endpoint) {
	now := n.clock.NowMs()
	n.send(sender, wire.EncodeTime(n.sync.Level, now-n.sync.OffsetMs))
}
