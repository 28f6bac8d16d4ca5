package node

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netmesh/timesync/wire"
)

// fakeClock is a manually advanced Clock for deterministic tests.
type fakeClock struct {
	ms int64
}

func (c *fakeClock) NowMs() int64 { return c.ms }
func (c *fakeClock) set(ms int64) { c.ms = ms }

type sentPacket struct {
	to   wire.Endpoint
	data []byte
}

// fakeConn records every WriteTo call; ReadFrom is unused by
// handler-level tests, which call dispatch/tick directly rather than Run.
type fakeConn struct {
	sent []sentPacket
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) { return 0, nil, nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error        { return nil }
func (c *fakeConn) Close() error                             { return nil }

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	udp := addr.(*net.UDPAddr)
	v4 := udp.IP.To4()
	var ep wire.Endpoint
	copy(ep.Addr[:], v4)
	ep.Port = uint16(udp.Port)
	cp := append([]byte(nil), b...)
	c.sent = append(c.sent, sentPacket{to: ep, data: cp})
	return len(b), nil
}

func newTestNode(bootstrap *wire.Endpoint) (*Node, *fakeConn, *fakeClock) {
	clk := &fakeClock{}
	conn := &fakeConn{}
	n := New(conn, clk, bootstrap, nil)
	return n, conn, clk
}

func mkEndpoint(a, b, c, d byte, port uint16) wire.Endpoint {
	return wire.Endpoint{Addr: [4]byte{a, b, c, d}, Port: port}
}

// Scenario A — Bootstrap (spec §8).
func TestScenarioABootstrap(t *testing.T) {
	a := mkEndpoint(127, 0, 0, 1, 4000)
	b := mkEndpoint(127, 0, 0, 1, 5000)

	nodeA, connA, _ := newTestNode(nil)
	nodeB, connB, _ := newTestNode(&a)

	// B sends HELLO to A.
	nodeB.Bootstrap()
	require.Len(t, connB.sent, 1)
	assert.Equal(t, a, connB.sent[0].to)

	// A receives HELLO from B, replies HELLO_REPLY(n=0), appends B.
	nodeA.dispatch(b, connB.sent[0].data)
	require.Len(t, connA.sent, 1)
	helloReply := connA.sent[0]
	assert.Equal(t, b, helloReply.to)
	assert.Equal(t, 1, nodeA.peers.Len())
	assert.True(t, nodeA.peers.Contains(b))

	// B receives HELLO_REPLY from A (n=0): appends A. CONNECT goes only to
	// the peers listed in the reply, so with n=0 none is sent.
	nodeB.dispatch(a, helloReply.data)
	assert.True(t, nodeB.peers.Contains(a))
	assert.Equal(t, 1, nodeB.peers.Len())

	assert.EqualValues(t, LevelUnsynchronized, nodeA.sync.Level)
	assert.EqualValues(t, LevelUnsynchronized, nodeB.sync.Level)
}

// TestOffsetFormulaLiteral reproduces the literal scenario B arithmetic:
// offset = ((t2-t1)+(t3-t4))/2 = ((100-0)+(101-2))/2 = 99 (spec §8 B).
func TestOffsetFormulaLiteral(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	nodeB, connB, clkB := newTestNode(nil)
	nodeB.peers.Append(a)

	clkB.set(100)
	nodeB.dispatch(a, wire.EncodeSyncStart(0, 0)) // t1=0, t2=100, t3=100
	require.Len(t, connB.sent, 1)

	// pin t3 to the scenario's 101 (the handler stamped 100 above, since
	// t2 and t3 are read back-to-back in this implementation).
	nodeB.exch.T3Ms = 101

	nodeB.dispatch(a, wire.EncodeDelayResponse(0, 2)) // t4=2

	assert.EqualValues(t, 99, nodeB.sync.OffsetMs)
	assert.EqualValues(t, 1, nodeB.sync.Level)
	assert.True(t, nodeB.sync.SourceEndpoint.Equal(a))
	assert.EqualValues(t, 0, nodeB.sync.SourceLevel)
}

// Scenario C — Anti-oscillation (spec §8).
func TestScenarioCAntiOscillation(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	c := mkEndpoint(10, 0, 0, 3, 4002)
	nodeB, connB, _ := newTestNode(nil)
	nodeB.peers.Append(a)
	nodeB.peers.Append(c)
	nodeB.sync.Level = 1
	nodeB.sync.SourceEndpoint = a
	nodeB.sync.SourceLevel = 0

	nodeB.dispatch(c, wire.EncodeSyncStart(1, 0))
	assert.Empty(t, connB.sent, "alternate source with insufficient gap must be dropped")
	assert.EqualValues(t, 1, nodeB.sync.Level)
	assert.True(t, nodeB.sync.SourceEndpoint.Equal(a))
}

// Scenario D — Refinement from source (spec §8).
func TestScenarioDRefinementFromSource(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	nodeB, connB, _ := newTestNode(nil)
	nodeB.peers.Append(a)
	nodeB.sync.Level = 1
	nodeB.sync.SourceEndpoint = a
	nodeB.sync.SourceLevel = 0

	nodeB.dispatch(a, wire.EncodeSyncStart(0, 0))
	require.Len(t, connB.sent, 1, "refinement from current source must be accepted")
	assert.True(t, nodeB.exch.Active)
	assert.True(t, nodeB.exch.Partner.Equal(a))
}

// Scenario E — Recv timeout (spec §8).
func TestScenarioERecvTimeout(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	nodeB, _, clkB := newTestNode(nil)
	nodeB.peers.Append(a)
	nodeB.sync.Level = 1
	nodeB.sync.SourceEndpoint = a
	nodeB.sync.SourceLevel = 0
	clkB.set(0)
	nodeB.tm.resetRecvTimeout(0)

	clkB.set(recvTimeoutMs)
	nodeB.tick()

	assert.EqualValues(t, LevelUnsynchronized, nodeB.sync.Level)
	assert.False(t, nodeB.sync.SourceEndpoint.IsValid())
	assert.EqualValues(t, 0, nodeB.sync.OffsetMs)
}

// Scenario F — LEADER step-down (spec §8).
func TestScenarioFLeaderStepDown(t *testing.T) {
	nodeA, _, _ := newTestNode(nil)
	nodeA.sync.becomeRoot()

	nodeA.handleLeader(wire.Message{LeaderValue: 255}, nil)
	assert.EqualValues(t, LevelUnsynchronized, nodeA.sync.Level)
}

func TestLeaderStepDownDroppedWhenNotRoot(t *testing.T) {
	nodeA, _, _ := newTestNode(nil)
	nodeA.sync.Level = 1
	nodeA.handleLeader(wire.Message{LeaderValue: 255}, nil)
	assert.EqualValues(t, 1, nodeA.sync.Level, "LEADER(255) while not root must be dropped")
}

// Testable property 6: two successive LEADER(0) leave identical state.
func TestDoubleLeaderZeroIdempotent(t *testing.T) {
	nodeA, _, clk := newTestNode(nil)
	clk.set(10)
	nodeA.handleLeader(wire.Message{LeaderValue: 0}, nil)
	first := nodeA.sync
	nodeA.handleLeader(wire.Message{LeaderValue: 0}, nil)
	assert.Equal(t, first, nodeA.sync)
}

// Testable property 2: an active exchange rejects a new SYNC_START.
func TestExchangeSingleOutstanding(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	c := mkEndpoint(10, 0, 0, 3, 4002)
	nodeB, connB, _ := newTestNode(nil)
	nodeB.peers.Append(a)
	nodeB.peers.Append(c)

	nodeB.dispatch(a, wire.EncodeSyncStart(0, 0))
	require.True(t, nodeB.exch.Active)
	sentBefore := len(connB.sent)

	nodeB.dispatch(c, wire.EncodeSyncStart(0, 0))
	assert.Len(t, connB.sent, sentBefore, "second SYNC_START must be dropped while one is active")
	assert.True(t, nodeB.exch.Partner.Equal(a))
}

// Testable property 7: SYNC_START from a non-peer is always dropped.
func TestSyncStartFromNonPeerDropped(t *testing.T) {
	stranger := mkEndpoint(1, 2, 3, 4, 9)
	nodeB, connB, _ := newTestNode(nil)
	nodeB.dispatch(stranger, wire.EncodeSyncStart(0, 0))
	assert.Empty(t, connB.sent)
	assert.False(t, nodeB.exch.Active)
}

// Testable property 8: SYNC_START with level==254 is always dropped.
func TestSyncStartLevel254Dropped(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	nodeB, connB, _ := newTestNode(nil)
	nodeB.peers.Append(a)
	nodeB.dispatch(a, wire.EncodeSyncStart(254, 0))
	assert.Empty(t, connB.sent)
}

// Testable property 9: t4-t1==5001 sets level=255; ==5000 accepts normally.
func TestDelayResponseBoundary(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)

	nodeB, connB, clkB := newTestNode(nil)
	nodeB.peers.Append(a)
	clkB.set(0)
	nodeB.dispatch(a, wire.EncodeSyncStart(0, 0))
	require.Len(t, connB.sent, 1)
	nodeB.dispatch(a, wire.EncodeDelayResponse(0, 5001))
	assert.EqualValues(t, LevelUnsynchronized, nodeB.sync.Level)

	nodeB2, connB2, clkB2 := newTestNode(nil)
	nodeB2.peers.Append(a)
	clkB2.set(0)
	nodeB2.dispatch(a, wire.EncodeSyncStart(0, 0))
	require.Len(t, connB2.sent, 1)
	nodeB2.dispatch(a, wire.EncodeDelayResponse(0, 5000))
	assert.EqualValues(t, 1, nodeB2.sync.Level)
}

// GET_TIME/TIME round trip.
func TestGetTimeReply(t *testing.T) {
	client := mkEndpoint(1, 2, 3, 4, 9)
	nodeA, connA, clk := newTestNode(nil)
	nodeA.sync.Level = 3
	nodeA.sync.OffsetMs = 50
	clk.set(1000)

	nodeA.dispatch(client, wire.EncodeGetTime())
	require.Len(t, connA.sent, 1)
	msg, err := wire.Decode(connA.sent[0].data)
	require.NoError(t, err)
	assert.EqualValues(t, 3, msg.TimeLevel)
	assert.EqualValues(t, 950, msg.TMs)
}

// Exchange-timeout abort (periodic tick).
func TestExchangeTimeoutAborts(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	nodeB, connB, clkB := newTestNode(nil)
	nodeB.peers.Append(a)
	clkB.set(0)
	nodeB.dispatch(a, wire.EncodeSyncStart(0, 0))
	require.Len(t, connB.sent, 1)
	require.True(t, nodeB.exch.Active)

	clkB.set(exchangeTimeoutMs)
	nodeB.tick()

	assert.False(t, nodeB.exch.Active)
	assert.EqualValues(t, LevelUnsynchronized, nodeB.sync.Level)
}

// Broadcast cadence and the LEADER(0) broadcast hold.
func TestBroadcastHoldDefersFirstBroadcast(t *testing.T) {
	a := mkEndpoint(10, 0, 0, 1, 4000)
	nodeA, connA, clk := newTestNode(nil)
	nodeA.peers.Append(a)
	clk.set(0)

	nodeA.handleLeader(wire.Message{LeaderValue: 0}, nil)
	assert.EqualValues(t, LevelRoot, nodeA.sync.Level)

	nodeA.tm.broadcastDueMs = 0 // as if the normal 5s interval already elapsed
	clk.set(1000)              // still within the 3s hold
	nodeA.tick()
	assert.Empty(t, connA.sent, "broadcast must be held for 3s after LEADER(0)")

	clk.set(3000)
	nodeA.tick()
	assert.Len(t, connA.sent, 1, "broadcast fires once the hold expires")
}
