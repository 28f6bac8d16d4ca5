package node

// Timer intervals, all in milliseconds (spec §3).
const (
	broadcastIntervalMs   = 5_000
	recvTimeoutMs         = 20_000
	exchangeTimeoutMs     = 5_000
	broadcastHoldDelayMs  = 3_000
)

// timers holds the four independent deadlines driven by the monotonic
// clock (spec §3). All fields are absolute NowMs() values.
// broadcastDueMs and broadcastHoldMs are deadlines; recvTimeoutAtMs and
// exchangeStartMs record when the source was last heard from and when the
// active exchange began, so the periodic tick can check them against
// recvTimeoutMs and exchangeTimeoutMs.
type timers struct {
	broadcastDueMs  int64
	recvTimeoutAtMs int64
	exchangeStartMs int64
	broadcastHoldMs int64 // next broadcast must not fire before this
}

// newTimers initializes a timer set as of nowMs: the first broadcast and
// the recv-timeout clock both start counting immediately.
func newTimers(nowMs int64) timers {
	return timers{
		broadcastDueMs:  nowMs + broadcastIntervalMs,
		recvTimeoutAtMs: nowMs,
		broadcastHoldMs: nowMs,
	}
}

// armBroadcastHold defers the next broadcast by broadcastHoldDelayMs, used
// when this node becomes root (spec §4.3's LEADER(0) handler).
func (t *timers) armBroadcastHold(nowMs int64) {
	t.broadcastHoldMs = nowMs + broadcastHoldDelayMs
}

// armExchangeDue records the start of an active exchange.
func (t *timers) armExchangeDue(nowMs int64) {
	t.exchangeStartMs = nowMs
}

// resetRecvTimeout marks liveness of the current source.
func (t *timers) resetRecvTimeout(nowMs int64) {
	t.recvTimeoutAtMs = nowMs
}

// scheduleNextBroadcast arms the next broadcast for nowMs+broadcastIntervalMs.
func (t *timers) scheduleNextBroadcast(nowMs int64) {
	t.broadcastDueMs = nowMs + broadcastIntervalMs
}
