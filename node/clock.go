package node

import "time"

// Clock abstracts the monotonic clock the node reads timestamps from, so
// tests can substitute a fake one (mirrors the UDPConn abstraction in
// ptp/simpleclient/client.go used for the same reason).
type Clock interface {
	// NowMs returns elapsed milliseconds since some fixed, arbitrary start
	// point. Only differences between two NowMs() calls are meaningful.
	NowMs() int64
}

// SystemClock is a Clock backed by time.Now(), anchored to the instant it
// is created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored to the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMs implements Clock.
func (c *SystemClock) NowMs() int64 {
	return time.Since(c.start).Milliseconds()
}
