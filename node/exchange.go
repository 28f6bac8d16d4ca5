package node

import "github.com/netmesh/timesync/wire"

// ExchangeState holds the data of an in-flight two-phase time exchange
// (spec §3). At most one exchange may be active at a time.
type ExchangeState struct {
	Active       bool
	Partner      wire.Endpoint
	PartnerLevel uint8

	T1Ms int64 // partner-stamped send time from SYNC_START
	T2Ms int64 // local receive time of SYNC_START
	T3Ms int64 // local send time of DELAY_REQUEST
	T4Ms int64 // partner-stamped receive time from DELAY_RESPONSE
}

// start begins a new exchange with partner, per the acceptance path of
// SYNC_START (spec §4.3).
func (e *ExchangeState) start(partner wire.Endpoint, partnerLevel uint8, t1, t2, t3 int64) {
	e.Active = true
	e.Partner = partner
	e.PartnerLevel = partnerLevel
	e.T1Ms = t1
	e.T2Ms = t2
	e.T3Ms = t3
}

// abort clears the exchange without mutating SyncState.
func (e *ExchangeState) abort() {
	*e = ExchangeState{}
}
