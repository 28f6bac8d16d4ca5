package node

import "github.com/netmesh/timesync/wire"

// Sync level bounds (spec §3).
const (
	LevelRoot           uint8 = 0
	LevelReservedBound   uint8 = 254 // nodes at or above this must not propagate
	LevelUnsynchronized  uint8 = 255
	maxValidDerivedLevel uint8 = 253 // highest source_level a derived node may depend on
)

// invalidEndpoint is the sentinel (INVALID_ADDR, INVALID_PORT) endpoint.
var invalidEndpoint = wire.Endpoint{
	Addr: [4]byte{0xFF, 0xFF, 0xFF, 0xFF},
	Port: wire.InvalidPort,
}

// SyncState is the node's current synchronization status (spec §3).
type SyncState struct {
	Level          uint8
	SourceEndpoint wire.Endpoint
	SourceLevel    uint8
	OffsetMs       int64
}

// newSyncState returns the initial SyncState: unsynchronized.
func newSyncState() SyncState {
	return SyncState{
		Level:          LevelUnsynchronized,
		SourceEndpoint: invalidEndpoint,
		SourceLevel:    0,
		OffsetMs:       0,
	}
}

// desync resets to the unsynchronized state (used by the recv-timeout
// path, spec §4.3). The exchange-abort paths set Level (and, on exchange
// timeout, SourceEndpoint) directly and leave the other fields as they are.
func (s *SyncState) desync() {
	s.Level = LevelUnsynchronized
	s.SourceEndpoint = invalidEndpoint
	s.SourceLevel = 0
	s.OffsetMs = 0
}

// becomeRoot applies LEADER(0): this node is now the root (spec §4.3).
func (s *SyncState) becomeRoot() {
	s.Level = LevelRoot
	s.SourceEndpoint = invalidEndpoint
	s.SourceLevel = 0
	s.OffsetMs = 0
}
