// Package node implements the protocol engine: the per-message handlers
// and periodic tick logic that jointly drive peer-table membership, the
// two-phase time-exchange protocol, and the synchronization-level
// hierarchy (spec §4.3). Grounded on the type-switch dispatch loop in
// ptp/simpleclient/client.go, collapsed from a multi-goroutine/channel
// design into the single cooperative loop spec §5 requires.
//
// Callers must only start Run after conn is confirmed bound (e.g. after
// net.ListenUDP returns successfully): Bootstrap and Run both assume a
// fully live socket and neither re-checks it, so starting the loop against
// an unbound endpoint races the configured bootstrap peer's reply.
package node
