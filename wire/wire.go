// Package wire implements the mesh clock-sync wire format: a single
// message-kind byte followed by a kind-specific, network-byte-order
// payload. Every kind has a fixed length except HELLO_REPLY, whose length
// depends on its peer list. See the ten kinds in Kind* constants.
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Kind identifies the ten message kinds carried on the wire.
type Kind uint8

// Message kinds, as transmitted on the wire.
const (
	KindHello          Kind = 1
	KindHelloReply     Kind = 2
	KindConnect        Kind = 3
	KindAckConnect     Kind = 4
	KindSyncStart      Kind = 11
	KindDelayRequest   Kind = 12
	KindDelayResponse  Kind = 13
	KindLeader         Kind = 21
	KindGetTime        Kind = 31
	KindTime           Kind = 32
)

// kindToString mirrors the style of ptp/protocol's MessageTypeToString.
var kindToString = map[Kind]string{
	KindHello:         "HELLO",
	KindHelloReply:    "HELLO_REPLY",
	KindConnect:       "CONNECT",
	KindAckConnect:    "ACK_CONNECT",
	KindSyncStart:     "SYNC_START",
	KindDelayRequest:  "DELAY_REQUEST",
	KindDelayResponse: "DELAY_RESPONSE",
	KindLeader:        "LEADER",
	KindGetTime:       "GET_TIME",
	KindTime:          "TIME",
}

func (k Kind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// AddrLen is the only address length this decoder accepts in HELLO_REPLY
// peer entries. See spec §9 open question: L is fixed at 4 here.
const AddrLen = 4

// InvalidAddr and InvalidPort are the Endpoint "none" sentinels. They never
// cross the wire.
const (
	InvalidAddr uint32 = 0xFFFFFFFF
	InvalidPort uint16 = 0
)

// Endpoint is a 4-byte IPv4 address and a port, as carried in HELLO_REPLY.
type Endpoint struct {
	Addr [4]byte
	Port uint16
}

// Equal reports component-wise equality.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Addr == o.Addr && e.Port == o.Port
}

// IsValid reports whether e is not the sentinel "none" endpoint.
func (e Endpoint) IsValid() bool {
	return binary.BigEndian.Uint32(e.Addr[:]) != InvalidAddr && e.Port != InvalidPort
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", e.Addr[0], e.Addr[1], e.Addr[2], e.Addr[3], e.Port)
}

// fixedLen gives the exact total datagram length (kind byte included) for
// kinds whose length does not depend on payload contents. HELLO_REPLY is
// variable and its entries are validated separately by decodeHelloReplyBody.
var fixedLen = map[Kind]int{
	KindHello:         1,
	KindConnect:       1,
	KindAckConnect:    1,
	KindSyncStart:     10,
	KindDelayRequest:  1,
	KindDelayResponse: 10,
	KindLeader:        2,
	KindGetTime:       1,
	KindTime:          10,
}

// ValidateLength rejects any datagram whose length does not match the
// table in spec §4.1. HELLO_REPLY only gets a lower bound here (>=3); its
// full shape is checked by decodeHelloReplyBody during Decode.
func ValidateLength(kind Kind, n int) error {
	if kind == KindHelloReply {
		if n < 3 {
			return fmt.Errorf("wire: HELLO_REPLY too short: %d bytes", n)
		}
		return nil
	}
	want, known := fixedLen[kind]
	if !known {
		return fmt.Errorf("wire: unknown kind %d", kind)
	}
	if n != want {
		return fmt.Errorf("wire: %s wants %d bytes, got %d", kind, want, n)
	}
	return nil
}

// HexDump renders up to the first 10 bytes of b as lowercase hex with no
// separators, for the "ERROR MSG " diagnostic line in spec §4.1/§6.
func HexDump(b []byte) string {
	if len(b) > 10 {
		b = b[:10]
	}
	return hex.EncodeToString(b)
}

// Message is the decoded form of any datagram.
type Message struct {
	Kind Kind

	// HELLO_REPLY
	Peers []Endpoint

	// SYNC_START
	SyncLevel uint8
	T1Ms      int64

	// DELAY_RESPONSE
	DelayLevel uint8
	T4Ms       int64

	// LEADER
	LeaderValue uint8

	// TIME
	TimeLevel uint8
	TMs       int64
}
