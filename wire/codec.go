package wire

import (
	"encoding/binary"
	"fmt"
)

// maxDatagram bounds both the shared send and receive buffers (spec §5).
const maxDatagram = 65535

// maxPeerTableBytes bounds an encoded HELLO_REPLY so it always fits the
// shared send buffer; see spec §4.2 (HELLO_REPLY construction fails
// gracefully rather than truncating).
const maxPeerTableBytes = maxDatagram

// Decode parses a raw datagram into a Message. It first validates the
// framing length (spec §4.1's table), then the kind-specific payload.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("wire: empty datagram")
	}
	kind := Kind(b[0])
	if err := ValidateLength(kind, len(b)); err != nil {
		return Message{}, err
	}
	m := Message{Kind: kind}
	switch kind {
	case KindHello, KindConnect, KindAckConnect, KindDelayRequest, KindGetTime:
		// no payload
	case KindHelloReply:
		peers, err := decodeHelloReplyBody(b[1:])
		if err != nil {
			return Message{}, err
		}
		m.Peers = peers
	case KindSyncStart:
		m.SyncLevel = b[1]
		m.T1Ms = int64(binary.BigEndian.Uint64(b[2:10]))
	case KindDelayResponse:
		m.DelayLevel = b[1]
		m.T4Ms = int64(binary.BigEndian.Uint64(b[2:10]))
	case KindLeader:
		m.LeaderValue = b[1]
	case KindTime:
		m.TimeLevel = b[1]
		m.TMs = int64(binary.BigEndian.Uint64(b[2:10]))
	default:
		return Message{}, fmt.Errorf("wire: unknown kind %d", kind)
	}
	return m, nil
}

// decodeHelloReplyBody parses the `u16 n` + n*{u8 L, L*addr, u16 port}
// payload that follows the kind byte. Every declared entry must fit
// entirely within the datagram (spec §4.1), and only L==4 is accepted
// (spec §9 open question).
func decodeHelloReplyBody(b []byte) ([]Endpoint, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("wire: HELLO_REPLY missing count")
	}
	n := binary.BigEndian.Uint16(b[0:2])
	pos := 2
	peers := make([]Endpoint, 0, n)
	for i := 0; i < int(n); i++ {
		if pos+1 > len(b) {
			return nil, fmt.Errorf("wire: HELLO_REPLY entry %d: missing length byte", i)
		}
		l := b[pos]
		pos++
		if l != AddrLen {
			return nil, fmt.Errorf("wire: HELLO_REPLY entry %d: unsupported address length %d", i, l)
		}
		if pos+int(l)+2 > len(b) {
			return nil, fmt.Errorf("wire: HELLO_REPLY entry %d: truncated address/port", i)
		}
		var ep Endpoint
		copy(ep.Addr[:], b[pos:pos+int(l)])
		pos += int(l)
		ep.Port = binary.BigEndian.Uint16(b[pos : pos+2])
		pos += 2
		peers = append(peers, ep)
	}
	return peers, nil
}

// EncodeHello, EncodeConnect, EncodeAckConnect, EncodeDelayRequest, and
// EncodeGetTime all produce the one-byte kind-only datagram.
func encodeKindOnly(kind Kind) []byte {
	return []byte{byte(kind)}
}

// EncodeHello encodes a HELLO datagram.
func EncodeHello() []byte { return encodeKindOnly(KindHello) }

// EncodeConnect encodes a CONNECT datagram.
func EncodeConnect() []byte { return encodeKindOnly(KindConnect) }

// EncodeAckConnect encodes an ACK_CONNECT datagram.
func EncodeAckConnect() []byte { return encodeKindOnly(KindAckConnect) }

// EncodeDelayRequest encodes a DELAY_REQUEST datagram.
func EncodeDelayRequest() []byte { return encodeKindOnly(KindDelayRequest) }

// EncodeGetTime encodes a GET_TIME datagram.
func EncodeGetTime() []byte { return encodeKindOnly(KindGetTime) }

// EncodeHelloReply encodes a HELLO_REPLY listing peers in insertion order.
// It returns an error rather than truncating if the result would exceed
// the 65,535-byte datagram budget (spec §4.2).
func EncodeHelloReply(peers []Endpoint) ([]byte, error) {
	size := 1 + 2 + len(peers)*(1+AddrLen+2)
	if size > maxPeerTableBytes {
		return nil, fmt.Errorf("wire: HELLO_REPLY for %d peers would exceed %d bytes", len(peers), maxPeerTableBytes)
	}
	b := make([]byte, size)
	b[0] = byte(KindHelloReply)
	binary.BigEndian.PutUint16(b[1:3], uint16(len(peers)))
	pos := 3
	for _, ep := range peers {
		b[pos] = AddrLen
		pos++
		copy(b[pos:pos+AddrLen], ep.Addr[:])
		pos += AddrLen
		binary.BigEndian.PutUint16(b[pos:pos+2], ep.Port)
		pos += 2
	}
	return b, nil
}

// EncodeSyncStart encodes a SYNC_START datagram carrying level and t1Ms.
func EncodeSyncStart(level uint8, t1Ms int64) []byte {
	b := make([]byte, 10)
	b[0] = byte(KindSyncStart)
	b[1] = level
	binary.BigEndian.PutUint64(b[2:10], uint64(t1Ms))
	return b
}

// EncodeDelayResponse encodes a DELAY_RESPONSE datagram carrying level and
// t4Ms.
func EncodeDelayResponse(level uint8, t4Ms int64) []byte {
	b := make([]byte, 10)
	b[0] = byte(KindDelayResponse)
	b[1] = level
	binary.BigEndian.PutUint64(b[2:10], uint64(t4Ms))
	return b
}

// EncodeLeader encodes a LEADER datagram carrying value.
func EncodeLeader(value uint8) []byte {
	return []byte{byte(KindLeader), value}
}

// EncodeTime encodes a TIME datagram carrying level and tMs.
func EncodeTime(level uint8, tMs int64) []byte {
	b := make([]byte, 10)
	b[0] = byte(KindTime)
	b[1] = level
	binary.BigEndian.PutUint64(b[2:10], uint64(tMs))
	return b
}
