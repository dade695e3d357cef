// Package lcb defines the wire-level data model shared by every layer of
// the localized causal broadcast runtime: node/sender/owner/packet
// identifiers, vector clocks, and the Payload envelope (spec §3.2).
package lcb

// NodeID identifies a process in the topology.
type NodeID uint32

// OwnerID identifies the process that originally broadcast a payload.
type OwnerID uint32

// SenderID identifies the process that last transmitted a payload on the
// wire — the immediate hop, which may differ from the owner once a payload
// is re-broadcast.
type SenderID uint32

// PacketID is a per-owner monotonically assigned sequence number.
type PacketID uint32

// VectorClock is a fixed-length, 1-indexed sequence of per-owner counts.
// Index 0 is unused; a clock for N nodes has length N+1.
type VectorClock []uint32

// NewVectorClock returns a zeroed vector clock sized for n nodes.
func NewVectorClock(n int) VectorClock {
	return make(VectorClock, n+1)
}

// Clone returns an independent copy of vc.
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	copy(out, vc)

	return out
}

// Kind distinguishes a Payload's position on the broadcast ladder.
type Kind uint8

const (
	KindTCP Kind = iota
	KindBEB
	KindRB
	KindURB
	KindFIFOB
	KindLCB
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindBEB:
		return "beb"
	case KindRB:
		return "rb"
	case KindURB:
		return "urb"
	case KindFIFOB:
		return "fifob"
	case KindLCB:
		return "lcb"
	default:
		return "unknown"
	}
}

// Payload is the unit the reliable link transmits and the delivered-state
// algorithm reasons about. OwnerID is the original broadcaster; SenderID is
// whoever last put this payload on the wire, which changes as it is
// re-broadcast by intermediate nodes.
type Payload struct {
	OwnerID     OwnerID
	SenderID    SenderID
	PacketUID   PacketID
	Kind        Kind
	IsAck       bool
	VectorClock VectorClock
	Buffer      []byte
}

// AckFor builds the acknowledgement payload a receiver sends back to
// sender for p: same identifiers, IsAck set, no buffer or vector clock.
func (p Payload) AckFor() Payload {
	return Payload{
		OwnerID:   p.OwnerID,
		SenderID:  p.SenderID,
		PacketUID: p.PacketUID,
		Kind:      p.Kind,
		IsAck:     true,
	}
}
