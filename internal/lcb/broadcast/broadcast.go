// Package broadcast implements the BEB → RB → URB → FIFO-B → LCB ladder
// from spec §4.6: thin layers above the reliable link, each adding an
// ordering or agreement guarantee that lives in the delivered-state
// package's canDeliver rather than here.
package broadcast

import (
	"sync"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/delivered"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/link"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

// Broadcaster holds what every layer of the ladder needs: the node list to
// fan out to, the shared delivered state, and the queue into the link's
// sender task.
type Broadcaster struct {
	self      lcb.NodeID
	nodes     topology.Nodes
	txSending chan<- link.Message
	delivered *delivered.Set

	mu      sync.Mutex
	nextUID lcb.PacketID
}

func New(self lcb.NodeID, nodes topology.Nodes, txSending chan<- link.Message, ds *delivered.Set) *Broadcaster {
	return &Broadcaster{self: self, nodes: nodes, txSending: txSending, delivered: ds, nextUID: 1}
}

// Dispatch is the application's entry point: it assigns this process the
// next packet_uid for its own broadcasts, attaches the current local
// vector clock, and sends the payload down the requested layer of the
// ladder.
func (b *Broadcaster) Dispatch(kind lcb.Kind, buffer []byte) lcb.Payload {
	b.mu.Lock()
	uid := b.nextUID
	b.nextUID++
	b.mu.Unlock()

	payload := lcb.Payload{
		OwnerID:     lcb.OwnerID(b.self),
		SenderID:    lcb.SenderID(b.self),
		PacketUID:   uid,
		Kind:        kind,
		VectorClock: b.delivered.VectorClock(),
		Buffer:      buffer,
	}

	b.sendVia(kind, payload)

	return payload
}

// Forward implements the receive-side forwarding rule: a non-ack payload
// of kind K, once inserted into the delivered set, is handed to the
// same-named broadcast helper so every correct node keeps relaying it.
func (b *Broadcaster) Forward(payload lcb.Payload) {
	b.sendVia(payload.Kind, payload)
}

func (b *Broadcaster) sendVia(kind lcb.Kind, payload lcb.Payload) {
	switch kind {
	case lcb.KindBEB:
		b.BEB(payload)
	case lcb.KindRB:
		b.RB(payload)
	case lcb.KindURB:
		b.URB(payload)
	case lcb.KindFIFOB:
		b.FIFOB(payload)
	case lcb.KindLCB:
		b.LCB(payload)
	case lcb.KindTCP:
		// point-to-point, never re-broadcast
	}
}

// beb sends payload to every other node unconditionally, then marks it as
// seen by self so the sender's own copy counts toward URB/FIFO/LCB
// delivery thresholds at the sender itself.
func (b *Broadcaster) beb(payload lcb.Payload) {
	for _, id := range b.nodes.SortedIDs() {
		if id == b.self {
			continue
		}

		b.txSending <- link.Message{Payload: payload, Destination: b.nodes[id]}
	}

	b.delivered.MarkAsSeen(payload)
}

// BEB is best-effort broadcast: unconditional.
func (b *Broadcaster) BEB(payload lcb.Payload) {
	b.beb(payload)
}

// RB re-broadcasts only the first time self has seen this (owner, uid).
func (b *Broadcaster) RB(payload lcb.Payload) {
	if b.delivered.WasSeen(payload.OwnerID, payload.PacketUID) {
		return
	}

	b.beb(payload)
}

// URB is currently identical to RB at the send path; the majority
// threshold that gives it uniform agreement lives in canDeliver.
func (b *Broadcaster) URB(payload lcb.Payload) {
	b.RB(payload)
}

// FIFOB is a thin wrapper over URB; ordering lives in canDeliver.
func (b *Broadcaster) FIFOB(payload lcb.Payload) {
	b.URB(payload)
}

// LCB is a thin wrapper over URB; causal ordering lives in canDeliver.
func (b *Broadcaster) LCB(payload lcb.Payload) {
	b.URB(payload)
}
