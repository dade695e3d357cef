// Package delivered implements the shared, coarse-grained-locked delivery
// state machine described in spec §4.5: acks, per-owner FIFO cursors,
// buffered-but-undelivered payloads, the final delivered set, and the
// local vector clock that drives causal delivery.
package delivered

import (
	"sync"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

// work is one pending try-deliver obligation: "re-check whether owner's
// packet uid, of this kind, can now be delivered."
type work struct {
	kind  lcb.Kind
	owner lcb.OwnerID
	uid   lcb.PacketID
}

// Set is the single shared instance every task in a process holds a
// reference to. All exported methods take the one mutex; the try-deliver
// cascade inside Insert runs to completion under that same lock, matching
// the linearizability contract in spec §5.2.
type Set struct {
	mu sync.Mutex

	n    int
	self lcb.SenderID

	acked        map[lcb.SenderID]map[lcb.OwnerID]map[lcb.PacketID]struct{}
	ackedCounter map[lcb.OwnerID]map[lcb.PacketID]uint32
	receivedUpTo map[lcb.OwnerID]lcb.PacketID
	undelivered  map[lcb.OwnerID]map[lcb.PacketID]lcb.Payload
	delivered    map[lcb.OwnerID]map[lcb.PacketID]struct{}
	vectorClock  lcb.VectorClock

	causality topology.CausalityMap
	inverted  topology.InvertedCausalityMap

	onDeliver func(lcb.Payload)
}

// New builds an empty Set for a system of n nodes. self is this process's
// own ID, used by MarkAsSeen. onDeliver is invoked, still under the lock,
// once per payload the try-deliver cascade actually delivers — the
// runtime wires it to the output logger.
func New(n int, self lcb.NodeID, causality topology.CausalityMap, onDeliver func(lcb.Payload)) *Set {
	return &Set{
		n:            n,
		self:         lcb.SenderID(self),
		acked:        map[lcb.SenderID]map[lcb.OwnerID]map[lcb.PacketID]struct{}{},
		ackedCounter: map[lcb.OwnerID]map[lcb.PacketID]uint32{},
		receivedUpTo: map[lcb.OwnerID]lcb.PacketID{},
		undelivered:  map[lcb.OwnerID]map[lcb.PacketID]lcb.Payload{},
		delivered:    map[lcb.OwnerID]map[lcb.PacketID]struct{}{},
		vectorClock:  lcb.NewVectorClock(n),
		causality:    causality,
		inverted:     topology.Invert(causality),
		onDeliver:    onDeliver,
	}
}

func majority(n int) uint32 {
	return uint32(n/2) + 1
}

// firstUnreceived returns receivedUpTo[owner], defaulting to 1.
func (s *Set) firstUnreceived(owner lcb.OwnerID) lcb.PacketID {
	if v, ok := s.receivedUpTo[owner]; ok {
		return v
	}

	return 1
}

// Insert implements spec §4.5's insert(sender_id, payload): records the
// ack, and if the packet is not already delivered, buffers it and runs
// try-deliver.
func (s *Set) Insert(sender lcb.SenderID, payload lcb.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordAck(sender, payload.OwnerID, payload.PacketUID)

	if s.isDelivered(payload.OwnerID, payload.PacketUID) {
		return
	}

	s.stash(payload.OwnerID, payload.PacketUID, payload)
	s.tryDeliver([]work{{kind: payload.Kind, owner: payload.OwnerID, uid: payload.PacketUID}})
}

// MarkAsSeen is insert(self, payload): how a broadcaster's own copy enters
// the counting that drives URB/FIFO/LCB delivery at the sender itself.
func (s *Set) MarkAsSeen(payload lcb.Payload) {
	s.Insert(s.self, payload)
}

// WasSeen reports whether self has already acked (owner, uid) — RB's
// re-broadcast guard.
func (s *Set) WasSeen(owner lcb.OwnerID, uid lcb.PacketID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasAcked(s.self, owner, uid)
}

// HasAcked reports whether sender has acked (owner, uid) — what the
// retransmitter checks before resending.
func (s *Set) HasAcked(sender lcb.SenderID, owner lcb.OwnerID, uid lcb.PacketID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasAcked(sender, owner, uid)
}

// VectorClock returns a snapshot of the local vector clock.
func (s *Set) VectorClock() lcb.VectorClock {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.vectorClock.Clone()
}

// IsDelivered reports whether (owner, uid) is in the final delivered set.
func (s *Set) IsDelivered(owner lcb.OwnerID, uid lcb.PacketID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isDelivered(owner, uid)
}

func (s *Set) hasAcked(sender lcb.SenderID, owner lcb.OwnerID, uid lcb.PacketID) bool {
	byOwner, ok := s.acked[sender]
	if !ok {
		return false
	}

	uids, ok := byOwner[owner]
	if !ok {
		return false
	}

	_, ok = uids[uid]

	return ok
}

func (s *Set) isDelivered(owner lcb.OwnerID, uid lcb.PacketID) bool {
	uids, ok := s.delivered[owner]
	if !ok {
		return false
	}

	_, ok = uids[uid]

	return ok
}

func (s *Set) recordAck(sender lcb.SenderID, owner lcb.OwnerID, uid lcb.PacketID) {
	byOwner, ok := s.acked[sender]
	if !ok {
		byOwner = map[lcb.OwnerID]map[lcb.PacketID]struct{}{}
		s.acked[sender] = byOwner
	}

	uids, ok := byOwner[owner]
	if !ok {
		uids = map[lcb.PacketID]struct{}{}
		byOwner[owner] = uids
	}

	if _, already := uids[uid]; already {
		return
	}

	uids[uid] = struct{}{}

	counters, ok := s.ackedCounter[owner]
	if !ok {
		counters = map[lcb.PacketID]uint32{}
		s.ackedCounter[owner] = counters
	}

	counters[uid]++
}

func (s *Set) stash(owner lcb.OwnerID, uid lcb.PacketID, payload lcb.Payload) {
	byOwner, ok := s.undelivered[owner]
	if !ok {
		byOwner = map[lcb.PacketID]lcb.Payload{}
		s.undelivered[owner] = byOwner
	}

	byOwner[uid] = payload
}

// canDeliver implements the per-kind deliverability test from spec §4.5.
func (s *Set) canDeliver(kind lcb.Kind, payload lcb.Payload) bool {
	switch kind {
	case lcb.KindTCP, lcb.KindBEB, lcb.KindRB:
		return true
	case lcb.KindURB:
		return s.ackedCounter[payload.OwnerID][payload.PacketUID] >= majority(s.n)
	case lcb.KindFIFOB:
		return s.canDeliver(lcb.KindURB, payload) && payload.PacketUID == s.firstUnreceived(payload.OwnerID)
	case lcb.KindLCB:
		if !s.canDeliver(lcb.KindFIFOB, payload) {
			return false
		}

		for _, dep := range s.causality[payload.OwnerID] {
			if int(dep) >= len(s.vectorClock) || int(dep) >= len(payload.VectorClock) {
				continue
			}

			if s.vectorClock[dep] < payload.VectorClock[dep] {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// deliver adds (owner, uid) to the final delivered set and notifies the
// configured callback. Caller must hold s.mu.
func (s *Set) deliver(payload lcb.Payload) {
	uids, ok := s.delivered[payload.OwnerID]
	if !ok {
		uids = map[lcb.PacketID]struct{}{}
		s.delivered[payload.OwnerID] = uids
	}

	uids[payload.PacketUID] = struct{}{}

	if s.onDeliver != nil {
		s.onDeliver(payload)
	}
}

// tryDeliver pops tuples from the worklist until empty, per spec §4.5.
// Caller must hold s.mu.
func (s *Set) tryDeliver(worklist []work) {
	for len(worklist) > 0 {
		w := worklist[0]
		worklist = worklist[1:]

		byOwner, ok := s.undelivered[w.owner]
		if !ok {
			continue
		}

		payload, ok := byOwner[w.uid]
		if !ok {
			continue
		}

		if !s.canDeliver(w.kind, payload) {
			continue
		}

		delete(byOwner, w.uid)

		switch w.kind {
		case lcb.KindFIFOB:
			s.deliver(payload)
			s.receivedUpTo[w.owner] = w.uid + 1
			worklist = append(worklist, work{kind: lcb.KindFIFOB, owner: w.owner, uid: w.uid + 1})
		case lcb.KindLCB:
			s.deliver(payload)
			s.receivedUpTo[w.owner] = w.uid + 1

			if int(w.owner) < len(s.vectorClock) {
				s.vectorClock[w.owner]++
			}

			for _, affected := range s.inverted[w.owner] {
				worklist = append(worklist, work{kind: lcb.KindLCB, owner: affected, uid: s.firstUnreceived(affected)})
			}
		default:
			s.deliver(payload)
		}
	}
}
