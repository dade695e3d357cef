package delivered_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/delivered"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

func TestBebAlwaysDeliversImmediately(t *testing.T) {
	var delivered_ []lcb.Payload

	set := delivered.New(3, 1, topology.CausalityMap{}, func(p lcb.Payload) { delivered_ = append(delivered_, p) })

	p := lcb.Payload{OwnerID: 2, PacketUID: 1, Kind: lcb.KindBEB}
	set.Insert(2, p)

	require.Len(t, delivered_, 1)
	require.True(t, set.IsDelivered(2, 1))
}

func TestIntegrityNoDoubleDelivery(t *testing.T) {
	var count int

	set := delivered.New(3, 1, topology.CausalityMap{}, func(lcb.Payload) { count++ })

	p := lcb.Payload{OwnerID: 2, PacketUID: 1, Kind: lcb.KindBEB}
	set.Insert(2, p)
	set.Insert(2, p)
	set.Insert(3, p)

	require.Equal(t, 1, count)
}

func TestUrbRequiresMajorityAcks(t *testing.T) {
	var delivered_ []lcb.Payload

	// N=5, majority = floor(5/2)+1 = 3.
	set := delivered.New(5, 1, topology.CausalityMap{}, func(p lcb.Payload) { delivered_ = append(delivered_, p) })

	p := lcb.Payload{OwnerID: 2, PacketUID: 1, Kind: lcb.KindURB}

	set.Insert(10, p)
	require.Empty(t, delivered_)

	set.Insert(11, p)
	require.Empty(t, delivered_)

	set.Insert(12, p)
	require.Len(t, delivered_, 1)

	// Further acks must not re-deliver.
	set.Insert(13, p)
	require.Len(t, delivered_, 1)
}

func TestFifoOrderDeliversInPacketUidOrder(t *testing.T) {
	var order []lcb.PacketID

	set := delivered.New(1, 1, topology.CausalityMap{}, func(p lcb.Payload) { order = append(order, p.PacketUID) })

	second := lcb.Payload{OwnerID: 2, PacketUID: 2, Kind: lcb.KindFIFOB}
	first := lcb.Payload{OwnerID: 2, PacketUID: 1, Kind: lcb.KindFIFOB}

	set.Insert(2, second)
	require.Empty(t, order, "uid 2 must wait for uid 1")

	set.Insert(2, first)
	require.Equal(t, []lcb.PacketID{1, 2}, order)
}

func TestLcbCausalOrderWaitsForDependency(t *testing.T) {
	var order []struct {
		owner lcb.OwnerID
		uid   lcb.PacketID
	}

	causality := topology.CausalityMap{2: {1}}

	set := delivered.New(1, 1, causality, func(p lcb.Payload) {
		order = append(order, struct {
			owner lcb.OwnerID
			uid   lcb.PacketID
		}{p.OwnerID, p.PacketUID})
	})

	// m2, from owner 2, depends on owner 1 having delivered 1 message.
	m2 := lcb.Payload{OwnerID: 2, PacketUID: 1, Kind: lcb.KindLCB, VectorClock: lcb.VectorClock{0, 1, 0}}
	set.Insert(2, m2)
	require.Empty(t, order, "m2 must wait for its causal dependency on owner 1")

	m1 := lcb.Payload{OwnerID: 1, PacketUID: 1, Kind: lcb.KindLCB, VectorClock: lcb.VectorClock{0, 0, 0}}
	set.Insert(1, m1)

	require.Len(t, order, 2)
	require.Equal(t, lcb.OwnerID(1), order[0].owner, "m1 must deliver before its dependent m2")
	require.Equal(t, lcb.OwnerID(2), order[1].owner)
}
