package lcb_test

import (
	"context"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/broadcast"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/delivered"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/link"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

// testNode wires one process's link + delivered-state + broadcast stack
// over a real loopback UDP socket, without the runtime package's 2s
// startup delay, so scenario tests can drive dispatch directly.
type testNode struct {
	id   lcb.NodeID
	conn *net.UDPConn
	ds   *delivered.Set
	bc   *broadcast.Broadcaster

	mu            sync.Mutex
	deliveryOrder []lcb.Payload
}

func (n *testNode) onDeliver(p lcb.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.deliveryOrder = append(n.deliveryOrder, p)
}

func (n *testNode) delivered() []lcb.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]lcb.Payload(nil), n.deliveryOrder...)
}

func setupNodes(t *testing.T, n int, causality topology.CausalityMap) ([]*testNode, func()) {
	t.Helper()

	conns := make([]*net.UDPConn, n)

	for i := range conns {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
		require.NoError(t, err)

		conns[i] = conn
	}

	nodes := topology.Nodes{}

	for i, conn := range conns {
		id := lcb.NodeID(i + 1)
		addr := conn.LocalAddr().(*net.UDPAddr)
		nodes[id] = topology.Node{ID: id, IP: addr.IP, Port: addr.Port}
	}

	ctx, cancel := context.WithCancel(context.Background())
	testNodes := make([]*testNode, n)

	for i, conn := range conns {
		id := lcb.NodeID(i + 1)
		tn := &testNode{id: id, conn: conn}
		tn.ds = delivered.New(n, id, causality, tn.onDeliver)

		txSending := make(chan link.Message, 256)
		txRetrans := make(chan link.Message, 256)

		tn.bc = broadcast.New(id, nodes, txSending, tn.ds)

		sender := &link.Sender{Self: id, Conn: conn, TxSending: txSending, TxRetrans: txRetrans, Logger: log.Default()}
		retransmitter := &link.Retransmitter{RxRetrans: txRetrans, TxSending: txSending, Delivered: tn.ds, Offset: 20 * time.Millisecond}
		receiver := &link.Receiver{Conn: conn, TxSending: txSending, Delivered: tn.ds, Forward: tn.bc.Forward, Logger: log.Default()}

		go sender.Run(ctx)
		go retransmitter.Run(ctx)
		go receiver.Run(ctx)

		testNodes[i] = tn
	}

	cleanup := func() {
		cancel()

		for _, conn := range conns {
			_ = conn.Close()
		}
	}

	return testNodes, cleanup
}

// TestCausalOrderAcrossThreeNodes reproduces spec §8.3 scenario 3: node 1
// broadcasts m1; nodes 2 and 3 each broadcast a message causally dependent
// on m1. Every node must deliver m1 before the dependent messages.
func TestCausalOrderAcrossThreeNodes(t *testing.T) {
	causality := topology.CausalityMap{1: nil, 2: {1}, 3: {1}}

	nodes, cleanup := setupNodes(t, 3, causality)
	defer cleanup()

	m1 := nodes[0].bc.Dispatch(lcb.KindLCB, []byte("m1"))

	require.Eventually(t, func() bool {
		return len(nodes[0].delivered()) >= 1 && len(nodes[1].delivered()) >= 1 && len(nodes[2].delivered()) >= 1
	}, 2*time.Second, 10*time.Millisecond, "m1 must reach every node")

	dependentVC := nodes[1].ds.VectorClock()
	require.GreaterOrEqual(t, dependentVC[lcb.OwnerID(1)], uint32(1))

	nodes[1].bc.Dispatch(lcb.KindLCB, []byte("m2"))
	nodes[2].bc.Dispatch(lcb.KindLCB, []byte("m3"))

	require.Eventually(t, func() bool {
		return len(nodes[0].delivered()) >= 3 && len(nodes[1].delivered()) >= 3 && len(nodes[2].delivered()) >= 3
	}, 2*time.Second, 10*time.Millisecond, "m1, m2, m3 must reach every node")

	for i, tn := range nodes {
		order := tn.delivered()
		require.Equal(t, m1.OwnerID, order[0].OwnerID, "node %d must deliver m1 before any dependent message", i+1)
	}
}

// TestUrbDeliversDespiteNodeGoingSilent reproduces spec §8.3 scenario 5:
// one node broadcasts a single message and then stops sending anything
// else; the other two nodes still deliver that message via re-broadcast
// and majority ack.
func TestUrbDeliversDespiteNodeGoingSilent(t *testing.T) {
	nodes, cleanup := setupNodes(t, 3, topology.CausalityMap{})
	defer cleanup()

	nodes[0].bc.Dispatch(lcb.KindURB, []byte("last words"))

	// Let the initial broadcast actually hit the wire before node 1 goes
	// silent: close its socket so it can neither resend nor re-forward
	// anything further.
	time.Sleep(50 * time.Millisecond)
	_ = nodes[0].conn.Close()

	require.Eventually(t, func() bool {
		return len(nodes[1].delivered()) >= 1 && len(nodes[2].delivered()) >= 1
	}, 2*time.Second, 10*time.Millisecond, "the two surviving nodes must still reach uniform agreement")
}
