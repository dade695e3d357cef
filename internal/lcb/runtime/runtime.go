// Package runtime wires the sender, receiver, retransmitter, enqueuer, and
// writer tasks together into the process described in spec §5.2, sharing
// one DeliveredSet and one pair of link queues between them.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/broadcast"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/delivered"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/link"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/outlog"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

// startupDelay lets peers bind their sockets before traffic starts.
const startupDelay = 2 * time.Second

const queueDepth = 256

// Config is everything a Runtime needs to start: the process's own
// identity, the static membership and causal dependencies it was launched
// with, the UDP socket it owns, and where to write delivery/dispatch
// events.
type Config struct {
	Self                 lcb.NodeID
	Nodes                topology.Nodes
	Causality            topology.CausalityMap
	Conn                 link.Socket
	RetransmissionOffset time.Duration
	MessagesCount        int
	Output               io.Writer
	Verbose              bool
	Logger               *log.Logger
}

// Runtime owns the wiring between the link, delivered-state, broadcast,
// and output-log layers for one process.
type Runtime struct {
	cfg         Config
	delivered   *delivered.Set
	broadcaster *broadcast.Broadcaster
}

func New(cfg Config) *Runtime {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Runtime{cfg: cfg}
}

// Run starts every task and blocks until ctx is cancelled. Per spec §5.2
// there is no cancellation by design in production; ctx exists so tests
// and the CLI's signal handling have a clean way to tear the process down.
func (r *Runtime) Run(ctx context.Context) {
	txSending := make(chan link.Message, queueDepth)
	txRetrans := make(chan link.Message, queueDepth)
	events := make(chan outlog.Event, queueDepth)

	r.delivered = delivered.New(len(r.cfg.Nodes), r.cfg.Self, r.cfg.Causality, func(p lcb.Payload) {
		select {
		case events <- outlog.NewDelivery(p.OwnerID, p.Kind, string(p.Buffer)):
		case <-ctx.Done():
		}
	})

	r.broadcaster = broadcast.New(r.cfg.Self, r.cfg.Nodes, txSending, r.delivered)

	sender := &link.Sender{
		Self: r.cfg.Self, Conn: r.cfg.Conn,
		TxSending: txSending, TxRetrans: txRetrans, Logger: r.cfg.Logger,
	}
	receiver := &link.Receiver{
		Conn: r.cfg.Conn, TxSending: txSending,
		Delivered: r.delivered, Forward: r.broadcaster.Forward, Logger: r.cfg.Logger,
	}
	retransmitter := &link.Retransmitter{
		RxRetrans: txRetrans, TxSending: txSending,
		Delivered: r.delivered, Offset: r.cfg.RetransmissionOffset, Logger: r.cfg.Logger,
	}
	writer := &outlog.Writer{Events: events, Out: r.cfg.Output, Verbose: r.cfg.Verbose, Logger: r.cfg.Logger}

	var wg sync.WaitGroup

	tasks := []func(context.Context){sender.Run, receiver.Run, retransmitter.Run, writer.Run, r.runEnqueuer(events)}

	wg.Add(len(tasks))

	for _, task := range tasks {
		task := task

		go func() {
			defer wg.Done()
			task(ctx)
		}()
	}

	wg.Wait()
}

// runEnqueuer returns the enqueuer task: after the startup delay it
// broadcasts MessagesCount LCB payloads and posts a dispatch event for
// each, per spec §4.7/§5.2.
func (r *Runtime) runEnqueuer(events chan<- outlog.Event) func(context.Context) {
	return func(ctx context.Context) {
		select {
		case <-time.After(startupDelay):
		case <-ctx.Done():
			return
		}

		for i := 1; i <= r.cfg.MessagesCount; i++ {
			contents := fmt.Sprintf("message %d from node %d", i, r.cfg.Self)
			payload := r.broadcaster.Dispatch(lcb.KindLCB, []byte(contents))

			select {
			case events <- outlog.NewDispatch(payload.Kind, contents):
			case <-ctx.Done():
				return
			}
		}
	}
}
