// Package outlog implements the dedicated writer task from spec §4.7: the
// sole writer of a process's output file, appending one line per event in
// the order events arrive on its channel.
package outlog

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
)

// EventKind distinguishes the two shapes of line the writer can emit.
type EventKind int

const (
	DispatchEvent EventKind = iota
	DeliveryEvent
)

// Event is what the enqueuer and the delivered-state callback post to the
// writer's channel.
type Event struct {
	Kind          EventKind
	BroadcastKind lcb.Kind
	OwnerID       lcb.OwnerID
	Contents      string
}

// NewDispatch builds the event a locally-originated broadcast posts.
func NewDispatch(kind lcb.Kind, contents string) Event {
	return Event{Kind: DispatchEvent, BroadcastKind: kind, Contents: contents}
}

// NewDelivery builds the event the delivered-state callback posts once a
// payload is actually delivered.
func NewDelivery(owner lcb.OwnerID, kind lcb.Kind, contents string) Event {
	return Event{Kind: DeliveryEvent, BroadcastKind: kind, OwnerID: owner, Contents: contents}
}

// Writer drains Events and appends one formatted line per event to Out.
type Writer struct {
	Events  <-chan Event
	Out     io.Writer
	Verbose bool
	Logger  *log.Logger
}

func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				w.Logger.Print(lcb.ErrChannel("writer"))

				return
			}

			fmt.Fprintln(w.Out, w.format(ev))
		}
	}
}

func (w *Writer) format(ev Event) string {
	if w.Verbose {
		switch ev.Kind {
		case DispatchEvent:
			return fmt.Sprintf("sent %s: %s", ev.BroadcastKind, ev.Contents)
		case DeliveryEvent:
			return fmt.Sprintf("delivered %s from %d: %s", ev.BroadcastKind, ev.OwnerID, ev.Contents)
		}
	}

	switch ev.Kind {
	case DispatchEvent:
		return fmt.Sprintf("b %s", ev.Contents)
	case DeliveryEvent:
		return fmt.Sprintf("d %d %s", ev.OwnerID, ev.Contents)
	default:
		return ""
	}
}
