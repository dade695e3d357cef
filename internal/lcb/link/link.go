// Package link implements the reliable point-to-point transport described
// in spec §4.4: three cooperating tasks — sender, receiver, retransmitter —
// exchanging Messages over queues, giving at-least-once delivery per hop
// via stop-and-wait retransmission with per-packet ACKs.
package link

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/delivered"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

const MaxDatagramBytes = 65535

// Message is the unit every link task queue carries.
type Message struct {
	Payload     lcb.Payload
	Destination topology.Node
	SendingTime time.Time
}

// Socket is the subset of *net.UDPConn the link tasks need. Satisfied
// directly by *net.UDPConn; named so tests can substitute a wrapping
// double (such as one that replays every datagram it reads).
type Socket interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// Sender drains tx_sending, stamping, serializing, and transmitting each
// message, then forwarding non-ack messages into tx_retrans for the
// retransmitter to track.
type Sender struct {
	Self      lcb.NodeID
	Conn      Socket
	TxSending <-chan Message
	TxRetrans chan<- Message
	Logger    *log.Logger
}

func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.TxSending:
			if !ok {
				s.Logger.Print(lcb.ErrChannel("sender"))

				return
			}

			s.send(ctx, msg)
		}
	}
}

func (s *Sender) send(ctx context.Context, msg Message) {
	msg.Payload.SenderID = lcb.SenderID(s.Self)

	data, err := lcb.Encode(msg.Payload)
	if err != nil {
		s.Logger.Print(lcb.ErrEncoding(err))

		return
	}

	if _, err := s.Conn.WriteToUDP(data, msg.Destination.UDPAddr()); err != nil {
		s.Logger.Print(lcb.ErrIO(fmt.Sprintf("sendto %v", msg.Destination.UDPAddr()), err))

		return
	}

	msg.SendingTime = time.Now()

	if msg.Payload.IsAck {
		return
	}

	select {
	case s.TxRetrans <- msg:
	case <-ctx.Done():
	}
}

// Receiver blocks on recvfrom, acks non-ack payloads, feeds the delivered
// set, and invokes Forward to run the broadcast re-forwarding rule.
type Receiver struct {
	Conn      Socket
	TxSending chan<- Message
	Delivered *delivered.Set
	Forward   func(lcb.Payload)
	Logger    *log.Logger
}

func (r *Receiver) Run(ctx context.Context) {
	buf := make([]byte, MaxDatagramBytes)

	for {
		if ctx.Err() != nil {
			return
		}

		n, addr, err := r.Conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			r.Logger.Print(lcb.ErrIO("recvfrom", err))

			continue
		}

		payload, err := lcb.Decode(buf[:n])
		if err != nil {
			r.Logger.Print(lcb.ErrSerialization(err))

			continue
		}

		if !payload.IsAck {
			ack := payload.AckFor()
			dest := topology.Node{ID: lcb.NodeID(payload.SenderID), IP: addr.IP, Port: addr.Port}

			select {
			case r.TxSending <- Message{Payload: ack, Destination: dest}:
			case <-ctx.Done():
				return
			}
		}

		r.Delivered.Insert(payload.SenderID, payload)

		if !payload.IsAck && r.Forward != nil {
			r.Forward(payload)
		}
	}
}

// Retransmitter drains rx_retrans, waiting out the retransmission offset
// before checking whether the destination has already acked; if not, it
// requeues the message onto tx_sending.
type Retransmitter struct {
	RxRetrans <-chan Message
	TxSending chan<- Message
	Delivered *delivered.Set
	Offset    time.Duration
	Logger    *log.Logger
}

func (r *Retransmitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.RxRetrans:
			if !ok {
				r.Logger.Print(lcb.ErrChannel("retransmitter"))

				return
			}

			if !r.waitForOffset(ctx, msg.SendingTime) {
				return
			}

			destSender := lcb.SenderID(msg.Destination.ID)
			if r.Delivered.HasAcked(destSender, msg.Payload.OwnerID, msg.Payload.PacketUID) {
				continue
			}

			select {
			case r.TxSending <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// waitForOffset polls at a tenth of the retransmission offset until it has
// elapsed since sendingTime, per spec §4.4. Returns false if ctx is
// cancelled first.
func (r *Retransmitter) waitForOffset(ctx context.Context, sendingTime time.Time) bool {
	tick := r.Offset / 10
	if tick <= 0 {
		tick = time.Millisecond
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for time.Since(sendingTime) < r.Offset {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}

	return true
}
