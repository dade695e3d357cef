package lcb

import (
	"encoding/binary"
	"fmt"
)

// magic identifies a datagram as belonging to this protocol; version allows
// the header shape to change without breaking detection.
const (
	magic          uint32 = 0x4c434231 // "LCB1"
	version        uint8  = 1
	headerLen             = 4 + 1 + 1 + 1 + 4 + 4 + 4 + 4
	maxDatagramLen        = 65507 // UDP payload ceiling over IPv4
)

// Encode serializes p into the wire format a Socket sends: a fixed header
// followed by the vector clock and buffer. It returns an error if the
// encoded datagram would exceed the UDP payload ceiling.
func Encode(p Payload) ([]byte, error) {
	vcBytes := len(p.VectorClock) * 4
	total := headerLen + vcBytes + len(p.Buffer)

	if total > maxDatagramLen {
		return nil, fmt.Errorf("lcb: encoded payload %d bytes exceeds datagram ceiling %d", total, maxDatagramLen)
	}

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], magic)
	buf[4] = version
	buf[5] = byte(p.Kind)

	if p.IsAck {
		buf[6] = 1
	}

	binary.BigEndian.PutUint32(buf[7:11], uint32(p.OwnerID))
	binary.BigEndian.PutUint32(buf[11:15], uint32(p.SenderID))
	binary.BigEndian.PutUint32(buf[15:19], uint32(p.PacketUID))
	binary.BigEndian.PutUint32(buf[19:23], uint32(len(p.VectorClock)))

	off := headerLen
	for _, c := range p.VectorClock {
		binary.BigEndian.PutUint32(buf[off:off+4], c)
		off += 4
	}

	copy(buf[off:], p.Buffer)

	return buf, nil
}

// Decode parses a datagram produced by Encode.
func Decode(data []byte) (Payload, error) {
	if len(data) < headerLen {
		return Payload{}, fmt.Errorf("lcb: datagram too short: %d bytes", len(data))
	}

	if got := binary.BigEndian.Uint32(data[0:4]); got != magic {
		return Payload{}, fmt.Errorf("lcb: bad magic %#x", got)
	}

	if data[4] != version {
		return Payload{}, fmt.Errorf("lcb: unsupported version %d", data[4])
	}

	p := Payload{
		Kind:      Kind(data[5]),
		IsAck:     data[6] != 0,
		OwnerID:   OwnerID(binary.BigEndian.Uint32(data[7:11])),
		SenderID:  SenderID(binary.BigEndian.Uint32(data[11:15])),
		PacketUID: PacketID(binary.BigEndian.Uint32(data[15:19])),
	}

	vcLen := int(binary.BigEndian.Uint32(data[19:23]))
	need := headerLen + vcLen*4

	if len(data) < need {
		return Payload{}, fmt.Errorf("lcb: truncated vector clock: need %d have %d", need, len(data))
	}

	vc := make(VectorClock, vcLen)
	off := headerLen

	for i := range vc {
		vc[i] = binary.BigEndian.Uint32(data[off : off+4])
		off += 4
	}

	p.VectorClock = vc

	if off < len(data) {
		p.Buffer = append([]byte(nil), data[off:]...)
	}

	return p, nil
}
