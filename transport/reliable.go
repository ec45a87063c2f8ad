package transport

import (
	"github.com/opd-ai/wirelink/bitio"
	"github.com/opd-ai/wirelink/sequence"
	"github.com/sirupsen/logrus"
)

// reliableMessage is one queued reliable payload. The data lives in a
// fixed array so the sequence buffers stay allocation-free.
type reliableMessage struct {
	userType uint16
	length   uint16
	data     [MaxReliablePayload]byte
}

func (m *reliableMessage) set(userType uint16, data []byte) {
	m.userType = userType
	m.length = uint16(len(data))
	copy(m.data[:], data)
}

func (m *reliableMessage) payload() []byte {
	return m.data[:m.length]
}

// reliableChannel tracks reliable messages in both directions. Outgoing
// messages stay in their window slot until an ack for a packet that
// carried them arrives; incoming messages are held until the
// application drains them in sequence order.
type reliableChannel struct {
	reg      *Registry
	outgoing *sequence.Buffer[reliableMessage]
	incoming *sequence.Buffer[reliableMessage]

	nextOutgoing  uint16 // next reliable sequence number to assign
	oldestUnacked uint16 // left edge of the send window
	nextIncoming  uint16 // next reliable sequence number to deliver

	log *logrus.Entry
}

func newReliableChannel(reg *Registry, log *logrus.Entry) *reliableChannel {
	return &reliableChannel{
		reg:      reg,
		outgoing: sequence.New[reliableMessage](),
		incoming: sequence.New[reliableMessage](),
		log:      log,
	}
}

// send queues a message for reliable delivery. It fails with
// ErrWindowFull when the slot for the next sequence number still holds
// an unacknowledged message from one window revolution ago.
func (c *reliableChannel) send(userType uint16, data []byte) error {
	if _, ok := c.reg.lookup(userType); !ok {
		return ErrUnknownUserType
	}
	if len(data) > MaxReliablePayload {
		return ErrPacketOverflow
	}
	if !c.outgoing.Available(c.nextOutgoing) {
		return ErrWindowFull
	}

	record, ok := c.outgoing.Insert(c.nextOutgoing)
	if !ok {
		return ErrWindowFull
	}
	record.set(userType, data)
	c.nextOutgoing++
	return nil
}

// selectForPacket walks the send window from the oldest unacked message
// and greedily picks messages that still fit the packet being built,
// reserving room for the count field. Selection stops at the first
// message that does not fit or at the per-packet cap.
func (c *reliableChannel) selectForPacket(w *bitio.Writer) []reliableEntry {
	var entries []reliableEntry
	needBits := reliableCountBits
	for seq := c.oldestUnacked; seq != c.nextOutgoing; seq++ {
		record, ok := c.outgoing.Get(seq)
		if !ok {
			continue
		}
		codec, ok := c.reg.lookup(record.userType)
		if !ok {
			continue
		}
		cost := 16 + 16 + codec.MeasureBits()
		if w.WouldOverflow(needBits + cost) {
			break
		}
		needBits += cost
		entries = append(entries, reliableEntry{
			id:       seq,
			userType: record.userType,
			data:     record.payload(),
		})
		if len(entries) == MaxReliablesPerPacket {
			break
		}
	}
	return entries
}

// receive accepts one piggybacked entry from a parsed packet. Entries
// outside the 256-wide receive window and duplicates are discarded;
// their bits were already consumed during parse.
func (c *reliableChannel) receive(id, userType uint16, data []byte) {
	if uint16(id-c.nextIncoming) >= sequence.Size {
		return
	}
	if c.incoming.Exists(id) {
		return
	}
	if len(data) > MaxReliablePayload {
		c.log.WithFields(logrus.Fields{
			"reliable_id": id,
			"size":        len(data),
		}).Debug("Discarding oversized reliable payload")
		return
	}

	record, ok := c.incoming.Insert(id)
	if !ok {
		return
	}
	record.set(userType, data)
}

// pop delivers the next in-order reliable message, or reports false
// when it has not arrived yet. A gap is never skipped: delivery stalls
// until the missing sequence number shows up on a later packet.
func (c *reliableChannel) pop() (userType uint16, data []byte, ok bool) {
	record, ok := c.incoming.Get(c.nextIncoming)
	if !ok {
		return 0, nil, false
	}
	userType = record.userType
	data = append([]byte(nil), record.payload()...)
	c.incoming.Remove(c.nextIncoming)
	c.nextIncoming++
	return userType, data, true
}

// onAck retires every reliable message carried by an acked packet, then
// advances the window's left edge past retired slots.
func (c *reliableChannel) onAck(record *sentPacket) {
	for _, id := range record.reliableIDs() {
		c.outgoing.Remove(id)
	}
	for c.oldestUnacked != c.nextOutgoing && !c.outgoing.Exists(c.oldestUnacked) {
		c.oldestUnacked++
	}
}
