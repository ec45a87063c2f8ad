package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/wirelink/bitio"
)

// reliableEntry is one piggybacked reliable message as it appears on
// the wire.
type reliableEntry struct {
	id       uint16
	userType uint16
	data     []byte
}

// parsedPacket is the decoded form of one verified wire packet.
type parsedPacket struct {
	packetType PacketType
	userType   uint16
	sequence   uint16
	ack        uint16
	ackBits    uint32
	payload    []byte
	reliables  []reliableEntry
}

// packetBuilder assembles one outgoing packet. Write errors are sticky:
// after the first failure every subsequent put is a no-op and finish
// reports the error.
type packetBuilder struct {
	reg *Registry
	w   *bitio.Writer
	err error
}

func newPacketBuilder(reg *Registry) *packetBuilder {
	return &packetBuilder{
		reg: reg,
		w:   bitio.NewWriter(MaxPacketWords),
	}
}

func (b *packetBuilder) put(value uint32, bits int) {
	if b.err != nil {
		return
	}
	b.err = b.w.WriteBits(value, bits)
}

// writeHeader writes the checksum placeholder and the framing fields.
// Only Unreliable and Reliable packets can be built; Slice is reserved.
func (b *packetBuilder) writeHeader(ptype PacketType, userType, seq, ack uint16, ackBits uint32) {
	if ptype != PacketUnreliable && ptype != PacketReliable {
		b.err = fmt.Errorf("transport: cannot build packet type %d", ptype)
		return
	}
	b.put(0, 32) // checksum, patched in finish
	b.put(uint32(ptype), 16)
	b.put(uint32(userType), 16)
	b.put(uint32(seq), 16)
	b.put(uint32(ack), 16)
	b.put(ackBits, 32)
}

func (b *packetBuilder) writePayload(userType uint16, data []byte) {
	if b.err != nil {
		return
	}
	codec, ok := b.reg.lookup(userType)
	if !ok {
		b.err = ErrUnknownUserType
		return
	}
	b.err = codec.Write(b.w, data)
}

// writeReliables writes the piggyback section. The caller has already
// sized the entries against the remaining space, so a write failure
// here is a packet overflow, not a selection mistake.
func (b *packetBuilder) writeReliables(entries []reliableEntry) {
	b.put(uint32(len(entries)), reliableCountBits)
	for _, e := range entries {
		b.put(uint32(e.id), 16)
		b.put(uint32(e.userType), 16)
		b.writePayload(e.userType, e.data)
	}
}

// finish flushes the bit stream and patches the checksum over all bytes
// after the checksum field.
func (b *packetBuilder) finish() ([]byte, error) {
	if b.err != nil {
		if errors.Is(b.err, bitio.ErrOverflow) {
			return nil, ErrPacketOverflow
		}
		return nil, b.err
	}
	b.w.Flush()
	data := b.w.Bytes()
	binary.LittleEndian.PutUint32(data[:crcBytes], checksum(data[crcBytes:]))
	return data, nil
}

// parsePacket verifies and decodes one wire packet. The checksum is
// recomputed first and a mismatch fails closed: corrupted or foreign
// input is dropped before any field is trusted. Reliable payload bits
// are always consumed, even for entries the receiver will discard as
// duplicates, to keep the bit cursor aligned with the sender's.
func parsePacket(reg *Registry, data []byte) (*parsedPacket, error) {
	if len(data) < crcBytes {
		return nil, ErrMalformed
	}

	r := bitio.NewReader(data)
	crc, err := r.ReadBits(32)
	if err != nil {
		return nil, ErrMalformed
	}
	if crc != checksum(data[crcBytes:]) {
		return nil, ErrBadChecksum
	}

	p := &parsedPacket{}

	ptype, err := r.ReadBits(16)
	if err != nil {
		return nil, ErrMalformed
	}
	p.packetType = PacketType(ptype)
	if p.packetType != PacketUnreliable && p.packetType != PacketReliable {
		// Slice is reserved and unimplemented; anything else is junk.
		return nil, ErrMalformed
	}

	userType, err := r.ReadBits(16)
	if err != nil {
		return nil, ErrMalformed
	}
	p.userType = uint16(userType)

	seq, err := r.ReadBits(16)
	if err != nil {
		return nil, ErrMalformed
	}
	p.sequence = uint16(seq)

	ack, err := r.ReadBits(16)
	if err != nil {
		return nil, ErrMalformed
	}
	p.ack = uint16(ack)

	if p.ackBits, err = r.ReadBits(32); err != nil {
		return nil, ErrMalformed
	}

	codec, ok := reg.lookup(p.userType)
	if !ok {
		return nil, ErrMalformed
	}
	if p.payload, err = codec.Read(r); err != nil {
		return nil, ErrMalformed
	}

	count, err := r.ReadBits(reliableCountBits)
	if err != nil {
		return nil, ErrMalformed
	}
	if count > MaxReliablesPerPacket {
		return nil, ErrMalformed
	}

	for i := uint32(0); i < count; i++ {
		var e reliableEntry
		id, err := r.ReadBits(16)
		if err != nil {
			return nil, ErrMalformed
		}
		e.id = uint16(id)

		ut, err := r.ReadBits(16)
		if err != nil {
			return nil, ErrMalformed
		}
		e.userType = uint16(ut)

		entryCodec, ok := reg.lookup(e.userType)
		if !ok {
			return nil, ErrMalformed
		}
		if e.data, err = entryCodec.Read(r); err != nil {
			return nil, ErrMalformed
		}
		p.reliables = append(p.reliables, e)
	}

	return p, nil
}
