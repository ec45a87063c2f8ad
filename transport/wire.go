package transport

import (
	"encoding/binary"
	"hash/crc32"
)

// PacketType identifies the internal framing of a wire packet.
type PacketType uint16

const (
	// PacketUnreliable carries a user payload with no delivery
	// guarantee beyond the piggybacked reliable section.
	PacketUnreliable PacketType = 1
	// PacketReliable is sent when the application queues a reliable
	// message and has no user payload of its own to attach.
	PacketReliable PacketType = 2
	// PacketSlice is reserved for fragmented payloads. It is never
	// built and is rejected on parse.
	PacketSlice PacketType = 3
)

const (
	// ProtocolID distinguishes this protocol's packets from stray
	// datagrams. It is folded into the checksum seed rather than sent
	// on the wire, so packets built with a different protocol id fail
	// the CRC check.
	ProtocolID uint16 = 0x574C

	// MaxPacketBytes caps a packet at one conservative MTU.
	MaxPacketBytes = 1200
	// MaxPacketWords is the packet size in 32-bit words.
	MaxPacketWords = MaxPacketBytes / 4

	// MaxReliablesPerPacket caps the piggyback section regardless of
	// remaining space.
	MaxReliablesPerPacket = 64
	// MaxReliablePayload is the per-message byte budget of a reliable
	// slot.
	MaxReliablePayload = 256

	// reliableCountBits is the width of the piggyback count field,
	// sized for MaxReliablesPerPacket.
	reliableCountBits = 7

	// crcBytes is the width of the leading checksum field.
	crcBytes = 4
)

// keepaliveUserType is the reserved user type of packets that exist
// only to move acks and piggybacked reliables. Its codec writes zero
// payload bits. Applications cannot register it.
const keepaliveUserType uint16 = 0xFFFF

var crcTable = crc32.MakeTable(crc32.IEEE)

// checksum computes the packet CRC over everything after the checksum
// field, seeded with the protocol id so that packets built with a
// different id never verify.
func checksum(data []byte) uint32 {
	var seed [2]byte
	binary.LittleEndian.PutUint16(seed[:], ProtocolID)
	crc := crc32.Update(0, crcTable, seed[:])
	return crc32.Update(crc, crcTable, data)
}
