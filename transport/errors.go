package transport

import "errors"

var (
	// ErrBadChecksum marks a packet whose CRC did not verify. Such
	// packets are dropped at the boundary and never reach application
	// logic.
	ErrBadChecksum = errors.New("transport: bad checksum")

	// ErrMalformed marks a packet that verified but could not be
	// decoded: truncated fields, an unknown packet or user type, or an
	// out-of-range count.
	ErrMalformed = errors.New("transport: malformed packet")

	// ErrWindowFull is returned by SendReliable when all 256 reliable
	// sequence numbers are occupied by unacknowledged messages. The
	// caller should retry after acks arrive.
	ErrWindowFull = errors.New("transport: reliable window full")

	// ErrPacketOverflow is returned when a user payload does not fit
	// in one packet.
	ErrPacketOverflow = errors.New("transport: payload exceeds packet capacity")

	// ErrUnknownUserType is returned when sending with a user type
	// that was never registered. This is a startup misconfiguration,
	// not a network condition.
	ErrUnknownUserType = errors.New("transport: unregistered user type")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")
)
