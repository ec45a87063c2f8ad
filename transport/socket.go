package transport

import (
	"net"
	"time"
)

// Socket is the datagram primitive the transport sends and receives
// through. RecvDatagram must not block indefinitely: it returns
// ok=false when nothing is available within its polling granularity.
type Socket interface {
	// SendDatagram transmits one datagram to the given address.
	SendDatagram(data []byte, to net.Addr) error

	// RecvDatagram reads one datagram into buf. ok=false means no
	// datagram was available; err is reserved for real socket faults.
	RecvDatagram(buf []byte) (n int, from net.Addr, ok bool, err error)

	// LocalAddr returns the bound local address.
	LocalAddr() net.Addr

	// Close releases the socket.
	Close() error
}

// UDPSocket adapts a net.PacketConn to the Socket interface using
// short read deadlines, so receives poll with bounded sleep instead of
// blocking forever.
type UDPSocket struct {
	conn        net.PacketConn
	pollTimeout time.Duration
}

// NewUDPSocket binds a UDP socket on listenAddr. A bind failure is the
// one fatal construction error of this package; it is surfaced here and
// never discovered later.
func NewUDPSocket(listenAddr string) (*UDPSocket, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{
		conn:        conn,
		pollTimeout: time.Millisecond,
	}, nil
}

// SendDatagram transmits one datagram to the given address.
func (s *UDPSocket) SendDatagram(data []byte, to net.Addr) error {
	_, err := s.conn.WriteTo(data, to)
	return err
}

// RecvDatagram reads one datagram, waiting at most the poll timeout.
// A deadline expiry is reported as ok=false, not as an error.
func (s *UDPSocket) RecvDatagram(buf []byte) (int, net.Addr, bool, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout))

	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		if netErr, isNetErr := err.(net.Error); isNetErr && netErr.Timeout() {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	return n, addr, true, nil
}

// LocalAddr returns the bound local address.
func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the socket.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}
