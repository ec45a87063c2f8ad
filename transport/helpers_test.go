package transport

import (
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// newTestLogEntry returns a silenced log entry for channel-level tests.
func newTestLogEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// memAddr is a fake net.Addr for in-memory sockets.
type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// memSocket is an in-memory Socket. Datagrams sent on one end appear on
// its peer's receive queue.
type memSocket struct {
	mu    sync.Mutex
	queue []Datagram
	addr  memAddr
	peer  *memSocket
}

// newMemSocketPair creates two connected in-memory sockets.
func newMemSocketPair() (*memSocket, *memSocket) {
	a := &memSocket{addr: "mem:a"}
	b := &memSocket{addr: "mem:b"}
	a.peer = b
	b.peer = a
	return a, b
}

func (s *memSocket) SendDatagram(data []byte, to net.Addr) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.peer.mu.Lock()
	s.peer.queue = append(s.peer.queue, Datagram{Data: cp, From: s.addr})
	s.peer.mu.Unlock()
	return nil
}

func (s *memSocket) RecvDatagram(buf []byte) (int, net.Addr, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, nil, false, nil
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	n := copy(buf, d.Data)
	return n, d.From, true, nil
}

func (s *memSocket) LocalAddr() net.Addr { return s.addr }
func (s *memSocket) Close() error        { return nil }

// popRaw removes the oldest queued datagram without going through the
// transport, for loss/corruption tests.
func (s *memSocket) popRaw() (Datagram, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Datagram{}, false
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	return d, true
}

// pushRaw re-queues a (possibly modified) datagram.
func (s *memSocket) pushRaw(d Datagram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, d)
}

// sinkSocket discards everything sent and never receives.
type sinkSocket struct{ addr memAddr }

func (s *sinkSocket) SendDatagram(data []byte, to net.Addr) error { return nil }
func (s *sinkSocket) RecvDatagram(buf []byte) (int, net.Addr, bool, error) {
	return 0, nil, false, nil
}
func (s *sinkSocket) LocalAddr() net.Addr { return s.addr }
func (s *sinkSocket) Close() error        { return nil }

// testRegistry returns a registry with user type 1 bound to a raw
// bytes codec.
func testRegistry() *Registry {
	reg := NewRegistry()
	if err := reg.Register(1, RawBytesCodec(MaxReliablePayload)); err != nil {
		panic(err)
	}
	return reg
}
