package transport

import (
	"net"
	"sync"
	"time"

	"github.com/opd-ai/wirelink/sequence"
	"github.com/sirupsen/logrus"
)

// Message is one application payload delivered by the transport.
type Message struct {
	UserType uint16
	Data     []byte
	From     net.Addr
}

// Stats counts transport-boundary events. Network-origin faults are
// absorbed here rather than surfaced as errors.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BadChecksum     uint64
	Malformed       uint64
}

// InterceptFunc diverts outgoing wire bytes away from the socket. The
// network simulator installs one to delay, drop, or mangle traffic
// before it reaches the real link.
type InterceptFunc func(data []byte, to net.Addr)

// Option configures a Transport at construction.
type Option func(*Transport)

// WithClock substitutes the time source.
func WithClock(c Clock) Option {
	return func(t *Transport) { t.clock = c }
}

// WithInterceptor routes outgoing datagrams through fn instead of the
// socket.
func WithInterceptor(fn InterceptFunc) Option {
	return func(t *Transport) { t.intercept = fn }
}

// WithLogger substitutes the log entry used for boundary diagnostics.
func WithLogger(log *logrus.Entry) Option {
	return func(t *Transport) { t.log = log }
}

// Transport is the per-peer protocol endpoint. It owns the packet
// metadata buffers for both directions, the reliable channel, the ack
// tracker, and one mutex serializing every operation.
type Transport struct {
	mu sync.Mutex

	socket    Socket
	peer      net.Addr
	reg       *Registry
	clock     Clock
	intercept InterceptFunc
	log       *logrus.Entry

	outgoing *sequence.Buffer[sentPacket]
	incoming *sequence.Buffer[receivedPacket]
	channel  *reliableChannel
	acks     ackTracker

	localSequence uint16
	recvBuf       []byte
	closed        bool
	stats         Stats
}

// New creates a Transport conversing with peer through socket. One
// Transport serves exactly one remote peer; create another for each
// additional conversation partner.
func New(socket Socket, peer net.Addr, reg *Registry, opts ...Option) *Transport {
	t := &Transport{
		socket:   socket,
		peer:     peer,
		reg:      reg,
		clock:    SystemClock{},
		log:      logrus.WithField("peer", peer.String()),
		outgoing: sequence.New[sentPacket](),
		incoming: sequence.New[receivedPacket](),
		recvBuf:  make([]byte, MaxPacketBytes),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.channel = newReliableChannel(reg, t.log)
	return t
}

// Send transmits a user payload with no delivery guarantee. Pending
// reliable messages and current ack state ride along.
func (t *Transport) Send(userType uint16, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return t.sendPacket(PacketUnreliable, userType, data)
}

// SendReliable queues data for exactly-once, in-order delivery and
// immediately transmits a packet carrying it. The message is retained
// and resent on every subsequent outgoing packet until acknowledged.
// ErrWindowFull means 256 messages are already outstanding; retry after
// acks arrive.
func (t *Transport) SendReliable(userType uint16, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.channel.send(userType, data); err != nil {
		return err
	}
	return t.sendPacket(PacketReliable, keepaliveUserType, nil)
}

// SendKeepalive transmits a packet with no user payload, moving acks
// and pending reliable messages. Useful when the application has
// nothing to say but the protocol still needs to make progress.
func (t *Transport) SendKeepalive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return t.sendPacket(PacketReliable, keepaliveUserType, nil)
}

// sendPacket assigns the next sequence number, builds the wire image
// with current ack state and as many pending reliables as fit, records
// the send, and hands the bytes to the interceptor or socket.
func (t *Transport) sendPacket(ptype PacketType, userType uint16, data []byte) error {
	seq := t.localSequence
	ack, ackBits := makeAck(t.incoming)

	b := newPacketBuilder(t.reg)
	b.writeHeader(ptype, userType, seq, ack, ackBits)
	b.writePayload(userType, data)
	entries := t.channel.selectForPacket(b.w)
	b.writeReliables(entries)

	wire, err := b.finish()
	if err != nil {
		return err
	}

	t.localSequence++
	record, ok := t.outgoing.Insert(seq)
	if ok {
		record.sentAt = t.clock.Now()
		record.idCount = uint8(len(entries))
		for i, e := range entries {
			record.ids[i] = e.id
		}
	}
	t.stats.PacketsSent++

	if t.intercept != nil {
		t.intercept(wire, t.peer)
		return nil
	}
	return t.socket.SendDatagram(wire, t.peer)
}

// ReceivePacket polls the socket and processes datagrams until one
// yields a user payload or none are pending. It returns (nil, nil) when
// nothing is available. Corrupted and malformed datagrams are counted
// and skipped, never surfaced; keepalive packets are processed for
// their ack and reliable content and skipped likewise.
func (t *Transport) ReceivePacket() (*Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	for {
		n, from, ok, err := t.socket.RecvDatagram(t.recvBuf)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		msg, err := t.processDatagram(t.recvBuf[:n], from)
		if err != nil {
			continue
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// ProcessDatagram feeds one raw datagram through the parse, ack, and
// reliable machinery. The returned Message is nil for keepalives. The
// worker-offload model calls this from the application thread with
// datagrams drained from a RecvWorker.
func (t *Transport) ProcessDatagram(data []byte, from net.Addr) (*Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	return t.processDatagram(data, from)
}

func (t *Transport) processDatagram(data []byte, from net.Addr) (*Message, error) {
	p, err := parsePacket(t.reg, data)
	if err != nil {
		switch err {
		case ErrBadChecksum:
			t.stats.BadChecksum++
		default:
			t.stats.Malformed++
		}
		t.log.WithFields(logrus.Fields{
			"size":  len(data),
			"error": err,
		}).Debug("Dropping undecodable datagram")
		return nil, err
	}

	now := t.clock.Now()

	// Duplicate sequence numbers re-insert harmlessly.
	if record, ok := t.incoming.Insert(p.sequence); ok {
		record.receivedAt = now
	}

	t.acks.applyAck(t.outgoing, p.ack, p.ackBits, now, t.channel.onAck)

	for _, e := range p.reliables {
		t.channel.receive(e.id, e.userType, e.data)
	}

	t.stats.PacketsReceived++

	if p.userType == keepaliveUserType {
		return nil, nil
	}
	return &Message{UserType: p.userType, Data: p.payload, From: from}, nil
}

// ReceiveReliable delivers the next in-order reliable message, or
// reports false when it has not arrived yet. Each message is delivered
// exactly once, in sending order, regardless of duplication or
// reordering on the wire. A closed transport reports false.
func (t *Transport) ReceiveReliable() (*Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false
	}

	userType, data, ok := t.channel.pop()
	if !ok {
		return nil, false
	}
	return &Message{UserType: userType, Data: data, From: t.peer}, true
}

// RTT returns the current round-trip estimate, zero before the first
// acknowledged packet.
func (t *Transport) RTT() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acks.rtt
}

// Stats returns a snapshot of the boundary counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Peer returns the remote address this transport converses with.
func (t *Transport) Peer() net.Addr {
	return t.peer
}

// Close marks the transport unusable and closes its socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.socket.Close()
}
