package transport

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Datagram is one raw received datagram queued for processing.
type Datagram struct {
	Data []byte
	From net.Addr
}

// RecvWorker offloads the raw socket receive to a dedicated goroutine.
// The worker pushes datagrams into a bounded ring; the owning
// application thread drains them with Pop and feeds
// Transport.ProcessDatagram on its own schedule. A push onto a full
// ring drops the datagram and counts it — the worker never blocks and
// the ring never corrupts.
type RecvWorker struct {
	socket Socket

	mu    sync.Mutex
	ring  []Datagram
	head  int
	count int

	dropped uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// NewRecvWorker creates a worker reading from socket into a ring of the
// given capacity. Capacity defaults to 1024 when non-positive.
func NewRecvWorker(socket Socket, capacity int) *RecvWorker {
	if capacity <= 0 {
		capacity = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RecvWorker{
		socket: socket,
		ring:   make([]Datagram, capacity),
		ctx:    ctx,
		cancel: cancel,
		log:    logrus.WithField("component", "recv_worker"),
	}
}

// Start launches the receive goroutine.
func (w *RecvWorker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *RecvWorker) loop() {
	defer w.wg.Done()
	buf := make([]byte, MaxPacketBytes)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		// RecvDatagram's poll timeout bounds the sleep, so shutdown is
		// never stuck waiting on a quiet socket.
		n, from, ok, err := w.socket.RecvDatagram(buf)
		if err != nil {
			w.log.WithFields(logrus.Fields{
				"error": err,
			}).Debug("Socket receive failed")
			continue
		}
		if !ok {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		w.push(Datagram{Data: data, From: from})
	}
}

func (w *RecvWorker) push(d Datagram) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == len(w.ring) {
		w.dropped++
		w.log.WithFields(logrus.Fields{
			"capacity": len(w.ring),
			"dropped":  w.dropped,
		}).Warn("Receive queue full, dropping datagram")
		return
	}
	w.ring[(w.head+w.count)%len(w.ring)] = d
	w.count++
}

// Pop removes the oldest queued datagram, reporting false when the
// queue is empty.
func (w *RecvWorker) Pop() (Datagram, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		return Datagram{}, false
	}
	d := w.ring[w.head]
	w.ring[w.head] = Datagram{}
	w.head = (w.head + 1) % len(w.ring)
	w.count--
	return d, true
}

// Dropped returns how many datagrams were discarded on a full queue.
func (w *RecvWorker) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Stop signals the worker and joins it. The socket itself is not
// closed; its owner does that.
func (w *RecvWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}
