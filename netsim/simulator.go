// Package netsim emulates adverse link conditions for exercising the
// transport: latency, jitter, loss, single-bit corruption, and
// duplication. Given the same seed and the same call sequence, a
// Simulator behaves identically run to run.
//
// A Simulator is installed as a Transport's outgoing interceptor.
// Intercepted packets wait in a fixed pool until their release time,
// then Flush hands them (possibly mangled or multiplied) to the real
// send primitive. Flush must run on the same schedule as the Transport
// it feeds; the simulator is a single-threaded test harness, not part
// of the protocol.
package netsim

import (
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender is the real send primitive behind the simulator, satisfied by
// transport.Socket.
type Sender interface {
	SendDatagram(data []byte, to net.Addr) error
}

// Config sets the simulated link conditions. Percentages are in
// [0, 100]; a zero PoolSize defaults to 256 in-flight packets.
type Config struct {
	Latency time.Duration
	Jitter  time.Duration // uniform in [-Jitter, +Jitter]

	DropPercent      float64
	CorruptPercent   float64 // flips one random bit when triggered
	DuplicatePercent float64
	DuplicateMin     int // extra copies, inclusive lower bound
	DuplicateMax     int // extra copies, inclusive upper bound

	PoolSize int
	Seed     int64
}

// Stats counts simulator decisions for test assertions.
type Stats struct {
	Intercepted uint64
	PoolDrops   uint64
	Dropped     uint64
	Corrupted   uint64
	Duplicated  uint64
	Delivered   uint64
}

const noSlot = -1

// slot is one pooled in-flight packet. Free and live membership is
// tracked with index links into the fixed arena, so the pool never
// allocates after construction.
type slot struct {
	data    []byte
	to      net.Addr
	release time.Time
	next    int
}

// Simulator intercepts outgoing datagrams and re-schedules them.
// Not safe for concurrent use; drive it from the transport's thread.
type Simulator struct {
	cfg   Config
	out   Sender
	rng   *rand.Rand
	slots []slot

	freeHead int
	liveHead int
	liveTail int

	stats Stats
	log   *logrus.Entry
}

// New creates a simulator delivering to out. The seed fixes every
// random decision, making test runs reproducible.
func New(cfg Config, out Sender) *Simulator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 256
	}
	if cfg.DuplicateMax < cfg.DuplicateMin {
		cfg.DuplicateMax = cfg.DuplicateMin
	}

	s := &Simulator{
		cfg:      cfg,
		out:      out,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		slots:    make([]slot, cfg.PoolSize),
		liveHead: noSlot,
		liveTail: noSlot,
		log:      logrus.WithField("component", "netsim"),
	}
	for i := range s.slots {
		s.slots[i].next = i + 1
	}
	s.slots[len(s.slots)-1].next = noSlot
	s.freeHead = 0
	return s
}

// Intercept schedules one outgoing datagram for release after the
// configured latency plus jitter. When the pool is exhausted the packet
// is silently dropped: backpressure on an overloaded link, not an
// error.
func (s *Simulator) Intercept(data []byte, to net.Addr, now time.Time) {
	s.stats.Intercepted++

	idx := s.freeHead
	if idx == noSlot {
		s.stats.PoolDrops++
		s.log.WithFields(logrus.Fields{
			"pool_size": len(s.slots),
		}).Debug("Packet pool exhausted, dropping")
		return
	}
	s.freeHead = s.slots[idx].next

	sl := &s.slots[idx]
	sl.data = append(sl.data[:0], data...)
	sl.to = to
	sl.release = now.Add(s.cfg.Latency + s.jitter())
	sl.next = noSlot

	if s.liveTail == noSlot {
		s.liveHead = idx
	} else {
		s.slots[s.liveTail].next = idx
	}
	s.liveTail = idx
}

// Flush releases every packet whose time has come, applying drop,
// corruption, and duplication in that order, and returns its slot to
// the pool.
func (s *Simulator) Flush(now time.Time) {
	prev := noSlot
	idx := s.liveHead
	for idx != noSlot {
		sl := &s.slots[idx]
		next := sl.next

		if sl.release.After(now) {
			prev = idx
			idx = next
			continue
		}

		s.unlink(prev, idx, next)
		s.deliver(sl)
		sl.next = s.freeHead
		s.freeHead = idx

		idx = next
	}
}

// unlink removes a live slot, given its predecessor.
func (s *Simulator) unlink(prev, idx, next int) {
	if prev == noSlot {
		s.liveHead = next
	} else {
		s.slots[prev].next = next
	}
	if s.liveTail == idx {
		s.liveTail = prev
	}
}

// deliver applies the configured misbehavior to one released packet and
// hands the survivors to the real sender.
func (s *Simulator) deliver(sl *slot) {
	if s.roll(s.cfg.DropPercent) {
		s.stats.Dropped++
		return
	}

	if s.roll(s.cfg.CorruptPercent) && len(sl.data) > 0 {
		bit := s.rng.Intn(len(sl.data) * 8)
		sl.data[bit/8] ^= 1 << (bit % 8)
		s.stats.Corrupted++
	}

	copies := 1
	if s.roll(s.cfg.DuplicatePercent) {
		extra := s.cfg.DuplicateMin
		if span := s.cfg.DuplicateMax - s.cfg.DuplicateMin; span > 0 {
			extra += s.rng.Intn(span + 1)
		}
		copies += extra
		s.stats.Duplicated++
	}

	for i := 0; i < copies; i++ {
		if err := s.out.SendDatagram(sl.data, sl.to); err != nil {
			s.log.WithFields(logrus.Fields{
				"error": err,
			}).Debug("Simulated send failed")
		}
	}
	s.stats.Delivered += uint64(copies)
}

// roll draws one uniform percentage and reports whether it lands under
// the threshold.
func (s *Simulator) roll(pct float64) bool {
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	return s.rng.Float64()*100 < pct
}

// jitter draws a uniform offset in [-Jitter, +Jitter].
func (s *Simulator) jitter() time.Duration {
	j := int64(s.cfg.Jitter)
	if j <= 0 {
		return 0
	}
	return time.Duration(s.rng.Int63n(2*j+1) - j)
}

// Pending returns how many packets are waiting for release.
func (s *Simulator) Pending() int {
	n := 0
	for idx := s.liveHead; idx != noSlot; idx = s.slots[idx].next {
		n++
	}
	return n
}

// Stats returns a snapshot of the decision counters.
func (s *Simulator) Stats() Stats {
	return s.stats
}
