package transport

import (
	"time"

	"github.com/opd-ai/wirelink/sequence"
)

// sentPacket is the outgoing-buffer record for one transmitted packet.
type sentPacket struct {
	acked   bool
	sentAt  time.Time
	ids     [MaxReliablesPerPacket]uint16
	idCount uint8
}

// reliableIDs returns the reliable sequence numbers piggybacked on this
// packet.
func (p *sentPacket) reliableIDs() []uint16 {
	return p.ids[:p.idCount]
}

// receivedPacket is the incoming-buffer record for one accepted packet.
type receivedPacket struct {
	receivedAt time.Time
}

// ackTracker derives outgoing ack state from the incoming packet buffer
// and applies incoming ack state to the outgoing one, feeding the RTT
// estimate.
type ackTracker struct {
	rtt    time.Duration
	hasRTT bool
}

// makeAck summarizes the incoming buffer as an acknowledgement: the
// most recent sequence number received plus a bitmask where bit i
// covers sequence ack-i, for i in [0, 32). Bit 0 is ack itself, so one
// ack field acknowledges up to 32 packets.
func makeAck(incoming *sequence.Buffer[receivedPacket]) (ack uint16, ackBits uint32) {
	ack = incoming.Sequence() - 1
	for i := 0; i < 32; i++ {
		if incoming.Exists(ack - uint16(i)) {
			ackBits |= 1 << i
		}
	}
	return ack, ackBits
}

// applyAck marks every covered outgoing packet acked, invokes onAck for
// each newly-acked record, and folds the send-to-ack delay into the RTT
// estimate. Re-applying the same acknowledgement is harmless: records
// already marked are skipped.
func (a *ackTracker) applyAck(outgoing *sequence.Buffer[sentPacket], ack uint16, ackBits uint32, now time.Time, onAck func(*sentPacket)) {
	for i := 0; i < 32; i++ {
		if ackBits&(1<<i) == 0 {
			continue
		}
		seq := ack - uint16(i)
		record, ok := outgoing.Get(seq)
		if !ok || record.acked {
			continue
		}
		record.acked = true
		if onAck != nil {
			onAck(record)
		}
		a.observeRTT(now.Sub(record.sentAt))
	}
}

// observeRTT folds one sample into an exponential moving average with
// factor 1/10. The first sample seeds the estimate directly.
func (a *ackTracker) observeRTT(sample time.Duration) {
	if sample < 0 {
		return
	}
	if !a.hasRTT {
		a.rtt = sample
		a.hasRTT = true
		return
	}
	a.rtt += (sample - a.rtt) / 10
}
