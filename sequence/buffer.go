// Package sequence provides a fixed-capacity circular buffer keyed by
// 16-bit wraparound sequence numbers.
//
// The buffer holds exactly 256 slots. A sequence number s may only
// occupy slot s % 256, so a slot's stored number always identifies its
// contents unambiguously. Inserting a number more recent than anything
// seen so far clears every slot between the old and new cursor, which
// prevents stale entries from a previous revolution being mistaken for
// current ones.
package sequence

const (
	// Size is the fixed slot count of every Buffer.
	Size = 256

	// emptySlot marks a vacant slot. It is outside the uint16 range so
	// it can never collide with a stored sequence number.
	emptySlot = uint32(0xFFFFFFFF)
)

// Buffer is a 256-slot store of T keyed by sequence number.
// It is not safe for concurrent use.
type Buffer[T any] struct {
	next    uint16 // one past the most recent sequence ever inserted
	entries [Size]uint32
	data    [Size]T
}

// New creates an empty buffer with its cursor at zero.
func New[T any]() *Buffer[T] {
	b := &Buffer[T]{}
	for i := range b.entries {
		b.entries[i] = emptySlot
	}
	return b
}

// Sequence returns the cursor: one past the most recent sequence number
// ever inserted.
func (b *Buffer[T]) Sequence() uint16 {
	return b.next
}

// Insert claims the slot for seq and returns a pointer to its
// zero-initialized payload. It returns false for sequence numbers older
// than cursor-256; those can no longer be represented. Re-inserting a
// live sequence number re-initializes the slot, which is how duplicate
// datagrams are absorbed.
func (b *Buffer[T]) Insert(seq uint16) (*T, bool) {
	if Older(seq, b.next-Size) {
		return nil, false
	}
	if MoreRecent(seq+1, b.next) {
		b.removeRange(b.next, seq)
		b.next = seq + 1
	}
	idx := int(seq) % Size
	b.entries[idx] = uint32(seq)
	var zero T
	b.data[idx] = zero
	return &b.data[idx], true
}

// removeRange vacates the slots for sequence numbers start..end
// inclusive, capped at one full revolution.
func (b *Buffer[T]) removeRange(start, end uint16) {
	count := int(end-start) + 1
	if count > Size {
		count = Size
	}
	for i := 0; i < count; i++ {
		b.entries[int(start+uint16(i))%Size] = emptySlot
	}
}

// Get returns the payload stored for seq, or false if the slot is
// vacant or holds a different sequence number.
func (b *Buffer[T]) Get(seq uint16) (*T, bool) {
	idx := int(seq) % Size
	if b.entries[idx] != uint32(seq) {
		return nil, false
	}
	return &b.data[idx], true
}

// Exists reports whether seq is currently stored.
func (b *Buffer[T]) Exists(seq uint16) bool {
	return b.entries[int(seq)%Size] == uint32(seq)
}

// Available reports whether seq could be inserted without evicting a
// different live entry, i.e. its slot is vacant or already holds seq.
func (b *Buffer[T]) Available(seq uint16) bool {
	entry := b.entries[int(seq)%Size]
	return entry == emptySlot || entry == uint32(seq)
}

// Remove vacates the slot for seq. The payload memory is left as-is.
func (b *Buffer[T]) Remove(seq uint16) {
	idx := int(seq) % Size
	if b.entries[idx] == uint32(seq) {
		b.entries[idx] = emptySlot
	}
}
