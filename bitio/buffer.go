// Package bitio implements bit-level serialization over fixed arrays of
// 32-bit words.
//
// Values are packed from bit 0 of word 0 upward, and words serialize to
// bytes little-endian. This convention is load-bearing: checksums are
// computed over the raw bytes produced here, so Writer and Reader must
// agree bit-exactly.
package bitio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOverflow is returned when a read or write would exceed the
// buffer's declared capacity.
var ErrOverflow = errors.New("bitio: buffer overflow")

// Writer appends values of 1 to 32 bits to a fixed-capacity word array.
type Writer struct {
	words       []uint32
	scratch     uint64
	scratchBits int
	wordIndex   int
	bitsWritten int
	numBits     int
}

// NewWriter creates a writer with capacity for numWords 32-bit words.
func NewWriter(numWords int) *Writer {
	return &Writer{
		words:   make([]uint32, numWords),
		numBits: numWords * 32,
	}
}

// WriteBits appends the low `bits` bits of value. Bits must be in
// [1, 32]; exceeding the remaining capacity returns ErrOverflow and
// writes nothing.
func (w *Writer) WriteBits(value uint32, bits int) error {
	if bits < 1 || bits > 32 {
		return fmt.Errorf("bitio: invalid bit count %d", bits)
	}
	if w.WouldOverflow(bits) {
		return ErrOverflow
	}

	if bits < 32 {
		value &= (1 << bits) - 1
	}
	w.scratch |= uint64(value) << w.scratchBits
	w.scratchBits += bits

	for w.scratchBits >= 32 {
		w.words[w.wordIndex] = uint32(w.scratch)
		w.wordIndex++
		w.scratch >>= 32
		w.scratchBits -= 32
	}

	w.bitsWritten += bits
	return nil
}

// WouldOverflow reports whether writing `bits` more bits would exceed
// the buffer capacity. Callers that degrade gracefully (stop attaching
// optional data once the packet is full) must consult this before
// writing.
func (w *Writer) WouldOverflow(bits int) bool {
	return w.bitsWritten+bits > w.numBits
}

// Flush commits a partially-filled accumulator word. Unused high bits
// of the final word are zero. Flush is idempotent.
func (w *Writer) Flush() {
	if w.scratchBits > 0 {
		w.words[w.wordIndex] = uint32(w.scratch)
		w.wordIndex++
		w.scratch = 0
		w.scratchBits = 0
	}
}

// BitsWritten returns the number of bits written so far.
func (w *Writer) BitsWritten() int {
	return w.bitsWritten
}

// Bytes returns the written words serialized little-endian. Call Flush
// first; bits still in the accumulator are not included otherwise.
func (w *Writer) Bytes() []byte {
	out := make([]byte, w.wordIndex*4)
	for i := 0; i < w.wordIndex; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], w.words[i])
	}
	return out
}

// Reader extracts values of 1 to 32 bits from a byte slice produced by
// a Writer.
type Reader struct {
	words       []uint32
	scratch     uint64
	scratchBits int
	wordIndex   int
	bitsRead    int
	numBits     int
}

// NewReader creates a reader over data. A final partial word is
// zero-padded; the readable capacity is len(data)*8 bits.
func NewReader(data []byte) *Reader {
	numWords := (len(data) + 3) / 4
	words := make([]uint32, numWords)
	for i := 0; i < numWords; i++ {
		var chunk [4]byte
		copy(chunk[:], data[i*4:])
		words[i] = binary.LittleEndian.Uint32(chunk[:])
	}
	return &Reader{
		words:   words,
		numBits: len(data) * 8,
	}
}

// ReadBits extracts the next `bits` bits. Bits must be in [1, 32];
// reading past the end of the data returns ErrOverflow.
func (r *Reader) ReadBits(bits int) (uint32, error) {
	if bits < 1 || bits > 32 {
		return 0, fmt.Errorf("bitio: invalid bit count %d", bits)
	}
	if r.bitsRead+bits > r.numBits {
		return 0, ErrOverflow
	}

	for r.scratchBits < bits {
		r.scratch |= uint64(r.words[r.wordIndex]) << r.scratchBits
		r.wordIndex++
		r.scratchBits += 32
	}

	value := uint32(r.scratch & (uint64(1)<<bits - 1))
	r.scratch >>= bits
	r.scratchBits -= bits
	r.bitsRead += bits
	return value, nil
}

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() int {
	return r.bitsRead
}
