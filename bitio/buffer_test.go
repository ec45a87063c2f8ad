package bitio

import (
	"errors"
	"math/rand"
	"testing"
)

// TestWriteReadRoundTrip tests that values survive a write/read cycle
// with mixed widths.
func TestWriteReadRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		values []uint32
		bits   []int
	}{
		{
			name:   "byte aligned",
			values: []uint32{0xAB, 0xCD, 0xEF, 0x12},
			bits:   []int{8, 8, 8, 8},
		},
		{
			name:   "unaligned widths",
			values: []uint32{1, 0x3FF, 0x7, 0xFFFF, 0},
			bits:   []int{1, 10, 3, 16, 5},
		},
		{
			name:   "full words",
			values: []uint32{0xDEADBEEF, 0xCAFEBABE},
			bits:   []int{32, 32},
		},
		{
			name:   "single bit stream",
			values: []uint32{1, 0, 1, 1, 0, 1, 0, 0, 1},
			bits:   []int{1, 1, 1, 1, 1, 1, 1, 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(16)
			for i, v := range tt.values {
				if err := w.WriteBits(v, tt.bits[i]); err != nil {
					t.Fatalf("WriteBits(%#x, %d) failed: %v", v, tt.bits[i], err)
				}
			}
			w.Flush()

			r := NewReader(w.Bytes())
			for i, want := range tt.values {
				got, err := r.ReadBits(tt.bits[i])
				if err != nil {
					t.Fatalf("ReadBits(%d) failed: %v", tt.bits[i], err)
				}
				mask := uint32(0xFFFFFFFF)
				if tt.bits[i] < 32 {
					mask = (1 << tt.bits[i]) - 1
				}
				if got != want&mask {
					t.Errorf("value %d: got %#x, want %#x", i, got, want&mask)
				}
			}
		})
	}
}

// TestRandomRoundTrip tests the round-trip property over randomized
// write schedules with a fixed seed.
func TestRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 100; trial++ {
		const numWords = 32
		w := NewWriter(numWords)

		var values []uint32
		var widths []int
		remaining := numWords * 32

		for remaining > 0 {
			bits := rng.Intn(32) + 1
			if bits > remaining {
				bits = remaining
			}
			value := rng.Uint32()
			if err := w.WriteBits(value, bits); err != nil {
				t.Fatalf("trial %d: WriteBits failed with %d bits remaining: %v", trial, remaining, err)
			}
			mask := uint32(0xFFFFFFFF)
			if bits < 32 {
				mask = (1 << bits) - 1
			}
			values = append(values, value&mask)
			widths = append(widths, bits)
			remaining -= bits
		}
		w.Flush()

		r := NewReader(w.Bytes())
		for i := range values {
			got, err := r.ReadBits(widths[i])
			if err != nil {
				t.Fatalf("trial %d: ReadBits(%d) failed: %v", trial, widths[i], err)
			}
			if got != values[i] {
				t.Fatalf("trial %d value %d: got %#x, want %#x", trial, i, got, values[i])
			}
		}
	}
}

// TestWriterOverflow tests that capacity is a checked boundary.
func TestWriterOverflow(t *testing.T) {
	w := NewWriter(1)

	if err := w.WriteBits(0xFFFFFFFF, 32); err != nil {
		t.Fatalf("first word write failed: %v", err)
	}
	if !w.WouldOverflow(1) {
		t.Error("WouldOverflow(1) = false on a full buffer")
	}
	if err := w.WriteBits(1, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	// The failed write must not change state.
	if w.BitsWritten() != 32 {
		t.Errorf("BitsWritten = %d after failed write, want 32", w.BitsWritten())
	}
}

// TestReaderOverflow tests reading past the end of the data.
func TestReaderOverflow(t *testing.T) {
	w := NewWriter(1)
	_ = w.WriteBits(0xAA, 8)
	w.Flush()

	r := NewReader(w.Bytes())
	if _, err := r.ReadBits(32); err != nil {
		t.Fatalf("reading the flushed word failed: %v", err)
	}
	if _, err := r.ReadBits(1); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

// TestInvalidBitCounts tests the [1, 32] contract on both directions.
func TestInvalidBitCounts(t *testing.T) {
	w := NewWriter(4)
	for _, bits := range []int{0, -1, 33} {
		if err := w.WriteBits(0, bits); err == nil {
			t.Errorf("WriteBits with %d bits succeeded", bits)
		}
	}

	r := NewReader([]byte{1, 2, 3, 4})
	for _, bits := range []int{0, -1, 33} {
		if _, err := r.ReadBits(bits); err == nil {
			t.Errorf("ReadBits with %d bits succeeded", bits)
		}
	}
}

// TestFlushZeroPadding tests that unused high bits of the final word
// read back as zero.
func TestFlushZeroPadding(t *testing.T) {
	w := NewWriter(2)
	_ = w.WriteBits(0x7, 3)
	w.Flush()

	data := w.Bytes()
	if len(data) != 4 {
		t.Fatalf("expected one flushed word, got %d bytes", len(data))
	}

	r := NewReader(data)
	got, err := r.ReadBits(3)
	if err != nil {
		t.Fatalf("ReadBits failed: %v", err)
	}
	if got != 0x7 {
		t.Errorf("got %#x, want 0x7", got)
	}
	rest, err := r.ReadBits(29)
	if err != nil {
		t.Fatalf("reading padding failed: %v", err)
	}
	if rest != 0 {
		t.Errorf("padding bits = %#x, want 0", rest)
	}
}

// TestFlushIdempotent tests that a second flush adds nothing.
func TestFlushIdempotent(t *testing.T) {
	w := NewWriter(4)
	_ = w.WriteBits(0xABC, 12)
	w.Flush()
	first := len(w.Bytes())
	w.Flush()
	if second := len(w.Bytes()); second != first {
		t.Errorf("second flush grew output: %d -> %d bytes", first, second)
	}
}

// TestValueMasking tests that only the low n bits of a value are
// written.
func TestValueMasking(t *testing.T) {
	w := NewWriter(1)
	_ = w.WriteBits(0xFFFFFFFF, 4)
	_ = w.WriteBits(0, 28)
	w.Flush()

	r := NewReader(w.Bytes())
	got, _ := r.ReadBits(32)
	if got != 0xF {
		t.Errorf("got %#x, want 0xF", got)
	}
}
