package transport

import (
	"fmt"
	"sync"

	"github.com/opd-ai/wirelink/bitio"
)

// Codec serializes one user type's payload into and out of the packet
// bit stream. The transport decides when payloads are written and read;
// the codec decides what the bits mean.
type Codec struct {
	// Write serializes data into the packet.
	Write func(w *bitio.Writer, data []byte) error
	// Read deserializes one payload from the packet.
	Read func(r *bitio.Reader) ([]byte, error)
	// MeasureBits returns an upper bound on the bits Write can
	// produce. It is consulted before serialization to decide whether
	// a reliable message still fits in the packet being built.
	MeasureBits func() int
}

// Registry maps user types to their payload codecs. Registration
// happens once at startup; lookups are concurrent-safe afterwards.
type Registry struct {
	mu     sync.RWMutex
	codecs map[uint16]Codec
}

// NewRegistry creates a registry with the internal keepalive type
// pre-registered.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[uint16]Codec)}
	r.codecs[keepaliveUserType] = Codec{
		Write:       func(w *bitio.Writer, data []byte) error { return nil },
		Read:        func(rd *bitio.Reader) ([]byte, error) { return nil, nil },
		MeasureBits: func() int { return 0 },
	}
	return r
}

// Register binds a codec to a user type. User type 0 is reserved, and a
// codec whose measured size exceeds the reliable-slot budget cannot be
// carried. Both are startup misconfigurations; callers should treat a
// non-nil error as fatal.
func (r *Registry) Register(userType uint16, c Codec) error {
	if userType == 0 {
		return fmt.Errorf("transport: user type 0 is reserved")
	}
	if userType == keepaliveUserType {
		return fmt.Errorf("transport: user type %#x is reserved for keepalives", userType)
	}
	if c.Write == nil || c.Read == nil || c.MeasureBits == nil {
		return fmt.Errorf("transport: codec for user type %d is incomplete", userType)
	}
	if max := (2 + MaxReliablePayload) * 8; c.MeasureBits() > max {
		return fmt.Errorf("transport: codec for user type %d measures %d bits, reliable slot budget is %d",
			userType, c.MeasureBits(), max)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[userType]; exists {
		return fmt.Errorf("transport: user type %d already registered", userType)
	}
	r.codecs[userType] = c
	return nil
}

// lookup returns the codec for a user type.
func (r *Registry) lookup(userType uint16) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[userType]
	return c, ok
}

// RawBytesCodec returns a codec that writes a 16-bit length followed by
// the payload bytes, capped at maxLen.
func RawBytesCodec(maxLen int) Codec {
	return Codec{
		Write: func(w *bitio.Writer, data []byte) error {
			if len(data) > maxLen {
				return fmt.Errorf("transport: payload %d bytes exceeds codec cap %d", len(data), maxLen)
			}
			if err := w.WriteBits(uint32(len(data)), 16); err != nil {
				return err
			}
			for _, b := range data {
				if err := w.WriteBits(uint32(b), 8); err != nil {
					return err
				}
			}
			return nil
		},
		Read: func(r *bitio.Reader) ([]byte, error) {
			n, err := r.ReadBits(16)
			if err != nil {
				return nil, err
			}
			if int(n) > maxLen {
				return nil, ErrMalformed
			}
			data := make([]byte, n)
			for i := range data {
				v, err := r.ReadBits(8)
				if err != nil {
					return nil, err
				}
				data[i] = byte(v)
			}
			return data, nil
		},
		MeasureBits: func() int {
			return 16 + maxLen*8
		},
	}
}
