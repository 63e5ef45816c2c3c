package guestmem

import (
	"math"

	"github.com/wippyai/wasi-crypto/errors"
)

// Memory is a guest's linear memory.
// wazero's api.Memory satisfies it.
type Memory interface {
	// Size returns the current size in bytes.
	Size() uint32
	// Read returns a write-through view of byteCount bytes at offset,
	// or false if the range is out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)
}

// MaxSize is the largest length representable in the u32 wire size.
const MaxSize = math.MaxUint32

// Size narrows a host length to the u32 wire size. Lengths that do not fit
// fail with an overflow error instead of being truncated.
func Size(n int) (uint32, error) {
	if n < 0 || uint64(n) > MaxSize {
		return 0, errors.Overflow(errors.PhaseGuest, n, "u32")
	}
	return uint32(n), nil
}

// resolve validates [ptr, ptr+length) against mem and returns the view.
func resolve(mem Memory, ptr uint32, length uint64) ([]byte, error) {
	var size uint32
	if mem != nil {
		size = mem.Size()
	}
	if mem == nil || uint64(ptr)+length > uint64(size) {
		return nil, errors.OutOfBounds(errors.PhaseGuest, uint64(ptr), length, size)
	}
	data, ok := mem.Read(ptr, uint32(length))
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseGuest, uint64(ptr), length, size)
	}
	return data, nil
}
