package guestmem

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/wippyai/wasi-crypto/errors"
)

// View validates guest regions for the duration of one boundary call and
// enforces that a mutable region aliases nothing else touched by the call.
// A View is not safe for concurrent use and must not be retained.
type View struct {
	mem     Memory
	regions []region
}

type region struct {
	start, end uint64
	mut        bool
}

// NewView creates a call-scoped view over mem. A nil mem (a caller that
// exports no memory) rejects every request with an out-of-bounds error.
func NewView(mem Memory) *View {
	return &View{mem: mem}
}

// Memory returns the underlying guest memory.
func (v *View) Memory() Memory {
	return v.mem
}

// Bytes returns a shared view of length bytes at ptr.
// The slice is only valid until the call returns.
func (v *View) Bytes(ptr, length uint32) ([]byte, error) {
	return v.borrow(ptr, length, 1, 1, false)
}

// MutBytes returns a mutable view of length bytes at ptr that aliases no
// other region of this call.
func (v *View) MutBytes(ptr, length uint32) ([]byte, error) {
	return v.borrow(ptr, length, 1, 1, true)
}

// Array returns a shared view of count elements of elemSize bytes at ptr,
// which must be aligned to align.
func (v *View) Array(ptr, count, elemSize, align uint32) ([]byte, error) {
	return v.borrow(ptr, count, elemSize, align, false)
}

// String reads length bytes at ptr as UTF-8 text. Malformed text is
// rejected, never truncated or replaced.
func (v *View) String(ptr, length uint32) (string, error) {
	data, err := v.Bytes(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseGuest, data)
	}
	return string(data), nil
}

// Uint32Out reserves an aligned u32 out-pointer. Reserving up front lets a
// call validate every guest region before it mutates any host state.
func (v *View) Uint32Out(ptr uint32) (Uint32Ptr, error) {
	data, err := v.borrow(ptr, 1, 4, 4, true)
	if err != nil {
		return Uint32Ptr{}, err
	}
	return Uint32Ptr{data: data}, nil
}

// Retain validates a region and returns a token that outlives the call.
// See the package documentation: the token's lifetime is asserted by the
// guest, not enforced by the host.
func (v *View) Retain(ptr, length uint32) (*Retained, error) {
	if _, err := v.borrow(ptr, length, 1, 1, true); err != nil {
		return nil, err
	}
	return &Retained{mem: v.mem, ptr: ptr, length: length}, nil
}

func (v *View) borrow(ptr, count, elemSize, align uint32, mut bool) ([]byte, error) {
	// u32*u32 + u32 cannot overflow u64, so this arithmetic is exact.
	length := uint64(count) * uint64(elemSize)

	data, err := resolve(v.mem, ptr, length)
	if err != nil {
		return nil, err
	}
	if align > 1 && ptr%align != 0 {
		return nil, errors.Misaligned(errors.PhaseGuest, ptr, align)
	}

	if length == 0 {
		return data, nil
	}

	r := region{start: uint64(ptr), end: uint64(ptr) + length, mut: mut}
	for _, other := range v.regions {
		if r.start < other.end && other.start < r.end && (r.mut || other.mut) {
			return nil, errors.New(errors.PhaseGuest, errors.KindAliasing).
				Value(ptr).
				Detail("region [%d, %d) overlaps [%d, %d) borrowed in the same call", r.start, r.end, other.start, other.end).
				Build()
		}
	}
	v.regions = append(v.regions, r)
	return data, nil
}

// Uint32Ptr is a reserved, aligned u32 slot in guest memory.
type Uint32Ptr struct {
	data []byte
}

// Store writes value little-endian into the slot.
func (p Uint32Ptr) Store(value uint32) {
	binary.LittleEndian.PutUint32(p.data, value)
}
