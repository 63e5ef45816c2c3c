package guestmem

import (
	"io"
	"sync"

	"github.com/wippyai/wasi-crypto/errors"
)

// Retained is a guest region whose lifetime the guest has asserted to
// extend to the lifetime of the host resource holding it.
//
// UNCHECKED: the host cannot verify that assertion. The guest must keep
// the region allocated and must not read or write it while the owning
// resource is open. Violations are a guest-side contract breach and can
// race with host reads and writes. This type is the only place in the
// boundary where guest memory is referenced beyond a single call.
//
// Retained implements io.ReaderAt and io.WriterAt; both re-validate the
// region against the current memory on every access.
type Retained struct {
	mem      Memory
	mu       sync.RWMutex
	ptr      uint32
	length   uint32
	released bool
}

var (
	_ io.ReaderAt = (*Retained)(nil)
	_ io.WriterAt = (*Retained)(nil)
)

// Len returns the region length in bytes.
func (r *Retained) Len() uint32 {
	return r.length
}

// Ptr returns the guest address of the region.
func (r *Retained) Ptr() uint32 {
	return r.ptr
}

// ReadAt copies region bytes starting at off into p.
func (r *Retained) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := r.bytes()
	if err != nil {
		return 0, err
	}
	if off < 0 || off > int64(len(data)) {
		return 0, errors.OutOfBounds(errors.PhaseGuest, uint64(r.ptr)+uint64(max(off, 0)), uint64(len(p)), r.length)
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies p into the region starting at off. Writes that would run
// past the end of the region are rejected whole.
func (r *Retained) WriteAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := r.bytes()
	if err != nil {
		return 0, err
	}
	if off < 0 || uint64(off)+uint64(len(p)) > uint64(len(data)) {
		return 0, errors.OutOfBounds(errors.PhaseGuest, uint64(r.ptr)+uint64(max(off, 0)), uint64(len(p)), r.length)
	}
	return copy(data[off:], p), nil
}

// Release ends the host's use of the region. Later access fails with a
// closed error. Release is idempotent.
func (r *Retained) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	r.mem = nil
}

// Released reports whether Release has been called.
func (r *Retained) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

// bytes re-resolves the region. Caller holds mu.
func (r *Retained) bytes() ([]byte, error) {
	if r.released {
		return nil, errors.New(errors.PhaseGuest, errors.KindClosed).
			Detail("retained guest buffer released").
			Build()
	}
	return resolve(r.mem, r.ptr, uint64(r.length))
}
