// Package guestmem is the only place where guest (pointer, length) pairs
// become host-visible byte slices.
//
// A View is created per boundary call. Every region handed out by a View is
// bounds-checked against the guest's linear memory, checked for address
// overflow and, for typed out-pointers, for alignment. Within one View a
// mutable region may not overlap any other region, and a shared region may
// not overlap a mutable one, so host code never sees two aliasing slices
// where one is written. A View and its slices must not outlive the call.
//
//	v := guestmem.NewView(mod.Memory())
//	name, err := v.String(namePtr, nameLen)   // UTF-8 validated copy
//	buf, err := v.MutBytes(bufPtr, bufLen)     // write-through view
//	out, err := v.Uint32Out(resultPtr)         // aligned u32 out-pointer
//	out.Store(n)
//
// # Retained regions
//
// Retain is the single unsafe seam of the boundary. It turns a call-scoped
// borrow into a token that outlives the call: the guest asserts that the
// region stays valid and reserved for the host until the owning resource is
// closed. The host cannot check that assertion. A guest that reuses the
// region, or lets another thread touch it, races with the host. The token
// re-resolves the region against the current memory on every access, so a
// grown (reallocated) memory is followed and out-of-range access is still
// rejected, but concurrent guest writes are not prevented.
package guestmem
