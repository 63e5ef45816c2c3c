// Package wasicrypto exposes a cryptoctx.Context to WebAssembly guests as
// the wasi_ephemeral_crypto_common host module.
//
// Every export takes raw guest pointers, lengths and handles, returns a
// crypto_errno as i32, and writes results through guest out-pointers. All
// guest regions a call touches, out-pointers included, are validated
// before the call changes any host state, so a failed call leaves both the
// guest and the context unchanged.
//
// Usage:
//
//	cc, _ := cryptoctx.New(cryptoctx.WithKeyStore(keystore.NewMemory()))
//	host, _ := wasicrypto.NewHost(cc)
//	if _, err := host.Instantiate(ctx, r); err != nil {
//		return err
//	}
//
// The exported functions are also available as Go methods on Host taking
// a guestmem.Memory, which is how they are tested without a guest.
package wasicrypto
