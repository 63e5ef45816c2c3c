// Package cryptoctx is the host-side crypto context behind the guest
// boundary: it owns every resource a guest can name by handle.
//
// Three resource kinds are managed, each in its own handle table:
//
//	Options       named configuration values (bytes, u64, retained guest buffer)
//	ArrayOutput   drain-once byte results pulled by the guest
//	KeyManager    sessions on a backing KeyStore
//
// Every operation either applies its full effect or leaves state unchanged,
// and every failure is an *errors.Error that errors.ToErrno can classify.
// Each resource serialises its own mutations; tables are safe for
// concurrent use, so one Context may serve many guest instances.
//
//	cc, err := cryptoctx.New(cryptoctx.WithKeyStore(keystore.NewMemory()))
//	h, err := cc.OptionsOpen(cryptoctx.OptionsSymmetric)
//	err = cc.OptionsSetU64(h, "ops_limit", 3)
//	err = cc.OptionsClose(h)
//
// Cryptographic algorithms are not implemented here. Other parts of the
// host hand their results to the guest with ArrayOutputRegister and read
// guest configuration back with Options.
package cryptoctx
