package cryptoctx

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-crypto/errors"
	"github.com/wippyai/wasi-crypto/resource"
)

// Version identifies a key version. Three values near the top of the u64
// space are reserved as selectors rather than concrete versions.
type Version uint64

const (
	VersionUnspecified Version = 0xff00000000000000
	VersionLatest      Version = 0xff00000000000001
	VersionAll         Version = 0xff00000000000002
)

func (v Version) String() string {
	switch v {
	case VersionUnspecified:
		return "unspecified"
	case VersionLatest:
		return "latest"
	case VersionAll:
		return "all"
	default:
		return fmt.Sprintf("v%d", uint64(v))
	}
}

// IsSelector reports whether v is one of the reserved sentinels.
func (v Version) IsSelector() bool {
	return v == VersionUnspecified || v == VersionLatest || v == VersionAll
}

// KeyStore opens key manager sessions. options is nil when the guest
// passed none; a store must copy anything it needs from options before
// Open returns, as the guest may close the bag immediately afterwards.
type KeyStore interface {
	Open(ctx context.Context, options OptionsReader) (KeyManager, error)
}

// KeyManager is an open session on a KeyStore.
type KeyManager interface {
	// Invalidate retires the given version of a key. The version may be
	// a concrete version, VersionLatest or VersionAll.
	Invalidate(ctx context.Context, keyID []byte, version Version) error
	Close() error
}

// OptOptions is an optional options handle.
type OptOptions struct {
	Handle resource.Handle
	Set    bool
}

// SomeOptions wraps a present options handle.
func SomeOptions(h resource.Handle) OptOptions {
	return OptOptions{Handle: h, Set: true}
}

// NoOptions is the absent options handle.
var NoOptions = OptOptions{}

// keyManagerSession serialises calls into one KeyManager.
type keyManagerSession struct {
	km     KeyManager
	mu     sync.Mutex
	closed bool
}

func (s *keyManagerSession) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if err := s.km.Close(); err != nil {
		Logger().Warn("key manager close failed", zap.Error(err))
	}
}

// KeyManagerOpen opens a session on the configured KeyStore, passing the
// options bag named by opts if one is set.
func (c *Context) KeyManagerOpen(ctx context.Context, opts OptOptions) (resource.Handle, error) {
	if c.store == nil {
		return 0, errors.New(errors.PhaseKeyManager, errors.KindNotImplemented).
			Detail("no key store configured").
			Build()
	}

	var reader OptionsReader
	if opts.Set {
		o, err := c.options.Get(opts.Handle)
		if err != nil {
			return 0, err
		}
		// A bag closed concurrently with Open reads as closed to the store.
		reader = o
	}

	km, err := c.store.Open(ctx, reader)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseKeyManager, errors.KindInternal, err, "open key manager")
	}

	h, err := c.keyManagers.Insert(&keyManagerSession{km: km})
	if err != nil {
		if cerr := km.Close(); cerr != nil {
			Logger().Warn("key manager close failed", zap.Error(cerr))
		}
		return 0, err
	}

	Logger().Debug("key manager opened", zap.Uint32("handle", uint32(h)), zap.Bool("options", opts.Set))
	return h, nil
}

// KeyManagerClose closes a key manager session.
func (c *Context) KeyManagerClose(h resource.Handle) error {
	if _, err := c.keyManagers.Remove(h); err != nil {
		return err
	}
	Logger().Debug("key manager closed", zap.Uint32("handle", uint32(h)))
	return nil
}

// KeyManagerInvalidate retires a key version through an open session.
// The key id and version are passed to the store uninterpreted.
func (c *Context) KeyManagerInvalidate(ctx context.Context, h resource.Handle, keyID []byte, version Version) error {
	s, err := c.keyManagers.Get(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InvalidHandle(errors.PhaseHandle, string(resource.KindKeyManager), uint32(h))
	}
	if err := s.km.Invalidate(ctx, keyID, version); err != nil {
		return errors.Wrap(errors.PhaseKeyManager, errors.KindInternal, err, "invalidate key")
	}
	return nil
}
