package keystore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-crypto/cryptoctx"
	"github.com/wippyai/wasi-crypto/errors"
)

// Session is a key manager bound to one namespace of a Memory store.
type Session struct {
	store     *Memory
	namespace string
	id        uuid.UUID
	mu        sync.Mutex
	closed    bool
}

var _ cryptoctx.KeyManager = (*Session)(nil)

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Namespace returns the namespace the session works in.
func (s *Session) Namespace() string {
	return s.namespace
}

// Invalidate retires a concrete version, the latest live version, or all
// live versions of keyID.
func (s *Session) Invalidate(ctx context.Context, keyID []byte, version cryptoctx.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(errors.PhaseKeyManager, errors.KindClosed).
			Detail("session %s closed", s.id).
			Build()
	}

	n, err := s.store.invalidate(s.namespace, keyID, version)
	if err != nil {
		return err
	}
	s.store.logger.Info("key invalidated",
		zap.Stringer("session", s.id),
		zap.String("namespace", s.namespace),
		zap.Binary("key_id", keyID),
		zap.Stringer("version", version),
		zap.Int("retired", n))
	return nil
}

// Close ends the session. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.closeSession(s.id)
	return nil
}
