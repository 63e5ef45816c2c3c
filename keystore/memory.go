package keystore

import (
	"context"
	"hash"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	"github.com/wippyai/wasi-crypto/cryptoctx"
	"github.com/wippyai/wasi-crypto/errors"
)

// NamespaceOption is the option name that selects a session's namespace.
const NamespaceOption = "context"

// KeyIDSize is the length of identifiers returned by DeriveKeyID.
const KeyIDSize = 16

// Key describes one stored key version. Material is never exposed.
type Key struct {
	ID          []byte
	Namespace   string
	Version     cryptoctx.Version
	Fingerprint [blake2b.Size256]byte
}

type keyVersion struct {
	material    []byte
	fingerprint [blake2b.Size256]byte
	version     uint64
	invalid     bool
}

type keyRecord struct {
	versions []keyVersion
}

// live returns the live versions, newest first.
func (r *keyRecord) live() []int {
	var idx []int
	for i := len(r.versions) - 1; i >= 0; i-- {
		if !r.versions[i].invalid {
			idx = append(idx, i)
		}
	}
	return idx
}

// Memory is a KeyStore that keeps key material in process memory.
// It is safe for concurrent use.
type Memory struct {
	logger     *zap.Logger
	namespaces map[string]map[string]*keyRecord
	sessions   map[uuid.UUID]*Session
	mu         sync.RWMutex
}

var _ cryptoctx.KeyStore = (*Memory)(nil)

// Option configures a Memory store.
type Option func(*Memory)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Memory) {
		m.logger = l
	}
}

// NewMemory creates an empty store.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		logger:     zap.NewNop(),
		namespaces: make(map[string]map[string]*keyRecord),
		sessions:   make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put stores material as the next version of keyID in namespace and
// returns its description. material is copied.
func (m *Memory) Put(namespace string, keyID, material []byte) (Key, error) {
	if len(keyID) == 0 {
		return Key{}, errors.InvalidInput(errors.PhaseKeyManager, "empty key id")
	}
	if len(material) == 0 {
		return Key{}, errors.InvalidInput(errors.PhaseKeyManager, "empty key material")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.namespaces[namespace]
	if !ok {
		keys = make(map[string]*keyRecord)
		m.namespaces[namespace] = keys
	}
	rec, ok := keys[string(keyID)]
	if !ok {
		rec = &keyRecord{}
		keys[string(keyID)] = rec
	}

	kv := keyVersion{
		material:    append([]byte(nil), material...),
		fingerprint: blake2b.Sum256(material),
		version:     uint64(len(rec.versions)) + 1,
	}
	rec.versions = append(rec.versions, kv)

	m.logger.Debug("key stored",
		zap.String("namespace", namespace),
		zap.Binary("key_id", keyID),
		zap.Uint64("version", kv.version))

	return Key{
		ID:          append([]byte(nil), keyID...),
		Namespace:   namespace,
		Version:     cryptoctx.Version(kv.version),
		Fingerprint: kv.fingerprint,
	}, nil
}

// Lookup describes a live key version. version may be concrete or
// VersionLatest.
func (m *Memory) Lookup(namespace string, keyID []byte, version cryptoctx.Version) (Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.record(namespace, keyID)
	if err != nil {
		return Key{}, err
	}

	var kv *keyVersion
	switch version {
	case cryptoctx.VersionLatest:
		if live := rec.live(); len(live) > 0 {
			kv = &rec.versions[live[0]]
		}
	case cryptoctx.VersionUnspecified, cryptoctx.VersionAll:
		return Key{}, errors.New(errors.PhaseKeyManager, errors.KindInvalidOperation).
			Detail("lookup needs a concrete or latest version, got %s", version).
			Build()
	default:
		if i, ok := rec.index(uint64(version)); ok && !rec.versions[i].invalid {
			kv = &rec.versions[i]
		}
	}
	if kv == nil {
		return Key{}, errors.NotFound(errors.PhaseKeyManager, "key version", version.String())
	}

	return Key{
		ID:          append([]byte(nil), keyID...),
		Namespace:   namespace,
		Version:     cryptoctx.Version(kv.version),
		Fingerprint: kv.fingerprint,
	}, nil
}

// Versions lists the live versions of keyID in ascending order.
func (m *Memory) Versions(namespace string, keyID []byte) []cryptoctx.Version {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.record(namespace, keyID)
	if err != nil {
		return nil
	}
	var out []cryptoctx.Version
	for _, i := range rec.live() {
		out = append(out, cryptoctx.Version(rec.versions[i].version))
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Sessions returns the number of open sessions.
func (m *Memory) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Open starts a session. The namespace is read from the "context" option
// when options carries one.
func (m *Memory) Open(ctx context.Context, options cryptoctx.OptionsReader) (cryptoctx.KeyManager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var namespace string
	if options != nil {
		ns, err := options.Bytes(NamespaceOption)
		switch {
		case err == nil:
			namespace = string(ns)
		case errors.ToErrno(err) != errors.ErrnoOptionNotSet:
			return nil, err
		}
	}

	s := &Session{
		id:        uuid.New(),
		namespace: namespace,
		store:     m,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Debug("session opened", zap.Stringer("session", s.id), zap.String("namespace", namespace))
	return s, nil
}

func (m *Memory) record(namespace string, keyID []byte) (*keyRecord, error) {
	rec, ok := m.namespaces[namespace][string(keyID)]
	if !ok {
		return nil, errors.NotFound(errors.PhaseKeyManager, "key", string(keyID))
	}
	return rec, nil
}

func (r *keyRecord) index(version uint64) (int, bool) {
	if version == 0 || version > uint64(len(r.versions)) {
		return 0, false
	}
	return int(version - 1), true
}

// invalidate retires versions of keyID and returns how many were retired.
func (m *Memory) invalidate(namespace string, keyID []byte, version cryptoctx.Version) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.record(namespace, keyID)
	if err != nil {
		return 0, err
	}

	var targets []int
	switch version {
	case cryptoctx.VersionUnspecified:
		return 0, errors.New(errors.PhaseKeyManager, errors.KindInvalidOperation).
			Detail("version must be concrete, latest or all").
			Build()
	case cryptoctx.VersionLatest:
		if live := rec.live(); len(live) > 0 {
			targets = live[:1]
		}
	case cryptoctx.VersionAll:
		targets = rec.live()
	default:
		if i, ok := rec.index(uint64(version)); ok && !rec.versions[i].invalid {
			targets = []int{i}
		}
	}
	if len(targets) == 0 {
		return 0, errors.NotFound(errors.PhaseKeyManager, "key version", version.String())
	}

	for _, i := range targets {
		kv := &rec.versions[i]
		clear(kv.material)
		kv.material = nil
		kv.invalid = true
	}
	return len(targets), nil
}

func (m *Memory) closeSession(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.logger.Debug("session closed", zap.Stringer("session", id))
}

// DeriveKeyID derives a stable KeyIDSize identifier for material within
// namespace using HKDF over BLAKE2b-256.
func DeriveKeyID(namespace string, material []byte) ([]byte, error) {
	newHash := func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	}
	id := make([]byte, KeyIDSize)
	if _, err := io.ReadFull(hkdf.New(newHash, material, nil, []byte(namespace)), id); err != nil {
		return nil, errors.Wrap(errors.PhaseKeyManager, errors.KindInternal, err, "derive key id")
	}
	return id, nil
}
