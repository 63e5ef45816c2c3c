package cryptoctx

import (
	"sort"
	"sync"

	"github.com/wippyai/wasi-crypto/errors"
	"github.com/wippyai/wasi-crypto/guestmem"
)

// OptionsType selects the configuration namespace of an options bag.
type OptionsType uint16

const (
	OptionsSignatures OptionsType = iota
	OptionsSymmetric
	OptionsKeyExchange
)

func (t OptionsType) String() string {
	switch t {
	case OptionsSignatures:
		return "signatures"
	case OptionsSymmetric:
		return "symmetric"
	case OptionsKeyExchange:
		return "key_exchange"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known options type.
func (t OptionsType) Valid() bool {
	return t <= OptionsKeyExchange
}

// ParseOptionsType decodes a raw wire discriminator.
func ParseOptionsType(raw uint32) (OptionsType, error) {
	t := OptionsType(raw)
	if raw > uint32(OptionsKeyExchange) {
		return 0, errors.InvalidEnum(errors.PhaseOptions, raw, "options_type")
	}
	return t, nil
}

// ValueKind identifies what an option value holds.
type ValueKind uint8

const (
	ValueBytes ValueKind = iota
	ValueU64
	ValueGuestBuffer
)

func (k ValueKind) String() string {
	switch k {
	case ValueBytes:
		return "bytes"
	case ValueU64:
		return "u64"
	case ValueGuestBuffer:
		return "guest_buffer"
	default:
		return "unknown"
	}
}

// Value is a single option value. Exactly one of Bytes, U64 or Buffer is
// meaningful, selected by Kind.
type Value struct {
	Buffer *guestmem.Retained
	Bytes  []byte
	U64    uint64
	Kind   ValueKind
}

// OptionsReader is the read-only view of an options bag handed to
// consumers such as a KeyStore.
type OptionsReader interface {
	Type() OptionsType
	Names() []string
	Get(name string) (Value, error)
	Bytes(name string) ([]byte, error)
	U64(name string) (uint64, error)
	GuestBuffer(name string) (*guestmem.Retained, error)
}

// Options is a named configuration store. Names are unique per bag;
// setting an existing name replaces both its value and value kind.
type Options struct {
	values map[string]Value
	mu     sync.RWMutex
	typ    OptionsType
	closed bool
}

var _ OptionsReader = (*Options)(nil)

// NewOptions creates an empty options bag of type t.
func NewOptions(t OptionsType) *Options {
	return &Options{
		typ:    t,
		values: make(map[string]Value),
	}
}

// Type returns the options namespace.
func (o *Options) Type() OptionsType {
	return o.typ
}

// Names returns the set names in sorted order.
func (o *Options) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.values))
	for name := range o.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the value stored under name.
func (o *Options) Get(name string) (Value, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return Value{}, errors.New(errors.PhaseOptions, errors.KindClosed).Name(name).Build()
	}
	v, ok := o.values[name]
	if !ok {
		return Value{}, errors.New(errors.PhaseOptions, errors.KindOptionNotSet).Name(name).Build()
	}
	return v, nil
}

// Bytes returns a copy of a host-copied byte value.
func (o *Options) Bytes(name string) ([]byte, error) {
	v, err := o.typed(name, ValueBytes)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.Bytes...), nil
}

// U64 returns an integer value.
func (o *Options) U64(name string) (uint64, error) {
	v, err := o.typed(name, ValueU64)
	if err != nil {
		return 0, err
	}
	return v.U64, nil
}

// GuestBuffer returns a retained guest buffer value.
func (o *Options) GuestBuffer(name string) (*guestmem.Retained, error) {
	v, err := o.typed(name, ValueGuestBuffer)
	if err != nil {
		return nil, err
	}
	return v.Buffer, nil
}

// Drop releases retained guest buffers and clears the bag.
func (o *Options) Drop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, v := range o.values {
		if v.Buffer != nil {
			v.Buffer.Release()
		}
	}
	o.values = nil
	o.closed = true
}

func (o *Options) typed(name string, kind ValueKind) (Value, error) {
	v, err := o.Get(name)
	if err != nil {
		return Value{}, err
	}
	if v.Kind != kind {
		return Value{}, errors.New(errors.PhaseOptions, errors.KindUnsupportedOption).
			Name(name).
			Detail("value is %s, not %s", v.Kind, kind).
			Build()
	}
	return v, nil
}

// set stores v under name, releasing any guest buffer it replaces.
// It reports false if the bag was dropped concurrently.
func (o *Options) set(name string, v Value) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	if prev, ok := o.values[name]; ok && prev.Buffer != nil && prev.Buffer != v.Buffer {
		prev.Buffer.Release()
	}
	o.values[name] = v
	return true
}

// Schema restricts the names and value kinds each options type accepts.
// A type missing from the schema accepts no names at all.
type Schema map[OptionsType]map[string]ValueKind

// DefaultSchema mirrors the options the wasi-crypto reference host
// accepts: symmetric operations take a context, salt or nonce, password
// hashing limits, and a guest output buffer; signature and key exchange
// options take none.
func DefaultSchema() Schema {
	return Schema{
		OptionsSymmetric: {
			"context":      ValueBytes,
			"salt":         ValueBytes,
			"nonce":        ValueBytes,
			"memory_limit": ValueU64,
			"ops_limit":    ValueU64,
			"parallelism":  ValueU64,
			"buffer":       ValueGuestBuffer,
		},
		OptionsSignatures:  {},
		OptionsKeyExchange: {},
	}
}

// check validates name and kind against the schema for t.
func (s Schema) check(t OptionsType, name string, kind ValueKind) error {
	if s == nil {
		return nil
	}
	want, ok := s[t][name]
	if !ok {
		return errors.New(errors.PhaseOptions, errors.KindUnsupportedOption).
			Name(name).
			Detail("not accepted by %s options", t).
			Build()
	}
	if want != kind {
		return errors.New(errors.PhaseOptions, errors.KindUnsupportedOption).
			Name(name).
			Detail("%s options expect %s, got %s", t, want, kind).
			Build()
	}
	return nil
}
