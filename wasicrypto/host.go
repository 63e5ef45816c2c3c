package wasicrypto

import (
	"context"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-crypto/cryptoctx"
	"github.com/wippyai/wasi-crypto/errors"
	"github.com/wippyai/wasi-crypto/guestmem"
	"github.com/wippyai/wasi-crypto/resource"
)

// opt_options layout in guest memory.
const (
	optOptionsSize  = 8
	optOptionsAlign = 4
	optOptionsSome  = 0
	optOptionsNone  = 1
)

// Host implements the boundary calls against a crypto context.
type Host struct {
	cc     *cryptoctx.Context
	logger *zap.Logger
	cfg    Config
}

// NewHost creates a Host serving cc.
func NewHost(cc *cryptoctx.Context, opts ...Option) (*Host, error) {
	if cc == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "nil crypto context")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{cc: cc, cfg: cfg, logger: logger}, nil
}

// Context returns the crypto context behind the host.
func (h *Host) Context() *cryptoctx.Context {
	return h.cc
}

// OptionsOpen implements options_open.
func (h *Host) OptionsOpen(mem guestmem.Memory, optionsType, handleOut uint32) error {
	v := guestmem.NewView(mem)
	out, err := v.Uint32Out(handleOut)
	if err != nil {
		return err
	}
	typ, err := cryptoctx.ParseOptionsType(optionsType)
	if err != nil {
		return err
	}

	handle, err := h.cc.OptionsOpen(typ)
	if err != nil {
		return err
	}
	out.Store(uint32(handle))
	return nil
}

// OptionsClose implements options_close.
func (h *Host) OptionsClose(handle uint32) error {
	return h.cc.OptionsClose(resource.Handle(handle))
}

// OptionsSet implements options_set. The value is copied into the host.
func (h *Host) OptionsSet(mem guestmem.Memory, handle, namePtr, nameLen, valuePtr, valueLen uint32) error {
	v := guestmem.NewView(mem)
	name, err := h.name(v, namePtr, nameLen)
	if err != nil {
		return err
	}
	if valueLen > h.cfg.MaxValueLength {
		return h.tooLong("option value", valueLen, h.cfg.MaxValueLength)
	}
	value, err := v.Bytes(valuePtr, valueLen)
	if err != nil {
		return err
	}
	return h.cc.OptionsSet(resource.Handle(handle), name, value)
}

// OptionsSetGuestBuffer implements options_set_guest_buffer. The buffer
// stays referenced by the options bag until it is overwritten or closed.
func (h *Host) OptionsSetGuestBuffer(mem guestmem.Memory, handle, namePtr, nameLen, bufPtr, bufLen uint32) error {
	v := guestmem.NewView(mem)
	name, err := h.name(v, namePtr, nameLen)
	if err != nil {
		return err
	}
	buf, err := v.Retain(bufPtr, bufLen)
	if err != nil {
		return err
	}
	return h.cc.OptionsSetGuestBuffer(resource.Handle(handle), name, buf)
}

// OptionsSetU64 implements options_set_u64.
func (h *Host) OptionsSetU64(mem guestmem.Memory, handle, namePtr, nameLen uint32, value uint64) error {
	v := guestmem.NewView(mem)
	name, err := h.name(v, namePtr, nameLen)
	if err != nil {
		return err
	}
	return h.cc.OptionsSetU64(resource.Handle(handle), name, value)
}

// ArrayOutputLen implements array_output_len.
func (h *Host) ArrayOutputLen(mem guestmem.Memory, handle, sizeOut uint32) error {
	v := guestmem.NewView(mem)
	out, err := v.Uint32Out(sizeOut)
	if err != nil {
		return err
	}

	n, err := h.cc.ArrayOutputLen(resource.Handle(handle))
	if err != nil {
		return err
	}
	size, err := guestmem.Size(n)
	if err != nil {
		return err
	}
	out.Store(size)
	return nil
}

// ArrayOutputPull implements array_output_pull.
func (h *Host) ArrayOutputPull(mem guestmem.Memory, handle, bufPtr, bufLen, sizeOut uint32) error {
	v := guestmem.NewView(mem)
	buf, err := v.MutBytes(bufPtr, bufLen)
	if err != nil {
		return err
	}
	out, err := v.Uint32Out(sizeOut)
	if err != nil {
		return err
	}

	n, err := h.cc.ArrayOutputPull(resource.Handle(handle), buf)
	if err != nil {
		return err
	}
	size, err := guestmem.Size(n)
	if err != nil {
		return err
	}
	out.Store(size)
	return nil
}

// ArrayOutputClose implements array_output_close.
func (h *Host) ArrayOutputClose(handle uint32) error {
	return h.cc.ArrayOutputClose(resource.Handle(handle))
}

// KeyManagerOpen implements key_manager_open.
func (h *Host) KeyManagerOpen(ctx context.Context, mem guestmem.Memory, optOptionsPtr, handleOut uint32) error {
	v := guestmem.NewView(mem)
	raw, err := v.Array(optOptionsPtr, 1, optOptionsSize, optOptionsAlign)
	if err != nil {
		return err
	}
	out, err := v.Uint32Out(handleOut)
	if err != nil {
		return err
	}
	opts, err := decodeOptOptions(raw)
	if err != nil {
		return err
	}

	handle, err := h.cc.KeyManagerOpen(ctx, opts)
	if err != nil {
		return err
	}
	out.Store(uint32(handle))
	return nil
}

// KeyManagerClose implements key_manager_close.
func (h *Host) KeyManagerClose(handle uint32) error {
	return h.cc.KeyManagerClose(resource.Handle(handle))
}

// KeyManagerInvalidate implements key_manager_invalidate.
func (h *Host) KeyManagerInvalidate(ctx context.Context, mem guestmem.Memory, handle, keyIDPtr, keyIDLen uint32, version uint64) error {
	if keyIDLen > h.cfg.MaxValueLength {
		return h.tooLong("key id", keyIDLen, h.cfg.MaxValueLength)
	}
	keyID, err := guestmem.NewView(mem).Bytes(keyIDPtr, keyIDLen)
	if err != nil {
		return err
	}
	return h.cc.KeyManagerInvalidate(ctx, resource.Handle(handle), append([]byte(nil), keyID...), cryptoctx.Version(version))
}

func (h *Host) name(v *guestmem.View, ptr, length uint32) (string, error) {
	if length > h.cfg.MaxNameLength {
		return "", h.tooLong("option name", length, h.cfg.MaxNameLength)
	}
	return v.String(ptr, length)
}

func (h *Host) tooLong(what string, length, limit uint32) error {
	return errors.New(errors.PhaseGuest, errors.KindOverflow).
		Value(length).
		Detail("%s length %d exceeds limit %d", what, length, limit).
		Build()
}

func decodeOptOptions(raw []byte) (cryptoctx.OptOptions, error) {
	switch tag := raw[0]; tag {
	case optOptionsSome:
		return cryptoctx.SomeOptions(resource.Handle(binary.LittleEndian.Uint32(raw[4:8]))), nil
	case optOptionsNone:
		return cryptoctx.NoOptions, nil
	default:
		return cryptoctx.OptOptions{}, errors.InvalidDiscriminant(errors.PhaseGuest, uint32(tag), optOptionsNone)
	}
}
