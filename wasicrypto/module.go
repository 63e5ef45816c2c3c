package wasicrypto

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-crypto/errors"
	"github.com/wippyai/wasi-crypto/guestmem"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

var errnoResult = []api.ValueType{i32}

// hostFunc is one export: its wasm parameters and the call it performs.
type hostFunc struct {
	call   func(ctx context.Context, mem guestmem.Memory, stack []uint64) error
	name   string
	names  []string
	params []api.ValueType
}

func u32(v uint64) uint32 {
	return api.DecodeU32(v)
}

func (h *Host) functions() []hostFunc {
	return []hostFunc{
		{
			name:   "options_open",
			names:  []string{"options_type", "handle_out"},
			params: []api.ValueType{i32, i32},
			call: func(_ context.Context, mem guestmem.Memory, s []uint64) error {
				return h.OptionsOpen(mem, u32(s[0]), u32(s[1]))
			},
		},
		{
			name:   "options_close",
			names:  []string{"handle"},
			params: []api.ValueType{i32},
			call: func(_ context.Context, _ guestmem.Memory, s []uint64) error {
				return h.OptionsClose(u32(s[0]))
			},
		},
		{
			name:   "options_set",
			names:  []string{"handle", "name_ptr", "name_len", "value_ptr", "value_len"},
			params: []api.ValueType{i32, i32, i32, i32, i32},
			call: func(_ context.Context, mem guestmem.Memory, s []uint64) error {
				return h.OptionsSet(mem, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]))
			},
		},
		{
			name:   "options_set_guest_buffer",
			names:  []string{"handle", "name_ptr", "name_len", "buffer_ptr", "buffer_len"},
			params: []api.ValueType{i32, i32, i32, i32, i32},
			call: func(_ context.Context, mem guestmem.Memory, s []uint64) error {
				return h.OptionsSetGuestBuffer(mem, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]), u32(s[4]))
			},
		},
		{
			name:   "options_set_u64",
			names:  []string{"handle", "name_ptr", "name_len", "value"},
			params: []api.ValueType{i32, i32, i32, i64},
			call: func(_ context.Context, mem guestmem.Memory, s []uint64) error {
				return h.OptionsSetU64(mem, u32(s[0]), u32(s[1]), u32(s[2]), s[3])
			},
		},
		{
			name:   "array_output_len",
			names:  []string{"handle", "size_out"},
			params: []api.ValueType{i32, i32},
			call: func(_ context.Context, mem guestmem.Memory, s []uint64) error {
				return h.ArrayOutputLen(mem, u32(s[0]), u32(s[1]))
			},
		},
		{
			name:   "array_output_pull",
			names:  []string{"handle", "buf_ptr", "buf_len", "size_out"},
			params: []api.ValueType{i32, i32, i32, i32},
			call: func(_ context.Context, mem guestmem.Memory, s []uint64) error {
				return h.ArrayOutputPull(mem, u32(s[0]), u32(s[1]), u32(s[2]), u32(s[3]))
			},
		},
		{
			name:   "array_output_close",
			names:  []string{"handle"},
			params: []api.ValueType{i32},
			call: func(_ context.Context, _ guestmem.Memory, s []uint64) error {
				return h.ArrayOutputClose(u32(s[0]))
			},
		},
		{
			name:   "key_manager_open",
			names:  []string{"opt_options_ptr", "handle_out"},
			params: []api.ValueType{i32, i32},
			call: func(ctx context.Context, mem guestmem.Memory, s []uint64) error {
				return h.KeyManagerOpen(ctx, mem, u32(s[0]), u32(s[1]))
			},
		},
		{
			name:   "key_manager_close",
			names:  []string{"handle"},
			params: []api.ValueType{i32},
			call: func(_ context.Context, _ guestmem.Memory, s []uint64) error {
				return h.KeyManagerClose(u32(s[0]))
			},
		},
		{
			name:   "key_manager_invalidate",
			names:  []string{"handle", "key_id_ptr", "key_id_len", "version"},
			params: []api.ValueType{i32, i32, i32, i64},
			call: func(ctx context.Context, mem guestmem.Memory, s []uint64) error {
				return h.KeyManagerInvalidate(ctx, mem, u32(s[0]), u32(s[1]), u32(s[2]), s[3])
			},
		},
	}
}

// FunctionNames lists the exported function names in registration order.
func (h *Host) FunctionNames() []string {
	fns := h.functions()
	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.name
	}
	return names
}

// Instantiate registers the host module with r. Guests importing from
// the configured module name can be instantiated afterwards.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(h.cfg.ModuleName)

	for _, fn := range h.functions() {
		fn := fn
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = uint64(h.dispatch(ctx, fn, guestmem.FromModule(mod), stack))
			}), fn.params, errnoResult).
			WithName(fn.name).
			WithParameterNames(fn.names...).
			Export(fn.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(errors.PhaseHost, h.cfg.ModuleName, "*", err)
	}
	h.logger.Debug("host module instantiated",
		zap.String("module", h.cfg.ModuleName),
		zap.Int("functions", len(h.functions())))
	return mod, nil
}

// dispatch runs one boundary call and reduces its outcome to an errno.
// A panic never crosses into the guest; it becomes internal_error.
func (h *Host) dispatch(ctx context.Context, fn hostFunc, mem guestmem.Memory, stack []uint64) (errno errors.Errno) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("host function panicked",
				zap.String("function", fn.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			errno = errors.ErrnoInternalError
		}
	}()

	err := fn.call(ctx, mem, stack)
	errno = errors.ToErrno(err)
	if err != nil {
		h.logger.Debug("host function failed",
			zap.String("function", fn.name),
			zap.Stringer("errno", errno),
			zap.Error(err))
	}
	return errno
}
