package wasicrypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-crypto/cryptoctx"
	"github.com/wippyai/wasi-crypto/errors"
	"github.com/wippyai/wasi-crypto/keystore"
	"github.com/wippyai/wasi-crypto/resource"
)

const (
	wasmI32 = 0x7f
	wasmI64 = 0x7e
)

// forwarder describes a guest export that passes its parameters straight
// to the host import of the same name and returns its i32 result.
type forwarder struct {
	name   string
	params []byte
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func wasmSection(id byte, payload []byte) []byte {
	out := append([]byte{id}, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

// buildGuest encodes a module that imports every fn from module, exports
// a forwarding function for each, and exports one page of memory.
func buildGuest(module string, fns []forwarder) []byte {
	n := uint64(len(fns))

	types := uleb(n)
	imports := uleb(n)
	funcs := uleb(n)
	exports := uleb(n + 1)
	code := uleb(n)
	for i, fn := range fns {
		types = append(types, 0x60)
		types = append(types, uleb(uint64(len(fn.params)))...)
		types = append(types, fn.params...)
		types = append(types, 0x01, wasmI32)

		imports = append(imports, wasmName(module)...)
		imports = append(imports, wasmName(fn.name)...)
		imports = append(imports, 0x00)
		imports = append(imports, uleb(uint64(i))...)

		funcs = append(funcs, uleb(uint64(i))...)

		exports = append(exports, wasmName(fn.name)...)
		exports = append(exports, 0x00)
		exports = append(exports, uleb(n+uint64(i))...)

		body := []byte{0x00} // no locals
		for p := range fn.params {
			body = append(body, 0x20) // local.get
			body = append(body, uleb(uint64(p))...)
		}
		body = append(body, 0x10) // call
		body = append(body, uleb(uint64(i))...)
		body = append(body, 0x0b)
		code = append(code, uleb(uint64(len(body)))...)
		code = append(code, body...)
	}
	exports = append(exports, wasmName("memory")...)
	exports = append(exports, 0x02, 0x00)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, wasmSection(1, types)...)
	out = append(out, wasmSection(2, imports)...)
	out = append(out, wasmSection(3, funcs)...)
	out = append(out, wasmSection(5, []byte{0x01, 0x00, 0x01})...)
	out = append(out, wasmSection(7, exports)...)
	out = append(out, wasmSection(10, code)...)
	return out
}

func guestFor(h *Host) []forwarder {
	var fns []forwarder
	for _, fn := range h.functions() {
		params := make([]byte, len(fn.params))
		for i, p := range fn.params {
			if p == api.ValueTypeI64 {
				params[i] = wasmI64
			} else {
				params[i] = wasmI32
			}
		}
		fns = append(fns, forwarder{name: fn.name, params: params})
	}
	return fns
}

type guest struct {
	t   *testing.T
	ctx context.Context
	mod api.Module
}

func (g *guest) call(name string, args ...uint64) errors.Errno {
	g.t.Helper()
	res, err := g.mod.ExportedFunction(name).Call(g.ctx, args...)
	require.NoError(g.t, err)
	return errors.Errno(res[0])
}

func (g *guest) write(offset uint32, data string) (uint32, uint64) {
	g.t.Helper()
	require.True(g.t, g.mod.Memory().Write(offset, []byte(data)))
	return offset, uint64(len(data))
}

func (g *guest) u32(offset uint32) uint32 {
	g.t.Helper()
	v, ok := g.mod.Memory().ReadUint32Le(offset)
	require.True(g.t, ok)
	return v
}

func (g *guest) read(offset, n uint32) string {
	g.t.Helper()
	b, ok := g.mod.Memory().Read(offset, n)
	require.True(g.t, ok)
	return string(b)
}

func startGuest(t *testing.T, host *Host) *guest {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	_, err := host.Instantiate(ctx, r)
	require.NoError(t, err)

	mod, err := r.Instantiate(ctx, buildGuest(host.cfg.ModuleName, guestFor(host)))
	require.NoError(t, err)
	return &guest{t: t, ctx: ctx, mod: mod}
}

func TestWazero_EndToEnd(t *testing.T) {
	store := keystore.NewMemory()
	_, err := store.Put("tenant-a", []byte("k"), []byte("v1"))
	require.NoError(t, err)
	_, err = store.Put("tenant-a", []byte("k"), []byte("v2"))
	require.NoError(t, err)

	cc, err := cryptoctx.New(cryptoctx.WithKeyStore(store), cryptoctx.WithSchema(cryptoctx.DefaultSchema()))
	require.NoError(t, err)
	defer cc.Close()
	host, err := NewHost(cc)
	require.NoError(t, err)
	g := startGuest(t, host)

	// Options bag with a copied value and an integer.
	require.Equal(t, errors.ErrnoSuccess, g.call("options_open", uint64(cryptoctx.OptionsSymmetric), 0))
	oh := g.u32(0)
	assert.Equal(t, uint32(1), oh)

	namePtr, nameLen := g.write(16, keystore.NamespaceOption)
	valuePtr, valueLen := g.write(32, "tenant-a")
	assert.Equal(t, errors.ErrnoSuccess, g.call("options_set", uint64(oh), uint64(namePtr), nameLen, uint64(valuePtr), valueLen))

	limitPtr, limitLen := g.write(48, "ops_limit")
	assert.Equal(t, errors.ErrnoSuccess, g.call("options_set_u64", uint64(oh), uint64(limitPtr), limitLen, 3))

	o, err := cc.Options(resource.Handle(oh))
	require.NoError(t, err)
	ops, err := o.U64("ops_limit")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ops)

	// Guest errors never trap; they come back as errno values.
	assert.Equal(t, errors.ErrnoGuestError, g.call("options_open", 9, 0))
	assert.Equal(t, errors.ErrnoGuestError, g.call("options_set", uint64(oh), 70000, 4, uint64(valuePtr), valueLen))
	assert.Equal(t, errors.ErrnoUnsupportedOption, g.call("options_set_u64", uint64(oh), uint64(valuePtr), valueLen, 1))
	assert.Equal(t, errors.ErrnoInvalidHandle, g.call("options_close", 77))

	// Guest buffer retained by the bag and written by the host later.
	bufName, bufNameLen := g.write(64, "buffer")
	assert.Equal(t, errors.ErrnoSuccess, g.call("options_set_guest_buffer", uint64(oh), uint64(bufName), bufNameLen, 1024, 32))
	retained, err := o.GuestBuffer("buffer")
	require.NoError(t, err)
	_, err = retained.WriteAt([]byte("host-written"), 0)
	require.NoError(t, err)
	assert.Equal(t, "host-written", g.read(1024, 12))

	// Array output drained in small pulls.
	ah, err := cc.ArrayOutputRegister([]byte("hello, guest"))
	require.NoError(t, err)
	require.Equal(t, errors.ErrnoSuccess, g.call("array_output_len", uint64(ah), 96))
	assert.Equal(t, uint32(12), g.u32(96))

	var pulled string
	for {
		require.Equal(t, errors.ErrnoSuccess, g.call("array_output_pull", uint64(ah), 2048, 5, 96))
		n := g.u32(96)
		if n == 0 {
			break
		}
		pulled += g.read(2048, n)
	}
	assert.Equal(t, "hello, guest", pulled)
	assert.Equal(t, errors.ErrnoSuccess, g.call("array_output_close", uint64(ah)))
	assert.Equal(t, errors.ErrnoInvalidHandle, g.call("array_output_len", uint64(ah), 96))

	// Key manager opened with the options bag selects its namespace.
	require.True(t, g.mod.Memory().WriteByte(128, 0))
	require.True(t, g.mod.Memory().WriteUint32Le(132, oh))
	require.Equal(t, errors.ErrnoSuccess, g.call("key_manager_open", 128, 136))
	kh := g.u32(136)

	keyPtr, keyLen := g.write(144, "k")
	assert.Equal(t, errors.ErrnoInvalidOperation,
		g.call("key_manager_invalidate", uint64(kh), uint64(keyPtr), keyLen, uint64(cryptoctx.VersionUnspecified)))
	assert.Equal(t, errors.ErrnoSuccess,
		g.call("key_manager_invalidate", uint64(kh), uint64(keyPtr), keyLen, uint64(cryptoctx.VersionLatest)))
	assert.Equal(t, []cryptoctx.Version{1}, store.Versions("tenant-a", []byte("k")))

	require.True(t, g.mod.Memory().WriteByte(128, 5))
	assert.Equal(t, errors.ErrnoGuestError, g.call("key_manager_open", 128, 136))
	assert.Equal(t, kh, g.u32(136))

	assert.Equal(t, errors.ErrnoSuccess, g.call("key_manager_close", uint64(kh)))
	assert.Equal(t, errors.ErrnoSuccess, g.call("options_close", uint64(oh)))
	assert.True(t, retained.Released())
	assert.Equal(t, cryptoctx.Stats{}, cc.Stats())
}

func TestWazero_ModuleName(t *testing.T) {
	cc, err := cryptoctx.New()
	require.NoError(t, err)
	host, err := NewHost(cc, WithModuleName("crypto_test"))
	require.NoError(t, err)

	g := startGuest(t, host)
	assert.Equal(t, errors.ErrnoSuccess, g.call("options_open", uint64(cryptoctx.OptionsSignatures), 0))

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	_, err = host.Instantiate(ctx, r)
	require.NoError(t, err)
	_, err = host.Instantiate(ctx, r)
	assert.Error(t, err)
}
