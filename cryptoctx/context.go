package cryptoctx

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-crypto/errors"
	"github.com/wippyai/wasi-crypto/guestmem"
	"github.com/wippyai/wasi-crypto/resource"
)

// Config holds Context settings.
type Config struct {
	Store      KeyStore
	Schema     Schema
	MaxHandles int `validate:"gte=0,lte=4294967295"`
}

// Option configures a Context.
type Option func(*Config)

// WithMaxHandles caps live handles per resource kind. Zero selects
// resource.DefaultMaxHandles.
func WithMaxHandles(n int) Option {
	return func(c *Config) {
		c.MaxHandles = n
	}
}

// WithKeyStore sets the store behind key manager sessions. Without one,
// key_manager operations fail as not implemented.
func WithKeyStore(s KeyStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithSchema restricts accepted option names and value kinds. A nil
// schema accepts any name.
func WithSchema(s Schema) Option {
	return func(c *Config) {
		c.Schema = s
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid context config")
	}
	return nil
}

// Context owns the handle tables for one crypto host. It is safe for
// concurrent use.
type Context struct {
	options      *resource.Table[*Options]
	arrayOutputs *resource.Table[*ArrayOutput]
	keyManagers  *resource.Table[*keyManagerSession]
	store        KeyStore
	schema       Schema
}

// New creates a Context. The default configuration accepts any option
// name and has no key store.
func New(opts ...Option) (*Context, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Context{
		options:      resource.NewTable[*Options](resource.KindOptions, cfg.MaxHandles),
		arrayOutputs: resource.NewTable[*ArrayOutput](resource.KindArrayOutput, cfg.MaxHandles),
		keyManagers:  resource.NewTable[*keyManagerSession](resource.KindKeyManager, cfg.MaxHandles),
		store:        cfg.Store,
		schema:       cfg.Schema,
	}, nil
}

// OptionsOpen creates an empty options bag of kind t.
func (c *Context) OptionsOpen(t OptionsType) (resource.Handle, error) {
	if !t.Valid() {
		return 0, errors.InvalidEnum(errors.PhaseOptions, uint16(t), "options_type")
	}
	h, err := c.options.Insert(NewOptions(t))
	if err != nil {
		return 0, err
	}
	Logger().Debug("options opened", zap.Uint32("handle", uint32(h)), zap.Stringer("type", t))
	return h, nil
}

// OptionsClose destroys an options bag, releasing any retained guest
// buffers it holds.
func (c *Context) OptionsClose(h resource.Handle) error {
	if _, err := c.options.Remove(h); err != nil {
		return err
	}
	Logger().Debug("options closed", zap.Uint32("handle", uint32(h)))
	return nil
}

// OptionsSet stores a host copy of value under name.
func (c *Context) OptionsSet(h resource.Handle, name string, value []byte) error {
	return c.optionsSet(h, name, Value{
		Kind:  ValueBytes,
		Bytes: append([]byte{}, value...),
	})
}

// OptionsSetU64 stores an integer under name.
func (c *Context) OptionsSetU64(h resource.Handle, name string, value uint64) error {
	return c.optionsSet(h, name, Value{Kind: ValueU64, U64: value})
}

// OptionsSetGuestBuffer stores a retained guest buffer under name. The bag
// takes ownership of buf and releases it when the name is overwritten or
// the bag is closed. buf is released immediately if the set fails.
func (c *Context) OptionsSetGuestBuffer(h resource.Handle, name string, buf *guestmem.Retained) error {
	if buf == nil {
		return errors.InvalidInput(errors.PhaseOptions, "nil guest buffer")
	}
	err := c.optionsSet(h, name, Value{Kind: ValueGuestBuffer, Buffer: buf})
	if err != nil {
		buf.Release()
	}
	return err
}

func (c *Context) optionsSet(h resource.Handle, name string, v Value) error {
	o, err := c.options.Get(h)
	if err != nil {
		return err
	}
	if err := c.schema.check(o.Type(), name, v.Kind); err != nil {
		return err
	}
	if !o.set(name, v) {
		return errors.InvalidHandle(errors.PhaseHandle, string(resource.KindOptions), uint32(h))
	}
	Logger().Debug("option set",
		zap.Uint32("handle", uint32(h)),
		zap.String("name", name),
		zap.Stringer("kind", v.Kind))
	return nil
}

// Options returns the bag behind h for host-side consumers.
func (c *Context) Options(h resource.Handle) (OptionsReader, error) {
	o, err := c.options.Get(h)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ArrayOutputRegister hands data to the guest as a new array output.
// The Context takes ownership of data.
func (c *Context) ArrayOutputRegister(data []byte) (resource.Handle, error) {
	h, err := c.arrayOutputs.Insert(NewArrayOutput(data))
	if err != nil {
		return 0, err
	}
	Logger().Debug("array output registered", zap.Uint32("handle", uint32(h)), zap.Int("len", len(data)))
	return h, nil
}

// ArrayOutputLen returns the number of bytes not yet pulled.
func (c *Context) ArrayOutputLen(h resource.Handle) (int, error) {
	a, err := c.arrayOutputs.Get(h)
	if err != nil {
		return 0, err
	}
	n, ok := a.remaining()
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseHandle, string(resource.KindArrayOutput), uint32(h))
	}
	return n, nil
}

// ArrayOutputPull copies up to len(buf) remaining bytes into buf and
// returns how many were copied. Pulling an exhausted output copies
// nothing and succeeds; the handle stays open until ArrayOutputClose.
func (c *Context) ArrayOutputPull(h resource.Handle, buf []byte) (int, error) {
	a, err := c.arrayOutputs.Get(h)
	if err != nil {
		return 0, err
	}
	n, ok := a.pull(buf)
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseHandle, string(resource.KindArrayOutput), uint32(h))
	}
	return n, nil
}

// ArrayOutputClose discards an array output and its remaining bytes.
func (c *Context) ArrayOutputClose(h resource.Handle) error {
	if _, err := c.arrayOutputs.Remove(h); err != nil {
		return err
	}
	Logger().Debug("array output closed", zap.Uint32("handle", uint32(h)))
	return nil
}

// Stats is a snapshot of live handle counts.
type Stats struct {
	Options      int
	ArrayOutputs int
	KeyManagers  int
}

// Stats returns the current live handle counts.
func (c *Context) Stats() Stats {
	return Stats{
		Options:      c.options.Len(),
		ArrayOutputs: c.arrayOutputs.Len(),
		KeyManagers:  c.keyManagers.Len(),
	}
}

// Subscribe registers o for lifecycle events of every resource kind.
func (c *Context) Subscribe(o resource.Observer) {
	c.options.Subscribe(o)
	c.arrayOutputs.Subscribe(o)
	c.keyManagers.Subscribe(o)
}

// Unsubscribe removes an observer added with Subscribe.
func (c *Context) Unsubscribe(o resource.Observer) {
	c.options.Unsubscribe(o)
	c.arrayOutputs.Unsubscribe(o)
	c.keyManagers.Unsubscribe(o)
}

// Close drops every live resource and rejects new ones.
func (c *Context) Close() error {
	_ = c.keyManagers.Close()
	_ = c.arrayOutputs.Close()
	_ = c.options.Close()
	return nil
}
