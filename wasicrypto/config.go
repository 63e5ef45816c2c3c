package wasicrypto

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-crypto/errors"
)

// ModuleName is the import module name guests use.
const ModuleName = "wasi_ephemeral_crypto_common"

const (
	// DefaultMaxNameLength bounds option names in bytes.
	DefaultMaxNameLength = 256

	// DefaultMaxValueLength bounds host-copied option values and key ids.
	DefaultMaxValueLength = 1 << 20
)

// Config holds host module settings.
type Config struct {
	Logger         *zap.Logger
	ModuleName     string `validate:"required"`
	MaxNameLength  uint32 `validate:"gt=0"`
	MaxValueLength uint32 `validate:"gt=0"`
}

// Option configures a Host.
type Option func(*Config)

// WithModuleName overrides the host module name.
func WithModuleName(name string) Option {
	return func(c *Config) {
		c.ModuleName = name
	}
}

// WithMaxNameLength bounds option names.
func WithMaxNameLength(n uint32) Option {
	return func(c *Config) {
		c.MaxNameLength = n
	}
}

// WithMaxValueLength bounds host-copied values.
func WithMaxValueLength(n uint32) Option {
	return func(c *Config) {
		c.MaxValueLength = n
	}
}

// WithLogger sets the logger for failed and panicking calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func defaultConfig() Config {
	return Config{
		ModuleName:     ModuleName,
		MaxNameLength:  DefaultMaxNameLength,
		MaxValueLength: DefaultMaxValueLength,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid host config")
	}
	return nil
}
