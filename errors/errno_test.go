package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestToErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Errno
	}{
		{"nil", nil, ErrnoSuccess},
		{"invalid handle", InvalidHandle(PhaseOptions, "options", 1), ErrnoInvalidHandle},
		{"out of bounds", OutOfBounds(PhaseGuest, 10, 10, 8), ErrnoGuestError},
		{"misaligned", Misaligned(PhaseGuest, 1, 4), ErrnoGuestError},
		{"aliasing", New(PhaseGuest, KindAliasing).Build(), ErrnoGuestError},
		{"invalid enum", InvalidEnum(PhaseOptions, 7, "options_type"), ErrnoGuestError},
		{"invalid variant", InvalidDiscriminant(PhaseKeyManager, 3, 1), ErrnoGuestError},
		{"invalid utf8", InvalidUTF8(PhaseGuest, []byte{0xc3}), ErrnoUnsupportedEncoding},
		{"overflow", Overflow(PhaseArrayOutput, 1<<32, "u32"), ErrnoOverflow},
		{"exhausted", Exhausted(PhaseHandle, "options", 1), ErrnoTooManyHandles},
		{"unsupported", Unsupported(PhaseOptions, "x"), ErrnoUnsupportedFeature},
		{"unsupported option", New(PhaseOptions, KindUnsupportedOption).Build(), ErrnoUnsupportedOption},
		{"option not set", New(PhaseOptions, KindOptionNotSet).Build(), ErrnoOptionNotSet},
		{"not found", NotFound(PhaseKeyManager, "key", "k"), ErrnoNotFound},
		{"closed", New(PhaseKeyManager, KindClosed).Build(), ErrnoClosed},
		{"invalid operation", New(PhaseKeyManager, KindInvalidOperation).Build(), ErrnoInvalidOperation},
		{"not implemented", New(PhaseKeyManager, KindNotImplemented).Build(), ErrnoNotImplemented},
		{"invalid input", InvalidInput(PhaseHost, "bad"), ErrnoInternalError},
		{"internal", New(PhaseHost, KindInternal).Build(), ErrnoInternalError},
		{"foreign error", errors.New("disk on fire"), ErrnoInternalError},
		{"wrapped structured", fmt.Errorf("ctx: %w", InvalidHandle(PhaseOptions, "options", 2)), ErrnoInvalidHandle},
		{"direct errno", ErrnoExpired, ErrnoExpired},
		{"wrapped errno", fmt.Errorf("backend: %w", ErrnoKeyRequired), ErrnoKeyRequired},
		{"errno success as error", ErrnoSuccess, ErrnoInternalError},
		{"errno out of range", Errno(999), ErrnoInternalError},
		{"internal with classified cause", Wrap(PhaseKeyManager, KindInternal, ErrnoNotFound, "invalidate"), ErrnoNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToErrno(tt.err); got != tt.want {
				t.Errorf("ToErrno() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrno_String(t *testing.T) {
	tests := []struct {
		errno Errno
		want  string
	}{
		{ErrnoSuccess, "success"},
		{ErrnoGuestError, "guest_error"},
		{ErrnoInvalidHandle, "invalid_handle"},
		{ErrnoOverflow, "overflow"},
		{ErrnoTooManyHandles, "too_many_handles"},
		{ErrnoExpired, "expired"},
		{Errno(200), "errno(200)"},
	}

	for _, tt := range tests {
		if got := tt.errno.String(); got != tt.want {
			t.Errorf("Errno(%d).String() = %q, want %q", uint16(tt.errno), got, tt.want)
		}
	}
}

func TestErrno_WireValues(t *testing.T) {
	// Values are fixed by the wasi-crypto ABI; a reorder would break guests.
	fixed := map[Errno]uint16{
		ErrnoSuccess:            0,
		ErrnoGuestError:         1,
		ErrnoUnsupportedFeature: 3,
		ErrnoUnsupportedOption:  7,
		ErrnoClosed:             14,
		ErrnoInvalidHandle:      15,
		ErrnoOverflow:           16,
		ErrnoInternalError:      17,
		ErrnoTooManyHandles:     18,
		ErrnoOptionNotSet:       25,
		ErrnoNotFound:           26,
		ErrnoExpired:            30,
	}
	for errno, want := range fixed {
		if uint16(errno) != want {
			t.Errorf("%s = %d, want %d", errno, uint16(errno), want)
		}
	}
}
