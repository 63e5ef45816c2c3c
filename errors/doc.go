// Package errors provides the structured host-side error type and the closed
// errno enumeration returned across the guest boundary.
//
// Host errors are categorized by Phase (where the error occurred) and Kind
// (error category). The Error type carries the offending handle, option name,
// detail and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseOptions, errors.KindUnsupportedOption).
//		Handle("options", 3).
//		Name("nonce").
//		Detail("not accepted for signatures options").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseOptions, "options", h)
//	err := errors.Overflow(errors.PhaseGuest, n, "u32")
//
// Errors never cross the boundary as-is. ToErrno collapses any error into an
// Errno, and unclassified errors (including foreign error types) become
// ErrnoInternalError:
//
//	stack[0] = uint64(errors.ToErrno(err))
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
