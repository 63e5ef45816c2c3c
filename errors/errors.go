package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseGuest       Phase = "guest"        // guest memory access
	PhaseHandle      Phase = "handle"       // handle table operations
	PhaseOptions     Phase = "options"      // options bag operations
	PhaseArrayOutput Phase = "array_output" // array output streams
	PhaseKeyManager  Phase = "key_manager"  // key manager sessions
	PhaseHost        Phase = "host"         // host function registration and dispatch
	PhaseConfig      Phase = "config"       // configuration validation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle     Kind = "invalid_handle"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindMisaligned        Kind = "misaligned"
	KindAliasing          Kind = "aliasing"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindInvalidEnum       Kind = "invalid_enum"
	KindInvalidVariant    Kind = "invalid_variant"
	KindOverflow          Kind = "overflow"
	KindExhausted         Kind = "resource_exhausted"
	KindUnsupported       Kind = "unsupported"
	KindUnsupportedOption Kind = "unsupported_option"
	KindOptionNotSet      Kind = "option_not_set"
	KindNotFound          Kind = "not_found"
	KindClosed            Kind = "closed"
	KindInvalidOperation  Kind = "invalid_operation"
	KindNotImplemented    Kind = "not_implemented"
	KindInvalidInput      Kind = "invalid_input"
	KindRegistration      Kind = "registration"
	KindInternal          Kind = "internal"
)

// Error is the structured host-side error. It never crosses the guest
// boundary; ToErrno collapses it into an Errno first.
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Name     string
	Detail   string
	Handle   uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Resource != "" {
		b.WriteString(" ")
		b.WriteString(e.Resource)
		b.WriteString(" handle ")
		b.WriteString(strconv.FormatUint(uint64(e.Handle), 10))
	}

	if e.Name != "" {
		b.WriteString(" at ")
		b.WriteString(strconv.Quote(e.Name))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle records the resource kind and handle the error refers to
func (b *Builder) Handle(resource string, h uint32) *Builder {
	b.err.Resource = resource
	b.err.Handle = h
	return b
}

// Name sets the option or field name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle creates an error for an unknown, closed, or wrong-kind handle
func InvalidHandle(phase Phase, resource string, h uint32) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidHandle,
		Resource: resource,
		Handle:   h,
	}
}

// Exhausted creates a resource exhaustion error
func Exhausted(phase Phase, resource string, limit int) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindExhausted,
		Resource: resource,
		Detail:   fmt.Sprintf("limit of %d live handles reached", limit),
		Value:    limit,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds creates an error for a guest region outside linear memory
func OutOfBounds(phase Phase, ptr, length uint64, memSize uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("region [%d, %d+%d) exceeds memory size %d", ptr, ptr, length, memSize),
		Value:  ptr,
	}
}

// Misaligned creates an error for a guest pointer that violates type alignment
func Misaligned(phase Phase, ptr uint32, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMisaligned,
		Detail: fmt.Sprintf("pointer %d is not aligned to %d", ptr, align),
		Value:  ptr,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(phase Phase, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:  value,
	}
}

// InvalidDiscriminant creates an invalid discriminant error for unions
func InvalidDiscriminant(phase Phase, disc uint32, maxValid uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidVariant,
		Detail: fmt.Sprintf("discriminant %d out of range (max %d)", disc, maxValid),
		Value:  disc,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
