package errors

import (
	stderrors "errors"
	"strconv"
)

// Errno is the closed set of outcomes a boundary call can report to the
// guest. Values follow the wasi-crypto crypto_errno table.
type Errno uint16

const (
	ErrnoSuccess Errno = iota
	ErrnoGuestError
	ErrnoNotImplemented
	ErrnoUnsupportedFeature
	ErrnoProhibitedOperation
	ErrnoUnsupportedEncoding
	ErrnoUnsupportedAlgorithm
	ErrnoUnsupportedOption
	ErrnoInvalidKey
	ErrnoInvalidLength
	ErrnoVerificationFailed
	ErrnoRNGError
	ErrnoAlgorithmFailure
	ErrnoInvalidSignature
	ErrnoClosed
	ErrnoInvalidHandle
	ErrnoOverflow
	ErrnoInternalError
	ErrnoTooManyHandles
	ErrnoKeyNotSupported
	ErrnoKeyRequired
	ErrnoInvalidTag
	ErrnoInvalidOperation
	ErrnoNonceRequired
	ErrnoInvalidNonce
	ErrnoOptionNotSet
	ErrnoNotFound
	ErrnoParametersMissing
	ErrnoInProgress
	ErrnoIncompatibleKeys
	ErrnoExpired

	errnoCount
)

var errnoNames = [errnoCount]string{
	"success",
	"guest_error",
	"not_implemented",
	"unsupported_feature",
	"prohibited_operation",
	"unsupported_encoding",
	"unsupported_algorithm",
	"unsupported_option",
	"invalid_key",
	"invalid_length",
	"verification_failed",
	"rng_error",
	"algorithm_failure",
	"invalid_signature",
	"closed",
	"invalid_handle",
	"overflow",
	"internal_error",
	"too_many_handles",
	"key_not_supported",
	"key_required",
	"invalid_tag",
	"invalid_operation",
	"nonce_required",
	"invalid_nonce",
	"option_not_set",
	"not_found",
	"parameters_missing",
	"in_progress",
	"incompatible_keys",
	"expired",
}

// String returns the wire name of the errno.
func (e Errno) String() string {
	if e < errnoCount {
		return errnoNames[e]
	}
	return "errno(" + strconv.FormatUint(uint64(e), 10) + ")"
}

// Error lets a backend return an Errno directly; ToErrno passes it through.
func (e Errno) Error() string {
	return "crypto errno " + e.String()
}

// Valid reports whether e belongs to the closed enumeration.
func (e Errno) Valid() bool {
	return e < errnoCount
}

var kindErrno = map[Kind]Errno{
	KindInvalidHandle:     ErrnoInvalidHandle,
	KindOutOfBounds:       ErrnoGuestError,
	KindMisaligned:        ErrnoGuestError,
	KindAliasing:          ErrnoGuestError,
	KindInvalidEnum:       ErrnoGuestError,
	KindInvalidVariant:    ErrnoGuestError,
	KindInvalidUTF8:       ErrnoUnsupportedEncoding,
	KindOverflow:          ErrnoOverflow,
	KindExhausted:         ErrnoTooManyHandles,
	KindUnsupported:       ErrnoUnsupportedFeature,
	KindUnsupportedOption: ErrnoUnsupportedOption,
	KindOptionNotSet:      ErrnoOptionNotSet,
	KindNotFound:          ErrnoNotFound,
	KindClosed:            ErrnoClosed,
	KindInvalidOperation:  ErrnoInvalidOperation,
	KindNotImplemented:    ErrnoNotImplemented,
}

// ToErrno maps any host-side outcome onto the closed enumeration.
// A nil error is success; anything unclassified becomes internal_error.
func ToErrno(err error) Errno {
	if err == nil {
		return ErrnoSuccess
	}

	var e *Error
	if stderrors.As(err, &e) {
		if errno, ok := kindErrno[e.Kind]; ok {
			return errno
		}
		// An unclassified wrapper may still carry a classified cause.
		if e.Cause != nil {
			if errno := ToErrno(e.Cause); errno != ErrnoInternalError {
				return errno
			}
		}
		return ErrnoInternalError
	}

	var errno Errno
	if stderrors.As(err, &errno) {
		if errno == ErrnoSuccess || !errno.Valid() {
			return ErrnoInternalError
		}
		return errno
	}

	return ErrnoInternalError
}
