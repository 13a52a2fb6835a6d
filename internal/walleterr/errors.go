// Package walleterr defines the error kinds shared by the vault, the session
// manager and the request router, and maps them to protocol error codes.
package walleterr

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrDecryption is returned when the vault password is wrong or the record
	// is corrupted. Keep this generic to avoid leaking details.
	ErrDecryption = errors.New("invalid password or corrupted data")
	// ErrValidation marks malformed operator input (credentials, URIs, config).
	ErrValidation = errors.New("validation failed")
	// ErrInvalidParams marks a signing request whose params do not match the
	// shape required by its method.
	ErrInvalidParams = errors.New("invalid params")
	// ErrUnsupportedMethod marks a method that is in neither namespace.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrUserRejected marks an operator decline.
	ErrUserRejected = errors.New("user rejected")
	// ErrNetwork marks an RPC, broadcast or node failure.
	ErrNetwork = errors.New("network error")
	// ErrState marks an operation that is invalid for the current session state.
	ErrState = errors.New("invalid session state")
)

// JSON-RPC error codes used in responses.
const (
	CodeUserRejected      = 5000
	CodeUnsupportedMethod = 1001
	CodeInvalidParams     = -32602
	CodeNetwork           = -32000
	CodeState             = -32001
	CodeInternal          = -32603
)

// InvalidParams builds an error marked as ErrInvalidParams.
func InvalidParams(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidParams)
}

// Validation builds an error marked as ErrValidation.
func Validation(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// State builds an error marked as ErrState.
func State(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrState)
}

// UnsupportedMethod builds an error marked as ErrUnsupportedMethod.
func UnsupportedMethod(method string) error {
	return errors.Mark(errors.Newf("unsupported method %q", method), ErrUnsupportedMethod)
}

// Network wraps err and marks it as ErrNetwork.
func Network(err error, format string, args ...any) error {
	if err == nil {
		return errors.Mark(errors.Newf(format, args...), ErrNetwork)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrNetwork)
}

// Reason maps err to the code and message carried by a failure response.
func Reason(err error) (int, string) {
	switch {
	case err == nil:
		return CodeInternal, "internal error"
	case errors.Is(err, ErrUserRejected):
		return CodeUserRejected, "User rejected."
	case errors.Is(err, ErrUnsupportedMethod):
		return CodeUnsupportedMethod, err.Error()
	case errors.Is(err, ErrInvalidParams), errors.Is(err, ErrValidation):
		return CodeInvalidParams, err.Error()
	case errors.Is(err, ErrNetwork):
		return CodeNetwork, err.Error()
	case errors.Is(err, ErrState):
		return CodeState, err.Error()
	default:
		return CodeInternal, err.Error()
	}
}
