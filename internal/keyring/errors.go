package keyring

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes keyring failures.
type ErrorCode string

const (
	// ErrCodeEncoding indicates a key, box or signature is not valid base58
	// or has the wrong length.
	ErrCodeEncoding ErrorCode = "ENCODING"

	// ErrCodeVerification indicates a signature does not match its authority.
	ErrCodeVerification ErrorCode = "VERIFICATION"

	// ErrCodeDecryption indicates a box could not be opened with the given keys.
	ErrCodeDecryption ErrorCode = "DECRYPTION"

	// ErrCodeNoSigningKey indicates the authority's secret key is not held locally.
	ErrCodeNoSigningKey ErrorCode = "NO_SIGNING_KEY"
)

// Error is returned by every keyring operation that fails.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("keyring %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("keyring %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func hasCode(err error, code ErrorCode) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}

// IsVerificationError reports whether err is a signature mismatch.
func IsVerificationError(err error) bool { return hasCode(err, ErrCodeVerification) }

// IsDecryptionError reports whether err is a box that would not open.
func IsDecryptionError(err error) bool { return hasCode(err, ErrCodeDecryption) }

// IsEncodingError reports whether err is malformed key material.
func IsEncodingError(err error) bool { return hasCode(err, ErrCodeEncoding) }

// IsNoSigningKeyError reports whether err is a missing local signing key.
func IsNoSigningKeyError(err error) bool { return hasCode(err, ErrCodeNoSigningKey) }
