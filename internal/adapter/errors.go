// Package adapter defines the southbound contract to the link radio.
//
// Normalized error codes: VALIDATION, CONNECTION, PROTOCOL, TIMEOUT, CONFLICT.
// Device and transport failures are wrapped in a LinkError that keeps the raw
// cause for diagnostics while errors.Is matches on the normalized code.
package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized link errors.
var (
	ErrValidation = errors.New("VALIDATION")
	ErrConnection = errors.New("CONNECTION")
	ErrProtocol   = errors.New("PROTOCOL")
	ErrTimeout    = errors.New("TIMEOUT")
	ErrConflict   = errors.New("CONFLICT")
)

// codes lists the normalized errors in the order Code checks them.
var codes = []error{ErrValidation, ErrConnection, ErrProtocol, ErrTimeout, ErrConflict}

// LinkError wraps a raw failure with its normalized code.
type LinkError struct {
	Code     error       // Normalized code
	Original error       // Raw cause (transport error, device output, ...)
	Details  interface{} // Opaque payload, e.g. partial responses
}

func (e *LinkError) Error() string {
	if e.Original == nil {
		return e.Code.Error()
	}
	return fmt.Sprintf("%v: %v", e.Code, e.Original)
}

func (e *LinkError) Unwrap() error {
	return e.Code
}

// Wrap returns a LinkError for code. A nil code returns original unchanged.
func Wrap(code error, original error, details interface{}) error {
	if code == nil {
		return original
	}
	return &LinkError{Code: code, Original: original, Details: details}
}

// Errorf wraps a formatted message with code.
func Errorf(code error, format string, args ...interface{}) error {
	return &LinkError{Code: code, Original: fmt.Errorf(format, args...)}
}

// Code returns the normalized code name of err, "SUCCESS" for nil and
// "INTERNAL" for errors outside the taxonomy.
func Code(err error) string {
	if err == nil {
		return "SUCCESS"
	}
	for _, code := range codes {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return "INTERNAL"
}

// Cause returns the raw cause text of err without the code prefix.
func Cause(err error) string {
	var le *LinkError
	if errors.As(err, &le) && le.Original != nil {
		return le.Original.Error()
	}
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
