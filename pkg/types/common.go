package types

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ID identifies a consumer session in logs and results
type ID string

// String returns the string representation of the ID
func (i ID) String() string {
	return string(i)
}

// IsEmpty returns true if the ID is empty
func (i ID) IsEmpty() bool {
	return string(i) == ""
}

// GenerateID generates a new unique identifier
func GenerateID() ID {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err == nil {
		return ID(hex.EncodeToString(b))
	}
	// Fallback to time-based ID
	return ID(hex.EncodeToString([]byte(time.Now().Format("150405.000000"))))
}

// Error represents an error with additional context
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new error with code and message
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with code and message
func WrapError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsErrCode checks if an error, or any error it wraps, has a specific error code
func IsErrCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error
func GetErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Session error codes
const (
	// ErrCodeConfig marks an invalid frequency, timeout or other setting. Fatal at startup.
	ErrCodeConfig = "CONFIG"
	// ErrCodeBind marks a failure to create the listening endpoint.
	ErrCodeBind = "BIND"
	// ErrCodeAccept marks a failure while waiting for the single peer.
	ErrCodeAccept = "ACCEPT"
	// ErrCodeConnect marks a failure to reach a listener.
	ErrCodeConnect = "CONNECT"
	// ErrCodeSend marks a broken peer observed on send. Recoverable once via reconnect.
	ErrCodeSend = "SEND"
	// ErrCodeReceiveTransient marks a retryable receive failure.
	ErrCodeReceiveTransient = "RECEIVE_TRANSIENT"
	// ErrCodePeerClosed marks an orderly (or unrecoverable) peer shutdown.
	ErrCodePeerClosed = "PEER_CLOSED"
	// ErrCodeFraming marks a message whose length is not the sample size.
	ErrCodeFraming = "FRAMING"
	// ErrCodeIdleTimeout marks a session ended by the consumer watchdog.
	ErrCodeIdleTimeout = "IDLE_TIMEOUT"
	// ErrCodeExhausted marks a finite sample source that has nothing left to send.
	ErrCodeExhausted = "EXHAUSTED"
)

// Common error codes
const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeInternal        = "INTERNAL"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeCanceled        = "CANCELED"
)

// IsFatal reports whether err should end the process with a non-zero exit
// code. Peer-closed, idle-timeout, canceled and exhausted endings are graceful.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorCode(err) {
	case ErrCodePeerClosed, ErrCodeIdleTimeout, ErrCodeCanceled, ErrCodeExhausted:
		return false
	}
	return true
}
