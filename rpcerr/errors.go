// Package rpcerr defines the error taxonomy shared by client and server.
//
// Per-call failures on the server never escape as Go errors: they travel back
// inside a Result's errorMessage and are rebuilt on the client as a
// *RemoteInvocationError. Everything else (malformed frames, lost connections,
// timeouts, bad registrations) is reported locally with the sentinels below,
// usually wrapped with github.com/pkg/errors for context.
package rpcerr

import (
	"github.com/pkg/errors"
)

// Messages the dispatcher puts on the wire for resolution failures.
const (
	MsgServiceNotFound = "service not found"
	MsgMethodNotFound  = "method not found"
)

var (
	// ErrSerialization reports a message that could not be encoded or decoded.
	ErrSerialization = errors.New("malformed message")
	// ErrServiceNotFound reports a contract name with no registered implementation.
	ErrServiceNotFound = errors.New(MsgServiceNotFound)
	// ErrMethodNotFound reports a method name + descriptors pair with no match.
	ErrMethodNotFound = errors.New(MsgMethodNotFound)
	// ErrConnectionClosed fails calls outstanding when the transport goes away.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrCallTimeout fails a call whose result did not arrive in time.
	ErrCallTimeout = errors.New("call timed out")
	// ErrRegistration is fatal at startup: an implementation could not be exposed.
	ErrRegistration = errors.New("registration failed")
)

// RemoteInvocationError carries the message of an error raised on the remote side.
// The remote stack trace is never transmitted.
type RemoteInvocationError struct {
	Message string
}

func (e *RemoteInvocationError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match the resolution sentinels when the remote side
// reported them verbatim.
func (e *RemoteInvocationError) Unwrap() error {
	switch e.Message {
	case MsgServiceNotFound:
		return ErrServiceNotFound
	case MsgMethodNotFound:
		return ErrMethodNotFound
	}
	return nil
}

// Remote builds the client-side error for a Result carrying errorMessage.
func Remote(message string) error {
	return &RemoteInvocationError{Message: message}
}

// IsRemote reports whether err originated in a remote implementation.
func IsRemote(err error) bool {
	var re *RemoteInvocationError
	return errors.As(err, &re)
}

// Serialization wraps cause as an ErrSerialization.
func Serialization(cause error, format string, args ...any) error {
	if cause == nil {
		return errors.Wrapf(ErrSerialization, format, args...)
	}
	return errors.Wrapf(&wrapped{sentinel: ErrSerialization, cause: cause}, format, args...)
}

// Registration wraps ErrRegistration with a formatted reason.
func Registration(format string, args ...any) error {
	return errors.Wrapf(ErrRegistration, format, args...)
}

// wrapped joins a sentinel with an underlying cause so both satisfy errors.Is.
type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	return w.sentinel.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Is(target error) bool {
	return target == w.sentinel
}

func (w *wrapped) Unwrap() error {
	return w.cause
}
