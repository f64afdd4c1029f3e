package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// whose transport has not been opened.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when a command is issued after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrNotDetected is returned by Begin when the modem did not answer the
	// probe after every initialisation attempt.
	//
	// The usual causes are a powered-off module, a wrong serial port or a
	// baud rate outside the autobaud list.
	ErrNotDetected = errors.New("modem not detected")
)

// Transaction failures. Every error returned by the engine wraps exactly
// one of these, so callers can use errors.Is or StatusOf.
var (
	// ErrNoResponse means nothing at all was received before the deadline.
	// This usually points at a wiring or power fault.
	ErrNoResponse = errors.New("no response")

	// ErrTimeout means a terminator was partially matched when the deadline
	// expired.
	ErrTimeout = errors.New("timeout")

	// ErrUnexpectedResponse means bytes were received but neither the
	// success nor the error terminator appeared.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrProtocol means the modem answered with an error terminator.
	ErrProtocol = errors.New("modem reported error")

	// ErrOutOfMemory means a command or response did not fit the buffers.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrUnexpectedParam means the caller supplied an out-of-range argument.
	ErrUnexpectedParam = errors.New("unexpected parameter")
)

// Status is the outcome of one AT transaction.
type Status int

const (
	Success Status = iota
	ProtocolError
	NoResponse
	Timeout
	UnexpectedResponse
	OutOfMemory
	UnexpectedParam
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case ProtocolError:
		return "protocol error"
	case NoResponse:
		return "no response"
	case Timeout:
		return "timeout"
	case UnexpectedResponse:
		return "unexpected response"
	case OutOfMemory:
		return "out of memory"
	case UnexpectedParam:
		return "unexpected parameter"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusOf maps an error returned by this package to its Status. Errors
// from outside the taxonomy are reported as UnexpectedResponse.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrProtocol):
		return ProtocolError
	case errors.Is(err, ErrNoResponse):
		return NoResponse
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrOutOfMemory):
		return OutOfMemory
	case errors.Is(err, ErrUnexpectedParam):
		return UnexpectedParam
	default:
		return UnexpectedResponse
	}
}

// CommandError describes a failed transaction.
type CommandError struct {
	// Command is the command as written, without the carriage return.
	Command string
	// Code is the numeric +CME/+CMS error, or -1 when the modem did not
	// report one.
	Code int
	Err  error
}

func (e *CommandError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("%s: %v (code %d)", e.Command, e.Err, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the modem error code carried by err, or -1.
func ErrorCode(err error) int {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return -1
}
