package errs

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ErrCodeConnection    string = "CONNECTION_ERROR"
	ErrCodeConfiguration string = "CONFIGURATION_ERROR"
	ErrCodeHandler       string = "HANDLER_ERROR"
	ErrCodeSerialization string = "SERIALIZATION_ERROR"
)

var (
	// Broker unreachable, credentials rejected, channel or connection dropped.
	ErrConnection *LettuceErr = NewErrfCode(ErrCodeConnection, "Connection Error")

	// Missing worker name, empty event name, or operation called in the wrong state.
	ErrConfiguration *LettuceErr = NewErrfCode(ErrCodeConfiguration, "Configuration Error")

	// Event handler returned an error or panicked.
	ErrHandler *LettuceErr = NewErrfCode(ErrCodeHandler, "Handler Error")

	// Event envelope could not be encoded or decoded.
	ErrSerialization *LettuceErr = NewErrfCode(ErrCodeSerialization, "Serialization Error")
)

// Lettuce Error.
//
//	Derive from one of the Err* values, or use NewErrfCode(...) to create a new kind.
type LettuceErr struct {
	code        string // error code.
	msg         string // error message.
	internalMsg string // extra context, e.g., names of the queue or exchange involved.
	err         error
}

func (e *LettuceErr) InternalMsg() string {
	return e.internalMsg
}

func (e *LettuceErr) Msg() string {
	return e.msg
}

func (e *LettuceErr) Code() string {
	return e.code
}

// Create new *LettuceErr to wrap the cause error
//
// if cause is nil, nil is returned.
func (e *LettuceErr) Wrap(cause error) error {
	if cause == nil {
		return nil
	}
	n := e.copyNew()
	n.err = cause
	return n
}

// Create new *LettuceErr to wrap the cause error
//
// if cause is nil, nil is returned.
func (e *LettuceErr) Wrapf(cause error, internalMsg string, args ...any) error {
	if cause == nil {
		return nil
	}
	n := e.copyNew()
	n.err = cause
	n.internalMsg = sprintf(internalMsg, args...)
	return n
}

func (e *LettuceErr) WithInternalMsg(msg string, args ...any) *LettuceErr {
	n := e.copyNew()
	n.internalMsg = sprintf(msg, args...)
	return n
}

func (e *LettuceErr) copyNew() *LettuceErr {
	n := new(LettuceErr)
	n.code = e.code
	n.msg = e.msg
	n.internalMsg = e.internalMsg
	n.err = e.err
	return n
}

func (e *LettuceErr) Error() string {
	tok := make([]string, 0, 3)
	if e.msg != "" {
		tok = append(tok, e.msg)
	}
	if e.internalMsg != "" {
		tok = append(tok, e.internalMsg)
	}
	if e.err != nil {
		tok = append(tok, e.err.Error())
	}
	return strings.Join(tok, ", ")
}

// Implements *LettuceErr Is check.
//
// Returns true, if both are *LettuceErr and the code matches, so that
// errors.Is(err, errs.ErrConnection) works on every error derived from ErrConnection.
func (e *LettuceErr) Is(target error) bool {
	if tle, ok := target.(*LettuceErr); ok && e.code != "" && e.code == tle.code {
		return true
	}
	return false
}

func (e *LettuceErr) Unwrap() error {
	return e.err
}

// Create new *LettuceErr with message and error code.
func NewErrfCode(code string, msg string, args ...any) *LettuceErr {
	return &LettuceErr{msg: sprintf(msg, args...), code: code}
}

// Find *LettuceErr in err's chain.
func AsLettuceErr(err error) (*LettuceErr, bool) {
	var le *LettuceErr
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func sprintf(msg string, args ...any) string {
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
