// Package errors provides a small typed error used across the bridge: the
// errors returned by the queue, the DLO, the ingest facade, config loading
// and cryptobox are *AppError values so the API layer can map ErrorType to
// one HTTP status without a second classification switch. Dispatchers
// report failures through dispatch.Outcome instead.
package errors

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrorType classifies an AppError for status-code mapping and retry logic.
type ErrorType int

const (
	// Unknown is the zero value: an error that hasn't been classified.
	Unknown ErrorType = iota

	// Internal marks an unexpected internal/programming failure.
	Internal

	// InvalidInput marks a request or config value that failed validation.
	InvalidInput

	// Conflict marks a duplicate or already-in-flight resource (e.g. a
	// sms_id already queued).
	Conflict

	// NotFound marks a missing resource (e.g. a DLO entry by sms_id).
	NotFound

	// Unauthorized marks a missing or invalid webhook signature/credential.
	Unauthorized

	// ExecutionFailed marks a dispatch attempt that failed for a reason
	// that will not be fixed by retrying (malformed recipient, auth
	// rejected by the channel, etc).
	ExecutionFailed

	// Timeout marks a context deadline exceeded while waiting on a
	// channel, dispatcher or downstream call.
	Timeout

	// Unavailable marks a transient failure worth retrying (network
	// error, 5xx, rate limit).
	Unavailable
)

func (t ErrorType) String() string {
	switch t {
	case Internal:
		return "internal"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case ExecutionFailed:
		return "execution_failed"
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// StackFrame is a single frame of a captured call stack.
type StackFrame struct {
	File     string
	Line     int
	Function string
}

// AppError is the application-wide error type. Type drives HTTP status and
// retry classification; Message is safe to surface to a caller; Cause
// chains to whatever produced the failure.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Stack   []StackFrame
}

const maxStackFrames = 5

func captureStack(skip int) []StackFrame {
	pc := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip, pc)
	if n == 0 {
		return nil
	}

	frames := make([]StackFrame, 0, n)
	callersFrames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := callersFrames.Next()
		frames = append(frames, StackFrame{
			File:     filepath.Base(frame.File),
			Line:     frame.Line,
			Function: frame.Function,
		})
		if !more {
			break
		}
	}
	return frames
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Format implements fmt.Formatter; %+v prints the stack trace and cause chain.
func (e *AppError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "[%s] %s", e.Type, e.Message)
			if len(e.Stack) > 0 {
				fmt.Fprint(s, "\nStack trace:")
				for _, frame := range e.Stack {
					funcName := frame.Function
					if idx := strings.LastIndex(funcName, "/"); idx != -1 {
						funcName = funcName[idx+1:]
					}
					fmt.Fprintf(s, "\n\t%s:%d %s", frame.File, frame.Line, funcName)
				}
			}
			if e.Cause != nil {
				fmt.Fprint(s, "\nCaused by:\n")
				if formatter, ok := e.Cause.(fmt.Formatter); ok {
					formatter.Format(s, verb)
				} else {
					fmt.Fprintf(s, "\t%v", e.Cause)
				}
			}
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// New creates a new AppError with a captured stack trace.
func New(errType ErrorType, message string) error {
	return &AppError{Type: errType, Message: message, Stack: captureStack(3)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(errType ErrorType, format string, args ...interface{}) error {
	return &AppError{Type: errType, Message: fmt.Sprintf(format, args...), Stack: captureStack(3)}
}

// Wrap attaches errType and message to err. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Type: errType, Message: message, Cause: err, Stack: captureStack(3)}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &AppError{Type: errType, Message: fmt.Sprintf(format, args...), Cause: err, Stack: captureStack(3)}
}

// Unwrap implements errors.Unwrap.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether err's chain contains an AppError of the given type.
func Is(err error, errType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// As wraps the standard errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// RootCause unwraps err to the deepest cause in its chain.
func RootCause(err error) error {
	if err == nil {
		return nil
	}
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

// GetType returns err's ErrorType, or Unknown if err is nil or not an AppError.
func GetType(err error) ErrorType {
	if err == nil {
		return Unknown
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return Unknown
}
