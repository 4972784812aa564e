// Package errdefs defines the three error classes every installer failure
// falls into. All of them are fatal: the installer reports the failing step
// and exits, leaving the system exactly as the failed step left it.
package errdefs

import (
	"errors"
	"fmt"
)

// PreconditionError reports host state that must hold before anything is
// written: ZFS kernel support present, target disks untouched, the mount
// point usable.
type PreconditionError struct {
	Check string
	Msg   string
	Hint  string
}

func (e PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition %s: %s", e.Check, e.Msg)
	if e.Hint != "" {
		msg += fmt.Sprintf(" (try: %s)", e.Hint)
	}
	return msg
}

// ConfigurationError reports an invalid or inconsistent request: an unknown
// redundancy mode, too few devices for a group, a pool name that is already
// taken, a pool version the kernel module cannot provide.
type ConfigurationError struct {
	Msg string
}

func (e ConfigurationError) Error() string {
	return "invalid configuration: " + e.Msg
}

// Configf builds a ConfigurationError from a format string.
func Configf(format string, args ...any) ConfigurationError {
	return ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// OperationError reports a step against the live system that started and
// failed. Output carries the trimmed output of the failing command when one
// was involved.
type OperationError struct {
	Op     string
	Output string
	Inner  error
}

func (e OperationError) Error() string {
	msg := fmt.Sprintf("operation %s failed", e.Op)
	if e.Inner != nil {
		msg += fmt.Sprintf(": %v", e.Inner)
	}
	if e.Output != "" {
		msg += fmt.Sprintf(": %s", e.Output)
	}
	return msg
}

func (e OperationError) Unwrap() error {
	return e.Inner
}

func IsPrecondition(err error) bool {
	var pe PreconditionError
	return errors.As(err, &pe)
}

func IsConfiguration(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}

func IsOperation(err error) bool {
	var oe OperationError
	return errors.As(err, &oe)
}
