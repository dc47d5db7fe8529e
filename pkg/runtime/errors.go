package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted is returned by Acquire when no process becomes
	// idle within the acquisition timeout.
	ErrPoolExhausted = errors.New("runtime: pool exhausted")

	// ErrPoolClosed is returned by Acquire after Shutdown has begun.
	ErrPoolClosed = errors.New("runtime: pool closed")
)

// violationError marks guest protocol breaches: frame desync, malformed
// callback lines, reused correlation ids. These classify as
// OutcomeProtocolError rather than infrastructure failures.
type violationError struct {
	msg string
}

func (e *violationError) Error() string { return e.msg }

func violationf(format string, args ...any) error {
	return &violationError{msg: fmt.Sprintf(format, args...)}
}

func isViolation(err error) bool {
	var v *violationError
	return errors.As(err, &v)
}
