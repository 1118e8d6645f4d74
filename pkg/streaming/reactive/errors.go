package reactive

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
)

// ErrPanic is matched by errors.Is for every error produced from a recovered
// panic in user code.
var ErrPanic = errors.New("reactive: panic")

// ErrInvalidRequest is signalled when a subscriber requests a non-positive
// amount.
var ErrInvalidRequest = fmt.Errorf("reactive: request must be positive: %w", gferrors.ErrInvalidConfiguration)

// UpstreamError wraps a failure produced by a source.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "upstream: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// OperatorError wraps a failure of a user function passed to an operator.
type OperatorError struct {
	Op  string
	Err error
}

func (e *OperatorError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *OperatorError) Unwrap() error { return e.Err }

// SchedulingError reports that a scheduler refused work for a subscription.
type SchedulingError struct {
	Scheduler string
	Err       error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduler %s: %v", e.Scheduler, e.Err)
}
func (e *SchedulingError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Is makes errors.Is(err, ErrPanic) hold.
func (e *PanicError) Is(target error) bool { return target == ErrPanic }

func newPanicError(r any) error {
	if err, ok := r.(error); ok && errors.Is(err, ErrPanic) {
		return err
	}
	return &PanicError{Value: r, Stack: cleanStack(debug.Stack())}
}

// cleanStack drops the runtime and recovery frames above the panic site.
func cleanStack(stack []byte) string {
	lines := strings.Split(string(stack), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "panic(") {
			// The frame after panic( is the function that panicked.
			return strings.Join(lines[i+2:], "\n")
		}
	}
	return string(stack)
}

func upstream(err error) error {
	if err == nil || isContextErr(err) {
		return err
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Err: err}
}

func operatorErr(op string, err error) error {
	if err == nil || isContextErr(err) {
		return err
	}
	return &OperatorError{Op: op, Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// call runs f, turning a panic into an OperatorError.
func call[R any](op string, f func() (R, error)) (r R, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &OperatorError{Op: op, Err: newPanicError(rec)}
		}
	}()
	r, err = f()
	if err != nil {
		var oe *OperatorError
		if !errors.As(err, &oe) {
			err = operatorErr(op, err)
		}
	}
	return r, err
}
