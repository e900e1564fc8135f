package device

import (
	"errors"
	"fmt"

	"github.com/gogpu/rendercore/backend"
)

// ResultCode classifies the outcome of a device operation.
type ResultCode int

const (
	// ResultOK means the operation completed.
	ResultOK ResultCode = iota

	// ResultRetry means the device is temporarily unusable. The caller
	// should try again on a later frame.
	ResultRetry

	// ResultFatal means the device cannot be used. Err holds the reason.
	ResultFatal
)

// String returns the code name.
func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultRetry:
		return "retry"
	case ResultFatal:
		return "fatal"
	default:
		return fmt.Sprintf("ResultCode(%d)", int(c))
	}
}

// Result is the outcome of Acquire, Reset, Validate, Present and
// LinkRenderWindow.
type Result struct {
	Code ResultCode

	// Err is the cause of a retry or fatal result. It may be nil for
	// ResultRetry.
	Err error
}

// OK reports whether the operation completed.
func (r Result) OK() bool { return r.Code == ResultOK }

// Retry reports whether the operation should be attempted again later.
func (r Result) Retry() bool { return r.Code == ResultRetry }

// Fatal reports whether the device cannot be used.
func (r Result) Fatal() bool { return r.Code == ResultFatal }

// String implements fmt.Stringer.
func (r Result) String() string {
	if r.Err == nil {
		return r.Code.String()
	}
	return r.Code.String() + ": " + r.Err.Error()
}

func ok() Result { return Result{Code: ResultOK} }

func retry(err error) Result { return Result{Code: ResultRetry, Err: err} }

func fatal(err error) Result { return Result{Code: ResultFatal, Err: err} }

// classify maps a native error to a Result. Retryable device conditions
// become ResultRetry; anything else is wrapped with kind and is fatal.
func classify(err, kind error) Result {
	switch {
	case err == nil:
		return ok()
	case backend.IsRetryable(err):
		return retry(err)
	case errors.Is(err, kind):
		return fatal(err)
	default:
		return fatal(fmt.Errorf("%w: %w", kind, err))
	}
}
