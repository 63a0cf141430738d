package lib

import (
	"context"
	"errors"
	"net"

	"github.com/gravitational/trace"
)

// IsCanceled reports whether the error chain ends with a context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(trace.Unwrap(err), context.Canceled) || errors.Is(err, context.Canceled)
}

// IsDeadline reports whether the error is a context deadline or a network timeout.
func IsDeadline(err error) bool {
	if errors.Is(trace.Unwrap(err), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(trace.Unwrap(err), &netErr) || errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
