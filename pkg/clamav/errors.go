package clamav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCodeOnScanAborted is the status code the scan service responds with
// when it intentionally stops a scan early, e.g. because a size or recursion
// limit was reached.
const ErrorCodeOnScanAborted = http.StatusUnprocessableEntity

// ErrNoVerdict is returned when an event stream ends without a terminal event.
var ErrNoVerdict = errors.New("event stream ended without a scan verdict")

// ScanError is returned when the scan service responds with a non-2xx status
// code or reports an error event.
type ScanError struct {
	StatusCode int
	Message    string
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan service responded with status %d: %s", e.StatusCode, e.Message)
}

// Aborted returns true if the service stopped the scan on purpose or failed
// internally while scanning.
func (e *ScanError) Aborted() bool {
	return e.StatusCode == ErrorCodeOnScanAborted || e.StatusCode == http.StatusInternalServerError
}

// TransportErrorKind distinguishes network-level failures.
type TransportErrorKind int

const (
	Timeout TransportErrorKind = iota + 1
	ConnectionError
)

func (k TransportErrorKind) String() string {
	switch k {
	case Timeout:
		return "timed out"
	case ConnectionError:
		return "connection-error"
	default:
		return "unknown"
	}
}

// TransportError is returned when a request could not be completed at the
// network level.
type TransportError struct {
	Kind TransportErrorKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if err is a TransportError of kind Timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == Timeout
}

// IsConnectionError returns true if err is a TransportError of kind ConnectionError.
func IsConnectionError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == ConnectionError
}

// transportError classifies err returned while talking to the service within
// the request context ctx. Cancellation by the caller is returned untouched.
func transportError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: Timeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: Timeout, Op: op, Err: err}
	}
	return &TransportError{Kind: ConnectionError, Op: op, Err: err}
}
