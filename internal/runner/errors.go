package runner

import (
	"errors"
	"fmt"
)

// ErrConfig marks invalid or conflicting run parameters. Fatal,
// surfaced before the run starts.
var ErrConfig = errors.New("invalid configuration")

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}

// ErrConsistency marks a violated internal invariant (duplicate
// completion, done exceeding quota). Fatal: it means the concurrency
// accounting can no longer be trusted.
var ErrConsistency = errors.New("internal consistency error")

// StatusMismatchError is a completed request whose status code did
// not match the required one. Counted as a failure; the timing sample
// is still recorded because the transfer finished.
type StatusMismatchError struct {
	Want int
	Got  int
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("expected status %d, got %d", e.Want, e.Got)
}

// TransportError is a request the transport could not complete
// (connection refused, timeout). No timing sample exists: nothing
// was measured.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ContentMismatchError is a response body that did not parse as the
// expected format. Raw is retained for diagnostics.
type ContentMismatchError struct {
	Reason string
	Raw    []byte
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("content mismatch: %s", e.Reason)
}
