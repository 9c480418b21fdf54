package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrShuttingDown is returned by ExecuteBatch and SubmitBatch once the
	// executor's shutdown gate has been closed. In-flight futures started
	// before the gate closed are unaffected.
	ErrShuttingDown = errors.New("executor: shutting down, batch rejected")
	// ErrUnknownJob is returned by Await for a job id that has already
	// completed and been reaped, or never existed.
	ErrUnknownJob = errors.New("executor: unknown job id")
)

// NoRetry marks an error as non-retryable.
//
// Tasks can wrap validation errors or other permanent failures with NoRetry
// so the executor won't waste time retrying.
//
// Example:
//
//	return executor.NoRetry(fmt.Errorf("bad input: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
