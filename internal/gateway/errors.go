package gateway

import (
	"errors"
	"fmt"
)

// TransientError marks a retryable failure: timeout, connection error or a
// 5xx response. The reconciliation engine keeps the pending write and retries
// on the next trigger.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a non-retryable failure: any 4xx response (malformed
// request, auth rejected). The corresponding pending write is dropped with a
// logged warning, never retried.
type FatalError struct {
	Err    error
	Status int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal (status %d): %v", e.Status, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err classifies as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err classifies as non-retryable.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
