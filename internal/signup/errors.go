package signup

import (
	"fmt"
	"time"
)

// ValidationError means the submitted address is missing or malformed.
type ValidationError struct {
	Email string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid email address %q", e.Email)
}

// RateLimitError means the source address used up its attempts for the
// current window. The rejected request is not recorded.
type RateLimitError struct {
	SourceAddress string
	Attempts      int
	Window        time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf(
		"rate limit exceeded for %s: %d attempts in the last %s",
		e.SourceAddress,
		e.Attempts,
		e.Window,
	)
}

// StorageError wraps any datastore failure. Its detail is for logs only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NotificationError is logged and never returned from Subscribe.
type NotificationError struct {
	Email string
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("failed to send notification for %s: %v", e.Email, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
