package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate marks an item that already exists as an article.
	ErrDuplicate = errors.New("duplicate item")
	// ErrQuotaExceeded marks a feed whose daily publish budget is spent.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrStorage wraps failures of the backing storage; they halt the current operation.
	ErrStorage = errors.New("storage unavailable")
	// ErrAlreadyQueued is returned by queue backends when a non-terminal item exists for the article.
	ErrAlreadyQueued = errors.New("article already queued")
	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)

// StorageError wraps err so that errors.Is(err, ErrStorage) holds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// FetchError reports an unreachable or malformed feed.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports one malformed feed item.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid item %s: %s", e.Field, e.Reason)
}

// ErrorClass is the operator-facing classification of an indexing failure.
type ErrorClass string

const (
	ErrorAuthentication ErrorClass = "authentication"
	ErrorAuthorization  ErrorClass = "authorization"
	ErrorRateLimit      ErrorClass = "rateLimit"
	ErrorInvalidURL     ErrorClass = "invalidUrl"
	ErrorPrivateKey     ErrorClass = "privateKeyError"
	ErrorUnknown        ErrorClass = "unknown"
)

// ClassFromStatus maps an indexing provider HTTP status to an error class.
func ClassFromStatus(status int) ErrorClass {
	switch status {
	case 400:
		return ErrorInvalidURL
	case 401:
		return ErrorAuthentication
	case 403:
		return ErrorAuthorization
	case 429:
		return ErrorRateLimit
	}
	return ErrorUnknown
}

// NotifierError is a classified failure of the indexing notifier.
type NotifierError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
}

func (e *NotifierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("indexing %s (%d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("indexing %s: %s", e.Class, e.Message)
}

// ClassOf extracts the error class from err, defaulting to unknown.
func ClassOf(err error) ErrorClass {
	var nerr *NotifierError
	if errors.As(err, &nerr) {
		return nerr.Class
	}
	return ErrorUnknown
}
