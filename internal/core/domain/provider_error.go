package domain

import "fmt"

// ProviderError is a failure returned by a provider API call, carrying
// enough of the HTTP response for classification. Network-level failures
// wrap the underlying error with StatusCode 0.
type ProviderError struct {
	StatusCode int
	// RetryAfter is the raw Retry-After header value: either delay-seconds
	// or an HTTP-date. Empty when the header was absent.
	RetryAfter string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError from an HTTP status.
func NewProviderError(status int, message string) *ProviderError {
	return &ProviderError{StatusCode: status, Message: message}
}
