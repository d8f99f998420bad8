package providers

import "fmt"

// Error represents a failure reported by a generation provider. It carries
// the provider name, the HTTP status code (0 when the request never got a
// response), and the underlying cause if any.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(provider string, status int, msg string, cause error) *Error {
	return &Error{Provider: provider, StatusCode: status, Message: msg, Cause: cause}
}
