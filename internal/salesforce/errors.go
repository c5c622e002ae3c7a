package salesforce

import (
	"errors"
	"fmt"
)

var ErrAuthentication = errors.New("remote authentication failed")

// RemoteQueryError is a request rejected by the remote service, such as a malformed
// query or an unknown field.
type RemoteQueryError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteQueryError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote query rejected (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote query rejected (HTTP %d, %s): %s", e.StatusCode, e.Code, e.Message)
}

// TransientError is a network failure or a server side error. Callers may retry on a
// later run.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient remote error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient remote error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
