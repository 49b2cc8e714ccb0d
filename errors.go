package cfddns

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNetwork = errors.New("network error")
	ErrHTTP    = errors.New("http error")
	ErrParse   = errors.New("parse error")
	ErrIO      = errors.New("io error")
	ErrExec    = errors.New("execution error")

	// ErrEmptyMessage is returned when a message has neither content nor a valid embed.
	ErrEmptyMessage = errors.New("cannot send an empty message (no content and no valid embed data)")
	// ErrPartialFailure is returned by RunDDNS when at least one record update failed.
	ErrPartialFailure = errors.New("one or more record updates failed")
	ErrNoZones        = errors.New("no zones configured")
)

// APIError is a failed provider call.
//
// Message holds the first message of the provider's error envelope when one was present,
// otherwise the status and raw response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return ErrHTTP
}

func newAPIError(status int, messages []string, body []byte) *APIError {
	if len(messages) > 0 && messages[0] != "" {
		return &APIError{StatusCode: status, Message: messages[0]}
	}
	return &APIError{StatusCode: status, Message: fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(string(body)))}
}
