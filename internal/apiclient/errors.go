package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidInput is returned before dispatch when the caller supplied a
// request that cannot be sent (empty address, unsupported method, body that
// is not JSON). Such requests never reach the loading registry.
var ErrInvalidInput = errors.New("invalid request")

// ErrResponseTooLarge is returned when a response body is larger than the
// client buffers. The body is discarded rather than truncated.
var ErrResponseTooLarge = errors.New("response too large")

// StatusError is returned when the server answered with a non-2xx status.
type StatusError struct {
	Status int
	// Message is the server's "error" field when the body carried one.
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func newStatusError(status int, body []byte) *StatusError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error
	}
	return &StatusError{Status: status, Message: msg, Body: body}
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
