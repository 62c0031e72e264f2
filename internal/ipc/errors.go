package ipc

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointNotFound indicates the socket path does not exist.
	ErrEndpointNotFound = errors.New("ipc: endpoint not found")

	// ErrConnectFailed indicates the transport-level dial failed.
	ErrConnectFailed = errors.New("ipc: connect failed")

	// ErrNotConnected is returned by Start when there is no live connection.
	ErrNotConnected = errors.New("ipc: not connected")

	// ErrAlreadyStarted is returned by Start when the receive loop is running.
	ErrAlreadyStarted = errors.New("ipc: receive loop already started")
)

// EndpointError wraps a connect failure with the endpoint it concerned.
// errors.Is matches both Kind and the underlying cause.
type EndpointError struct {
	Endpoint string
	Kind     error
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
