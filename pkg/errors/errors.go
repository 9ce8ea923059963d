package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Connection errors
	ErrConnectionFailed  = errors.New("connection failed")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInvalidPort       = errors.New("invalid port")
	ErrInvalidHost       = errors.New("invalid host")

	// Call errors
	ErrRemoteCall  = errors.New("remote call failed")
	ErrCallTimeout = errors.New("remote call timed out")

	// Protocol errors
	ErrProtocolViolation = errors.New("protocol violation")
	ErrEmptyResponse     = errors.New("empty response")
	ErrMessageTooLarge   = errors.New("message exceeds maximum size")
	ErrNotSorted         = errors.New("response prefix is not sorted")
	ErrMalformedMessage  = errors.New("malformed message")
)

// ConnectionError is returned when the transport to the sort service cannot
// be established or maintained.
type ConnectionError struct {
	Address string
	Port    int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s:%d): %v", e.Address, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RPCError is returned when a call reached the transport but the remote
// reported a failure or the call timed out.
type RPCError struct {
	Method string
	Code   string
	Err    error
}

func (e *RPCError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rpc %s failed (%s): %v", e.Method, e.Code, e.Err)
	}
	return fmt.Sprintf("rpc %s failed: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when a response violates the expected message
// contract, e.g. a sort response without a sentinel element.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsConnection reports whether err is or wraps a *ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsRPC reports whether err is or wraps a *RPCError.
func IsRPC(err error) bool {
	var target *RPCError
	return errors.As(err, &target)
}

// IsProtocol reports whether err is or wraps a *ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}
