// Package errors holds transport-level sentinel errors shared by the store
// adapters and the buses.
package errors

import "errors"

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
)
