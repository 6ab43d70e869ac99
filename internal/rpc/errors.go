package rpc

import (
	"errors"
	"fmt"

	"github.com/bhandras/devpanel/internal/protocol/wire"
)

var (
	// ErrUnknownKind is returned for request kinds outside the closed set.
	ErrUnknownKind = errors.New("rpc: unknown request kind")
	// ErrClosed is returned for calls made after Close, and to calls still
	// pending when Close runs.
	ErrClosed = errors.New("rpc: dispatcher closed")
)

// ValidationError reports request parameters rejected before sending.
type ValidationError struct {
	Kind   wire.Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: invalid params: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: invalid params: %s %s", e.Kind, e.Field, e.Reason)
}

// RemoteError is a failure reported by the runtime in its response.
type RemoteError struct {
	Kind    wire.Kind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Message)
}
