package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidCommandArgument  = errors.New("invalid command argument")
	ErrNotConnected            = errors.New("not connected to robot")
	ErrConnection              = errors.New("robot connection error")
	ErrPeerUnresolvedReference = errors.New("unresolved waypoint reference")
	ErrLookup                  = errors.New("waypoint lookup failed")
)

// ErrorKind classifies a failed CommandOutcome
type ErrorKind string

const (
	ErrorKindNone                    ErrorKind = ""
	ErrorKindInvalidCommandArgument  ErrorKind = "invalid_command_argument"
	ErrorKindNotConnected            ErrorKind = "not_connected"
	ErrorKindConnection              ErrorKind = "connection_error"
	ErrorKindPeerUnresolvedReference ErrorKind = "peer_unresolved_reference"
	ErrorKindLookup                  ErrorKind = "lookup_failed"
	ErrorKindCancelled               ErrorKind = "cancelled"
)

// KindOf returns the ErrorKind for an error returned by the Gateway
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrInvalidCommandArgument):
		return ErrorKindInvalidCommandArgument
	case errors.Is(err, ErrPeerUnresolvedReference):
		return ErrorKindPeerUnresolvedReference
	case errors.Is(err, ErrNotConnected):
		return ErrorKindNotConnected
	case errors.Is(err, ErrLookup):
		return ErrorKindLookup
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCancelled
	}
	return ErrorKindConnection
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommandArgument, fmt.Sprintf(format, args...))
}
