package useraction

import (
	"errors"
)

var (
	// ErrDispatchFailed is returned when an action was stored but its request
	// could not be published. The action is still returned to the caller.
	ErrDispatchFailed = errors.New("failed to dispatch action")

	// ErrInvalidArguments is returned for malformed dispatch input.
	ErrInvalidArguments = errors.New("invalid action arguments")

	// ErrMissingResource is reported when a stored action has no resource.
	ErrMissingResource = errors.New("resource id is missing")

	// ErrUnexpectedEvent is reported when the handler receives a foreign event.
	ErrUnexpectedEvent = errors.New("unexpected event")

	// ErrPanic wraps a value recovered from a panicking processor or store call.
	ErrPanic = errors.New("recovered panic")
)
