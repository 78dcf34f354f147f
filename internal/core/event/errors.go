package event

import "errors"

// ErrListenerPanic wraps a value recovered from a panicking handler.
var ErrListenerPanic = errors.New("event listener panicked")
