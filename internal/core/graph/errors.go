// Package graph defines domain-specific errors
package graph

import "errors"

// Rejections returned by Store mutations. They are ordinary validation
// outcomes: callers check them with errors.Is and decide how to surface them.
var (
	// Lock errors
	ErrGraphReadOnly = errors.New("graph is read-only")
	ErrNodeReadOnly  = errors.New("node is read-only")

	// Lookup errors
	ErrNodeNotFound       = errors.New("node not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSourceNodeNotFound = errors.New("source node not found")
	ErrTargetNodeNotFound = errors.New("target node not found")

	// Connection errors
	ErrOutputPortMismatch  = errors.New("source node has no matching output port")
	ErrInputPortMismatch   = errors.New("target node has no matching input port")
	ErrOutputLimitReached  = errors.New("output port connection limit reached")
	ErrInputLimitReached   = errors.New("input port connection limit reached")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrSelfLoop            = errors.New("self-loops are not allowed")

	// Document errors
	ErrNilDocument           = errors.New("document cannot be nil")
	ErrInvalidNodeID         = errors.New("invalid node ID")
	ErrDuplicateNode         = errors.New("duplicate node ID")
	ErrInvalidConnectionID   = errors.New("invalid connection ID")
	ErrDuplicateConnectionID = errors.New("duplicate connection ID")
	ErrDanglingConnection    = errors.New("connection references a missing node")
	ErrMissingPortRef        = errors.New("connection is missing a port reference")
)
