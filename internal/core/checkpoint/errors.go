package checkpoint

import "errors"

var (
	ErrInvalidCheckpointID = errors.New("invalid checkpoint ID")
	ErrInvalidFlowID       = errors.New("invalid flow ID")
	ErrNilCheckpoint       = errors.New("checkpoint is nil")
	ErrCheckpointNotFound  = errors.New("checkpoint not found")

	ErrInvalidLimit     = errors.New("limit cannot be negative")
	ErrInvalidOffset    = errors.New("offset cannot be negative")
	ErrInvalidTimeRange = errors.New("invalid time range: since is after before")
)
