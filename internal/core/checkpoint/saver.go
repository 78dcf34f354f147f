package checkpoint

import (
	"context"
	"time"
)

// Saver persists checkpoints.
type Saver interface {
	Save(ctx context.Context, checkpoint *Checkpoint) error
	Load(ctx context.Context, id string) (*Checkpoint, error)
	// List returns matching checkpoints, newest first.
	List(ctx context.Context, filter Filter) ([]*Checkpoint, error)
	Delete(ctx context.Context, id string) error
}

// Filter narrows a List call. Zero fields do not filter.
type Filter struct {
	FlowID string     `json:"flow_id,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Before *time.Time `json:"before,omitempty"`
	// Source keeps checkpoints whose Metadata.Source equals it.
	Source string `json:"source,omitempty"`
}

// Validate ensures filter parameters are valid.
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.Offset < 0 {
		return ErrInvalidOffset
	}
	if f.Since != nil && f.Before != nil && f.Since.After(*f.Before) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Matches reports whether cp passes the non-paging parts of the filter.
// Since is exclusive and Before is exclusive.
func (f *Filter) Matches(cp *Checkpoint) bool {
	if f.FlowID != "" && cp.FlowID != f.FlowID {
		return false
	}
	if f.Since != nil && !cp.Timestamp.After(*f.Since) {
		return false
	}
	if f.Before != nil && !cp.Timestamp.Before(*f.Before) {
		return false
	}
	if f.Source != "" && cp.Metadata.Source != f.Source {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already ordered slice.
func Page[T any](items []T, f Filter) []T {
	if f.Offset >= len(items) {
		return []T{}
	}
	items = items[f.Offset:]
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}
