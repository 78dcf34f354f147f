// Package graph provides the flow graph entities and the Store that owns them.
package graph

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Default port identities applied when a descriptor leaves them blank.
const (
	DefaultInputID    = "input"
	DefaultInputName  = "Input"
	DefaultOutputID   = "output"
	DefaultOutputName = "Output"
)

// Limit caps how many connections may use a port. The zero value is
// Unbounded.
type Limit int

// Unbounded means a port accepts any number of connections.
const Unbounded Limit = 0

// ParseLimit normalizes loosely typed input the way descriptors arrive from
// scripts and documents: integers and numeric strings are truncated toward
// zero; anything missing, unparseable or not positive is Unbounded.
func ParseLimit(v any) Limit {
	switch x := v.(type) {
	case nil:
		return Unbounded
	case Limit:
		return positive(int64(x))
	case int:
		return positive(int64(x))
	case int64:
		return positive(x)
	case int32:
		return positive(int64(x))
	case uint:
		return positive(int64(x))
	case uint64:
		if x > math.MaxInt32 {
			return Unbounded
		}
		return positive(int64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Unbounded
		}
		return positive(int64(x))
	case float32:
		return ParseLimit(float64(x))
	case json.Number:
		return ParseLimit(string(x))
	case string:
		return parseLimitString(x)
	default:
		return Unbounded
	}
}

// parseLimitString accepts a leading integer prefix, e.g. "3" or "3px".
func parseLimitString(s string) Limit {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return Unbounded
	}
	return positive(n)
}

func positive(n int64) Limit {
	if n <= 0 || n > math.MaxInt32 {
		return Unbounded
	}
	return Limit(n)
}

// IsUnbounded reports whether the limit never blocks a connection.
func (l Limit) IsUnbounded() bool { return l <= 0 }

// Allows reports whether one more connection fits when count already use
// the port.
func (l Limit) Allows(count int) bool {
	return l.IsUnbounded() || count < int(l)
}

// MarshalJSON encodes Unbounded as null.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnbounded() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*l = ParseLimit(raw)
	return nil
}

// Port is a named, capacity-limited attachment point on a node.
type Port struct {
	ID    string `json:"id" msgpack:"id" yaml:"id" validate:"required"`
	Name  string `json:"name" msgpack:"name" yaml:"name"`
	Limit Limit  `json:"limit" msgpack:"limit" yaml:"limit"`
}

// PortConfig describes a port at node creation. Blank fields are
// normalized by the Store.
type PortConfig struct {
	ID    string
	Name  string
	Limit Limit
}

// PortPatch changes only the fields that are set.
type PortPatch struct {
	ID    *string
	Name  *string
	Limit *Limit
}

// PortRef composes the "<nodeId>-<portId>" reference used by connections.
func PortRef(nodeID, portID string) string {
	return nodeID + "-" + portID
}

// newPort normalizes a descriptor, or returns nil when cfg is nil.
func newPort(cfg *PortConfig, defID, defName string) *Port {
	if cfg == nil {
		return nil
	}
	p := &Port{ID: cfg.ID, Name: cfg.Name, Limit: ParseLimit(cfg.Limit)}
	if p.ID == "" {
		p.ID = defID
	}
	if p.Name == "" {
		p.Name = defName
	}
	return p
}

// mergePort applies patch over p, creating the port when p is nil.
func mergePort(p *Port, patch *PortPatch, defID, defName string) *Port {
	if patch == nil {
		return p
	}
	cfg := PortConfig{}
	if p != nil {
		cfg = PortConfig{ID: p.ID, Name: p.Name, Limit: p.Limit}
	}
	if patch.ID != nil {
		cfg.ID = *patch.ID
	}
	if patch.Name != nil {
		cfg.Name = *patch.Name
	}
	if patch.Limit != nil {
		cfg.Limit = *patch.Limit
	}
	return newPort(&cfg, defID, defName)
}

// matches reports whether ref addresses this port on node nodeID.
func (p *Port) matches(nodeID, ref string) bool {
	return p != nil && ref == PortRef(nodeID, p.ID)
}

func (p *Port) clone() *Port {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
