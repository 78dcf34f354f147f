package graph

import "fmt"

// Document is the portable form of a graph. Every field of every node and
// connection is listed explicitly so that a round trip through any codec
// is lossless.
type Document struct {
	Nodes       []Node       `json:"nodes" msgpack:"nodes" yaml:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" msgpack:"connections" yaml:"connections" validate:"dive"`
}

// Validate checks the structural rules a document must satisfy before the
// Store will swap it in: non-empty unique ids, connections whose endpoints
// are present and whose port references are set, no self-loops and no
// repeated connection tuples. These are exactly the rules the Store's own
// mutations keep, so any document it exports passes. Port capacity and
// port ids are not re-checked, since a saved graph may hold connections
// that predate a shrunk limit or a renamed port.
func (d *Document) Validate() error {
	if d == nil {
		return ErrNilDocument
	}
	nodes := make(map[string]struct{}, len(d.Nodes))
	for i := range d.Nodes {
		id := d.Nodes[i].ID
		if id == "" {
			return fmt.Errorf("%w: nodes[%d]", ErrInvalidNodeID, i)
		}
		if _, dup := nodes[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
		}
		nodes[id] = struct{}{}
	}
	conns := make(map[string]struct{}, len(d.Connections))
	tuples := make(map[connKey]struct{}, len(d.Connections))
	for i := range d.Connections {
		c := &d.Connections[i]
		if c.ID == "" {
			return fmt.Errorf("%w: connections[%d]", ErrInvalidConnectionID, i)
		}
		if _, dup := conns[c.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateConnectionID, c.ID)
		}
		conns[c.ID] = struct{}{}
		if _, ok := nodes[c.SourceNodeID]; !ok {
			return fmt.Errorf("%w: %s source %q", ErrDanglingConnection, c.ID, c.SourceNodeID)
		}
		if _, ok := nodes[c.TargetNodeID]; !ok {
			return fmt.Errorf("%w: %s target %q", ErrDanglingConnection, c.ID, c.TargetNodeID)
		}
		if c.SourceOutputID == "" || c.TargetInputID == "" {
			return fmt.Errorf("%w: %s", ErrMissingPortRef, c.ID)
		}
		if c.SourceNodeID == c.TargetNodeID {
			return fmt.Errorf("%w: %s", ErrSelfLoop, c.ID)
		}
		if _, dup := tuples[c.key()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateConnection, c.ID)
		}
		tuples[c.key()] = struct{}{}
	}
	return nil
}

// NodeByID returns the document's node record with id, if any.
func (d *Document) NodeByID(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}
