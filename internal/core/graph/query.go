package graph

// Node returns a snapshot of the node with id.
func (s *Store) Node(id string) (*NodeSnapshot, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return s.snapshot(n), true
}

// Nodes returns snapshots of every node in insertion order. Connection
// lists are computed per call and do not follow later mutations.
func (s *Store) Nodes() []NodeSnapshot {
	out := make([]NodeSnapshot, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, *s.snapshot(s.nodes[id]))
	}
	return out
}

// Connection returns a copy of the connection with id.
func (s *Store) Connection(id string) (*Connection, bool) {
	c, ok := s.conns[id]
	if !ok {
		return nil, false
	}
	return copyConnection(c), true
}

// Connections returns copies of every connection in insertion order.
func (s *Store) Connections() []Connection {
	out := make([]Connection, 0, len(s.connOrder))
	for _, id := range s.connOrder {
		out = append(out, *s.conns[id])
	}
	return out
}

// ConnectionsOf splits the connections touching nodeID by direction. An
// unknown node yields two empty lists.
func (s *Store) ConnectionsOf(nodeID string) Connections {
	out := Connections{Incoming: []Connection{}, Outgoing: []Connection{}}
	for _, id := range s.connOrder {
		c := s.conns[id]
		if c.TargetNodeID == nodeID {
			out.Incoming = append(out.Incoming, *c)
		}
		if c.SourceNodeID == nodeID {
			out.Outgoing = append(out.Outgoing, *c)
		}
	}
	return out
}

// Neighbors returns the nodes directly connected to nodeID in either
// direction, each once, in order of first connection.
func (s *Store) Neighbors(nodeID string) []NodeSnapshot {
	seen := map[string]struct{}{nodeID: {}}
	out := []NodeSnapshot{}
	for _, id := range s.connOrder {
		c := s.conns[id]
		if !c.Touches(nodeID) {
			continue
		}
		other := c.Other(nodeID)
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		if n, ok := s.nodes[other]; ok {
			out = append(out, *s.snapshot(n))
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return len(s.nodeOrder) }

// ConnectionCount returns the number of connections.
func (s *Store) ConnectionCount() int { return len(s.connOrder) }

// ToDocument copies the graph into its portable form.
func (s *Store) ToDocument() *Document {
	doc := &Document{
		Nodes:       make([]Node, 0, len(s.nodeOrder)),
		Connections: s.Connections(),
	}
	for _, id := range s.nodeOrder {
		doc.Nodes = append(doc.Nodes, *s.nodes[id].clone())
	}
	return doc
}

func (s *Store) snapshot(n *Node) *NodeSnapshot {
	return &NodeSnapshot{Node: *n.clone(), Connections: s.ConnectionsOf(n.ID)}
}

// snapshotByID returns nil for a node that no longer exists.
func (s *Store) snapshotByID(id string) *NodeSnapshot {
	if n, ok := s.nodes[id]; ok {
		return s.snapshot(n)
	}
	return nil
}

// endpointSnapshot resolves a cascade endpoint: the node being removed is
// already gone from the store, so its pre-removal snapshot stands in.
func (s *Store) endpointSnapshot(id string, removed *NodeSnapshot) *NodeSnapshot {
	if id == removed.ID {
		return removed
	}
	return s.snapshotByID(id)
}

// connectionsTouching copies the connections with nodeID at either end.
func (s *Store) connectionsTouching(nodeID string) []*Connection {
	var out []*Connection
	for _, id := range s.connOrder {
		if c := s.conns[id]; c.Touches(nodeID) {
			out = append(out, copyConnection(c))
		}
	}
	return out
}

func (s *Store) countConnections(match func(*Connection) bool) int {
	n := 0
	for _, id := range s.connOrder {
		if match(s.conns[id]) {
			n++
		}
	}
	return n
}
