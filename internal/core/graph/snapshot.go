package graph

// Connections groups a node's links by direction.
type Connections struct {
	Incoming []Connection `json:"incoming"`
	Outgoing []Connection `json:"outgoing"`
}

// NodeSnapshot is a detached copy of a node enriched with the connections
// that touched it when the snapshot was taken.
type NodeSnapshot struct {
	Node
	Connections
}
