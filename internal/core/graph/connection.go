package graph

// Connection is a directed link from one node's output port to another
// node's input port. It references its endpoints and owns nothing.
type Connection struct {
	ID               string `json:"id" msgpack:"id" yaml:"id" validate:"required"`
	SourceNodeID     string `json:"sourceNodeId" msgpack:"sourceNodeId" yaml:"sourceNodeId" validate:"required"`
	SourceOutputID   string `json:"sourceOutputId" msgpack:"sourceOutputId" yaml:"sourceOutputId" validate:"required"`
	TargetNodeID     string `json:"targetNodeId" msgpack:"targetNodeId" yaml:"targetNodeId" validate:"required"`
	TargetInputID    string `json:"targetInputId" msgpack:"targetInputId" yaml:"targetInputId" validate:"required"`
	LabelHTMLContent string `json:"labelHtmlContent" msgpack:"labelHtmlContent" yaml:"labelHtmlContent"`
}

// connKey is the identity tuple two connections may not share.
type connKey struct {
	sourceNode, sourceOutput, targetNode, targetInput string
}

func (c *Connection) key() connKey {
	return connKey{c.SourceNodeID, c.SourceOutputID, c.TargetNodeID, c.TargetInputID}
}

// Touches reports whether nodeID is either endpoint.
func (c *Connection) Touches(nodeID string) bool {
	return c.SourceNodeID == nodeID || c.TargetNodeID == nodeID
}

// Other returns the endpoint opposite nodeID.
func (c *Connection) Other(nodeID string) string {
	if c.SourceNodeID == nodeID {
		return c.TargetNodeID
	}
	return c.SourceNodeID
}
