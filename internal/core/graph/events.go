package graph

import "github.com/flowly/flowly/internal/core/event"

// Event names published by the Store.
const (
	EventNodeAdded              = "nodeAdded"
	EventNodeRemoved            = "nodeRemoved"
	EventNodeUpdated            = "nodeUpdated"
	EventNodeDuplicated         = "nodeDuplicated"
	EventConnectionAdded        = "connectionAdded"
	EventConnectionRemoved      = "connectionRemoved"
	EventConnectionLabelChanged = "connectionLabelChanged"
	EventConnectionLimitReached = "connectionLimitReached"
	EventFlowLoaded             = "flowLoaded"
)

// PortDirection tells which side of a node a port sits on.
type PortDirection string

const (
	DirectionInput  PortDirection = "input"
	DirectionOutput PortDirection = "output"
)

// LimitReached describes a port that refused a connection.
type LimitReached struct {
	NodeID    string        `json:"nodeId"`
	Direction PortDirection `json:"direction"`
	Port      Port          `json:"port"`
	Count     int           `json:"count"`
}

// Event is the single payload type carried by the Store's bus. Which fields
// are set depends on Name:
//
//	node events:        Node
//	nodeDuplicated:     Node (the copy) and Original
//	connection events:  Connection, Source, Target
//	limit reached:      Connection (the rejected request), Limit
//	flowLoaded:         Nodes, Connections counts
type Event struct {
	Name        string        `json:"event"`
	Node        *NodeSnapshot `json:"node,omitempty"`
	Original    *NodeSnapshot `json:"original,omitempty"`
	Connection  *Connection   `json:"connection,omitempty"`
	Source      *NodeSnapshot `json:"sourceNode,omitempty"`
	Target      *NodeSnapshot `json:"targetNode,omitempty"`
	Limit       *LimitReached `json:"limit,omitempty"`
	Nodes       int           `json:"nodes,omitempty"`
	Connections int           `json:"connections,omitempty"`
}

// Bus is the notification channel type the Store publishes on.
type Bus = event.Bus[Event]

// Handler is a Bus subscriber.
type Handler = event.Handler[Event]
