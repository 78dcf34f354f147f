package graph

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/core/event"
	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
)

// Operation names used in diagnostics and rejection metrics.
const (
	OpAddNode               = "addNode"
	OpRemoveNode            = "removeNode"
	OpUpdateNodePosition    = "updateNodePosition"
	OpUpdateNode            = "updateNode"
	OpSetNodeReadOnly       = "setNodeReadOnly"
	OpDuplicateNode         = "duplicateNode"
	OpAddConnection         = "addConnection"
	OpRemoveConnection      = "removeConnection"
	OpUpdateConnectionLabel = "updateConnectionLabel"
)

// DefaultPasteOffset is the x and y shift hosts apply when duplicating a
// node without an explicit offset.
const DefaultPasteOffset = 20.0

// Store is the single owner of a flow graph's nodes and connections. It
// validates every mutation, applies it, and publishes one event describing
// the change.
//
// A Store is not safe for concurrent use. Hosts that share one between
// goroutines must serialize every call, including reads.
type Store struct {
	nodes     map[string]*Node
	nodeOrder []string
	conns     map[string]*Connection
	connOrder []string

	nextNodeID int
	nextConnID int
	readOnly   bool

	bus    *Bus
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for rejected mutations.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBus publishes on an existing bus instead of a private one.
func WithBus(bus *Bus) Option {
	return func(s *Store) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithReadOnly starts the store globally read-only.
func WithReadOnly(readOnly bool) Option {
	return func(s *Store) {
		s.readOnly = readOnly
	}
}

// NewStore creates an empty graph.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:      make(map[string]*Node),
		conns:      make(map[string]*Connection),
		nextNodeID: 1,
		nextConnID: 1,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = event.NewBus[Event](event.WithLogger(s.logger))
	}
	return s
}

// Events returns the bus the store publishes on.
func (s *Store) Events() *Bus { return s.bus }

// SetGlobalReadOnly toggles the store-wide lock. While set, every mutation
// is rejected with ErrGraphReadOnly. LoadDocument is not affected.
func (s *Store) SetGlobalReadOnly(readOnly bool) { s.readOnly = readOnly }

// GlobalReadOnly reports the store-wide lock.
func (s *Store) GlobalReadOnly() bool { return s.readOnly }

// IsLocked reports whether the node with id refuses mutation, either
// because the whole graph is read-only or the node itself is.
func (s *Store) IsLocked(id string) bool {
	return s.lockErr(s.nodes[id]) != nil
}

// lockErr is the single locking rule: global read-only first, then the
// node's own flag.
func (s *Store) lockErr(n *Node) error {
	if s.readOnly {
		return ErrGraphReadOnly
	}
	if n != nil && n.ReadOnly {
		return ErrNodeReadOnly
	}
	return nil
}

// GenerateNodeID returns preferred when it is non-empty and free, otherwise
// the next free "node-<n>" value.
func (s *Store) GenerateNodeID(preferred string) string {
	if preferred != "" {
		if _, taken := s.nodes[preferred]; !taken {
			return preferred
		}
	}
	for {
		id := fmt.Sprintf("node-%d", s.nextNodeID)
		s.nextNodeID++
		if _, taken := s.nodes[id]; !taken {
			return id
		}
	}
}

func (s *Store) generateConnectionID() string {
	for {
		id := fmt.Sprintf("conn-%d", s.nextConnID)
		s.nextConnID++
		if _, taken := s.conns[id]; !taken {
			return id
		}
	}
}

// AddNode creates a node from cfg and returns a copy of it.
func (s *Store) AddNode(cfg NodeConfig) (*Node, error) {
	if s.readOnly {
		return nil, s.reject(OpAddNode, ErrGraphReadOnly, cfg.ID)
	}
	n := newNode(s.GenerateNodeID(cfg.ID), cfg)
	s.insertNode(n)
	s.publish(Event{Name: EventNodeAdded, Node: s.snapshot(n)})
	return n.clone(), nil
}

// DuplicateNode copies a node's data, ports and presentation fields to a
// new node offset by (dx, dy). Connections and the read-only flag are not
// copied. It publishes nodeAdded followed by nodeDuplicated.
func (s *Store) DuplicateNode(id string, dx, dy float64) (*Node, error) {
	if s.readOnly {
		return nil, s.reject(OpDuplicateNode, ErrGraphReadOnly, id)
	}
	orig, ok := s.nodes[id]
	if !ok {
		return nil, s.reject(OpDuplicateNode, ErrNodeNotFound, id)
	}
	showHeader := orig.ShowHeader
	cfg := NodeConfig{
		X:           orig.X + dx,
		Y:           orig.Y + dy,
		Data:        orig.Data,
		HTMLContent: orig.HTMLContent,
		ShowHeader:  &showHeader,
		Theme:       orig.Theme,
	}
	if orig.Input != nil {
		cfg.Input = &PortConfig{ID: orig.Input.ID, Name: orig.Input.Name, Limit: orig.Input.Limit}
	}
	if orig.Output != nil {
		cfg.Output = &PortConfig{ID: orig.Output.ID, Name: orig.Output.Name, Limit: orig.Output.Limit}
	}
	n := newNode(s.GenerateNodeID(""), cfg)
	s.insertNode(n)
	snap := s.snapshot(n)
	s.publish(Event{Name: EventNodeAdded, Node: snap})
	s.publish(Event{Name: EventNodeDuplicated, Node: snap, Original: s.snapshot(orig)})
	return n.clone(), nil
}

// RemoveNode deletes a node and every connection that touches it. Each
// cascaded connection is removed, and announced, in insertion order before
// the final nodeRemoved event.
func (s *Store) RemoveNode(id string) error {
	n, err := s.mutableNode(OpRemoveNode, id)
	if err != nil {
		return err
	}
	before := s.snapshot(n)
	s.deleteNode(id)

	for _, c := range s.connectionsTouching(id) {
		src := s.endpointSnapshot(c.SourceNodeID, before)
		tgt := s.endpointSnapshot(c.TargetNodeID, before)
		s.deleteConnection(c.ID)
		s.publish(Event{Name: EventConnectionRemoved, Connection: c, Source: src, Target: tgt})
	}

	s.publish(Event{Name: EventNodeRemoved, Node: before})
	return nil
}

// UpdateNodePosition moves a node. Positions never affect connections, so
// nothing is revalidated.
func (s *Store) UpdateNodePosition(id string, x, y float64) error {
	n, err := s.mutableNode(OpUpdateNodePosition, id)
	if err != nil {
		return err
	}
	n.X, n.Y = x, y
	s.publish(Event{Name: EventNodeUpdated, Node: s.snapshot(n)})
	return nil
}

// UpdateNode merges patch into a node and returns a copy of the result.
// Shrinking a port limit below its current usage leaves existing
// connections in place.
func (s *Store) UpdateNode(id string, patch NodePatch) (*Node, error) {
	n, err := s.mutableNode(OpUpdateNode, id)
	if err != nil {
		return nil, err
	}
	n.apply(patch)
	s.publish(Event{Name: EventNodeUpdated, Node: s.snapshot(n)})
	return n.clone(), nil
}

// SetNodeReadOnly sets a node's own lock. Only the global lock blocks it,
// so a locked node can always be unlocked.
func (s *Store) SetNodeReadOnly(id string, readOnly bool) error {
	if s.readOnly {
		return s.reject(OpSetNodeReadOnly, ErrGraphReadOnly, id)
	}
	n, ok := s.nodes[id]
	if !ok {
		return s.reject(OpSetNodeReadOnly, ErrNodeNotFound, id)
	}
	if n.ReadOnly == readOnly {
		return nil
	}
	n.ReadOnly = readOnly
	s.publish(Event{Name: EventNodeUpdated, Node: s.snapshot(n)})
	return nil
}

// AddConnection links sourceOutputID on sourceNodeID to targetInputID on
// targetNodeID. Port references must follow PortRef. Rejections are
// checked in a fixed order: locks, missing endpoints, port identity, port
// capacity (which also publishes connectionLimitReached), duplicates, and
// self-loops.
func (s *Store) AddConnection(sourceNodeID, sourceOutputID, targetNodeID, targetInputID, label string) (*Connection, error) {
	const op = OpAddConnection
	detail := sourceOutputID + "->" + targetInputID
	if s.readOnly {
		return nil, s.reject(op, ErrGraphReadOnly, detail)
	}
	src, srcOK := s.nodes[sourceNodeID]
	tgt, tgtOK := s.nodes[targetNodeID]
	if srcOK && src.ReadOnly {
		return nil, s.reject(op, ErrNodeReadOnly, sourceNodeID)
	}
	if tgtOK && tgt.ReadOnly {
		return nil, s.reject(op, ErrNodeReadOnly, targetNodeID)
	}
	if !srcOK {
		return nil, s.reject(op, ErrSourceNodeNotFound, sourceNodeID)
	}
	if !tgtOK {
		return nil, s.reject(op, ErrTargetNodeNotFound, targetNodeID)
	}
	if !src.Output.matches(sourceNodeID, sourceOutputID) {
		return nil, s.reject(op, ErrOutputPortMismatch, sourceOutputID)
	}
	if !tgt.Input.matches(targetNodeID, targetInputID) {
		return nil, s.reject(op, ErrInputPortMismatch, targetInputID)
	}

	req := &Connection{
		SourceNodeID:     sourceNodeID,
		SourceOutputID:   sourceOutputID,
		TargetNodeID:     targetNodeID,
		TargetInputID:    targetInputID,
		LabelHTMLContent: label,
	}
	if used := s.countConnections(func(c *Connection) bool {
		return c.SourceNodeID == sourceNodeID && c.SourceOutputID == sourceOutputID
	}); !src.Output.Limit.Allows(used) {
		s.limitReached(req, src, DirectionOutput, used)
		return nil, s.reject(op, ErrOutputLimitReached, sourceOutputID)
	}
	if used := s.countConnections(func(c *Connection) bool {
		return c.TargetNodeID == targetNodeID && c.TargetInputID == targetInputID
	}); !tgt.Input.Limit.Allows(used) {
		s.limitReached(req, tgt, DirectionInput, used)
		return nil, s.reject(op, ErrInputLimitReached, targetInputID)
	}
	if s.countConnections(func(c *Connection) bool { return c.key() == req.key() }) > 0 {
		return nil, s.reject(op, ErrDuplicateConnection, detail)
	}
	if sourceNodeID == targetNodeID {
		return nil, s.reject(op, ErrSelfLoop, sourceNodeID)
	}

	req.ID = s.generateConnectionID()
	s.insertConnection(req)
	s.publish(Event{
		Name:       EventConnectionAdded,
		Connection: copyConnection(req),
		Source:     s.snapshot(src),
		Target:     s.snapshot(tgt),
	})
	return copyConnection(req), nil
}

// RemoveConnection deletes one connection. A read-only endpoint does not
// prevent it; only the global lock does.
func (s *Store) RemoveConnection(id string) error {
	if s.readOnly {
		return s.reject(OpRemoveConnection, ErrGraphReadOnly, id)
	}
	c, ok := s.conns[id]
	if !ok {
		return s.reject(OpRemoveConnection, ErrConnectionNotFound, id)
	}
	src := s.snapshotByID(c.SourceNodeID)
	tgt := s.snapshotByID(c.TargetNodeID)
	s.deleteConnection(id)
	s.publish(Event{Name: EventConnectionRemoved, Connection: copyConnection(c), Source: src, Target: tgt})
	return nil
}

// UpdateConnectionLabel replaces a connection's label payload.
func (s *Store) UpdateConnectionLabel(id, label string) error {
	if s.readOnly {
		return s.reject(OpUpdateConnectionLabel, ErrGraphReadOnly, id)
	}
	c, ok := s.conns[id]
	if !ok {
		return s.reject(OpUpdateConnectionLabel, ErrConnectionNotFound, id)
	}
	c.LabelHTMLContent = label
	s.publish(Event{
		Name:       EventConnectionLabelChanged,
		Connection: copyConnection(c),
		Source:     s.snapshotByID(c.SourceNodeID),
		Target:     s.snapshotByID(c.TargetNodeID),
	})
	return nil
}

// LoadDocument replaces the whole graph with doc. The document is validated
// before anything is touched, so a failed load keeps the previous graph.
// Ports are re-normalized on the way in. The global lock does not apply.
func (s *Store) LoadDocument(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	nodes := make(map[string]*Node, len(doc.Nodes))
	nodeOrder := make([]string, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		n := loadNode(&doc.Nodes[i])
		nodes[n.ID] = n
		nodeOrder = append(nodeOrder, n.ID)
	}
	conns := make(map[string]*Connection, len(doc.Connections))
	connOrder := make([]string, 0, len(doc.Connections))
	for i := range doc.Connections {
		c := copyConnection(&doc.Connections[i])
		conns[c.ID] = c
		connOrder = append(connOrder, c.ID)
	}

	s.nodes, s.nodeOrder = nodes, nodeOrder
	s.conns, s.connOrder = conns, connOrder
	s.publish(Event{Name: EventFlowLoaded, Nodes: len(nodeOrder), Connections: len(connOrder)})
	return nil
}

// loadNode rebuilds a stored node from a document record.
func loadNode(rec *Node) *Node {
	n := rec.clone()
	if rec.Input != nil {
		n.Input = newPort(&PortConfig{ID: rec.Input.ID, Name: rec.Input.Name, Limit: rec.Input.Limit}, DefaultInputID, DefaultInputName)
	}
	if rec.Output != nil {
		n.Output = newPort(&PortConfig{ID: rec.Output.ID, Name: rec.Output.Name, Limit: rec.Output.Limit}, DefaultOutputID, DefaultOutputName)
	}
	return n
}

// mutableNode resolves id for an operation that changes or deletes the
// node itself.
func (s *Store) mutableNode(op, id string) (*Node, error) {
	if s.readOnly {
		return nil, s.reject(op, ErrGraphReadOnly, id)
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, s.reject(op, ErrNodeNotFound, id)
	}
	if err := s.lockErr(n); err != nil {
		return nil, s.reject(op, err, id)
	}
	return n, nil
}

// reject records a refused mutation and returns the wrapped sentinel.
func (s *Store) reject(op string, sentinel error, detail string) error {
	imetrics.MutationRejected(op, sentinel.Error())
	s.logger.Warn("mutation rejected",
		zap.String("operation", op),
		zap.String("reason", sentinel.Error()),
		zap.String("subject", detail),
	)
	return fmt.Errorf("%s: %w: %s", op, sentinel, detail)
}

func (s *Store) limitReached(req *Connection, n *Node, dir PortDirection, used int) {
	port := n.Output
	if dir == DirectionInput {
		port = n.Input
	}
	s.publish(Event{
		Name:       EventConnectionLimitReached,
		Connection: copyConnection(req),
		Limit:      &LimitReached{NodeID: n.ID, Direction: dir, Port: *port, Count: used},
	})
}

func (s *Store) publish(e Event) {
	s.bus.Publish(e.Name, e)
}

func (s *Store) insertNode(n *Node) {
	s.nodes[n.ID] = n
	s.nodeOrder = append(s.nodeOrder, n.ID)
}

func (s *Store) deleteNode(id string) {
	delete(s.nodes, id)
	s.nodeOrder = slices.DeleteFunc(s.nodeOrder, func(v string) bool { return v == id })
}

func (s *Store) insertConnection(c *Connection) {
	s.conns[c.ID] = c
	s.connOrder = append(s.connOrder, c.ID)
}

func (s *Store) deleteConnection(id string) {
	delete(s.conns, id)
	s.connOrder = slices.DeleteFunc(s.connOrder, func(v string) bool { return v == id })
}

func copyConnection(c *Connection) *Connection {
	cc := *c
	return &cc
}
