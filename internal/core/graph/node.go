package graph

// Node is a positioned entity with open data, at most one input and one
// output port, and display flags the engine stores without interpreting.
type Node struct {
	ID          string            `json:"id" msgpack:"id" yaml:"id" validate:"required,node_id"`
	X           float64           `json:"x" msgpack:"x" yaml:"x"`
	Y           float64           `json:"y" msgpack:"y" yaml:"y"`
	Data        map[string]any    `json:"data" msgpack:"data" yaml:"data"`
	Input       *Port             `json:"input" msgpack:"input" yaml:"input" validate:"omitempty"`
	Output      *Port             `json:"output" msgpack:"output" yaml:"output" validate:"omitempty"`
	HTMLContent string            `json:"htmlContent" msgpack:"htmlContent" yaml:"htmlContent"`
	ShowHeader  bool              `json:"showHeader" msgpack:"showHeader" yaml:"showHeader"`
	ReadOnly    bool              `json:"readOnly" msgpack:"readOnly" yaml:"readOnly"`
	Theme       map[string]string `json:"theme" msgpack:"theme" yaml:"theme"`
}

// NodeConfig describes a node to create. Only X and Y are required.
type NodeConfig struct {
	// ID is a preferred identifier; a taken or empty one is replaced.
	ID string
	// Name seeds data["name"] when Data has none.
	Name        string
	X, Y        float64
	Data        map[string]any
	Input       *PortConfig
	Output      *PortConfig
	HTMLContent string
	// ShowHeader defaults to true when nil.
	ShowHeader *bool
	ReadOnly   bool
	Theme      map[string]string
}

// NodePatch is a partial update: nil fields are left untouched.
type NodePatch struct {
	Name        *string
	Data        map[string]any
	Input       *PortPatch
	Output      *PortPatch
	X, Y        *float64
	HTMLContent *string
	ShowHeader  *bool
}

// Name returns data["name"] when it is a string.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	s, _ := n.Data["name"].(string)
	return s
}

// InputRef is the reference string connections use for the input port, or
// "" when the node has none.
func (n *Node) InputRef() string {
	if n.Input == nil {
		return ""
	}
	return PortRef(n.ID, n.Input.ID)
}

// OutputRef is the reference string connections use for the output port,
// or "" when the node has none.
func (n *Node) OutputRef() string {
	if n.Output == nil {
		return ""
	}
	return PortRef(n.ID, n.Output.ID)
}

// newNode builds a normalized node from cfg under id.
func newNode(id string, cfg NodeConfig) *Node {
	n := &Node{
		ID:          id,
		X:           cfg.X,
		Y:           cfg.Y,
		Data:        copyData(cfg.Data),
		Input:       newPort(cfg.Input, DefaultInputID, DefaultInputName),
		Output:      newPort(cfg.Output, DefaultOutputID, DefaultOutputName),
		HTMLContent: cfg.HTMLContent,
		ShowHeader:  true,
		ReadOnly:    cfg.ReadOnly,
		Theme:       copyTheme(cfg.Theme),
	}
	if cfg.ShowHeader != nil {
		n.ShowHeader = *cfg.ShowHeader
	}
	if _, ok := n.Data["name"]; !ok && cfg.Name != "" {
		n.Data["name"] = cfg.Name
	}
	return n
}

// apply merges patch into n.
func (n *Node) apply(patch NodePatch) {
	if patch.Name != nil {
		n.Data["name"] = *patch.Name
	}
	for k, v := range patch.Data {
		n.Data[k] = v
	}
	n.Input = mergePort(n.Input, patch.Input, DefaultInputID, DefaultInputName)
	n.Output = mergePort(n.Output, patch.Output, DefaultOutputID, DefaultOutputName)
	if patch.X != nil {
		n.X = *patch.X
	}
	if patch.Y != nil {
		n.Y = *patch.Y
	}
	if patch.HTMLContent != nil {
		n.HTMLContent = *patch.HTMLContent
	}
	if patch.ShowHeader != nil {
		n.ShowHeader = *patch.ShowHeader
	}
}

// clone returns a copy that shares no mutable state with n.
func (n *Node) clone() *Node {
	c := *n
	c.Data = copyData(n.Data)
	c.Theme = copyTheme(n.Theme)
	c.Input = n.Input.clone()
	c.Output = n.Output.clone()
	return &c
}

// copyData copies the top level of m; nested values are shared, matching
// the shallow-merge semantics of updates.
func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTheme(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
