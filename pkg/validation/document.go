package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowly/flowly/internal/core/graph"
)

// ErrCycle reports a directed cycle when DocumentOptions.CheckCycles is set.
var ErrCycle = errors.New("graph contains a cycle")

// DocumentOptions enables the checks that are not structural rules.
type DocumentOptions struct {
	// CheckCycles rejects documents whose connections form a directed cycle.
	CheckCycles bool
	// CheckPorts requires every connection to name its endpoints' current
	// ports. A store keeps connections made before a port was renamed, so
	// this is off by default.
	CheckPorts bool
	// CheckLimits rejects ports holding more connections than their limit.
	// A store keeps such connections after a limit shrinks, so this is off
	// by default.
	CheckLimits bool
	// MaxErrors truncates the result; zero keeps every error.
	MaxErrors int
}

// ValidateDocument checks doc for tag rules, unique ids, dangling
// endpoints, duplicate connections and self-loops, plus the optional checks
// in opts. Every document a Store produces passes with no options set. All
// failures are collected into a ValidationErrors.
func ValidateDocument(doc *graph.Document, opts ...DocumentOptions) error {
	if doc == nil {
		return graph.ErrNilDocument
	}
	var cfg DocumentOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var errs ValidationErrors
	if err := Validate.Struct(doc); err != nil {
		formatted := formatValidationErrors(err)
		var ve ValidationErrors
		if !errors.As(formatted, &ve) {
			return formatted
		}
		errs = append(errs, ve...)
	}
	errs = append(errs, checkReferences(doc, cfg)...)

	if cfg.CheckCycles && len(errs) == 0 {
		if path := findCycle(doc); path != nil {
			errs = append(errs, ValidationError{
				Field:   "connections",
				Value:   strings.Join(path, " -> "),
				Message: "connections form a directed cycle",
				Err:     ErrCycle,
			})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	if cfg.MaxErrors > 0 && len(errs) > cfg.MaxErrors {
		errs = errs[:cfg.MaxErrors]
	}
	return errs
}

func checkReferences(doc *graph.Document, cfg DocumentOptions) ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, sentinel error) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: sentinel.Error(), Err: sentinel})
	}

	nodes := make(map[string]*graph.Node, len(doc.Nodes))
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if n.ID == "" {
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			add(fmt.Sprintf("nodes[%d].id", i), n.ID, graph.ErrDuplicateNode)
			continue
		}
		nodes[n.ID] = n
	}

	type tuple struct{ s, so, t, ti string }
	connIDs := make(map[string]struct{}, len(doc.Connections))
	tuples := make(map[tuple]struct{}, len(doc.Connections))
	outUse := make(map[string]int)
	inUse := make(map[string]int)

	for i := range doc.Connections {
		c := &doc.Connections[i]
		field := fmt.Sprintf("connections[%d]", i)

		if c.ID != "" {
			if _, dup := connIDs[c.ID]; dup {
				add(field+".id", c.ID, graph.ErrDuplicateConnectionID)
			}
			connIDs[c.ID] = struct{}{}
		}

		src, srcOK := nodes[c.SourceNodeID]
		tgt, tgtOK := nodes[c.TargetNodeID]
		if !srcOK {
			add(field+".sourceNodeId", c.SourceNodeID, graph.ErrDanglingConnection)
		}
		if !tgtOK {
			add(field+".targetNodeId", c.TargetNodeID, graph.ErrDanglingConnection)
		}
		if cfg.CheckPorts && srcOK && src.OutputRef() != c.SourceOutputID {
			add(field+".sourceOutputId", c.SourceOutputID, graph.ErrOutputPortMismatch)
		}
		if cfg.CheckPorts && tgtOK && tgt.InputRef() != c.TargetInputID {
			add(field+".targetInputId", c.TargetInputID, graph.ErrInputPortMismatch)
		}
		if c.SourceNodeID != "" && c.SourceNodeID == c.TargetNodeID {
			add(field, c.SourceNodeID, graph.ErrSelfLoop)
		}

		k := tuple{c.SourceNodeID, c.SourceOutputID, c.TargetNodeID, c.TargetInputID}
		if _, dup := tuples[k]; dup {
			add(field, c.ID, graph.ErrDuplicateConnection)
		}
		tuples[k] = struct{}{}

		if !cfg.CheckLimits {
			continue
		}
		if srcOK && src.Output != nil {
			outUse[c.SourceNodeID]++
			if lim := src.Output.Limit; !lim.IsUnbounded() && outUse[c.SourceNodeID] > int(lim) {
				add(field+".sourceOutputId", c.SourceOutputID, graph.ErrOutputLimitReached)
			}
		}
		if tgtOK && tgt.Input != nil {
			inUse[c.TargetNodeID]++
			if lim := tgt.Input.Limit; !lim.IsUnbounded() && inUse[c.TargetNodeID] > int(lim) {
				add(field+".targetInputId", c.TargetInputID, graph.ErrInputLimitReached)
			}
		}
	}
	return errs
}

// findCycle returns the node ids of one directed cycle, first node
// repeated at the end, or nil. Nodes are visited in document order so the
// reported cycle is stable.
func findCycle(doc *graph.Document) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // visiting
		black = 2 // visited
	)
	color := make(map[string]int, len(doc.Nodes))
	adj := make(map[string][]string, len(doc.Nodes))
	for _, c := range doc.Connections {
		adj[c.SourceNodeID] = append(adj[c.SourceNodeID], c.TargetNodeID)
	}

	var stack []string
	var cycle []string
	var dfs func(string) bool
	dfs = func(u string) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range adj[u] {
			if color[v] == gray {
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == v {
						cycle = append(append([]string{}, stack[i:]...), v)
						break
					}
				}
				return true
			}
			if color[v] == white && dfs(v) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}
	for _, n := range doc.Nodes {
		if color[n.ID] == white && dfs(n.ID) {
			return cycle
		}
	}
	return nil
}
